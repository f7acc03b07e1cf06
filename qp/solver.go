// Package qp solves the non-negativity constrained quadratic programs
//
//	minimise ½ cᵀGc − aᵀc  subject to  c ≥ 0
//
// that arise when NNLS-style connectivity weights are fitted one target at a
// time against a shared Gram matrix G.
//
// Two interchangeable backends are provided: an active-set method
// (Lawson–Hanson working on G directly) and a primal-dual path-following
// interior-point method. Backends are selected by name through New:
//
//	solver, err := qp.New("activeset", qp.WithMaxIter(500))
//	res, err := solver.Solve(ctx, G, a, nil)
package qp

import (
	"context"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

// Backend names accepted by New.
const (
	ActiveSetName     = "activeset"
	InteriorPointName = "interior"
)

// Result is the solution of one program.
type Result struct {
	// X is the minimiser, every entry ≥ 0.
	X []float64

	// Iterations is the number of outer iterations taken.
	Iterations int
}

// Solver is a quadratic-programming backend. G must be symmetric positive
// semidefinite and is only read. warm may be nil; when given it seeds the
// iterate and must have the same length as a.
type Solver interface {
	Name() string
	Solve(ctx context.Context, G mat.Symmetric, a, warm []float64) (Result, error)
}

type options struct {
	maxIter int
	tol     float64
}

// Option configures a backend.
type Option func(*options)

// WithMaxIter caps the number of outer iterations. Zero selects the
// backend default.
func WithMaxIter(n int) Option {
	return func(o *options) {
		o.maxIter = n
	}
}

// WithTol sets the convergence tolerance. Zero selects the backend default.
func WithTol(tol float64) Option {
	return func(o *options) {
		o.tol = tol
	}
}

type factory func(o options) Solver

var registry = map[string]factory{
	ActiveSetName:     func(o options) Solver { return newActiveSet(o) },
	InteriorPointName: func(o options) Solver { return newInteriorPoint(o) },
}

var aliases = map[string]string{
	"quadprog":      ActiveSetName,
	"active_set":    ActiveSetName,
	"cvxopt":        InteriorPointName,
	"interiorpoint": InteriorPointName,
}

// Canonical resolves a backend name or alias. The empty string resolves to
// the active-set backend.
func Canonical(name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return ActiveSetName, nil
	}
	if target, ok := aliases[key]; ok {
		key = target
	}
	if _, ok := registry[key]; !ok {
		return "", errors.NewValidationError("solver", "unknown solver, expected one of "+strings.Join(Names(), ", "), name)
	}
	return key, nil
}

// New builds the backend registered under name or one of its aliases.
func New(name string, opts ...Option) (Solver, error) {
	key, err := Canonical(name)
	if err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxIter < 0 {
		return nil, errors.NewValidationError("max_iter", "must be non-negative", o.maxIter)
	}
	if !errors.IsFinite(o.tol) || o.tol < 0 {
		return nil, errors.NewValidationError("tol", "must be a finite non-negative number", o.tol)
	}
	return registry[key](o), nil
}

// Names lists the canonical backend names and aliases in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry)+len(aliases))
	for k := range registry {
		names = append(names, k)
	}
	for k := range aliases {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// checkProblem rejects programs that are not bounded convex problems.
func checkProblem(solver string, G mat.Symmetric, a, warm []float64) error {
	n := G.SymmetricDim()
	if len(a) != n {
		return errors.NewDimensionError(solver+".Solve", n, len(a), 0)
	}
	if warm != nil && len(warm) != n {
		return errors.NewDimensionError(solver+".Solve", n, len(warm), 0)
	}
	for i := 0; i < n; i++ {
		if !errors.IsFinite(a[i]) {
			return errors.NewSolverError(solver, errors.SolverInfeasible, -1, 0, "linear term is not finite")
		}
		if G.At(i, i) < 0 {
			return errors.NewSolverError(solver, errors.SolverInfeasible, -1, 0, "Gram matrix has a negative diagonal")
		}
		for j := 0; j <= i; j++ {
			if !errors.IsFinite(G.At(i, j)) {
				return errors.NewSolverError(solver, errors.SolverInfeasible, -1, 0, "Gram matrix is not finite")
			}
		}
	}
	return nil
}

// splitFlat separates the coordinates of G with positive diagonal from those
// with a (numerically) zero diagonal. For a positive semidefinite G a zero
// diagonal entry means the whole row is zero.
func splitFlat(G mat.Symmetric) (free, pinned []int) {
	n := G.SymmetricDim()
	maxDiag := 0.0
	for j := 0; j < n; j++ {
		maxDiag = math.Max(maxDiag, G.At(j, j))
	}
	floor := 1e-14 * maxDiag
	for j := 0; j < n; j++ {
		if G.At(j, j) > floor {
			free = append(free, j)
		} else {
			pinned = append(pinned, j)
		}
	}
	return free, pinned
}

// reduce restricts the program to the coordinates in idx.
func reduce(G mat.Symmetric, a, warm []float64, idx []int) (*mat.SymDense, []float64, []float64) {
	k := len(idx)
	Gr := mat.NewSymDense(k, nil)
	ar := make([]float64, k)
	var wr []float64
	if warm != nil {
		wr = make([]float64, k)
	}
	for r, i := range idx {
		ar[r] = a[i]
		if warm != nil {
			wr[r] = warm[i]
		}
		for c := r; c < k; c++ {
			Gr.SetSym(r, c, G.At(i, idx[c]))
		}
	}
	return Gr, ar, wr
}

// solveSPD solves M x = b for symmetric positive definite M, adding a small
// diagonal jitter when the factorisation fails.
func solveSPD(M *mat.SymDense, b []float64) ([]float64, bool) {
	n := M.SymmetricDim()
	var chol mat.Cholesky
	if !chol.Factorize(M) {
		trace := 0.0
		for i := 0; i < n; i++ {
			trace += M.At(i, i)
		}
		jitter := 1e-10 * math.Max(trace/float64(n), 1)
		J := mat.NewSymDense(n, nil)
		J.CopySym(M)
		for i := 0; i < n; i++ {
			J.SetSym(i, i, J.At(i, i)+jitter)
		}
		if !chol.Factorize(J) {
			return nil, false
		}
	}
	x := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(x, mat.NewVecDense(n, append([]float64(nil), b...))); err != nil {
		// ill-conditioned systems still yield a usable solution
		if _, ok := err.(mat.Condition); !ok {
			return nil, false
		}
	}
	return x.RawVector().Data, true
}

func maxAbs(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}
