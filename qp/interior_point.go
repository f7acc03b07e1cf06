package qp

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

const (
	defaultInteriorMaxIter = 100
	defaultInteriorTol     = 1e-9
	centering              = 0.1
	stepFraction           = 0.99
)

// InteriorPoint is a primal-dual path-following method. The iterate (c, z)
// stays strictly positive; each step solves the Newton system of the
// perturbed KKT conditions
//
//	Gc − a − z = 0,  c∘z = σμ
//
// reduced to (G + C⁻¹Z) dc = −r_d + σμ/c − z.
type InteriorPoint struct {
	maxIter int
	tol     float64
}

func newInteriorPoint(o options) *InteriorPoint {
	return &InteriorPoint{maxIter: o.maxIter, tol: o.tol}
}

// NewInteriorPoint creates an interior-point solver.
func NewInteriorPoint(opts ...Option) *InteriorPoint {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return newInteriorPoint(o)
}

// Name implements Solver.
func (s *InteriorPoint) Name() string { return InteriorPointName }

// Solve implements Solver. A warm start seeds the primal iterate, pushed
// into the interior. Coordinates whose Gram diagonal is zero carry no
// curvature; they are pinned to zero and the barrier runs on the rest.
func (s *InteriorPoint) Solve(ctx context.Context, G mat.Symmetric, a, warm []float64) (Result, error) {
	if err := checkProblem(InteriorPointName, G, a, warm); err != nil {
		return Result{}, err
	}
	free, pinned := splitFlat(G)
	if len(pinned) == 0 {
		return s.solve(ctx, G, a, warm)
	}
	for _, j := range pinned {
		if a[j] > 0 {
			return Result{}, errors.NewSolverError(InteriorPointName, errors.SolverInfeasible, -1, 0,
				"objective unbounded along a zero-curvature coordinate")
		}
	}
	x := make([]float64, len(a))
	if len(free) == 0 {
		return Result{X: x}, nil
	}
	Gr, ar, wr := reduce(G, a, warm, free)
	res, err := s.solve(ctx, Gr, ar, wr)
	if err != nil {
		return Result{}, err
	}
	for k, j := range free {
		x[j] = res.X[k]
	}
	return Result{X: x, Iterations: res.Iterations}, nil
}

func (s *InteriorPoint) solve(ctx context.Context, G mat.Symmetric, a, warm []float64) (Result, error) {
	n := len(a)
	maxIter := s.maxIter
	if maxIter == 0 {
		maxIter = defaultInteriorMaxIter
	}
	tol := s.tol
	if tol == 0 {
		tol = defaultInteriorTol
	}
	scale := max(1, maxAbs(a))

	c := make([]float64, n)
	z := make([]float64, n)
	for j := range c {
		c[j] = 1
		if warm != nil && errors.IsFinite(warm[j]) {
			c[j] = math.Max(warm[j], 1e-2)
		}
		z[j] = 1
	}

	gc := make([]float64, n)
	rd := make([]float64, n)
	rhs := make([]float64, n)
	dz := make([]float64, n)
	M := mat.NewSymDense(n, nil)

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		symMulVec(gc, G, c)
		mu := 0.0
		for j := 0; j < n; j++ {
			rd[j] = gc[j] - a[j] - z[j]
			mu += c[j] * z[j]
		}
		mu /= float64(n)
		if err := errors.CheckScalar(InteriorPointName+".Solve", mu, iter); err != nil {
			return Result{}, err
		}
		if maxAbs(rd) <= tol*scale && mu <= tol*scale {
			clampNonNegative(c)
			return Result{X: c, Iterations: iter}, nil
		}

		target := centering * mu
		M.CopySym(G)
		for j := 0; j < n; j++ {
			M.SetSym(j, j, M.At(j, j)+z[j]/c[j])
			rhs[j] = -rd[j] + target/c[j] - z[j]
		}
		dc, ok := solveSPD(M, rhs)
		if !ok {
			return Result{}, errors.NewSolverError(InteriorPointName, errors.SolverInfeasible, -1, iter,
				"Newton system is not positive definite")
		}
		for j := 0; j < n; j++ {
			dz[j] = target/c[j] - z[j] - z[j]*dc[j]/c[j]
		}

		step := math.Min(maxStep(c, dc), maxStep(z, dz))
		step = math.Min(1, stepFraction*step)
		for j := 0; j < n; j++ {
			c[j] += step * dc[j]
			z[j] += step * dz[j]
		}
	}
	return Result{}, errors.NewSolverError(InteriorPointName, errors.SolverNotConverged, -1, maxIter,
		"duality measure above tolerance")
}

// maxStep returns the largest t with v + t·dv ≥ 0, or +Inf.
func maxStep(v, dv []float64) float64 {
	t := math.Inf(1)
	for j := range v {
		if dv[j] < 0 {
			if s := -v[j] / dv[j]; s < t {
				t = s
			}
		}
	}
	return t
}

func symMulVec(dst []float64, G mat.Symmetric, x []float64) {
	n := len(x)
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += G.At(i, j) * x[j]
		}
		dst[i] = sum
	}
}

func clampNonNegative(c []float64) {
	for j := range c {
		if c[j] < 0 {
			c[j] = 0
		}
	}
}
