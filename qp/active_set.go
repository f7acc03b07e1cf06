package qp

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

const defaultActiveSetTol = 1e-10

// ActiveSet is the Lawson–Hanson active-set method applied to the Gram
// form of the program. Variables are split into a passive set P (free,
// positive) and an active set Z (held at zero). Each outer iteration frees
// the variable with the largest dual w = a − Gc; the inner loop solves the
// equality-constrained subproblem on P and steps back to the boundary while
// any passive variable would turn non-positive.
type ActiveSet struct {
	maxIter int
	tol     float64
}

func newActiveSet(o options) *ActiveSet {
	return &ActiveSet{maxIter: o.maxIter, tol: o.tol}
}

// NewActiveSet creates an active-set solver.
func NewActiveSet(opts ...Option) *ActiveSet {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return newActiveSet(o)
}

// Name implements Solver.
func (s *ActiveSet) Name() string { return ActiveSetName }

// Solve implements Solver. A warm start marks its positive entries as the
// initial passive set.
func (s *ActiveSet) Solve(ctx context.Context, G mat.Symmetric, a, warm []float64) (Result, error) {
	if err := checkProblem(ActiveSetName, G, a, warm); err != nil {
		return Result{}, err
	}
	n := len(a)
	maxIter := s.maxIter
	if maxIter == 0 {
		maxIter = 3 * n
		if maxIter < 30 {
			maxIter = 30
		}
	}
	tol := s.tol
	if tol == 0 {
		tol = defaultActiveSetTol
	}
	tol *= max(1, maxAbs(a))

	c := make([]float64, n)
	passive := make([]bool, n)
	if warm != nil {
		for j, v := range warm {
			if v > 0 && errors.IsFinite(v) {
				c[j] = v
				passive[j] = true
			}
		}
		if err := s.settle(G, a, c, passive, tol); err != nil {
			return Result{}, err
		}
	}

	w := make([]float64, n)
	blocked := make([]bool, n)
	for iter := 0; ; iter++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		// dual vector w = a − Gc
		for i := 0; i < n; i++ {
			sum := a[i]
			for j := 0; j < n; j++ {
				if c[j] != 0 {
					sum -= G.At(i, j) * c[j]
				}
			}
			w[i] = sum
		}

		t, wmax := -1, tol
		for j := 0; j < n; j++ {
			if !passive[j] && !blocked[j] && w[j] > wmax {
				t, wmax = j, w[j]
			}
		}
		if t < 0 {
			if err := errors.CheckNumericalStability(ActiveSetName+".Solve", c, iter); err != nil {
				return Result{}, err
			}
			return Result{X: c, Iterations: iter}, nil
		}
		if iter >= maxIter {
			return Result{}, errors.NewSolverError(ActiveSetName, errors.SolverNotConverged, -1, iter,
				"dual feasibility not reached")
		}

		passive[t] = true
		if err := s.settle(G, a, c, passive, tol); err != nil {
			return Result{}, err
		}
		if c[t] <= 0 {
			// rounding kept the freed variable on its bound
			blocked[t] = true
			continue
		}
		clear(blocked)
	}
}

// settle solves the subproblem on the passive set, moving back along the
// segment towards the previous feasible point until every passive variable
// is strictly positive. c is updated in place.
func (s *ActiveSet) settle(G mat.Symmetric, a, c []float64, passive []bool, tol float64) error {
	n := len(a)
	for inner := 0; inner <= n; inner++ {
		idx := indices(passive)
		if len(idx) == 0 {
			return nil
		}
		z, ok := solveSubproblem(G, a, idx)
		if !ok {
			return errors.NewSolverError(ActiveSetName, errors.SolverInfeasible, -1, inner,
				"passive-set Gram block is singular")
		}

		feasible := true
		for k := range idx {
			if z[k] <= 0 {
				feasible = false
				break
			}
		}
		if feasible {
			for k, j := range idx {
				c[j] = z[k]
			}
			return nil
		}

		// largest step from c towards z that keeps c ≥ 0
		alpha, blocking := 1.0, -1
		for k, j := range idx {
			if z[k] <= 0 {
				step := 0.0
				if d := c[j] - z[k]; d > 0 {
					step = c[j] / d
				}
				if blocking < 0 || step < alpha {
					alpha, blocking = step, j
				}
			}
		}
		for k, j := range idx {
			c[j] += alpha * (z[k] - c[j])
			if j == blocking || c[j] <= tol {
				c[j] = 0
				passive[j] = false
			}
		}
	}
	return errors.NewSolverError(ActiveSetName, errors.SolverNotConverged, -1, n,
		"inner loop did not settle")
}

func solveSubproblem(G mat.Symmetric, a []float64, idx []int) ([]float64, bool) {
	k := len(idx)
	sub := mat.NewSymDense(k, nil)
	rhs := make([]float64, k)
	for r, i := range idx {
		rhs[r] = a[i]
		for q := r; q < k; q++ {
			sub.SetSym(r, q, G.At(i, idx[q]))
		}
	}
	return solveSPD(sub, rhs)
}

func indices(mask []bool) []int {
	idx := make([]int, 0, len(mask))
	for j, m := range mask {
		if m {
			idx = append(idx, j)
		}
	}
	return idx
}
