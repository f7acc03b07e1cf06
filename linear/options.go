package linear

import (
	"runtime"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
	"github.com/YuminosukeSato/connmodel/qp"
)

// params holds the hyperparameters shared by the estimators of this package.
// Each estimator reads only the fields it uses.
type params struct {
	alpha   float64
	gamma   float64
	maxIter int
	tol     float64
	solver  string
	workers int
}

// Option configures Ridge, Lasso and NNLS.
type Option func(*params)

// WithAlpha sets the L2 strength (Ridge, NNLS) or the L1 strength (Lasso).
func WithAlpha(alpha float64) Option {
	return func(p *params) {
		p.alpha = alpha
	}
}

// WithGamma sets the L1-like shift subtracted from the linear term of the
// NNLS program.
func WithGamma(gamma float64) Option {
	return func(p *params) {
		p.gamma = gamma
	}
}

// WithMaxIter caps the iterations of iterative solvers.
func WithMaxIter(n int) Option {
	return func(p *params) {
		p.maxIter = n
	}
}

// WithTol sets the stopping tolerance of iterative solvers.
func WithTol(tol float64) Option {
	return func(p *params) {
		p.tol = tol
	}
}

// WithSolver selects the quadratic-programming backend of NNLS by name
// ("activeset", "interior" or an alias).
func WithSolver(name string) Option {
	return func(p *params) {
		p.solver = name
	}
}

// WithWorkers sets the number of goroutines of per-target loops. Values
// below 1 mean runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(p *params) {
		p.workers = n
	}
}

func newParams(defaults params, opts []Option) params {
	p := defaults
	for _, opt := range opts {
		opt(&p)
	}
	if p.workers < 1 {
		p.workers = runtime.NumCPU()
	}
	return p
}

func (p params) validate() error {
	if !nonNegative(p.alpha) {
		return errors.NewValidationError("alpha", "must be a finite non-negative number", p.alpha)
	}
	if !nonNegative(p.gamma) {
		return errors.NewValidationError("gamma", "must be a finite non-negative number", p.gamma)
	}
	if p.maxIter < 0 {
		return errors.NewValidationError("max_iter", "must be non-negative", p.maxIter)
	}
	if !nonNegative(p.tol) {
		return errors.NewValidationError("tol", "must be a finite non-negative number", p.tol)
	}
	if p.solver != "" {
		if _, err := qp.Canonical(p.solver); err != nil {
			return err
		}
	}
	return nil
}

func nonNegative(v float64) bool {
	return errors.IsFinite(v) && v >= 0
}
