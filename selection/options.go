package selection

import (
	"runtime"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

type params struct {
	n       int
	alpha   float64
	cv      int
	workers int
}

// Option configures Sequential.
type Option func(*params)

// WithN sets the number of source columns to select.
func WithN(n int) Option {
	return func(p *params) {
		p.n = n
	}
}

// WithAlpha sets the L2 strength of the ridge fit on the selected subset.
func WithAlpha(alpha float64) Option {
	return func(p *params) {
		p.alpha = alpha
	}
}

// WithCV sets the number of unshuffled folds used to score candidates.
func WithCV(k int) Option {
	return func(p *params) {
		p.cv = k
	}
}

// WithWorkers sets the goroutines used to score candidates. Values below 1
// mean runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(p *params) {
		p.workers = n
	}
}

func newParams(opts []Option) (params, error) {
	p := params{n: 1, alpha: 1, cv: 5}
	for _, opt := range opts {
		opt(&p)
	}
	if p.workers < 1 {
		p.workers = runtime.NumCPU()
	}
	switch {
	case p.n < 1:
		return p, errors.NewValidationError("n", "must be at least 1", p.n)
	case !errors.IsFinite(p.alpha) || p.alpha < 0:
		return p, errors.NewValidationError("alpha", "must be a finite non-negative number", p.alpha)
	case p.cv < 2:
		return p, errors.NewValidationError("cv", "must be at least 2", p.cv)
	}
	return p, nil
}
