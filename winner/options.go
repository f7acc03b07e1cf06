package winner

import (
	"runtime"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

type params struct {
	n           int
	alpha       float64
	positive    bool
	byMagnitude bool
	workers     int
}

// Option configures WTA, WNTA and Staged.
type Option func(*params)

// WithN sets the number of winners kept per target (WNTA, Staged).
func WithN(n int) Option {
	return func(p *params) {
		p.n = n
	}
}

// WithAlpha sets the L2 strength of the stage-2 refit (Staged).
func WithAlpha(alpha float64) Option {
	return func(p *params) {
		p.alpha = alpha
	}
}

// WithPositive makes the stage-1 dense fit non-negative least squares.
func WithPositive(positive bool) Option {
	return func(p *params) {
		p.positive = positive
	}
}

// WithRankByMagnitude ranks sources by |coef| instead of the signed value.
func WithRankByMagnitude(byMagnitude bool) Option {
	return func(p *params) {
		p.byMagnitude = byMagnitude
	}
}

// WithWorkers sets the goroutines used by per-target loops. Values below 1
// mean runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(p *params) {
		p.workers = n
	}
}

func newParams(defaults params, opts []Option) (params, error) {
	p := defaults
	for _, opt := range opts {
		opt(&p)
	}
	if p.workers < 1 {
		p.workers = runtime.NumCPU()
	}
	if p.n < 1 {
		return p, errors.NewValidationError("n", "must be at least 1", p.n)
	}
	if !errors.IsFinite(p.alpha) || p.alpha < 0 {
		return p, errors.NewValidationError("alpha", "must be a finite non-negative number", p.alpha)
	}
	return p, nil
}

func boolParam(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
