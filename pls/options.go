package pls

import "github.com/YuminosukeSato/connmodel/pkg/errors"

type params struct {
	nComponents    int
	maxIter        int
	tol            float64
	fitTimeScaling bool
}

// Option configures PLSRegression.
type Option func(*params)

// WithComponents sets the number of latent components.
func WithComponents(k int) Option {
	return func(p *params) {
		p.nComponents = k
	}
}

// WithMaxIter caps the power iterations per component.
func WithMaxIter(n int) Option {
	return func(p *params) {
		p.maxIter = n
	}
}

// WithTol sets the squared change of the x weights below which the power
// iteration stops.
func WithTol(tol float64) Option {
	return func(p *params) {
		p.tol = tol
	}
}

// WithFitTimeScaling makes Predict reuse the RMS scale of the fit data
// instead of recomputing it from the input.
func WithFitTimeScaling(enabled bool) Option {
	return func(p *params) {
		p.fitTimeScaling = enabled
	}
}

func newParams(opts []Option) (params, error) {
	p := params{nComponents: 1, maxIter: 500, tol: 1e-6}
	for _, opt := range opts {
		opt(&p)
	}
	switch {
	case p.nComponents < 1:
		return p, errors.NewValidationError("n_components", "must be at least 1", p.nComponents)
	case p.maxIter < 1:
		return p, errors.NewValidationError("max_iter", "must be at least 1", p.maxIter)
	case !errors.IsFinite(p.tol) || p.tol < 0:
		return p, errors.NewValidationError("tol", "must be a finite non-negative number", p.tol)
	}
	return p, nil
}
