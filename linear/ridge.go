// Package linear implements the regularised linear connectivity models:
// ridge (L2), lasso (L1) and non-negative least squares solved as a
// quadratic program. Every model RMS-scales the source columns before
// fitting, fits without an intercept and stores a V×P coefficient matrix.
package linear

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/core/model"
	"github.com/YuminosukeSato/connmodel/pkg/log"
	"github.com/YuminosukeSato/connmodel/preprocessing"
)

// RidgeModelType identifies Ridge bundles.
const RidgeModelType = "Ridge"

// Ridge is L2-regularised regression of every target on the RMS-scaled
// sources.
type Ridge struct {
	state  *model.StateManager
	params params

	scale    []float64
	coef     *mat.Dense
	singular []float64
	rank     int
}

// NewRidge creates a Ridge model. The default alpha is 1.
//
//	ridge, err := linear.NewRidge(linear.WithAlpha(10))
//	err = ridge.Fit(X, Y)
//	Yhat, err := ridge.Predict(Xtest)
func NewRidge(opts ...Option) (*Ridge, error) {
	p := newParams(params{alpha: 1}, opts)
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Ridge{state: model.NewStateManager(), params: p}, nil
}

// Fit scales X and solves the ridge problem for all targets.
func (r *Ridge) Fit(X, Y mat.Matrix) error {
	start := time.Now()
	n, p, v, err := CheckXY("Ridge.Fit", X, Y)
	if err != nil {
		return err
	}

	Xs, scale := preprocessing.NanRMSScale(X)
	sol, err := SolveRidge(Xs, Y, r.params.alpha)
	if err != nil {
		return err
	}

	r.scale = scale
	r.coef = sol.Coef
	r.singular = sol.Singular
	r.rank = sol.Rank
	if r.state == nil {
		r.state = model.NewStateManager()
	}
	r.state.SetFitted(n, p, v)

	log.GetLoggerWithName(RidgeModelType).Debug("fit completed",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.TargetsKey, v,
		log.RegularizationKey, r.params.alpha,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// Predict returns nan_to_num(X / scale) · coefᵀ using the fit-time scale.
func (r *Ridge) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := r.state.RequireFitted(RidgeModelType, "Predict"); err != nil {
		return nil, err
	}
	_, c := X.Dims()
	if err := r.state.RequireFeatures("Ridge.Predict", c); err != nil {
		return nil, err
	}
	return PredictScaled(X, r.scale, r.coef), nil
}

// Coef returns the V×P coefficients on the scaled sources, or nil before Fit.
func (r *Ridge) Coef() *mat.Dense { return r.coef }

// Scale returns the fit-time column scale.
func (r *Ridge) Scale() []float64 { return r.scale }

// EffectiveCoef returns the coefficients in raw input units.
func (r *Ridge) EffectiveCoef() *mat.Dense { return EffectiveCoef(r.coef, r.scale) }

// Alpha returns the L2 strength.
func (r *Ridge) Alpha() float64 { return r.params.alpha }

// Rank returns the numerical rank of the scaled design seen by Fit.
func (r *Ridge) Rank() int { return r.rank }

// Singular returns the singular values of the scaled design.
func (r *Ridge) Singular() []float64 { return r.singular }

// ToBundle exports the fitted model.
func (r *Ridge) ToBundle() (*model.Bundle, error) {
	if err := r.state.RequireFitted(RidgeModelType, "ToBundle"); err != nil {
		return nil, err
	}
	b := model.NewBundle(RidgeModelType)
	b.State = r.state.GetState()
	b.SetParam("alpha", r.params.alpha)
	b.SetParam("rank", float64(r.rank))
	b.SetMatrix("coef", r.coef)
	b.SetVector("scale", r.scale)
	b.SetVector("singular", r.singular)
	return b, nil
}

// FromBundle restores a model exported with ToBundle.
func (r *Ridge) FromBundle(b *model.Bundle) error {
	if err := b.RequireType(RidgeModelType); err != nil {
		return err
	}
	coef, err := b.Matrix("coef")
	if err != nil {
		return err
	}
	scale, err := b.Vector("scale")
	if err != nil {
		return err
	}
	if err := checkCoefScale(coef, scale); err != nil {
		return err
	}
	singular, _ := b.Vector("singular")
	alpha, _ := b.Param("alpha")
	rank, _ := b.Param("rank")

	if r.state == nil {
		r.state = model.NewStateManager()
	}
	r.params.alpha = alpha
	r.coef = coef
	r.scale = scale
	r.singular = singular
	r.rank = int(rank)
	r.state.SetState(b.State)
	return nil
}

func (r *Ridge) String() string {
	return fmt.Sprintf("Ridge(alpha=%g)", r.params.alpha)
}
