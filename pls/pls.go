// Package pls implements partial least squares regression (PLS2, NIPALS
// with regression deflation) behind the connectivity RMS-scaling contract.
//
// Unlike the other connectivity models, PLSRegression by default recomputes
// the RMS scale from the data passed to Predict. WithFitTimeScaling(true)
// switches to the fit-time scale.
package pls

import (
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/core/model"
	"github.com/YuminosukeSato/connmodel/linear"
	"github.com/YuminosukeSato/connmodel/pkg/errors"
	"github.com/YuminosukeSato/connmodel/pkg/log"
	"github.com/YuminosukeSato/connmodel/preprocessing"
)

// ModelType identifies PLSRegression bundles.
const ModelType = "PLSRegression"

// PLSRegression regresses Y on a fixed number of latent components of the
// RMS-scaled X. X and Y are centred and standardised (ddof 1) internally.
type PLSRegression struct {
	state  *model.StateManager
	params params
	warn   sync.Once

	scale     []float64
	xMean     []float64
	xStd      []float64
	yMean     []float64
	yStd      []float64
	xWeights  *mat.Dense // P×K
	yWeights  *mat.Dense // V×K
	xLoadings *mat.Dense // P×K
	yLoadings *mat.Dense // V×K
	xRotation *mat.Dense // P×K
	coef      *mat.Dense // V×P
	nIter     []int
}

// NewPLSRegression creates a PLS model. Defaults: 1 component, 500 power
// iterations, tol 1e-6.
//
//	m, err := pls.NewPLSRegression(pls.WithComponents(3))
func NewPLSRegression(opts ...Option) (*PLSRegression, error) {
	p, err := newParams(opts)
	if err != nil {
		return nil, err
	}
	return &PLSRegression{state: model.NewStateManager(), params: p}, nil
}

// Fit RMS-scales X and extracts the latent components.
func (m *PLSRegression) Fit(X, Y mat.Matrix) error {
	start := time.Now()
	n, p, v, err := linear.CheckXY("PLSRegression.Fit", X, Y)
	if err != nil {
		return err
	}
	k := m.params.nComponents
	if k > min(n, p) {
		return errors.NewValidationError("n_components", fmt.Sprintf("cannot exceed min(n_samples, n_features) = %d", min(n, p)), k)
	}
	if n < 2 {
		return errors.NewValidationError("n_samples", "PLS needs at least 2 samples", n)
	}

	Xs, scale := preprocessing.RMSScale(X)
	xs := preprocessing.NewStandardScaler(true, true, 1)
	Xk, err := xs.FitTransform(Xs)
	if err != nil {
		return err
	}
	ys := preprocessing.NewStandardScaler(true, true, 1)
	Yk, err := ys.FitTransform(Y)
	if err != nil {
		return err
	}
	xk := mat.DenseCopyOf(Xk)
	yk := mat.DenseCopyOf(Yk)

	xWeights := mat.NewDense(p, k, nil)
	yWeights := mat.NewDense(v, k, nil)
	xLoadings := mat.NewDense(p, k, nil)
	yLoadings := mat.NewDense(v, k, nil)
	nIter := make([]int, k)
	for c := 0; c < k; c++ {
		comp, err := nipalsStep(xk, yk, m.params.maxIter, m.params.tol)
		if err != nil {
			return errors.Wrapf(err, "component %d", c)
		}
		xWeights.SetCol(c, comp.xWeights)
		yWeights.SetCol(c, comp.yWeights)
		xLoadings.SetCol(c, comp.xLoadings)
		yLoadings.SetCol(c, comp.yLoadings)
		nIter[c] = comp.nIter
	}

	// rotation = W (Pᵀ W)⁺
	var pw mat.Dense
	pw.Mul(xLoadings.T(), xWeights)
	inv, err := pinv(&pw)
	if err != nil {
		return err
	}
	var rotation mat.Dense
	rotation.Mul(xWeights, inv)

	// coef[t, j] = Σ_c R[j,c] Q[t,c] · yStd[t] / xStd[j]
	var rq mat.Dense
	rq.Mul(yLoadings, rotation.T())
	coef := mat.NewDense(v, p, nil)
	coef.Apply(func(t, j int, w float64) float64 {
		return w * ys.Scale[t] / xs.Scale[j]
	}, &rq)
	if err := errors.CheckMatrix("PLSRegression.Fit", coef, v, p, 0); err != nil {
		return err
	}

	m.scale = scale
	m.xMean, m.xStd = xs.Mean, xs.Scale
	m.yMean, m.yStd = ys.Mean, ys.Scale
	m.xWeights, m.yWeights = xWeights, yWeights
	m.xLoadings, m.yLoadings = xLoadings, yLoadings
	m.xRotation = &rotation
	m.coef = coef
	m.nIter = nIter
	if m.state == nil {
		m.state = model.NewStateManager()
	}
	m.state.SetFitted(n, p, v)

	log.GetLoggerWithName(ModelType).Debug("fit completed",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.TargetsKey, v,
		log.ComponentsKey, k,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// Predict RMS-scales X, centres it with the fit-time mean and applies the
// coefficients plus the Y mean. Unless fit-time scaling is enabled the RMS
// scale comes from X itself and a ScalingWarning is raised once per model.
func (m *PLSRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.RequireFitted(ModelType, "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := m.state.RequireFeatures("PLSRegression.Predict", c); err != nil {
		return nil, err
	}

	var Xs *mat.Dense
	if m.params.fitTimeScaling {
		Xs = preprocessing.ApplyScale(X, m.scale)
	} else {
		m.warn.Do(func() {
			errors.Warn(errors.NewScalingWarning(ModelType, "RMS scale recomputed from prediction data"))
		})
		Xs, _ = preprocessing.RMSScale(X)
	}
	Xs.Apply(func(_, j int, x float64) float64 { return x - m.xMean[j] }, Xs)

	v, _ := m.coef.Dims()
	out := mat.NewDense(r, v, nil)
	out.Mul(Xs, m.coef.T())
	out.Apply(func(_, t int, y float64) float64 { return y + m.yMean[t] }, out)
	return out, nil
}

// Transform projects X onto the latent x scores (N×K).
func (m *PLSRegression) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.RequireFitted(ModelType, "Transform"); err != nil {
		return nil, err
	}
	_, c := X.Dims()
	if err := m.state.RequireFeatures("PLSRegression.Transform", c); err != nil {
		return nil, err
	}
	scale := m.scale
	if !m.params.fitTimeScaling {
		scale = preprocessing.ColumnRMS(X)
	}
	Xs := preprocessing.ApplyScale(X, scale)
	Xs.Apply(func(_, j int, x float64) float64 { return (x - m.xMean[j]) / m.xStd[j] }, Xs)
	var scores mat.Dense
	scores.Mul(Xs, m.xRotation)
	return &scores, nil
}

// Coef returns the V×P coefficients on the RMS-scaled, centred input.
func (m *PLSRegression) Coef() *mat.Dense { return m.coef }

// Intercept returns the fit-time Y mean.
func (m *PLSRegression) Intercept() []float64 { return m.yMean }

// XWeights returns the P×K x weights.
func (m *PLSRegression) XWeights() *mat.Dense { return m.xWeights }

// XLoadings returns the P×K x loadings.
func (m *PLSRegression) XLoadings() *mat.Dense { return m.xLoadings }

// YLoadings returns the V×K y loadings.
func (m *PLSRegression) YLoadings() *mat.Dense { return m.yLoadings }

// XRotations returns the P×K matrix mapping standardised X to scores.
func (m *PLSRegression) XRotations() *mat.Dense { return m.xRotation }

// Scale returns the fit-time RMS scale.
func (m *PLSRegression) Scale() []float64 { return m.scale }

// NIter returns the power iterations used per component.
func (m *PLSRegression) NIter() []int { return m.nIter }

// ToBundle exports the fitted model.
func (m *PLSRegression) ToBundle() (*model.Bundle, error) {
	if err := m.state.RequireFitted(ModelType, "ToBundle"); err != nil {
		return nil, err
	}
	b := model.NewBundle(ModelType)
	b.State = m.state.GetState()
	b.SetParam("n_components", float64(m.params.nComponents))
	b.SetParam("max_iter", float64(m.params.maxIter))
	b.SetParam("tol", m.params.tol)
	b.SetParam("fit_time_scaling", boolParam(m.params.fitTimeScaling))
	b.SetMatrix("coef", m.coef)
	b.SetVector("scale", m.scale)
	b.SetVector("x_mean", m.xMean)
	b.SetVector("x_std", m.xStd)
	b.SetVector("y_mean", m.yMean)
	b.SetVector("y_std", m.yStd)
	b.SetMatrix("x_weights", m.xWeights)
	b.SetMatrix("y_weights", m.yWeights)
	b.SetMatrix("x_loadings", m.xLoadings)
	b.SetMatrix("y_loadings", m.yLoadings)
	b.SetMatrix("x_rotations", m.xRotation)
	return b, nil
}

// FromBundle restores a model exported with ToBundle.
func (m *PLSRegression) FromBundle(b *model.Bundle) error {
	if err := b.RequireType(ModelType); err != nil {
		return err
	}
	mats := map[string]**mat.Dense{
		"coef":        &m.coef,
		"x_weights":   &m.xWeights,
		"y_weights":   &m.yWeights,
		"x_loadings":  &m.xLoadings,
		"y_loadings":  &m.yLoadings,
		"x_rotations": &m.xRotation,
	}
	loaded := make(map[string]*mat.Dense, len(mats))
	for name := range mats {
		d, err := b.Matrix(name)
		if err != nil {
			return err
		}
		loaded[name] = d
	}
	vecs := map[string]*[]float64{
		"scale":  &m.scale,
		"x_mean": &m.xMean,
		"x_std":  &m.xStd,
		"y_mean": &m.yMean,
		"y_std":  &m.yStd,
	}
	loadedVecs := make(map[string][]float64, len(vecs))
	for name := range vecs {
		x, err := b.Vector(name)
		if err != nil {
			return err
		}
		loadedVecs[name] = x
	}
	v, p := loaded["coef"].Dims()
	if len(loadedVecs["scale"]) != p || len(loadedVecs["x_mean"]) != p || len(loadedVecs["y_mean"]) != v {
		return errors.NewValidationError("coef", "shape does not match stored statistics", []int{v, p})
	}

	for name, dst := range mats {
		*dst = loaded[name]
	}
	for name, dst := range vecs {
		*dst = loadedVecs[name]
	}
	if m.state == nil {
		m.state = model.NewStateManager()
	}
	if k, ok := b.Param("n_components"); ok {
		m.params.nComponents = int(k)
	}
	if it, ok := b.Param("max_iter"); ok {
		m.params.maxIter = int(it)
	}
	m.params.tol, _ = b.Param("tol")
	fts, _ := b.Param("fit_time_scaling")
	m.params.fitTimeScaling = fts != 0
	m.state.SetState(b.State)
	return nil
}

func (m *PLSRegression) String() string {
	return fmt.Sprintf("PLSRegression(n_components=%d, fit_time_scaling=%t)", m.params.nComponents, m.params.fitTimeScaling)
}

func boolParam(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
