package linear

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/core/model"
	"github.com/YuminosukeSato/connmodel/core/parallel"
	"github.com/YuminosukeSato/connmodel/pkg/errors"
	"github.com/YuminosukeSato/connmodel/pkg/log"
	"github.com/YuminosukeSato/connmodel/preprocessing"
)

// LassoModelType identifies Lasso bundles.
const LassoModelType = "Lasso"

const (
	defaultLassoMaxIter = 1000
	defaultLassoTol     = 1e-4
)

// Lasso fits every target independently by cyclic coordinate descent on
//
//	(1/2N) ‖y − Xs w‖² + α ‖w‖₁
//
// stopping when the duality gap drops below tol·‖y‖². A target that hits
// max_iter emits a ConvergenceWarning and keeps its last iterate.
type Lasso struct {
	state  *model.StateManager
	params params

	scale []float64
	coef  *mat.Dense
	nIter []int
}

// NewLasso creates a Lasso model. Defaults: alpha 1, max_iter 1000, tol 1e-4.
func NewLasso(opts ...Option) (*Lasso, error) {
	p := newParams(params{alpha: 1, maxIter: defaultLassoMaxIter, tol: defaultLassoTol}, opts)
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.maxIter == 0 {
		p.maxIter = defaultLassoMaxIter
	}
	return &Lasso{state: model.NewStateManager(), params: p}, nil
}

// Fit scales X and runs coordinate descent for every target.
func (l *Lasso) Fit(X, Y mat.Matrix) error {
	return l.FitContext(context.Background(), X, Y)
}

// FitContext is Fit bounded by ctx. On cancellation no state is stored.
func (l *Lasso) FitContext(ctx context.Context, X, Y mat.Matrix) error {
	start := time.Now()
	n, p, v, err := CheckXY("Lasso.Fit", X, Y)
	if err != nil {
		return err
	}

	Xs, scale := preprocessing.NanRMSScale(X)
	cols := make([][]float64, p)
	norms := make([]float64, p)
	for j := 0; j < p; j++ {
		cols[j] = mat.Col(nil, j, Xs)
		norms[j] = floats.Dot(cols[j], cols[j])
	}

	coef := mat.NewDense(v, p, nil)
	nIter := make([]int, v)
	unconverged := make([]bool, v)
	err = parallel.ForEachChunk(ctx, v, l.params.workers, parallel.DefaultThreshold, func(ctx context.Context, s, e int) error {
		y := make([]float64, n)
		for t := s; t < e; t++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			mat.Col(y, t, Y)
			iters, ok := coordinateDescent(cols, norms, y, coef.RawRowView(t), l.params.alpha, l.params.maxIter, l.params.tol)
			nIter[t] = iters
			unconverged[t] = !ok
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := errors.CheckMatrix("Lasso.Fit", coef, v, p, 0); err != nil {
		return err
	}
	for t, bad := range unconverged {
		if bad {
			errors.Warn(errors.NewConvergenceWarning(LassoModelType, l.params.maxIter,
				fmt.Sprintf("duality gap above tolerance for target %d", t)))
		}
	}

	l.scale = scale
	l.coef = coef
	l.nIter = nIter
	if l.state == nil {
		l.state = model.NewStateManager()
	}
	l.state.SetFitted(n, p, v)

	log.GetLoggerWithName(LassoModelType).Debug("fit completed",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.TargetsKey, v,
		log.L1PenaltyKey, l.params.alpha,
		log.WorkersKey, l.params.workers,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// coordinateDescent minimises (1/2N)‖y − Xw‖² + α‖w‖₁ in place on w, which
// must start at zero. cols are the columns of X and norms their squared
// norms. It reports the iterations used and whether the gap criterion was met.
func coordinateDescent(cols [][]float64, norms, y, w []float64, alpha float64, maxIter int, tol float64) (int, bool) {
	n := len(y)
	p := len(cols)
	l1 := alpha * float64(n)

	residual := append([]float64(nil), y...)
	yNorm2 := floats.Dot(y, y)
	if yNorm2 == 0 {
		return 0, true
	}
	tolScaled := tol * yNorm2

	for iter := 0; iter < maxIter; iter++ {
		wMax, dwMax := 0.0, 0.0
		for j := 0; j < p; j++ {
			if norms[j] == 0 {
				continue
			}
			old := w[j]
			if old != 0 {
				floats.AddScaled(residual, old, cols[j])
			}
			rho := floats.Dot(cols[j], residual)
			w[j] = softThreshold(rho, l1) / norms[j]
			if w[j] != 0 {
				floats.AddScaled(residual, -w[j], cols[j])
			}
			dwMax = math.Max(dwMax, math.Abs(w[j]-old))
			wMax = math.Max(wMax, math.Abs(w[j]))
		}

		if wMax == 0 || dwMax/wMax < tol || iter == maxIter-1 {
			if dualityGap(cols, y, residual, w, l1) < tolScaled {
				return iter + 1, true
			}
		}
	}
	return maxIter, false
}

// dualityGap follows the primal/dual pair of the scaled objective
// ½‖r‖² + l1‖w‖₁.
func dualityGap(cols [][]float64, y, residual, w []float64, l1 float64) float64 {
	dualNorm := 0.0
	for _, col := range cols {
		dualNorm = math.Max(dualNorm, math.Abs(floats.Dot(col, residual)))
	}
	rNorm2 := floats.Dot(residual, residual)

	gap := rNorm2
	constant := 1.0
	if dualNorm > l1 {
		constant = l1 / dualNorm
		gap = 0.5 * (rNorm2 + rNorm2*constant*constant)
	}
	return gap + l1*floats.Norm(w, 1) - constant*floats.Dot(residual, y)
}

func softThreshold(z, gamma float64) float64 {
	switch {
	case z > gamma:
		return z - gamma
	case z < -gamma:
		return z + gamma
	default:
		return 0
	}
}

// Predict returns nan_to_num(X / scale) · coefᵀ using the fit-time scale.
func (l *Lasso) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := l.state.RequireFitted(LassoModelType, "Predict"); err != nil {
		return nil, err
	}
	_, c := X.Dims()
	if err := l.state.RequireFeatures("Lasso.Predict", c); err != nil {
		return nil, err
	}
	return PredictScaled(X, l.scale, l.coef), nil
}

// Coef returns the V×P coefficients, or nil before Fit.
func (l *Lasso) Coef() *mat.Dense { return l.coef }

// Scale returns the fit-time column scale.
func (l *Lasso) Scale() []float64 { return l.scale }

// NIter returns the coordinate-descent sweeps used per target.
func (l *Lasso) NIter() []int { return l.nIter }

// Alpha returns the L1 strength.
func (l *Lasso) Alpha() float64 { return l.params.alpha }

// ToBundle exports the fitted model.
func (l *Lasso) ToBundle() (*model.Bundle, error) {
	if err := l.state.RequireFitted(LassoModelType, "ToBundle"); err != nil {
		return nil, err
	}
	b := model.NewBundle(LassoModelType)
	b.State = l.state.GetState()
	b.SetParam("alpha", l.params.alpha)
	b.SetParam("max_iter", float64(l.params.maxIter))
	b.SetParam("tol", l.params.tol)
	b.SetMatrix("coef", l.coef)
	b.SetVector("scale", l.scale)
	return b, nil
}

// FromBundle restores a model exported with ToBundle.
func (l *Lasso) FromBundle(b *model.Bundle) error {
	if err := b.RequireType(LassoModelType); err != nil {
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
	if l.state == nil {
		l.state = model.NewStateManager()
	}
	l.params.alpha, _ = b.Param("alpha")
	if maxIter, ok := b.Param("max_iter"); ok {
		l.params.maxIter = int(maxIter)
	}
	if tol, ok := b.Param("tol"); ok {
		l.params.tol = tol
	}
	l.coef = coef
	l.scale = scale
	l.nIter = nil
	l.state.SetState(b.State)
	return nil
}

func (l *Lasso) String() string {
	return fmt.Sprintf("Lasso(alpha=%g, max_iter=%d, tol=%g)", l.params.alpha, l.params.maxIter, l.params.tol)
}
