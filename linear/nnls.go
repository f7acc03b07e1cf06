package linear

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/core/model"
	"github.com/YuminosukeSato/connmodel/core/parallel"
	"github.com/YuminosukeSato/connmodel/pkg/errors"
	"github.com/YuminosukeSato/connmodel/pkg/log"
	"github.com/YuminosukeSato/connmodel/preprocessing"
	"github.com/YuminosukeSato/connmodel/qp"
)

// NNLSModelType identifies NNLS bundles.
const NNLSModelType = "NNLS"

// NNLS fits non-negative coefficients per target by solving
//
//	minimise ½cᵀGc − aᵀc  subject to  c ≥ 0
//	G = XsᵀXs + αI,  a = Xsᵀy − γ
//
// with a pluggable quadratic-programming backend. α adds an L2 penalty and
// γ an L1 penalty, which for non-negative c is linear.
type NNLS struct {
	state  *model.StateManager
	params params
	solver qp.Solver

	scale []float64
	coef  *mat.Dense
	nIter []int
}

// NewNNLS creates an NNLS model. Defaults: alpha 0, gamma 0, solver
// "activeset".
//
//	m, err := linear.NewNNLS(linear.WithAlpha(1), linear.WithSolver("interior"))
func NewNNLS(opts ...Option) (*NNLS, error) {
	p := newParams(params{}, opts)
	if err := p.validate(); err != nil {
		return nil, err
	}
	name, err := qp.Canonical(p.solver)
	if err != nil {
		return nil, err
	}
	p.solver = name
	solver, err := qp.New(name, qp.WithMaxIter(p.maxIter), qp.WithTol(p.tol))
	if err != nil {
		return nil, err
	}
	return &NNLS{state: model.NewStateManager(), params: p, solver: solver}, nil
}

// Fit scales X and solves one program per target.
func (m *NNLS) Fit(X, Y mat.Matrix) error {
	return m.FitContext(context.Background(), X, Y)
}

// FitContext is Fit bounded by ctx. On any error no state is stored.
func (m *NNLS) FitContext(ctx context.Context, X, Y mat.Matrix) error {
	start := time.Now()
	n, p, v, err := CheckXY("NNLS.Fit", X, Y)
	if err != nil {
		return err
	}

	Xs, scale := preprocessing.RMSScale(X)
	coef, nIter, err := SolveNNLS(ctx, Xs, Y, m.params.alpha, m.params.gamma, m.solver, m.params.workers)
	if err != nil {
		log.GetLoggerWithName(NNLSModelType).Error("fit failed", err,
			log.SolverKey, m.solver.Name(),
			log.TargetsKey, v,
		)
		return err
	}

	m.scale = scale
	m.coef = coef
	m.nIter = nIter
	if m.state == nil {
		m.state = model.NewStateManager()
	}
	m.state.SetFitted(n, p, v)

	log.GetLoggerWithName(NNLSModelType).Debug("fit completed",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.TargetsKey, v,
		log.RegularizationKey, m.params.alpha,
		log.L1PenaltyKey, m.params.gamma,
		log.SolverKey, m.solver.Name(),
		log.WorkersKey, m.params.workers,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// SolveNNLS solves the non-negative program for every column of Y on the
// already scaled design Xs and returns the V×P coefficients and the
// iterations per target. Targets are split into contiguous chunks solved
// in parallel; inside a chunk each target is warm-started from the
// previous one. A failing target is reported as a *errors.SolverError
// carrying its column index.
func SolveNNLS(ctx context.Context, Xs, Y mat.Matrix, alpha, gamma float64, solver qp.Solver, workers int) (*mat.Dense, []int, error) {
	_, p := Xs.Dims()
	_, v := Y.Dims()

	G := mat.NewSymDense(p, nil)
	G.SymOuterK(1, Xs.T())
	for j := 0; j < p; j++ {
		G.SetSym(j, j, G.At(j, j)+alpha)
	}
	var A mat.Dense
	A.Mul(Xs.T(), Y)
	if gamma != 0 {
		A.Apply(func(_, _ int, x float64) float64 { return x - gamma }, &A)
	}

	coef := mat.NewDense(v, p, nil)
	nIter := make([]int, v)
	err := parallel.ForEachChunk(ctx, v, workers, parallel.DefaultThreshold, func(ctx context.Context, s, e int) error {
		var warm []float64
		for t := s; t < e; t++ {
			a := mat.Col(nil, t, &A)
			res, err := solver.Solve(ctx, G, a, warm)
			if err != nil {
				var se *errors.SolverError
				if errors.As(err, &se) {
					se.Target = t
				}
				return err
			}
			copy(coef.RawRowView(t), res.X)
			nIter[t] = res.Iterations
			warm = res.X
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return coef, nIter, nil
}

// Predict returns nan_to_num(X / scale) · coefᵀ using the fit-time scale.
func (m *NNLS) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.RequireFitted(NNLSModelType, "Predict"); err != nil {
		return nil, err
	}
	_, c := X.Dims()
	if err := m.state.RequireFeatures("NNLS.Predict", c); err != nil {
		return nil, err
	}
	return PredictScaled(X, m.scale, m.coef), nil
}

// Coef returns the V×P non-negative coefficients, or nil before Fit.
func (m *NNLS) Coef() *mat.Dense { return m.coef }

// Scale returns the fit-time column scale.
func (m *NNLS) Scale() []float64 { return m.scale }

// NIter returns the solver iterations per target.
func (m *NNLS) NIter() []int { return m.nIter }

// Solver returns the canonical backend name.
func (m *NNLS) Solver() string { return m.params.solver }

// ToBundle exports the fitted model.
func (m *NNLS) ToBundle() (*model.Bundle, error) {
	if err := m.state.RequireFitted(NNLSModelType, "ToBundle"); err != nil {
		return nil, err
	}
	b := model.NewBundle(NNLSModelType)
	b.State = m.state.GetState()
	b.SetParam("alpha", m.params.alpha)
	b.SetParam("gamma", m.params.gamma)
	b.SetString("solver", m.params.solver)
	b.SetMatrix("coef", m.coef)
	b.SetVector("scale", m.scale)
	return b, nil
}

// FromBundle restores a model exported with ToBundle.
func (m *NNLS) FromBundle(b *model.Bundle) error {
	if err := b.RequireType(NNLSModelType); err != nil {
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
	name, _ := b.GetString("solver")
	name, err = qp.Canonical(name)
	if err != nil {
		return err
	}
	solver, err := qp.New(name, qp.WithMaxIter(m.params.maxIter), qp.WithTol(m.params.tol))
	if err != nil {
		return err
	}
	if m.state == nil {
		m.state = model.NewStateManager()
	}
	if m.params.workers < 1 {
		m.params = newParams(m.params, nil)
	}
	m.params.alpha, _ = b.Param("alpha")
	m.params.gamma, _ = b.Param("gamma")
	m.params.solver = name
	m.solver = solver
	m.coef = coef
	m.scale = scale
	m.nIter = nil
	m.state.SetState(b.State)
	return nil
}

func (m *NNLS) String() string {
	return fmt.Sprintf("NNLS(alpha=%g, gamma=%g, solver=%s)", m.params.alpha, m.params.gamma, m.params.solver)
}
