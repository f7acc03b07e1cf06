package winner

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/core/model"
	"github.com/YuminosukeSato/connmodel/core/parallel"
	"github.com/YuminosukeSato/connmodel/linear"
	"github.com/YuminosukeSato/connmodel/pkg/errors"
	"github.com/YuminosukeSato/connmodel/pkg/log"
	"github.com/YuminosukeSato/connmodel/preprocessing"
)

// StagedModelType identifies Staged bundles.
const StagedModelType = "Staged"

// Staged is the two-stage top-n model. Stage 1 ranks sources by a dense
// least-squares fit on the scaled sources. Stage 2 fits, for every target
// independently, a ridge model on that target's n winning raw columns,
// RMS-scaled on their own. Coefficients outside the winners are exactly 0.
type Staged struct {
	state  *model.StateManager
	params params

	scale  []float64
	dense  *mat.Dense
	coef   *mat.Dense
	labels [][]int
}

// NewStaged creates a Staged model. Defaults: n 2, alpha 1.
//
//	m, err := winner.NewStaged(winner.WithN(3), winner.WithAlpha(10))
func NewStaged(opts ...Option) (*Staged, error) {
	p, err := newParams(params{n: 2, alpha: 1}, opts)
	if err != nil {
		return nil, err
	}
	return &Staged{state: model.NewStateManager(), params: p}, nil
}

// Fit runs both stages.
func (m *Staged) Fit(X, Y mat.Matrix) error {
	return m.FitContext(context.Background(), X, Y)
}

// FitContext runs both stages bounded by ctx. When ctx ends first its error
// is returned and no partial state is stored.
func (m *Staged) FitContext(ctx context.Context, X, Y mat.Matrix) error {
	start := time.Now()
	n, p, v, err := linear.CheckXY("Staged.Fit", X, Y)
	if err != nil {
		return err
	}

	Xs, scale := preprocessing.RMSScale(X)
	dense, err := denseFit(ctx, Xs, Y, m.params.positive, m.params.workers)
	if err != nil {
		return err
	}
	_, labels := SelectTop(dense, m.params.n, m.params.byMagnitude)

	coef := mat.NewDense(v, p, nil)
	err = parallel.ForEachChunk(ctx, v, m.params.workers, parallel.DefaultThreshold, func(ctx context.Context, s, e int) error {
		for t := s; t < e; t++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := m.refit(X, Y, t, labels[t], coef.RawRowView(t)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.scale = scale
	m.dense = dense
	m.coef = coef
	m.labels = labels
	if m.state == nil {
		m.state = model.NewStateManager()
	}
	m.state.SetFitted(n, p, v)

	log.GetLoggerWithName(StagedModelType).Debug("fit completed",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.TargetsKey, v,
		log.SelectedKey, len(labels[0]),
		log.RegularizationKey, m.params.alpha,
		log.WorkersKey, m.params.workers,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// refit solves the stage-2 ridge problem of target t and writes the result
// into row, which belongs to t alone.
func (m *Staged) refit(X, Y mat.Matrix, t int, cols []int, row []float64) error {
	n, _ := X.Dims()
	Xv := mat.NewDense(n, len(cols), nil)
	for k, j := range cols {
		for i := 0; i < n; i++ {
			Xv.Set(i, k, X.At(i, j))
		}
	}
	Xsv, _ := preprocessing.RMSScale(Xv)
	y := mat.NewDense(n, 1, mat.Col(nil, t, Y))

	sol, err := linear.SolveRidge(Xsv, y, m.params.alpha)
	if err != nil {
		return errors.Wrapf(err, "stage-2 fit of target %d", t)
	}
	for k, j := range cols {
		row[j] = sol.Coef.At(0, k)
	}
	return nil
}

// Predict uses the stage-1 full-width scale and the stage-2 coefficients.
func (m *Staged) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.RequireFitted(StagedModelType, "Predict"); err != nil {
		return nil, err
	}
	_, c := X.Dims()
	if err := m.state.RequireFeatures("Staged.Predict", c); err != nil {
		return nil, err
	}
	return linear.PredictScaled(X, m.scale, m.coef), nil
}

// Coef returns the stage-2 V×P coefficients.
func (m *Staged) Coef() *mat.Dense { return m.coef }

// DenseCoef returns the stage-1 dense coefficients.
func (m *Staged) DenseCoef() *mat.Dense { return m.dense }

// Labels returns the V×min(n,P) stage-1 winners, strongest first.
func (m *Staged) Labels() [][]int { return m.labels }

// Scale returns the stage-1 column scale.
func (m *Staged) Scale() []float64 { return m.scale }

// ToBundle exports the fitted model.
func (m *Staged) ToBundle() (*model.Bundle, error) {
	if err := m.state.RequireFitted(StagedModelType, "ToBundle"); err != nil {
		return nil, err
	}
	b := model.NewBundle(StagedModelType)
	b.State = m.state.GetState()
	b.SetParam("n", float64(m.params.n))
	b.SetParam("alpha", m.params.alpha)
	b.SetParam("positive", boolParam(m.params.positive))
	b.SetParam("rank_by_magnitude", boolParam(m.params.byMagnitude))
	b.SetMatrix("coef", m.coef)
	b.SetMatrix("dense_coef", m.dense)
	b.SetVector("scale", m.scale)
	b.SetIntMatrix("labels", m.labels)
	return b, nil
}

// FromBundle restores a model exported with ToBundle.
func (m *Staged) FromBundle(b *model.Bundle) error {
	tmp := topN{name: StagedModelType}
	if err := tmp.fromBundle(b); err != nil {
		return err
	}
	if m.state == nil {
		m.state = model.NewStateManager()
	}
	m.params.n = tmp.params.n
	m.params.positive = tmp.params.positive
	m.params.byMagnitude = tmp.params.byMagnitude
	m.params.alpha, _ = b.Param("alpha")
	m.coef = tmp.coef
	m.dense = tmp.dense
	m.scale = tmp.scale
	m.labels = tmp.labels
	m.state.SetState(b.State)
	return nil
}

func (m *Staged) String() string {
	return fmt.Sprintf("Staged(n=%d, alpha=%g, positive=%t)", m.params.n, m.params.alpha, m.params.positive)
}
