package winner

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/core/model"
	"github.com/YuminosukeSato/connmodel/linear"
	"github.com/YuminosukeSato/connmodel/pkg/errors"
	"github.com/YuminosukeSato/connmodel/pkg/log"
	"github.com/YuminosukeSato/connmodel/preprocessing"
)

// WNTAModelType identifies WNTA bundles.
const WNTAModelType = "WNTA"

// topN is the fitted state shared by WTA and WNTA.
type topN struct {
	name   string
	state  *model.StateManager
	params params

	scale  []float64
	dense  *mat.Dense
	coef   *mat.Dense
	labels [][]int
}

func (m *topN) fit(ctx context.Context, X, Y mat.Matrix) error {
	start := time.Now()
	n, p, v, err := linear.CheckXY(m.name+".Fit", X, Y)
	if err != nil {
		return err
	}

	Xs, scale := preprocessing.RMSScale(X)
	dense, err := denseFit(ctx, Xs, Y, m.params.positive, m.params.workers)
	if err != nil {
		return err
	}
	coef, labels := SelectTop(dense, m.params.n, m.params.byMagnitude)

	m.scale = scale
	m.dense = dense
	m.coef = coef
	m.labels = labels
	if m.state == nil {
		m.state = model.NewStateManager()
	}
	m.state.SetFitted(n, p, v)

	log.GetLoggerWithName(m.name).Debug("fit completed",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.TargetsKey, v,
		log.SelectedKey, min(m.params.n, p),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (m *topN) predict(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.RequireFitted(m.name, "Predict"); err != nil {
		return nil, err
	}
	_, c := X.Dims()
	if err := m.state.RequireFeatures(m.name+".Predict", c); err != nil {
		return nil, err
	}
	return linear.PredictScaled(X, m.scale, m.coef), nil
}

func (m *topN) toBundle() (*model.Bundle, error) {
	if err := m.state.RequireFitted(m.name, "ToBundle"); err != nil {
		return nil, err
	}
	b := model.NewBundle(m.name)
	b.State = m.state.GetState()
	b.SetParam("n", float64(m.params.n))
	b.SetParam("positive", boolParam(m.params.positive))
	b.SetParam("rank_by_magnitude", boolParam(m.params.byMagnitude))
	b.SetMatrix("coef", m.coef)
	b.SetMatrix("dense_coef", m.dense)
	b.SetVector("scale", m.scale)
	b.SetIntMatrix("labels", m.labels)
	return b, nil
}

func (m *topN) fromBundle(b *model.Bundle) error {
	if err := b.RequireType(m.name); err != nil {
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
	labels, err := b.IntMatrix("labels")
	if err != nil {
		return err
	}
	v, p := coef.Dims()
	if len(scale) != p || len(labels) != v {
		return errors.NewValidationError("labels", "shape does not match coefficients", []int{len(labels), len(scale)})
	}
	dense, _ := b.Matrix("dense_coef")

	if m.state == nil {
		m.state = model.NewStateManager()
	}
	if n, ok := b.Param("n"); ok {
		m.params.n = int(n)
	}
	positive, _ := b.Param("positive")
	byMagnitude, _ := b.Param("rank_by_magnitude")
	m.params.positive = positive != 0
	m.params.byMagnitude = byMagnitude != 0
	m.coef = coef
	m.dense = dense
	m.scale = scale
	m.labels = labels
	m.state.SetState(b.State)
	return nil
}

// WNTA keeps the n strongest sources of the dense least-squares fit for
// every target and zeroes the rest.
type WNTA struct {
	topN
}

// NewWNTA creates a WNTA model. The default n is 2.
//
//	m, err := winner.NewWNTA(winner.WithN(3))
func NewWNTA(opts ...Option) (*WNTA, error) {
	p, err := newParams(params{n: 2}, opts)
	if err != nil {
		return nil, err
	}
	return &WNTA{topN{name: WNTAModelType, state: model.NewStateManager(), params: p}}, nil
}

// Fit runs the dense fit on the scaled sources and keeps the top n per row.
func (m *WNTA) Fit(X, Y mat.Matrix) error {
	return m.fit(context.Background(), X, Y)
}

// FitContext is Fit bounded by ctx.
func (m *WNTA) FitContext(ctx context.Context, X, Y mat.Matrix) error {
	return m.fit(ctx, X, Y)
}

// Predict returns nan_to_num(X / scale) · coefᵀ using the fit-time scale.
func (m *WNTA) Predict(X mat.Matrix) (mat.Matrix, error) { return m.predict(X) }

// Coef returns the V×P matrix with min(n, P) non-zeros per row.
func (m *WNTA) Coef() *mat.Dense { return m.coef }

// DenseCoef returns the stage-1 coefficients before selection.
func (m *WNTA) DenseCoef() *mat.Dense { return m.dense }

// Labels returns the V×min(n,P) winning columns, strongest first.
func (m *WNTA) Labels() [][]int { return m.labels }

// Scale returns the fit-time column scale.
func (m *WNTA) Scale() []float64 { return m.scale }

// N returns the number of winners per target.
func (m *WNTA) N() int { return m.params.n }

// ToBundle exports the fitted model.
func (m *WNTA) ToBundle() (*model.Bundle, error) { return m.toBundle() }

// FromBundle restores a model exported with ToBundle.
func (m *WNTA) FromBundle(b *model.Bundle) error {
	m.name = WNTAModelType
	return m.fromBundle(b)
}

func (m *WNTA) String() string {
	return fmt.Sprintf("WNTA(n=%d, positive=%t)", m.params.n, m.params.positive)
}
