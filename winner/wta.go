package winner

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/core/model"
)

// WTAModelType identifies WTA bundles.
const WTAModelType = "WTA"

// WTA is winner-take-all: every target keeps only the source with the
// largest stage-1 coefficient. Ties go to the lowest source index.
type WTA struct {
	topN
}

// NewWTA creates a WTA model. WithN is ignored; n is always 1.
//
//	m, err := winner.NewWTA(winner.WithPositive(true))
func NewWTA(opts ...Option) (*WTA, error) {
	p, err := newParams(params{n: 1}, opts)
	if err != nil {
		return nil, err
	}
	p.n = 1
	return &WTA{topN{name: WTAModelType, state: model.NewStateManager(), params: p}}, nil
}

// Fit runs the dense fit on the scaled sources and keeps the winner per row.
func (m *WTA) Fit(X, Y mat.Matrix) error {
	return m.fit(context.Background(), X, Y)
}

// FitContext is Fit bounded by ctx.
func (m *WTA) FitContext(ctx context.Context, X, Y mat.Matrix) error {
	return m.fit(ctx, X, Y)
}

// Predict returns nan_to_num(X / scale) · coefᵀ using the fit-time scale.
func (m *WTA) Predict(X mat.Matrix) (mat.Matrix, error) { return m.predict(X) }

// Coef returns the V×P matrix with exactly one non-zero slot per row.
func (m *WTA) Coef() *mat.Dense { return m.coef }

// DenseCoef returns the stage-1 coefficients before selection.
func (m *WTA) DenseCoef() *mat.Dense { return m.dense }

// Labels returns the winning source index of every target.
func (m *WTA) Labels() []int {
	if m.labels == nil {
		return nil
	}
	out := make([]int, len(m.labels))
	for i, l := range m.labels {
		out[i] = l[0]
	}
	return out
}

// Scale returns the fit-time column scale.
func (m *WTA) Scale() []float64 { return m.scale }

// ToBundle exports the fitted model.
func (m *WTA) ToBundle() (*model.Bundle, error) { return m.toBundle() }

// FromBundle restores a model exported with ToBundle.
func (m *WTA) FromBundle(b *model.Bundle) error {
	m.name = WTAModelType
	if err := m.fromBundle(b); err != nil {
		return err
	}
	m.params.n = 1
	return nil
}

func (m *WTA) String() string {
	return fmt.Sprintf("WTA(positive=%t)", m.params.positive)
}
