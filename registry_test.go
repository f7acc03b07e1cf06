package connmodel

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/connmodel/config"
	"github.com/YuminosukeSato/connmodel/core/model"
	"github.com/YuminosukeSato/connmodel/linear"
	"github.com/YuminosukeSato/connmodel/pkg/errors"
	"github.com/YuminosukeSato/connmodel/pls"
	"github.com/YuminosukeSato/connmodel/selection"
	"github.com/YuminosukeSato/connmodel/winner"
)

func problem(seed uint64, n, p, v int) (*mat.Dense, *mat.Dense) {
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed, 1)}
	X := mat.NewDense(n, p, nil)
	X.Apply(func(_, _ int, _ float64) float64 { return norm.Rand() }, X)
	W := mat.NewDense(v, p, nil)
	W.Apply(func(_, _ int, _ float64) float64 { return norm.Rand() }, W)
	var Y mat.Dense
	Y.Mul(X, W.T())
	return X, &Y
}

func TestZeroValueModelsReportNotFitted(t *testing.T) {
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	models := []model.Model{
		&linear.Ridge{}, &linear.Lasso{}, &linear.NNLS{},
		&winner.WTA{}, &winner.WNTA{}, &winner.Staged{},
		&selection.Sequential{}, &pls.PLSRegression{},
	}
	for _, m := range models {
		_, err := m.Predict(X)
		var nf *errors.NotFittedError
		assert.True(t, errors.As(err, &nf), "%T Predict: %v", m, err)

		_, err = m.ToBundle()
		assert.True(t, errors.As(err, &nf), "%T ToBundle: %v", m, err)
	}

	ridge := &linear.Ridge{}
	require.NoError(t, ridge.Fit(X, X))
	_, err := ridge.Predict(X)
	assert.NoError(t, err)
}

func TestNew_AllVariants(t *testing.T) {
	X, Y := problem(1, 40, 6, 3)
	tests := []struct {
		yaml string
		want interface{}
	}{
		{"model: ridge\nalpha: 0.5", &linear.Ridge{}},
		{"model: lasso\nalpha: 0.01\nmax_iter: 500", &linear.Lasso{}},
		{"model: nnls\nsolver: cvxopt\nalpha: 0.1", &linear.NNLS{}},
		{"model: wta\npositive: true", &winner.WTA{}},
		{"model: wnta\nn: 3", &winner.WNTA{}},
		{"model: wnta2\nn: 2\nalpha: 1", &winner.Staged{}},
		{"model: wnta3\nn: 2\ncv: 4", &selection.Sequential{}},
		{"model: plsregress\nn_components: 2", &pls.PLSRegression{}},
	}
	for _, tt := range tests {
		t.Run(tt.yaml, func(t *testing.T) {
			cfg, err := config.Parse([]byte(tt.yaml + "\nworkers: 2"))
			require.NoError(t, err)
			m, err := New(cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.want, m)

			require.NoError(t, Fit(context.Background(), m, X, Y, cfg))
			v, p := m.Coef().Dims()
			assert.Equal(t, 3, v)
			assert.Equal(t, 6, p)

			pred, err := m.Predict(X)
			require.NoError(t, err)
			r, c := pred.Dims()
			assert.Equal(t, 40, r)
			assert.Equal(t, 3, c)

			b, err := m.ToBundle()
			require.NoError(t, err)
			restored, err := FromBundle(b)
			require.NoError(t, err)
			assert.IsType(t, tt.want, restored)
			again, err := restored.Predict(X)
			require.NoError(t, err)
			assert.True(t, mat.EqualApprox(pred, again, 1e-12))
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	ridge, ok := m.(*linear.Ridge)
	require.True(t, ok)
	assert.Equal(t, 1.0, ridge.Alpha())

	_, err = New(&config.Config{Model: "svm"})
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestFit_Timeout(t *testing.T) {
	X, Y := problem(2, 30, 5, 4)
	cfg := &config.Config{Model: "staged", Timeout: config.Duration(time.Nanosecond)}
	m, err := New(cfg)
	require.NoError(t, err)
	assert.ErrorIs(t, Fit(context.Background(), m, X, Y, cfg), context.DeadlineExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, err = New(&config.Config{Model: "nnls"})
	require.NoError(t, err)
	assert.ErrorIs(t, Fit(ctx, m, X, Y, nil), context.Canceled)

	// models without FitContext still honour an already expired context
	ridge, err := New(config.Default())
	require.NoError(t, err)
	assert.ErrorIs(t, Fit(ctx, ridge, X, Y, nil), context.Canceled)
}

func TestLoad(t *testing.T) {
	X, Y := problem(3, 30, 4, 2)
	m, err := winner.NewWNTA(winner.WithN(2))
	require.NoError(t, err)
	require.NoError(t, m.Fit(X, Y))

	path := filepath.Join(t.TempDir(), "wnta.cmb")
	require.NoError(t, model.Save(m, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	wnta, ok := loaded.(*winner.WNTA)
	require.True(t, ok)
	assert.Equal(t, m.Labels(), wnta.Labels())

	_, err = FromBundle(model.NewBundle("Unknown"))
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}
