package selection

import (
	"context"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/connmodel/core/model"
	"github.com/YuminosukeSato/connmodel/linear"
	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

// problem returns targets driven by sources 1 and 4 only.
func problem(seed uint64, n, p int) (*mat.Dense, *mat.Dense) {
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed, 9)}
	X := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			X.Set(i, j, norm.Rand())
		}
	}
	Y := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		a, b := X.At(i, 1), X.At(i, 4)
		Y.Set(i, 0, 2*a+b+0.01*norm.Rand())
		Y.Set(i, 1, a-b+0.01*norm.Rand())
		Y.Set(i, 2, 3*b+0.01*norm.Rand())
	}
	return X, Y
}

func TestSequential_SelectsDrivingColumns(t *testing.T) {
	X, Y := problem(1, 60, 7)

	s, err := NewSequential(WithN(2), WithAlpha(0.1), WithWorkers(3))
	require.NoError(t, err)
	require.NoError(t, s.Fit(X, Y))

	assert.Equal(t, []int{1, 4}, s.Selected())
	assert.Equal(t, []bool{false, true, false, false, true, false, false}, s.Mask())

	v, p := s.Coef().Dims()
	assert.Equal(t, 3, v)
	assert.Equal(t, 7, p)
	for t2 := 0; t2 < v; t2++ {
		for j := 0; j < p; j++ {
			if !s.Mask()[j] {
				assert.Zero(t, s.Coef().At(t2, j))
			}
		}
	}
	r, c := s.SubsetCoef().Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, s.Coef().At(0, 4), s.SubsetCoef().At(0, 1))

	pred, err := s.Predict(X)
	require.NoError(t, err)
	full := linear.PredictScaled(X, s.Scale(), s.Coef())
	assert.True(t, mat.EqualApprox(pred, full, 1e-10))
}

func TestSequential_AllColumns(t *testing.T) {
	X, Y := problem(2, 30, 4)

	s, err := NewSequential(WithN(4), WithAlpha(2))
	require.NoError(t, err)
	require.NoError(t, s.Fit(X, Y))
	assert.Equal(t, []int{0, 1, 2, 3}, s.Selected())

	ridge, err := linear.NewRidge(linear.WithAlpha(2))
	require.NoError(t, err)
	require.NoError(t, ridge.Fit(X, Y))
	assert.True(t, mat.EqualApprox(s.Coef(), ridge.Coef(), 1e-10))
}

func TestSequential_Validation(t *testing.T) {
	_, err := NewSequential(WithN(0))
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "n", ve.ParamName)

	_, err = NewSequential(WithAlpha(math.NaN()))
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "alpha", ve.ParamName)

	_, err = NewSequential(WithCV(1))
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "cv", ve.ParamName)

	X, Y := problem(3, 20, 3)
	s, err := NewSequential(WithN(4))
	require.NoError(t, err)
	err = s.Fit(X, Y)
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "n", ve.ParamName)

	_, err = s.Predict(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	s, err = NewSequential()
	require.NoError(t, err)
	require.NoError(t, s.Fit(X, Y))
	_, err = s.Predict(mat.NewDense(2, 5, nil))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestSequential_Cancelled(t *testing.T) {
	X, Y := problem(4, 40, 6)
	s, err := NewSequential(WithN(2))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.FitContext(ctx, X, Y), context.Canceled)
	assert.Nil(t, s.Coef())
}

func TestSequential_BundleRoundTrip(t *testing.T) {
	X, Y := problem(5, 50, 6)
	s, err := NewSequential(WithN(2))
	require.NoError(t, err)
	require.NoError(t, s.Fit(X, Y))

	path := filepath.Join(t.TempDir(), "seq.cmb")
	require.NoError(t, model.Save(s, path))

	restored := &Sequential{}
	require.NoError(t, model.Load(restored, path))
	assert.Equal(t, s.Selected(), restored.Selected())
	assert.Equal(t, "Sequential(n=2, alpha=1, cv=5)", restored.String())

	a, err := s.Predict(X)
	require.NoError(t, err)
	b, err := restored.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(a, b, 1e-12))
}

func TestInsertSorted(t *testing.T) {
	assert.Equal(t, []int{3}, insertSorted(nil, 3))
	assert.Equal(t, []int{0, 2, 5}, insertSorted([]int{0, 5}, 2))
	assert.Equal(t, []int{0, 5, 9}, insertSorted([]int{0, 5}, 9))
	assert.Equal(t, []int{1, 4}, insertSorted([]int{4}, 1))
}
