package linear

import (
	"bytes"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/connmodel/core/model"
	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

// randomDesign returns an n×p matrix with independent standard normal
// entries, each column multiplied by a different positive factor so the RMS
// scale is non-trivial.
func randomDesign(seed uint64, n, p int) *mat.Dense {
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed, 42)}
	X := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			X.Set(i, j, norm.Rand()*float64(j+1))
		}
	}
	return X
}

func randomWeights(seed uint64, v, p int, nonNegative bool) *mat.Dense {
	unif := distuv.Uniform{Min: -1, Max: 1, Src: rand.NewPCG(seed, 7)}
	W := mat.NewDense(v, p, nil)
	W.Apply(func(_, _ int, _ float64) float64 {
		w := unif.Rand()
		if nonNegative {
			return math.Abs(w)
		}
		return w
	}, W)
	return W
}

func targets(X, W mat.Matrix) *mat.Dense {
	var Y mat.Dense
	Y.Mul(X, W.T())
	return &Y
}

func relErr(got, want *mat.Dense) float64 {
	var diff mat.Dense
	diff.Sub(got, want)
	return mat.Norm(&diff, 2) / mat.Norm(want, 2)
}

func TestRidge_RecoversWeights(t *testing.T) {
	X := randomDesign(1, 100, 10)
	W := randomWeights(2, 5, 10, false)
	Y := targets(X, W)

	ridge, err := NewRidge(WithAlpha(0))
	require.NoError(t, err)
	require.NoError(t, ridge.Fit(X, Y))

	r, c := ridge.Coef().Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 10, c)
	assert.Less(t, relErr(ridge.EffectiveCoef(), W), 1e-6)
	assert.Equal(t, 10, ridge.Rank())

	Yhat, err := ridge.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(Yhat, Y, 1e-8))
}

func TestRidge_Shrinkage(t *testing.T) {
	X := randomDesign(3, 50, 8)
	Y := targets(X, randomWeights(4, 3, 8, false))

	prev := math.Inf(1)
	for _, alpha := range []float64{0, 1, 10, 100, 1000} {
		ridge, err := NewRidge(WithAlpha(alpha))
		require.NoError(t, err)
		require.NoError(t, ridge.Fit(X, Y))
		norm := mat.Norm(ridge.Coef(), 2)
		assert.LessOrEqual(t, norm, prev+1e-12, "alpha=%g", alpha)
		prev = norm
	}
}

func TestRidge_MinimumNorm(t *testing.T) {
	// duplicated column: the minimum-norm solution splits the weight evenly
	X := mat.NewDense(4, 2, []float64{1, 1, 2, 2, -1, -1, 3, 3})
	Y := mat.NewDense(4, 1, []float64{2, 4, -2, 6})

	ridge, err := NewRidge(WithAlpha(0))
	require.NoError(t, err)
	require.NoError(t, ridge.Fit(X, Y))
	assert.Equal(t, 1, ridge.Rank())
	assert.InDelta(t, ridge.Coef().At(0, 0), ridge.Coef().At(0, 1), 1e-10)
}

func TestRidge_ZeroColumn(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{1, 0, 2, 0, 3, 0, 4, 0})
	Y := mat.NewDense(4, 1, []float64{2, 4, 6, 8})

	ridge, err := NewRidge(WithAlpha(0))
	require.NoError(t, err)
	require.NoError(t, ridge.Fit(X, Y))
	assert.InDelta(t, 0.0, ridge.Coef().At(0, 1), 1e-12)
	assert.Equal(t, 0.0, ridge.EffectiveCoef().At(0, 1))
	assert.InDelta(t, 2.0, ridge.EffectiveCoef().At(0, 0), 1e-10)

	Yhat, err := ridge.Predict(X)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, Yhat.At(3, 0), 1e-10)
}

func TestRidge_NaNEntryKeepsColumn(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 1,
		math.NaN(), 2,
		3, 0,
		4, 1,
	})
	// the NaN entry counts as zero
	Y := mat.NewDense(4, 1, []float64{3, 2, 6, 9})

	ridge, err := NewRidge(WithAlpha(0))
	require.NoError(t, err)
	require.NoError(t, ridge.Fit(X, Y))
	assert.InDelta(t, math.Sqrt(26.0/4), ridge.Scale()[0], 1e-12)
	assert.InDelta(t, 2.0, ridge.EffectiveCoef().At(0, 0), 1e-9)
	assert.InDelta(t, 1.0, ridge.EffectiveCoef().At(0, 1), 1e-9)
}

func TestRidge_Errors(t *testing.T) {
	_, err := NewRidge(WithAlpha(-1))
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	ridge, err := NewRidge()
	require.NoError(t, err)
	assert.Nil(t, ridge.Coef())

	_, err = ridge.Predict(mat.NewDense(1, 2, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	err = ridge.Fit(mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}), mat.NewDense(2, 1, []float64{1, 2}))
	var de *errors.DimensionError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 0, de.Axis)

	require.NoError(t, ridge.Fit(randomDesign(5, 10, 3), mat.NewDense(10, 1, nil)))
	_, err = ridge.Predict(mat.NewDense(2, 4, nil))
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 1, de.Axis)

	assert.True(t, errors.Is(ridge.Fit(&mat.Dense{}, &mat.Dense{}), errors.ErrEmptyData))
}

func TestRidge_RefitReplacesState(t *testing.T) {
	ridge, err := NewRidge()
	require.NoError(t, err)
	require.NoError(t, ridge.Fit(randomDesign(6, 20, 4), mat.NewDense(20, 2, nil)))
	require.NoError(t, ridge.Fit(randomDesign(7, 20, 6), mat.NewDense(20, 3, nil)))

	r, c := ridge.Coef().Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 6, c)
	assert.Len(t, ridge.Scale(), 6)
}

func TestRidge_BundleRoundTrip(t *testing.T) {
	X := randomDesign(8, 30, 5)
	Y := targets(X, randomWeights(9, 2, 5, false))
	ridge, err := NewRidge(WithAlpha(2))
	require.NoError(t, err)
	require.NoError(t, ridge.Fit(X, Y))

	b, err := ridge.ToBundle()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, model.EncodeBundle(&buf, b))
	decoded, err := model.DecodeBundle(&buf)
	require.NoError(t, err)

	restored, err := NewRidge()
	require.NoError(t, err)
	require.NoError(t, restored.FromBundle(decoded))
	assert.Equal(t, 2.0, restored.Alpha())

	want, _ := ridge.Predict(X)
	got, err := restored.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))

	lasso, err := NewLasso()
	require.NoError(t, err)
	var ve *errors.ValidationError
	assert.True(t, errors.As(lasso.FromBundle(decoded), &ve))
}

func TestSolveRidge_WideDesign(t *testing.T) {
	// more columns than rows: α = 0 still interpolates
	X := randomDesign(10, 6, 12)
	Y := targets(X, randomWeights(11, 2, 12, false))
	sol, err := SolveRidge(X, Y, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, sol.Rank)

	var Yhat mat.Dense
	Yhat.Mul(X, sol.Coef.T())
	assert.True(t, mat.EqualApprox(&Yhat, Y, 1e-8))
}
