package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

func TestMSE(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   *mat.VecDense
		yPred   *mat.VecDense
		want    float64
		wantErr bool
	}{
		{
			name:  "perfect prediction",
			yTrue: mat.NewVecDense(5, []float64{1, 2, 3, 4, 5}),
			yPred: mat.NewVecDense(5, []float64{1, 2, 3, 4, 5}),
			want:  0,
		},
		{
			name:  "simple case",
			yTrue: mat.NewVecDense(4, []float64{1, 2, 3, 4}),
			yPred: mat.NewVecDense(4, []float64{1.5, 2.5, 2.5, 3.5}),
			want:  0.25,
		},
		{
			name:  "larger errors",
			yTrue: mat.NewVecDense(3, []float64{10, 20, 30}),
			yPred: mat.NewVecDense(3, []float64{12, 18, 33}),
			want:  17.0 / 3.0,
		},
		{
			name:    "dimension mismatch",
			yTrue:   mat.NewVecDense(3, []float64{1, 2, 3}),
			yPred:   mat.NewVecDense(2, []float64{1, 2}),
			wantErr: true,
		},
		{
			name:    "empty vectors",
			yTrue:   &mat.VecDense{},
			yPred:   &mat.VecDense{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MSE(tt.yTrue, tt.yPred)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-10)
		})
	}
}

func TestRMSEAndMAE(t *testing.T) {
	yTrue := mat.NewVecDense(4, []float64{1, 2, 3, 4})
	yPred := mat.NewVecDense(4, []float64{2, 2, 1, 4})

	rmse, err := RMSE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(5.0/4.0), rmse, 1e-12)

	mae, err := MAE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, mae, 1e-12)
}

func TestMSEMatrix(t *testing.T) {
	Y := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	P := mat.NewDense(2, 2, []float64{1, 0, 3, 5})
	got, err := MSEMatrix(Y, P)
	require.NoError(t, err)
	assert.InDelta(t, 5.0/4.0, got, 1e-12)

	_, err = MSEMatrix(Y, mat.NewDense(2, 3, nil))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestR2Score(t *testing.T) {
	tests := []struct {
		name  string
		yTrue []float64
		yPred []float64
		want  float64
	}{
		{"perfect", []float64{1, 2, 3, 4}, []float64{1, 2, 3, 4}, 1},
		{"mean predictor", []float64{1, 2, 3, 4}, []float64{2.5, 2.5, 2.5, 2.5}, 0},
		// tss = 5, rss = 1
		{"partial", []float64{1, 2, 3, 4}, []float64{1.5, 2.5, 2.5, 3.5}, 0.8},
		{"worse than mean", []float64{1, 2, 3}, []float64{3, 2, 1}, -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := R2Score(mat.NewVecDense(len(tt.yTrue), tt.yTrue), mat.NewVecDense(len(tt.yPred), tt.yPred))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestR2ScoreMatrix(t *testing.T) {
	Y := mat.NewDense(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})
	P := mat.NewDense(4, 2, []float64{
		1.5, 5,
		2.5, 5,
		2.5, 5,
		3.5, 5,
	})
	got, err := R2ScoreMatrix(Y, P)
	require.NoError(t, err)
	// constant column predicted exactly scores 1
	assert.InDelta(t, (0.8+1)/2, got, 1e-12)
}

func TestR(t *testing.T) {
	Y := mat.NewDense(3, 2, []float64{
		1, 1,
		2, 0,
		3, -1,
	})

	pooled, per, err := R(Y, Y)
	require.NoError(t, err)
	assert.InDelta(t, 1, pooled, 1e-12)
	assert.InDeltaSlice(t, []float64{1, 1}, per, 1e-12)

	scaled := mat.NewDense(3, 2, nil)
	scaled.Scale(3, Y)
	pooled, _, err = R(Y, scaled)
	require.NoError(t, err)
	assert.InDelta(t, 1, pooled, 1e-12)

	// column 0: Σyp = 1·1+2·1+3·1 = 6, Σy² = 14, Σp² = 3
	P := mat.NewDense(3, 2, []float64{
		1, -1,
		1, 0,
		1, 1,
	})
	_, per, err = R(Y, P)
	require.NoError(t, err)
	assert.InDelta(t, 6/math.Sqrt(14*3), per[0], 1e-12)
	assert.InDelta(t, -1, per[1], 1e-12)
}

func TestR_SkipsNaN(t *testing.T) {
	Y := mat.NewDense(3, 1, []float64{1, math.NaN(), 2})
	P := mat.NewDense(3, 1, []float64{1, math.NaN(), 2})
	pooled, _, err := R(Y, P)
	require.NoError(t, err)
	assert.InDelta(t, 1, pooled, 1e-12)

	r2, _, err := R2(Y, P)
	require.NoError(t, err)
	assert.InDelta(t, 1, r2, 1e-12)
}

func TestR2_Uncentred(t *testing.T) {
	Y := mat.NewDense(2, 2, []float64{
		1, 2,
		3, 4,
	})
	P := mat.NewDense(2, 2, []float64{
		1, 0,
		2, 4,
	})
	pooled, per, err := R2(Y, P)
	require.NoError(t, err)
	// ssr = [1, 4], sst = [10, 20]
	assert.InDeltaSlice(t, []float64{0.9, 0.8}, per, 1e-12)
	assert.InDelta(t, 1-5.0/30.0, pooled, 1e-12)

	score, err := PooledR2(Y, P)
	require.NoError(t, err)
	assert.InDelta(t, pooled, score, 0)
}

func TestPairErrors(t *testing.T) {
	_, _, err := R(mat.NewDense(3, 2, nil), mat.NewDense(2, 2, nil))
	var de *errors.DimensionError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 0, de.Axis)

	_, _, err = R2(&mat.Dense{}, &mat.Dense{})
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve))
}

func BenchmarkR(b *testing.B) {
	Y := mat.NewDense(200, 500, nil)
	P := mat.NewDense(200, 500, nil)
	for i := 0; i < 200; i++ {
		for j := 0; j < 500; j++ {
			Y.Set(i, j, float64(i*j%7))
			P.Set(i, j, float64((i+j)%5))
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = R(Y, P)
	}
}
