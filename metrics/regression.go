// Package metrics evaluates connectivity predictions. R and R2 follow the
// connectivity convention: sums of squares are taken about zero, not about
// the mean, and NaN entries are skipped. R2Score and MSE follow the usual
// regression definitions.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

// MSE returns the mean squared error of two vectors.
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("MSE", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MSE", n, yPred.Len(), 0)
	}

	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// MSEMatrix returns the mean squared error over every entry of two N×V
// matrices.
func MSEMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	n, v, err := checkPair("MSEMatrix", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		for j := 0; j < v; j++ {
			diff := yTrue.At(i, j) - yPred.At(i, j)
			sum += diff * diff
		}
	}
	return sum / float64(n*v), nil
}

// RMSE returns the root mean squared error of two vectors.
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE returns the mean absolute error of two vectors.
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("MAE", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MAE", n, yPred.Len(), 0)
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// R2Score returns the coefficient of determination of a single target,
// 1 − RSS/TSS with TSS taken about the mean of yTrue.
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("R2Score", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("R2Score", n, yPred.Len(), 0)
	}
	return r2Centered(yTrue.RawVector().Data, yPred.RawVector().Data, yTrue.RawVector().Inc, yPred.RawVector().Inc, n), nil
}

// R2ScoreMatrix returns the uniform average of R2Score over the V target
// columns. A constant target column scores 1 when predicted exactly and 0
// otherwise.
func R2ScoreMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	n, v, err := checkPair("R2ScoreMatrix", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	a := make([]float64, n)
	b := make([]float64, n)
	var total float64
	for j := 0; j < v; j++ {
		mat.Col(a, j, yTrue)
		mat.Col(b, j, yPred)
		total += r2Centered(a, b, 1, 1, n)
	}
	return total / float64(v), nil
}

func r2Centered(a, b []float64, incA, incB, n int) float64 {
	var mean float64
	for i := 0; i < n; i++ {
		mean += a[i*incA]
	}
	mean /= float64(n)

	var tss, rss float64
	for i := 0; i < n; i++ {
		y := a[i*incA]
		d := y - b[i*incB]
		tss += (y - mean) * (y - mean)
		rss += d * d
	}
	if tss == 0 {
		if rss == 0 {
			return 1
		}
		return 0
	}
	return 1 - rss/tss
}

// R returns the uncentred correlation between observed and predicted
// targets pooled over all columns, and the same quantity per column:
//
//	R = Σ y·ŷ / sqrt(Σ y² · Σ ŷ²)
//
// NaN entries are skipped. Columns with zero energy give NaN in perTarget.
func R(Y, Ypred mat.Matrix) (pooled float64, perTarget []float64, err error) {
	n, v, err := checkPair("R", Y, Ypred)
	if err != nil {
		return 0, nil, err
	}
	syp := make([]float64, v)
	spp := make([]float64, v)
	sst := make([]float64, v)
	for i := 0; i < n; i++ {
		for j := 0; j < v; j++ {
			y, p := Y.At(i, j), Ypred.At(i, j)
			syp[j] = nanAdd(syp[j], y*p)
			spp[j] = nanAdd(spp[j], p*p)
			sst[j] = nanAdd(sst[j], y*y)
		}
	}
	perTarget = make([]float64, v)
	for j := range perTarget {
		perTarget[j] = syp[j] / math.Sqrt(sst[j]*spp[j])
	}
	pooled = floats.Sum(syp) / math.Sqrt(floats.Sum(sst)*floats.Sum(spp))
	return pooled, perTarget, nil
}

// R2 returns the uncentred coefficient of determination pooled over all
// columns, and per column:
//
//	R2 = 1 − Σ (y − ŷ)² / Σ y²
//
// NaN entries are skipped.
func R2(Y, Ypred mat.Matrix) (pooled float64, perTarget []float64, err error) {
	n, v, err := checkPair("R2", Y, Ypred)
	if err != nil {
		return 0, nil, err
	}
	ssr := make([]float64, v)
	sst := make([]float64, v)
	for i := 0; i < n; i++ {
		for j := 0; j < v; j++ {
			y := Y.At(i, j)
			d := y - Ypred.At(i, j)
			ssr[j] = nanAdd(ssr[j], d*d)
			sst[j] = nanAdd(sst[j], y*y)
		}
	}
	perTarget = make([]float64, v)
	for j := range perTarget {
		perTarget[j] = 1 - ssr[j]/sst[j]
	}
	pooled = 1 - floats.Sum(ssr)/floats.Sum(sst)
	return pooled, perTarget, nil
}

// Scorer scores predictions of a fitted model; larger is better.
type Scorer func(Y, Ypred mat.Matrix) (float64, error)

// PooledR is the Scorer used for hyperparameter search.
func PooledR(Y, Ypred mat.Matrix) (float64, error) {
	r, _, err := R(Y, Ypred)
	return r, err
}

// PooledR2 scores with the pooled uncentred R2.
func PooledR2(Y, Ypred mat.Matrix) (float64, error) {
	r2, _, err := R2(Y, Ypred)
	return r2, err
}

func nanAdd(acc, x float64) float64 {
	if math.IsNaN(x) {
		return acc
	}
	return acc + x
}

func checkPair(op string, a, b mat.Matrix) (int, int, error) {
	n, v := a.Dims()
	np, vp := b.Dims()
	if n == 0 || v == 0 {
		return 0, 0, errors.NewValueError(op, "empty matrix")
	}
	if np != n {
		return 0, 0, errors.NewDimensionError(op, n, np, 0)
	}
	if vp != v {
		return 0, 0, errors.NewDimensionError(op, v, vp, 1)
	}
	return n, v, nil
}
