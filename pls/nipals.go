package pls

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

const eps = 2.220446049250313e-16

// component is one NIPALS step on the deflated blocks.
type component struct {
	xWeights  []float64
	yWeights  []float64
	xScores   []float64
	xLoadings []float64
	yLoadings []float64
	nIter     int
}

// firstSingularVectors runs the power method for the leading pair of
// singular vectors of XkᵀYk. Y weights are not normalised.
func firstSingularVectors(Xk, Yk *mat.Dense, maxIter int, tol float64) (xw, yw []float64, nIter int, err error) {
	n, p := Xk.Dims()
	_, v := Yk.Dims()

	yScore := make([]float64, n)
	found := false
	for j := 0; j < v && !found; j++ {
		mat.Col(yScore, j, Yk)
		for _, y := range yScore {
			if math.Abs(y) > eps {
				found = true
				break
			}
		}
	}
	if !found {
		return nil, nil, 0, errors.NewValueError("PLSRegression.Fit", "Y residual is constant")
	}

	xw = make([]float64, p)
	yw = make([]float64, v)
	xScore := make([]float64, n)
	old := make([]float64, p)
	for j := range old {
		old[j] = 100
	}
	diff := make([]float64, p)

	xwVec := mat.NewVecDense(p, xw)
	ywVec := mat.NewVecDense(v, yw)
	xScoreVec := mat.NewVecDense(n, xScore)
	yScoreVec := mat.NewVecDense(n, yScore)

	for nIter = 1; nIter <= maxIter; nIter++ {
		xwVec.MulVec(Xk.T(), yScoreVec)
		floats.Scale(1/floats.Dot(yScore, yScore), xw)
		floats.Scale(1/(floats.Norm(xw, 2)+eps), xw)

		xScoreVec.MulVec(Xk, xwVec)
		ywVec.MulVec(Yk.T(), xScoreVec)
		floats.Scale(1/floats.Dot(xScore, xScore), yw)

		yScoreVec.MulVec(Yk, ywVec)
		floats.Scale(1/(floats.Dot(yw, yw)+eps), yScore)

		floats.SubTo(diff, xw, old)
		if floats.Dot(diff, diff) < tol || v == 1 {
			break
		}
		copy(old, xw)
	}
	if nIter > maxIter {
		nIter = maxIter
		errors.Warn(errors.NewConvergenceWarning("PLSRegression", maxIter, "maximum number of power iterations reached"))
	}
	return xw, yw, nIter, nil
}

// flipSign makes the largest |x weight| positive, flipping both vectors.
func flipSign(xw, yw []float64) {
	idx := 0
	for j, w := range xw {
		if math.Abs(w) > math.Abs(xw[idx]) {
			idx = j
		}
	}
	if xw[idx] < 0 {
		floats.Scale(-1, xw)
		floats.Scale(-1, yw)
	}
}

// nipalsStep extracts one component from Xk and Yk and deflates both in
// place (regression mode).
func nipalsStep(Xk, Yk *mat.Dense, maxIter int, tol float64) (*component, error) {
	n, p := Xk.Dims()
	_, v := Yk.Dims()

	// near-zero residual target columns are zeroed
	for j := 0; j < v; j++ {
		small := true
		for i := 0; i < n; i++ {
			if math.Abs(Yk.At(i, j)) >= 10*eps {
				small = false
				break
			}
		}
		if small {
			for i := 0; i < n; i++ {
				Yk.Set(i, j, 0)
			}
		}
	}

	xw, yw, nIter, err := firstSingularVectors(Xk, Yk, maxIter, tol)
	if err != nil {
		return nil, err
	}
	flipSign(xw, yw)

	xScores := make([]float64, n)
	mat.NewVecDense(n, xScores).MulVec(Xk, mat.NewVecDense(p, xw))
	ss := floats.Dot(xScores, xScores)

	xLoadings := make([]float64, p)
	mat.NewVecDense(p, xLoadings).MulVec(Xk.T(), mat.NewVecDense(n, xScores))
	floats.Scale(1/ss, xLoadings)

	yLoadings := make([]float64, v)
	mat.NewVecDense(v, yLoadings).MulVec(Yk.T(), mat.NewVecDense(n, xScores))
	floats.Scale(1/ss, yLoadings)

	t := mat.NewDense(n, 1, xScores)
	var dx, dy mat.Dense
	dx.Mul(t, mat.NewDense(1, p, xLoadings))
	Xk.Sub(Xk, &dx)
	dy.Mul(t, mat.NewDense(1, v, yLoadings))
	Yk.Sub(Yk, &dy)

	return &component{
		xWeights:  xw,
		yWeights:  yw,
		xScores:   xScores,
		xLoadings: xLoadings,
		yLoadings: yLoadings,
		nIter:     nIter,
	}, nil
}

// pinv returns the Moore–Penrose pseudo-inverse of a small square matrix.
func pinv(A *mat.Dense) (*mat.Dense, error) {
	r, c := A.Dims()
	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDThin) {
		return nil, errors.NewModelError("PLSRegression", "SVD factorization failed", errors.ErrSingularMatrix)
	}
	s := svd.Values(nil)
	var U, V mat.Dense
	svd.UTo(&U)
	svd.VTo(&V)

	cutoff := 0.0
	if len(s) > 0 {
		cutoff = s[0] * float64(max(r, c)) * eps
	}
	inv := make([]float64, len(s))
	for i, si := range s {
		if si > cutoff {
			inv[i] = 1 / si
		}
	}
	var VS mat.Dense
	VS.Mul(&V, mat.NewDiagDense(len(inv), inv))
	out := mat.NewDense(c, r, nil)
	out.Mul(&VS, U.T())
	return out, nil
}
