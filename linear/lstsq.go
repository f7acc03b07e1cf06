package linear

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
	"github.com/YuminosukeSato/connmodel/preprocessing"
)

// SVDSolution is the result of SolveRidge.
type SVDSolution struct {
	// Coef is V×P.
	Coef *mat.Dense

	// Singular holds the singular values of the design, descending.
	Singular []float64

	// Rank is the number of singular values above the cutoff.
	Rank int
}

// SolveRidge minimises ‖Y − X Wᵀ‖² + α‖W‖² for all columns of Y at once
// through the thin SVD X = U S Vᵀ:
//
//	Wᵀ = V diag(s / (s² + α)) Uᵀ Y
//
// With α = 0 this is the minimum-norm least-squares solution; singular
// values below eps·max(N, P)·s_max are treated as zero.
func SolveRidge(X, Y mat.Matrix, alpha float64) (*SVDSolution, error) {
	n, p := X.Dims()
	ny, v := Y.Dims()
	if n == 0 || p == 0 || v == 0 {
		return nil, errors.NewModelError("SolveRidge", "empty data", errors.ErrEmptyData)
	}
	if ny != n {
		return nil, errors.NewDimensionError("SolveRidge", n, ny, 0)
	}

	var svd mat.SVD
	if ok := svd.Factorize(X, mat.SVDThin); !ok {
		return nil, errors.NewModelError("SolveRidge", "SVD factorization failed", errors.ErrSingularMatrix)
	}
	s := svd.Values(nil)
	var U, V mat.Dense
	svd.UTo(&U)
	svd.VTo(&V)

	cutoff := 1e-15
	if alpha == 0 && len(s) > 0 {
		cutoff = math.Max(cutoff, s[0]*float64(max(n, p))*eps)
	}
	d := make([]float64, len(s))
	rank := 0
	for i, si := range s {
		if si > cutoff {
			d[i] = si / (si*si + alpha)
			rank++
		}
	}

	var UtY mat.Dense
	UtY.Mul(U.T(), Y)
	for i := range d {
		row := UtY.RawRowView(i)
		for j := range row {
			row[j] *= d[i]
		}
	}
	var W mat.Dense
	W.Mul(&V, &UtY)

	coef := mat.DenseCopyOf(W.T())
	if err := errors.CheckMatrix("SolveRidge", coef, v, p, 0); err != nil {
		return nil, err
	}
	return &SVDSolution{Coef: coef, Singular: s, Rank: rank}, nil
}

const eps = 2.220446049250313e-16

// CheckXY validates a fit input pair and returns N, P and V.
func CheckXY(op string, X, Y mat.Matrix) (n, p, v int, err error) {
	n, p = X.Dims()
	ny, v := Y.Dims()
	if n == 0 || p == 0 || v == 0 {
		return 0, 0, 0, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if ny != n {
		return 0, 0, 0, errors.NewDimensionError(op, n, ny, 0)
	}
	return n, p, v, nil
}

// PredictScaled returns nan_to_num(X / scale) · coefᵀ.
func PredictScaled(X mat.Matrix, scale []float64, coef *mat.Dense) *mat.Dense {
	Xs := preprocessing.ApplyScale(X, scale)
	n, _ := Xs.Dims()
	v, _ := coef.Dims()
	out := mat.NewDense(n, v, nil)
	out.Mul(Xs, coef.T())
	return out
}

// EffectiveCoef expresses coef in raw input units, coef[v,j] / scale[j].
// Columns with a zero or non-finite scale get a zero coefficient.
func EffectiveCoef(coef *mat.Dense, scale []float64) *mat.Dense {
	if coef == nil {
		return nil
	}
	r, c := coef.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, w float64) float64 {
		return errors.NanToNum(w / scale[j])
	}, coef)
	return out
}

// checkCoefScale verifies that a restored scale matches the coefficient width.
func checkCoefScale(coef *mat.Dense, scale []float64) error {
	_, p := coef.Dims()
	if len(scale) != p {
		return errors.NewValidationError("scale", fmt.Sprintf("length must match the %d coefficient columns", p), len(scale))
	}
	return nil
}
