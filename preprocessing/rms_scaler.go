// Package preprocessing provides the column scalers applied to source
// activity before fitting.
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/core/model"
	"github.com/YuminosukeSato/connmodel/core/parallel"
	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

// RMSScaler divides every column by its root mean square on the fit sample.
// Columns are not centred. Values that become NaN or ±Inf after division
// (zero-energy columns, non-finite inputs) are replaced by 0.
type RMSScaler struct {
	state *model.StateManager

	// Scale is sqrt(sum_i X[i,j]^2 / N) per column.
	Scale []float64
}

// NewRMSScaler creates an unfitted RMSScaler.
//
//	scaler := preprocessing.NewRMSScaler()
//	Xs, err := scaler.FitTransform(X)
func NewRMSScaler() *RMSScaler {
	return &RMSScaler{state: model.NewStateManager()}
}

// NewRMSScalerFromScale restores a scaler from a stored scale vector.
func NewRMSScalerFromScale(scale []float64) *RMSScaler {
	s := NewRMSScaler()
	s.Scale = append([]float64(nil), scale...)
	s.state.SetFitted(0, len(scale), 0)
	return s
}

// Fit computes the per-column RMS of X.
func (s *RMSScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("RMSScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	s.Scale = ColumnRMS(X)
	s.state.SetFitted(r, c, 0)
	return nil
}

// Transform divides X by the fitted scale.
func (s *RMSScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("RMSScaler", "Transform"); err != nil {
		return nil, err
	}
	if err := s.state.RequireFeatures("RMSScaler.Transform", colsOf(X)); err != nil {
		return nil, err
	}
	return ApplyScale(X, s.Scale), nil
}

// FitTransform fits on X and returns the scaled X.
func (s *RMSScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform multiplies X by the fitted scale. Entries zeroed by the
// non-finite sanitisation cannot be recovered.
func (s *RMSScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("RMSScaler", "InverseTransform"); err != nil {
		return nil, err
	}
	if err := s.state.RequireFeatures("RMSScaler.InverseTransform", colsOf(X)); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 { return v * s.Scale[j] }, X)
	return out, nil
}

// IsFitted reports whether Fit has been called.
func (s *RMSScaler) IsFitted() bool {
	return s.state.IsFitted()
}

func (s *RMSScaler) String() string {
	if !s.state.IsFitted() {
		return "RMSScaler()"
	}
	return fmt.Sprintf("RMSScaler(n_features=%d)", len(s.Scale))
}

// columnThreshold is the column count at or below which ColumnRMS stays on
// the calling goroutine.
const columnThreshold = 512

// ColumnRMS returns sqrt(mean(X[:,j]^2)) for every column of X.
func ColumnRMS(X mat.Matrix) []float64 {
	return columnRMS(X, false)
}

// ColumnNanRMS is ColumnRMS with NaN entries left out of the sum. The mean
// still divides by the full row count.
func ColumnNanRMS(X mat.Matrix) []float64 {
	return columnRMS(X, true)
}

func columnRMS(X mat.Matrix, skipNaN bool) []float64 {
	r, c := X.Dims()
	scale := make([]float64, c)
	parallel.ParallelizeWithThreshold(c, columnThreshold, func(start, end int) {
		for j := start; j < end; j++ {
			sum := 0.0
			for i := 0; i < r; i++ {
				v := X.At(i, j)
				if skipNaN && math.IsNaN(v) {
					continue
				}
				sum += v * v
			}
			scale[j] = math.Sqrt(sum / float64(r))
		}
	})
	return scale
}

// ApplyScale returns nan_to_num(X / scale) column-wise, mapping NaN and
// ±Inf to 0.
func ApplyScale(X mat.Matrix, scale []float64) *mat.Dense {
	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return errors.NanToNum(v / scale[j])
	}, X)
	return out
}

// RMSScale fits and applies an RMS scale in one step, returning the scaled
// matrix and the scale.
func RMSScale(X mat.Matrix) (*mat.Dense, []float64) {
	scale := ColumnRMS(X)
	return ApplyScale(X, scale), scale
}

// NanRMSScale is RMSScale built on ColumnNanRMS, so a NaN entry zeroes only
// itself instead of its whole column.
func NanRMSScale(X mat.Matrix) (*mat.Dense, []float64) {
	scale := ColumnNanRMS(X)
	return ApplyScale(X, scale), scale
}

func colsOf(X mat.Matrix) int {
	_, c := X.Dims()
	return c
}
