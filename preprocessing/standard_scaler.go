package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/core/model"
	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

// StandardScaler centres each column and divides by its standard deviation.
// DDOF selects the variance denominator (N - DDOF); PLS uses DDOF = 1.
// Columns with zero spread keep a scale of 1.
type StandardScaler struct {
	state *model.StateManager

	// Mean is the per-column mean.
	Mean []float64

	// Scale is the per-column standard deviation.
	Scale []float64

	// WithMean subtracts the mean (default true).
	WithMean bool

	// WithStd divides by the standard deviation (default true).
	WithStd bool

	// DDOF is the delta degrees of freedom of the variance.
	DDOF int
}

// NewStandardScaler creates a StandardScaler.
//
// Parameters:
//   - withMean: subtract the column mean
//   - withStd: divide by the column standard deviation
//   - ddof: variance denominator is N - ddof
func NewStandardScaler(withMean, withStd bool, ddof int) *StandardScaler {
	return &StandardScaler{
		state:    model.NewStateManager(),
		WithMean: withMean,
		WithStd:  withStd,
		DDOF:     ddof,
	}
}

// Fit computes the column means and standard deviations of X.
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	if r-s.DDOF <= 0 && s.WithStd {
		return errors.NewValidationError("ddof", "must be smaller than the number of samples", s.DDOF)
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	for j := 0; j < c; j++ {
		if s.WithMean {
			sum := 0.0
			for i := 0; i < r; i++ {
				sum += X.At(i, j)
			}
			s.Mean[j] = sum / float64(r)
		}
		s.Scale[j] = 1.0
		if s.WithStd {
			sumSquares := 0.0
			for i := 0; i < r; i++ {
				diff := X.At(i, j) - s.Mean[j]
				sumSquares += diff * diff
			}
			std := math.Sqrt(sumSquares / float64(r-s.DDOF))
			if std > 0 {
				s.Scale[j] = std
			}
		}
	}

	s.state.SetFitted(r, c, 0)
	return nil
}

// Transform returns (X - Mean) / Scale.
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("StandardScaler", "Transform"); err != nil {
		return nil, err
	}
	if err := s.state.RequireFeatures("StandardScaler.Transform", colsOf(X)); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	result := mat.NewDense(r, c, nil)
	result.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return result, nil
}

// FitTransform fits on X and returns the standardized X.
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform returns X * Scale + Mean.
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("StandardScaler", "InverseTransform"); err != nil {
		return nil, err
	}
	if err := s.state.RequireFeatures("StandardScaler.InverseTransform", colsOf(X)); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	result := mat.NewDense(r, c, nil)
	result.Apply(func(_, j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	}, X)
	return result, nil
}

func (s *StandardScaler) String() string {
	if !s.state.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, ddof=%d)", s.WithMean, s.WithStd, s.DDOF)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, ddof=%d, n_features=%d)",
		s.WithMean, s.WithStd, s.DDOF, len(s.Mean))
}
