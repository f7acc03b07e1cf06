// Package selection implements forward sequential feature selection of
// source columns followed by a ridge fit on the selected subset.
package selection

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/core/model"
	"github.com/YuminosukeSato/connmodel/core/parallel"
	"github.com/YuminosukeSato/connmodel/linear"
	"github.com/YuminosukeSato/connmodel/metrics"
	"github.com/YuminosukeSato/connmodel/pkg/errors"
	"github.com/YuminosukeSato/connmodel/pkg/log"
	"github.com/YuminosukeSato/connmodel/preprocessing"
	"github.com/YuminosukeSato/connmodel/validation"
)

// SequentialModelType identifies Sequential bundles.
const SequentialModelType = "Sequential"

// Sequential greedily adds, one at a time, the source column that most
// improves the cross-validated R² of an ordinary least-squares fit of all
// targets jointly, until n columns are chosen. It then fits ridge on the
// scaled selected columns.
type Sequential struct {
	state  *model.StateManager
	params params

	scale      []float64
	mask       []bool
	selected   []int
	subsetCoef *mat.Dense
	coef       *mat.Dense
}

// NewSequential creates a selector. Defaults: n 1, alpha 1, 5 folds.
func NewSequential(opts ...Option) (*Sequential, error) {
	p, err := newParams(opts)
	if err != nil {
		return nil, err
	}
	return &Sequential{state: model.NewStateManager(), params: p}, nil
}

// Fit selects the columns and fits the subset ridge model.
func (s *Sequential) Fit(X, Y mat.Matrix) error {
	return s.FitContext(context.Background(), X, Y)
}

// FitContext is Fit bounded by ctx.
func (s *Sequential) FitContext(ctx context.Context, X, Y mat.Matrix) error {
	start := time.Now()
	n, p, v, err := linear.CheckXY("Sequential.Fit", X, Y)
	if err != nil {
		return err
	}
	if s.params.n > p {
		return errors.NewValidationError("n", fmt.Sprintf("cannot exceed the number of source columns (%d)", p), s.params.n)
	}

	Xs, scale := preprocessing.RMSScale(X)
	selected, err := s.forward(ctx, Xs, Y)
	if err != nil {
		return err
	}

	sol, err := linear.SolveRidge(validation.Columns(Xs, selected), Y, s.params.alpha)
	if err != nil {
		return err
	}

	mask := make([]bool, p)
	coef := mat.NewDense(v, p, nil)
	for k, j := range selected {
		mask[j] = true
		for t := 0; t < v; t++ {
			coef.Set(t, j, sol.Coef.At(t, k))
		}
	}

	s.scale = scale
	s.mask = mask
	s.selected = selected
	s.subsetCoef = sol.Coef
	s.coef = coef
	if s.state == nil {
		s.state = model.NewStateManager()
	}
	s.state.SetFitted(n, p, v)

	log.GetLoggerWithName(SequentialModelType).Debug("fit completed",
		log.OperationKey, log.OperationSelect,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.TargetsKey, v,
		log.SelectedKey, len(selected),
		log.RegularizationKey, s.params.alpha,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// forward returns the selected columns in ascending order.
func (s *Sequential) forward(ctx context.Context, Xs *mat.Dense, Y mat.Matrix) ([]int, error) {
	n, p := Xs.Dims()
	mask := make([]bool, p)
	if s.params.n == p {
		for j := range mask {
			mask[j] = true
		}
		return maskIndices(mask), nil
	}

	folds, err := validation.NewKFold(s.params.cv).Split(n)
	if err != nil {
		return nil, err
	}
	logger := log.GetLoggerWithName(SequentialModelType)

	scores := make([]float64, p)
	for step := 0; step < s.params.n; step++ {
		err := parallel.ForEachChunk(ctx, p, s.params.workers, parallel.DefaultThreshold, func(ctx context.Context, a, b int) error {
			for j := a; j < b; j++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if mask[j] {
					scores[j] = math.Inf(-1)
					continue
				}
				cols := maskIndices(mask)
				cols = insertSorted(cols, j)
				score, err := cvScore(validation.Columns(Xs, cols), Y, folds)
				if err != nil {
					return errors.Wrapf(err, "candidate %d", j)
				}
				scores[j] = score
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		best := -1
		for j, sc := range scores {
			if mask[j] {
				continue
			}
			if best < 0 || sc > scores[best] {
				best = j
			}
		}
		mask[best] = true
		logger.Debug("column selected", log.IterationKey, step, log.FeaturesKey, best, log.ScoreKey, scores[best])
	}
	return maskIndices(mask), nil
}

// cvScore is the mean over folds of the uniformly averaged R² of an
// ordinary least-squares fit without intercept.
func cvScore(Xc, Y mat.Matrix, folds []validation.Fold) (float64, error) {
	var total float64
	for _, f := range folds {
		sol, err := linear.SolveRidge(validation.Rows(Xc, f.Train), validation.Rows(Y, f.Train), 0)
		if err != nil {
			return 0, err
		}
		var pred mat.Dense
		pred.Mul(validation.Rows(Xc, f.Test), sol.Coef.T())
		r2, err := metrics.R2ScoreMatrix(validation.Rows(Y, f.Test), &pred)
		if err != nil {
			return 0, err
		}
		total += r2
	}
	return total / float64(len(folds)), nil
}

func maskIndices(mask []bool) []int {
	var idx []int
	for j, m := range mask {
		if m {
			idx = append(idx, j)
		}
	}
	return idx
}

func insertSorted(sorted []int, j int) []int {
	out := make([]int, 0, len(sorted)+1)
	done := false
	for _, k := range sorted {
		if !done && j < k {
			out = append(out, j)
			done = true
		}
		out = append(out, k)
	}
	if !done {
		out = append(out, j)
	}
	return out
}

// Predict rescales X with the fit-time scale, keeps the selected columns
// and applies the subset coefficients.
func (s *Sequential) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted(SequentialModelType, "Predict"); err != nil {
		return nil, err
	}
	_, c := X.Dims()
	if err := s.state.RequireFeatures("Sequential.Predict", c); err != nil {
		return nil, err
	}
	Xs := validation.Columns(preprocessing.ApplyScale(X, s.scale), s.selected)
	r, _ := Xs.Dims()
	v, _ := s.subsetCoef.Dims()
	out := mat.NewDense(r, v, nil)
	out.Mul(Xs, s.subsetCoef.T())
	return out, nil
}

// Coef returns the V×P coefficients, zero outside the mask.
func (s *Sequential) Coef() *mat.Dense { return s.coef }

// SubsetCoef returns the V×n ridge coefficients of the selected columns.
func (s *Sequential) SubsetCoef() *mat.Dense { return s.subsetCoef }

// Mask reports which source columns were selected.
func (s *Sequential) Mask() []bool { return s.mask }

// Selected returns the selected column indices in ascending order.
func (s *Sequential) Selected() []int { return s.selected }

// Scale returns the fit-time column scale.
func (s *Sequential) Scale() []float64 { return s.scale }

// ToBundle exports the fitted model.
func (s *Sequential) ToBundle() (*model.Bundle, error) {
	if err := s.state.RequireFitted(SequentialModelType, "ToBundle"); err != nil {
		return nil, err
	}
	b := model.NewBundle(SequentialModelType)
	b.State = s.state.GetState()
	b.SetParam("n", float64(s.params.n))
	b.SetParam("alpha", s.params.alpha)
	b.SetParam("cv", float64(s.params.cv))
	b.SetMatrix("coef", s.coef)
	b.SetVector("scale", s.scale)
	b.SetMask("mask", s.mask)
	return b, nil
}

// FromBundle restores a model exported with ToBundle.
func (s *Sequential) FromBundle(b *model.Bundle) error {
	if err := b.RequireType(SequentialModelType); err != nil {
		return err
	}
	coef, err := b.Matrix("coef")
	if err != nil {
		return err
	}
	scale, err := b.Vector("scale")
	if err != nil {
		return err
	}
	mask, err := b.Mask("mask")
	if err != nil {
		return err
	}
	v, p := coef.Dims()
	if len(scale) != p || len(mask) != p {
		return errors.NewValidationError("mask", "length does not match coefficients", len(mask))
	}

	selected := maskIndices(mask)
	subset := mat.NewDense(v, max(len(selected), 1), nil)
	for k, j := range selected {
		for t := 0; t < v; t++ {
			subset.Set(t, k, coef.At(t, j))
		}
	}

	if s.state == nil {
		s.state = model.NewStateManager()
	}
	if n, ok := b.Param("n"); ok {
		s.params.n = int(n)
	}
	s.params.alpha, _ = b.Param("alpha")
	if cv, ok := b.Param("cv"); ok {
		s.params.cv = int(cv)
	}
	s.coef = coef
	s.scale = scale
	s.mask = mask
	s.selected = selected
	s.subsetCoef = subset
	s.state.SetState(b.State)
	return nil
}

func (s *Sequential) String() string {
	return fmt.Sprintf("Sequential(n=%d, alpha=%g, cv=%d)", s.params.n, s.params.alpha, s.params.cv)
}
