package validation

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/metrics"
	"github.com/YuminosukeSato/connmodel/pkg/errors"
	"github.com/YuminosukeSato/connmodel/pkg/log"
)

// AlphaFactory builds an unfitted estimator with L2/L1 strength alpha.
type AlphaFactory func(alpha float64) (Regressor, error)

// GridResult is the outcome of GridSearch.
type GridResult struct {
	// BestLogAlpha is the grid value with the highest mean score; the first
	// one wins ties.
	BestLogAlpha float64
	// BestAlpha is exp(BestLogAlpha).
	BestAlpha float64
	// MeanScores holds the mean CV score of every grid value, in grid order.
	MeanScores []float64
}

// GridSearch scores newModel(exp(a)) for every a in logAlpha with
// CrossValScore and returns the best one. A nil scorer means pooled R.
//
//	res, err := validation.GridSearch(ctx, func(a float64) (validation.Regressor, error) {
//	    return linear.NewRidge(linear.WithAlpha(a))
//	}, []float64{-4, -2, 0, 2, 4}, X, Y, validation.NewKFold(4), nil, 0)
func GridSearch(ctx context.Context, newModel AlphaFactory, logAlpha []float64, X, Y mat.Matrix, splitter Splitter, scorer metrics.Scorer, workers int) (*GridResult, error) {
	if len(logAlpha) == 0 {
		return nil, errors.NewValidationError("log_alpha", "grid is empty", logAlpha)
	}
	if scorer == nil {
		scorer = metrics.PooledR
	}
	logger := log.GetLoggerWithName("validation")

	means := make([]float64, len(logAlpha))
	for i, a := range logAlpha {
		alpha := math.Exp(a)
		res, err := CrossValScore(ctx, func() (Regressor, error) { return newModel(alpha) }, X, Y, splitter, scorer, workers)
		if err != nil {
			return nil, errors.Wrapf(err, "log_alpha %g", a)
		}
		means[i] = res.Mean()
		logger.Debug("grid point scored", log.RegularizationKey, alpha, log.ScoreKey, means[i])
	}

	best := floats.MaxIdx(means)
	return &GridResult{
		BestLogAlpha: logAlpha[best],
		BestAlpha:    math.Exp(logAlpha[best]),
		MeanScores:   means,
	}, nil
}
