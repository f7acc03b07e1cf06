package validation

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/connmodel/core/model"
	"github.com/YuminosukeSato/connmodel/core/parallel"
	"github.com/YuminosukeSato/connmodel/metrics"
	"github.com/YuminosukeSato/connmodel/pkg/errors"
	"github.com/YuminosukeSato/connmodel/pkg/log"
)

// Regressor is the part of the estimator contract cross-validation needs.
type Regressor interface {
	model.Fitter
	model.Predictor
}

// Factory builds a fresh, unfitted estimator for one fold.
type Factory func() (Regressor, error)

// CVResult holds per-fold test scores.
type CVResult struct {
	Scores []float64
}

// Mean returns the mean fold score.
func (r *CVResult) Mean() float64 { return stat.Mean(r.Scores, nil) }

// Std returns the sample standard deviation of the fold scores.
func (r *CVResult) Std() float64 {
	if len(r.Scores) < 2 {
		return 0
	}
	return stat.StdDev(r.Scores, nil)
}

// CrossValScore fits a new estimator on every training split and scores
// its predictions on the held-out rows. Folds run concurrently on up to
// workers goroutines; the first failure cancels the rest.
func CrossValScore(ctx context.Context, newModel Factory, X, Y mat.Matrix, splitter Splitter, scorer metrics.Scorer, workers int) (*CVResult, error) {
	n, _ := X.Dims()
	ny, _ := Y.Dims()
	if ny != n {
		return nil, errors.NewDimensionError("CrossValScore", n, ny, 0)
	}
	if scorer == nil {
		scorer = metrics.PooledR
	}
	folds, err := splitter.Split(n)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	scores := make([]float64, len(folds))
	err = parallel.ForEachChunk(ctx, len(folds), workers, 1, func(ctx context.Context, s, e int) error {
		for i := s; i < e; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			score, err := scoreFold(newModel, X, Y, folds[i], scorer)
			if err != nil {
				return errors.Wrapf(err, "fold %d", i)
			}
			scores[i] = score
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &CVResult{Scores: scores}
	log.GetLoggerWithName("validation").Debug("cross-validation completed",
		log.SamplesKey, n,
		log.ScoreKey, res.Mean(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, nil
}

func scoreFold(newModel Factory, X, Y mat.Matrix, f Fold, scorer metrics.Scorer) (float64, error) {
	m, err := newModel()
	if err != nil {
		return 0, err
	}
	if err := m.Fit(Rows(X, f.Train), Rows(Y, f.Train)); err != nil {
		return 0, err
	}
	pred, err := m.Predict(Rows(X, f.Test))
	if err != nil {
		return 0, err
	}
	return scorer(Rows(Y, f.Test), pred)
}
