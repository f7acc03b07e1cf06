package connmodel

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/config"
	"github.com/YuminosukeSato/connmodel/core/model"
	"github.com/YuminosukeSato/connmodel/linear"
	"github.com/YuminosukeSato/connmodel/pkg/errors"
	"github.com/YuminosukeSato/connmodel/pkg/log"
	"github.com/YuminosukeSato/connmodel/pls"
	"github.com/YuminosukeSato/connmodel/selection"
	"github.com/YuminosukeSato/connmodel/winner"
)

// ContextFitter is implemented by models whose Fit can be bounded by a
// context.
type ContextFitter interface {
	FitContext(ctx context.Context, X, Y mat.Matrix) error
}

// New builds the model named by cfg.Model. Unset fields keep each model's
// own defaults.
func New(cfg *config.Config) (model.Model, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.LogLevel != "" {
		level, _ := log.ParseLevel(cfg.LogLevel)
		log.SetLevel(level)
	}

	switch cfg.Model {
	case config.ModelRidge:
		return linear.NewRidge(linear.WithAlpha(cfg.AlphaOr(1)))
	case config.ModelLasso:
		return linear.NewLasso(linearOptions(cfg, 1)...)
	case config.ModelNNLS:
		opts := append(linearOptions(cfg, 0), linear.WithGamma(cfg.Gamma), linear.WithSolver(cfg.Solver))
		return linear.NewNNLS(opts...)
	case config.ModelWTA:
		return winner.NewWTA(winnerOptions(cfg, 1, 0)...)
	case config.ModelWNTA:
		return winner.NewWNTA(winnerOptions(cfg, 2, 0)...)
	case config.ModelStaged:
		return winner.NewStaged(winnerOptions(cfg, 2, 1)...)
	case config.ModelSequential:
		opts := []selection.Option{
			selection.WithN(orDefault(cfg.N, 1)),
			selection.WithAlpha(cfg.AlphaOr(1)),
			selection.WithWorkers(cfg.Workers),
		}
		if cfg.CV > 0 {
			opts = append(opts, selection.WithCV(cfg.CV))
		}
		return selection.NewSequential(opts...)
	case config.ModelPLS:
		opts := []pls.Option{
			pls.WithComponents(orDefault(cfg.NComponents, 1)),
			pls.WithFitTimeScaling(cfg.FitTimeScaling),
		}
		if cfg.MaxIter > 0 {
			opts = append(opts, pls.WithMaxIter(cfg.MaxIter))
		}
		if cfg.Tol > 0 {
			opts = append(opts, pls.WithTol(cfg.Tol))
		}
		return pls.NewPLSRegression(opts...)
	}
	return nil, errors.NewValidationError("model", "unknown model", cfg.Model)
}

func linearOptions(cfg *config.Config, defaultAlpha float64) []linear.Option {
	opts := []linear.Option{
		linear.WithAlpha(cfg.AlphaOr(defaultAlpha)),
		linear.WithWorkers(cfg.Workers),
	}
	if cfg.MaxIter > 0 {
		opts = append(opts, linear.WithMaxIter(cfg.MaxIter))
	}
	if cfg.Tol > 0 {
		opts = append(opts, linear.WithTol(cfg.Tol))
	}
	return opts
}

func winnerOptions(cfg *config.Config, defaultN int, defaultAlpha float64) []winner.Option {
	return []winner.Option{
		winner.WithN(orDefault(cfg.N, defaultN)),
		winner.WithAlpha(cfg.AlphaOr(defaultAlpha)),
		winner.WithPositive(cfg.Positive),
		winner.WithRankByMagnitude(cfg.RankByMagnitude),
		winner.WithWorkers(cfg.Workers),
	}
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// Fit fits m on X and Y. A positive cfg.Timeout bounds the fit for models
// implementing ContextFitter; others run to completion.
func Fit(ctx context.Context, m model.Model, X, Y mat.Matrix, cfg *config.Config) error {
	if cfg != nil && cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Timeout))
		defer cancel()
	}
	if cf, ok := m.(ContextFitter); ok {
		return cf.FitContext(ctx, X, Y)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.Fit(X, Y)
}

// FromBundle returns the model stored in b, restored into the variant named
// by b.ModelType.
func FromBundle(b *model.Bundle) (model.Model, error) {
	var m model.Model
	switch b.ModelType {
	case linear.RidgeModelType:
		m = &linear.Ridge{}
	case linear.LassoModelType:
		m = &linear.Lasso{}
	case linear.NNLSModelType:
		m = &linear.NNLS{}
	case winner.WTAModelType:
		m = &winner.WTA{}
	case winner.WNTAModelType:
		m = &winner.WNTA{}
	case winner.StagedModelType:
		m = &winner.Staged{}
	case selection.SequentialModelType:
		m = &selection.Sequential{}
	case pls.ModelType:
		m = &pls.PLSRegression{}
	default:
		return nil, errors.NewValidationError("model_type", "unknown model type", b.ModelType)
	}
	if err := m.FromBundle(b); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads a file written by model.Save and restores its model.
func Load(filename string) (model.Model, error) {
	b, err := model.LoadBundle(filename)
	if err != nil {
		return nil, err
	}
	return FromBundle(b)
}
