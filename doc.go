// Package connmodel estimates connectivity weights between a set of source
// signals X (N samples × P sources) and a set of target signals Y
// (N samples × V targets).
//
// Every estimator RMS-scales the sources, fits a V×P coefficient matrix and
// predicts Y_hat = nan_to_num(X / scale) · coefᵀ. Variants differ in how
// the coefficients are constrained:
//
//   - linear.Ridge and linear.Lasso: L2 / L1 regularised least squares
//   - winner.WTA, winner.WNTA, winner.Staged: keep only the strongest
//     source(s) of every target, optionally refitting on them
//   - selection.Sequential: forward cross-validated source selection
//   - linear.NNLS: non-negative least squares through a quadratic program
//   - pls.PLSRegression: partial least squares on latent components
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/connmodel/winner"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    X := mat.NewDense(4, 3, []float64{1, 0, 2, 0, 1, 1, 2, 1, 0, 1, 1, 1})
//	    Y := mat.NewDense(4, 1, []float64{2, 1, 0, 1})
//
//	    m, err := winner.NewWNTA(winner.WithN(2))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if err := m.Fit(X, Y); err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(m.Labels())
//	}
//
// # Configuration
//
// New builds any variant from a config.Config, usually loaded from YAML:
//
//	cfg, err := config.Load("model.yaml")
//	m, err := connmodel.New(cfg)
//	err = connmodel.Fit(ctx, m, X, Y, cfg)
//
// # Persistence
//
// Fitted models export a model.Bundle. model.Save writes it as a zstd
// compressed, checksummed file; connmodel.Load restores the right variant
// from the stored model type.
//
// # Error Handling
//
// All errors come from pkg/errors and carry stack traces. Inspect them with
// errors.As:
//
//	var se *errors.SolverError
//	if errors.As(err, &se) && se.Kind == errors.SolverNotConverged {
//	    // target se.Target did not converge
//	}
//
// # Logging
//
// Estimators log at debug level through pkg/log; the default backend writes
// JSON lines with zerolog to stderr at warn level.
package connmodel
