// Package model defines the estimator contract shared by every connectivity
// model, the thread-safe fitted-state holder and the serialized array bundle.
package model

import "gonum.org/v1/gonum/mat"

// Fitter is implemented by models that learn from source activity X (N×P)
// and target activity Y (N×V).
type Fitter interface {
	Fit(X, Y mat.Matrix) error
}

// Predictor is implemented by models that map new source activity to
// predicted target activity.
type Predictor interface {
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Transformer is implemented by unsupervised preprocessing steps.
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// Serializable is implemented by models that can be exported to and
// restored from a Bundle.
type Serializable interface {
	ToBundle() (*Bundle, error)
	FromBundle(b *Bundle) error
}

// Model is the full estimator contract. Coef is V×P for every variant and
// nil before the first Fit.
type Model interface {
	Fitter
	Predictor
	Serializable
	Coef() *mat.Dense
}
