// Standard attribute keys for estimator log entries. Keys follow a dotted
// hierarchy ("model.name", "data.samples") so entries can be filtered by
// category.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator type, e.g. "Ridge", "NNLS".
	ModelNameKey = "model.name"

	// OperationKey is the operation being performed ("fit", "predict").
	OperationKey = "ml.operation"

	// ComponentKey identifies the package or component.
	ComponentKey = "ml.component"

	// PhaseKey is the lifecycle phase ("training", "inference").
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	// SamplesKey is the number of rows N.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of source columns P.
	FeaturesKey = "data.features"

	// TargetsKey is the number of target columns V.
	TargetsKey = "data.targets"

	// SelectedKey is the number of retained source columns per target (n).
	SelectedKey = "data.selected"
)

// Performance and solver progress.
const (
	// DurationMsKey is the wall time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// WorkersKey is the number of goroutines used by a per-target loop.
	WorkersKey = "perf.workers"

	// IterationKey is an iteration count reported by an iterative solver.
	IterationKey = "training.iteration"

	// ScoreKey is a cross-validation or evaluation score.
	ScoreKey = "metrics.score"

	// TargetKey is the index of the target column being processed.
	TargetKey = "training.target"
)

// Error context.
const (
	// ErrorCodeKey is a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the error, e.g. "SolverError".
	ErrorTypeKey = "error.type"
)

// Hyperparameters.
const (
	// RegularizationKey is the L2 strength alpha.
	RegularizationKey = "hyperparams.regularization"

	// L1PenaltyKey is the L1-like shift gamma of the NNLS solver.
	L1PenaltyKey = "hyperparams.l1_penalty"

	// SolverKey is the quadratic-programming backend name.
	SolverKey = "hyperparams.solver"

	// ComponentsKey is the number of latent components of PLS.
	ComponentsKey = "hyperparams.n_components"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationSelect    = "select"

	PhaseTraining      = "training"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorConvergence       = "CONVERGENCE_FAILURE"
)
