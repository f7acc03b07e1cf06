// Package errors provides the error types and warning hooks shared by all
// connectivity estimators. Every constructor attaches a stack trace through
// cockroachdb/errors so failures deep inside a per-target loop can be traced
// back to the fitting call that triggered them.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Warning handling
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("connmodel-warning: %v\n", w)
	}
	// set by pkg/log to avoid an import cycle
	zerologWarnFunc func(warning error)
)

// SetWarningHandler replaces the fallback handler used by Warn when no
// structured logger has been registered.
//
//	errors.SetWarningHandler(func(w error) {
//	    // drop warnings
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc registers the structured warning sink.
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn emits a non-fatal warning. The structured sink wins over the
// fallback handler when both are set.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	Warnings
//
// ===========================================================================

// ConvergenceWarning reports an iterative fit that stopped at its iteration cap
// without meeting its tolerance. The result is still usable.
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter or the regularization strength.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject adds the warning fields to a zerolog event.
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning creates a ConvergenceWarning.
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// ScalingWarning flags a preprocessing choice the caller should know about,
// e.g. statistics recomputed from prediction-time data.
type ScalingWarning struct {
	Model  string
	Reason string
}

func (w *ScalingWarning) Error() string {
	return fmt.Sprintf("%s: %s", w.Model, w.Reason)
}

// MarshalZerologObject adds the warning fields to a zerolog event.
func (w *ScalingWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("model", w.Model).
		Str("reason", w.Reason).
		Str("type", "ScalingWarning")
}

// NewScalingWarning creates a ScalingWarning.
func NewScalingWarning(model, reason string) *ScalingWarning {
	return &ScalingWarning{Model: model, Reason: reason}
}

// ===========================================================================
//
//	Structured errors
//
// ===========================================================================

// NotFittedError is returned when Predict or an accessor that needs fitted
// state is called before Fit.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("connmodel: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stack trace.
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError reports a shape mismatch between fit-time and call-time data.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("connmodel: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName(e.Axis), e.Expected, e.Got)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName(e.Axis)).
		Str("type", "DimensionError")
}

func axisName(axis int) string {
	if axis == 0 {
		return "rows"
	}
	return "features"
}

// NewDimensionError creates a DimensionError with a stack trace.
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValidationError reports an invalid hyperparameter or argument.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("connmodel: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError creates a ValidationError with a stack trace.
func NewValidationError(param, reason string, value interface{}) error {
	return errors.WithStack(&ValidationError{ParamName: param, Reason: reason, Value: value})
}

// ValueError reports an argument whose value is unusable for the operation.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("connmodel: %s: %s", e.Op, e.Message)
}

// NewValueError creates a ValueError with a stack trace.
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError is a general estimator failure wrapping an underlying cause.
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connmodel: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("connmodel: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError creates a ModelError with a stack trace.
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// SolverErrorKind separates the ways a quadratic program can fail.
type SolverErrorKind int

const (
	// SolverNotConverged means the iteration cap was hit before the KKT
	// conditions were met.
	SolverNotConverged SolverErrorKind = iota
	// SolverInfeasible means the problem data cannot describe a bounded convex
	// program (non-finite entries, G not positive semidefinite).
	SolverInfeasible
)

func (k SolverErrorKind) String() string {
	switch k {
	case SolverNotConverged:
		return "not converged"
	case SolverInfeasible:
		return "infeasible"
	default:
		return "unknown"
	}
}

// SolverError is returned by quadratic-programming backends. Target is the
// column of Y being solved, or -1 when the failure is not target specific.
type SolverError struct {
	Solver     string
	Kind       SolverErrorKind
	Target     int
	Iterations int
	Message    string
}

func (e *SolverError) Error() string {
	msg := fmt.Sprintf("connmodel: %s solver %s for target %d after %d iterations", e.Solver, e.Kind, e.Target, e.Iterations)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// MarshalZerologObject adds the error fields to a zerolog event.
func (e *SolverError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("solver", e.Solver).
		Str("kind", e.Kind.String()).
		Int("target", e.Target).
		Int("iterations", e.Iterations).
		Str("message", e.Message).
		Str("type", "SolverError")
}

// NewSolverError creates a SolverError with a stack trace.
func NewSolverError(solver string, kind SolverErrorKind, target, iterations int, message string) error {
	return errors.WithStack(&SolverError{
		Solver:     solver,
		Kind:       kind,
		Target:     target,
		Iterations: iterations,
		Message:    message,
	})
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap annotates err with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf annotates err with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates an error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack attaches a stack trace to err.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Numerical errors
//
// ===========================================================================

// NumericalInstabilityError reports NaN or Inf values where finite numbers
// are required (coefficients, predictions).
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Context   map[string]interface{}
	Iteration int
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("connmodel: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError creates a NumericalInstabilityError with a stack trace.
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	return errors.WithStack(&NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
		Context:   make(map[string]interface{}),
	})
}

// ===========================================================================
//
//	Sentinel errors
//
// ===========================================================================

var (
	// ErrEmptyData is wrapped when a matrix with no rows or columns is passed.
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix is wrapped when a linear system cannot be solved.
	ErrSingularMatrix = New("singular matrix")

	// ErrChecksumMismatch is wrapped when a serialized bundle fails verification.
	ErrChecksumMismatch = New("checksum mismatch")
)
