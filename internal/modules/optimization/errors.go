package optimization

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks. Each typed error below matches exactly one.
var (
	ErrValidation  = errors.New("validation error")
	ErrConvergence = errors.New("convergence failure")
	ErrBounds      = errors.New("bounds violation")
	ErrInvariant   = errors.New("invariant violation")
)

// ValidationError reports malformed input or configuration. It is raised before any
// optimization work starts and is never auto-corrected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func validationErrorf(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConvergenceFailure reports that the solver did not reach a feasible stationary point.
type ConvergenceFailure struct {
	Method     Method
	Status     string
	Iterations int
	Message    string
}

func (e *ConvergenceFailure) Error() string {
	return fmt.Sprintf("convergence failure (%s, status=%s, iterations=%d): %s",
		e.Method, e.Status, e.Iterations, e.Message)
}

// Is reports whether target is ErrConvergence.
func (e *ConvergenceFailure) Is(target error) bool { return target == ErrConvergence }

// BoundsViolation reports a renormalized weight outside the configured position limits.
type BoundsViolation struct {
	Ticker string
	Weight float64
	Min    float64
	Max    float64
}

func (e *BoundsViolation) Error() string {
	if e.Ticker == "" {
		return fmt.Sprintf("bounds violation: weights cannot be normalized (sum=%g)", e.Weight)
	}
	return fmt.Sprintf("bounds violation: weight %.8f for %s outside [%g, %g]",
		e.Weight, e.Ticker, e.Min, e.Max)
}

// Is reports whether target is ErrBounds.
func (e *BoundsViolation) Is(target error) bool { return target == ErrBounds }

// InvariantViolation reports a metric that broke a mathematical invariant, which
// indicates numerical instability upstream.
type InvariantViolation struct {
	Name  string
	Value float64
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s = %.12f", e.Name, e.Value)
}

// Is reports whether target is ErrInvariant.
func (e *InvariantViolation) Is(target error) bool { return target == ErrInvariant }

// ErrorKind returns a short stable name for the error category, used by the HTTP and
// CLI layers to map errors to status codes.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrConvergence):
		return "convergence_failure"
	case errors.Is(err, ErrBounds):
		return "bounds_violation"
	case errors.Is(err, ErrInvariant):
		return "invariant_violation"
	default:
		return "internal_error"
	}
}
