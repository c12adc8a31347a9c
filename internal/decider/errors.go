package decider

import (
	"errors"
	"fmt"

	"github.com/rafaeljc/decider/internal/featureconfig"
)

var (
	// ErrDecider matches every error caused by the caller's context: a missing
	// context, a malformed context or a context lacking a bucketing identifier.
	ErrDecider = errors.New("decider error")

	// ErrMissingContext is returned when an operation is called with a nil context.
	ErrMissingContext = errors.New("missing context")
)

// InitError reports a feature document that could not be loaded at all.
type InitError = featureconfig.InitError

// PartialLoadError lists the features excluded from an otherwise usable Decider.
type PartialLoadError struct {
	Failures featureconfig.Failures
}

func (e *PartialLoadError) Error() string {
	return fmt.Sprintf("Partially loaded Decider: %d features failed to load: %s", len(e.Failures), e.Failures)
}

// FeatureNotFoundError is returned when the named feature is not in the table.
type FeatureNotFoundError struct {
	Name string
}

func (e *FeatureNotFoundError) Error() string {
	return fmt.Sprintf("Feature %q not found.", e.Name)
}

// MissingContextError is returned when an operation receives a nil context.
// Feature is empty for the bulk operations.
type MissingContextError struct {
	Feature string
}

func (e *MissingContextError) Error() string {
	if e.Feature == "" {
		return "Missing `context` param"
	}
	return fmt.Sprintf("Missing `context` param for feature_name: %s", e.Feature)
}

func (e *MissingContextError) Is(target error) bool {
	return target == ErrDecider || target == ErrMissingContext
}

// InvalidContextError wraps a context that failed shape validation.
type InvalidContextError struct {
	Err error
}

func (e *InvalidContextError) Error() string {
	return fmt.Sprintf("invalid context: %v", e.Err)
}

func (e *InvalidContextError) Unwrap() error { return e.Err }

func (e *InvalidContextError) Is(target error) bool { return target == ErrDecider }

// EvaluationError wraps a failure raised while a feature was being evaluated,
// typically a *ruleengine.MissingFieldError. Its message is the cause's message.
type EvaluationError struct {
	Feature string
	Err     error
}

func (e *EvaluationError) Error() string { return e.Err.Error() }

func (e *EvaluationError) Unwrap() error { return e.Err }

func (e *EvaluationError) Is(target error) bool { return target == ErrDecider }

// ValueTypeMismatchError is returned by the typed getters when the feature's
// declared value type differs from the requested one.
type ValueTypeMismatchError struct {
	Feature   string
	Requested featureconfig.ValueType
	Actual    string
}

func (e *ValueTypeMismatchError) Error() string {
	return fmt.Sprintf("Feature %q has value type %s, requested %s", e.Feature, e.Actual, e.Requested)
}
