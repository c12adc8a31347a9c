package ruleengine

import (
	"errors"
	"fmt"
)

// ErrInvalidTargeting is returned by CompileTargeting for malformed trees.
var ErrInvalidTargeting = errors.New("invalid targeting")

// MissingFieldError reports that the context lacks the identifier a feature buckets on.
type MissingFieldError struct {
	Field     string
	BucketVal string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("Missing field %q in context for bucket_val = %s", e.Field, e.BucketVal)
}

// ContextError reports a context field with the wrong shape.
type ContextError struct {
	Field  string
	Reason string
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("invalid context field %q: %s", e.Field, e.Reason)
}
