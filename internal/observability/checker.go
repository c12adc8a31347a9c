package observability

import "context"

// Checker defines the contract for any component that needs to report its health status.
// Implementations must be thread-safe and respect the context deadline.
type Checker interface {
	// Name returns the unique identifier of the component (e.g., "postgres", "redis").
	Name() string
	// Check returns nil if healthy.
	Check(ctx context.Context) error
}

// funcChecker adapts a plain function to Checker.
type funcChecker struct {
	name string
	fn   func(context.Context) error
}

// NewCheck builds a Checker from a function.
func NewCheck(name string, fn func(context.Context) error) Checker {
	return funcChecker{name: name, fn: fn}
}

func (c funcChecker) Name() string { return c.name }

func (c funcChecker) Check(ctx context.Context) error { return c.fn(ctx) }
