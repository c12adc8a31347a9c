package decider

// Operation names recorded with every Outcome.
const (
	OpInit      = "init"
	OpChoose    = "choose"
	OpChooseAll = "choose_all"
	OpGetBool   = "get_bool"
	OpGetInt    = "get_int"
	OpGetFloat  = "get_float"
	OpGetString = "get_string"
	OpGetMap    = "get_map"
	OpAllValues = "all_values"
)

// Error types recorded with failed Outcomes.
const (
	ErrTypeMissingContext       = "missing_context"
	ErrTypeInvalidContext       = "invalid_context"
	ErrTypeFeatureNotFound      = "feature_not_found"
	ErrTypeDeciderException     = "decider_exception"
	ErrTypeTypeMismatch         = "type_mismatch"
	ErrTypeException            = "exception"
	ErrTypePartialInitException = "partial_init_exception"
	ErrTypeInitException        = "init_exception"
)

// Outcome describes the result of one public operation.
type Outcome struct {
	Operation  string
	Success    bool
	ErrorType  string
	PkgVersion string
}

// MetricsSink receives one Outcome per public operation.
// Implementations must be safe for concurrent use and must not block.
type MetricsSink interface {
	RecordOutcome(Outcome)
}

type noopMetrics struct{}

func (noopMetrics) RecordOutcome(Outcome) {}
