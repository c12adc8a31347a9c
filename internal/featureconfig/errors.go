package featureconfig

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrNotObject is returned when the document's top level is not a JSON object.
var ErrNotObject = errors.New("top level of the feature document must be a JSON object")

// InitError reports a document that could not be loaded at all.
// No Table is produced when it is returned.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("decider initialization failed: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Failures maps a feature name to the reason it was excluded from the Table.
type Failures map[string]string

// Names returns the failed feature names in sorted order.
func (f Failures) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// String renders the failures as {'name': 'message', ...} with sorted keys,
// the form used in the partial-load warning.
func (f Failures) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range f.Names() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "'%s': '%s'", name, f[name])
	}
	b.WriteByte('}')
	return b.String()
}

func (f Failures) merge(other Failures) Failures {
	out := make(Failures, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
