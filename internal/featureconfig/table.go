package featureconfig

import "slices"

// Table is the read-only set of loaded features, keyed by document key.
//
// Thread-Safety: a Table is never mutated after construction and may be
// shared by any number of goroutines.
type Table struct {
	features map[string]*Feature
	names    []string
}

// NewTable wraps already validated features.
func NewTable(features map[string]*Feature) *Table {
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	slices.Sort(names)

	if features == nil {
		features = make(map[string]*Feature)
	}
	return &Table{features: features, names: names}
}

// Get returns the named feature.
func (t *Table) Get(name string) (*Feature, bool) {
	f, ok := t.features[name]
	return f, ok
}

// Names returns every feature name in sorted order.
// The returned slice must not be modified.
func (t *Table) Names() []string {
	return t.names
}

// Len returns the number of loaded features.
func (t *Table) Len() int {
	return len(t.features)
}
