// Package featureconfig loads feature definitions from their JSON document
// into an immutable Table.
//
// Each feature is decoded and validated independently; one malformed feature
// never prevents the rest of the document from loading. Targeting trees are
// compiled and variants sorted here, so the decision path never parses JSON.
package featureconfig

import (
	"slices"

	"github.com/rafaeljc/decider/internal/ruleengine"
)

// Kind distinguishes bucketed experiments from static values.
type Kind string

const (
	KindRangeVariant  Kind = "range_variant"
	KindDynamicConfig Kind = "dynamic_config"
)

// ValueType is the declared type of a dynamic config value.
type ValueType string

const (
	ValueBoolean ValueType = "Boolean"
	ValueInteger ValueType = "Integer"
	ValueFloat   ValueType = "Float"
	ValueString  ValueType = "String"
	ValueMap     ValueType = "Map"
)

// ZeroValue returns the fallback used when a dynamic config cannot be resolved.
func (v ValueType) ZeroValue() any {
	switch v {
	case ValueBoolean:
		return false
	case ValueInteger:
		return int64(0)
	case ValueFloat:
		return float64(0)
	case ValueString:
		return ""
	case ValueMap:
		return map[string]any{}
	default:
		return nil
	}
}

// Variant is one named slice of the bucketing space.
type Variant struct {
	Name       string  `json:"name" validate:"required"`
	RangeStart float64 `json:"range_start" validate:"gte=0,lte=1"`
	RangeEnd   float64 `json:"range_end" validate:"gte=0,lte=1,gtefield=RangeStart"`
}

// Range returns the variant's slice of the unit interval.
func (v Variant) Range() ruleengine.Range {
	return ruleengine.Range{Start: v.RangeStart, End: v.RangeEnd}
}

// Override forces a variant (or a dynamic config value) for every context
// matching its targeting tree.
type Override struct {
	Variant   string
	Value     any
	HasValue  bool
	Targeting ruleengine.Node
}

// Experiment holds the bucketing parameters of a range_variant feature.
// Dynamic configs carry a reduced block with only ExperimentVersion,
// Targeting and Overrides.
type Experiment struct {
	Variants          []Variant `validate:"dive"`
	ExperimentVersion uint32
	ShuffleVersion    uint32
	BucketVal         string
	LogBucketing      bool
	HashFunc          ruleengine.HashFunc `validate:"omitempty,oneof=sha1 murmur3"`

	// Holdout names a range_variant feature; a context bucketed into any of its
	// variants is excluded from this experiment.
	Holdout string
	// MutexGroup names a range_variant feature whose variants are named after
	// its member experiments.
	MutexGroup string

	Overrides []Override
	Targeting ruleengine.Node

	ranges []ruleengine.Range
}

// Ranges returns the variant ranges in variant order (sorted by range start).
func (e *Experiment) Ranges() []ruleengine.Range {
	return e.ranges
}

// Feature is one validated, immutable feature definition.
type Feature struct {
	ID             uint32
	Name           string `validate:"required"`
	Enabled        bool
	Version        string
	FeatureVersion uint32
	Kind           Kind `validate:"oneof=range_variant dynamic_config"`
	StartTS        uint64
	StopTS         uint64
	Owner          string
	EmitEvent      bool

	Experiment *Experiment

	Value     any
	ValueType ValueType
}

// Active reports whether the feature is enabled and now (epoch seconds) falls
// inside its validity window. A zero StopTS means the window never closes.
func (f *Feature) Active(now int64) bool {
	if !f.Enabled {
		return false
	}
	if now < 0 || uint64(now) < f.StartTS {
		return false
	}
	if f.StopTS != 0 && uint64(now) > f.StopTS {
		return false
	}
	return true
}

// Seed returns the bucketing salt of a range_variant feature.
func (f *Feature) Seed() string {
	return ruleengine.Seed(f.ID, f.Name, f.Experiment.ShuffleVersion)
}

// Targeting returns the compiled targeting tree, nil when the feature has none.
func (f *Feature) Targeting() ruleengine.Node {
	if f.Experiment == nil {
		return nil
	}
	return f.Experiment.Targeting
}

// finalize sorts variants and caches their ranges.
func (f *Feature) finalize() {
	if f.Experiment == nil {
		return
	}
	slices.SortStableFunc(f.Experiment.Variants, func(a, b Variant) int {
		switch {
		case a.RangeStart < b.RangeStart:
			return -1
		case a.RangeStart > b.RangeStart:
			return 1
		default:
			return 0
		}
	})
	f.Experiment.ranges = make([]ruleengine.Range, len(f.Experiment.Variants))
	for i, v := range f.Experiment.Variants {
		f.Experiment.ranges[i] = v.Range()
	}
}
