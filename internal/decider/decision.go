package decider

import "encoding/json"

// Decision is the result of evaluating one feature for one context.
// An empty Variant means no variant was assigned; a nil Value means the
// feature is not a dynamic config or resolved to nothing.
type Decision struct {
	Variant        string   `json:"variant"`
	Value          any      `json:"value"`
	FeatureID      uint32   `json:"feature_id"`
	FeatureName    string   `json:"feature_name"`
	FeatureVersion uint32   `json:"feature_version"`
	Events         []string `json:"events"`
}

// HasVariant reports whether a variant was assigned.
func (d Decision) HasVariant() bool {
	return d.Variant != ""
}

// MarshalJSON renders a missing variant as null and missing events as [].
func (d Decision) MarshalJSON() ([]byte, error) {
	type wire struct {
		Variant        *string  `json:"variant"`
		Value          any      `json:"value"`
		FeatureID      uint32   `json:"feature_id"`
		FeatureName    string   `json:"feature_name"`
		FeatureVersion uint32   `json:"feature_version"`
		Events         []string `json:"events"`
	}

	w := wire{
		Value:          d.Value,
		FeatureID:      d.FeatureID,
		FeatureName:    d.FeatureName,
		FeatureVersion: d.FeatureVersion,
		Events:         d.Events,
	}
	if d.Variant != "" {
		w.Variant = &d.Variant
	}
	if w.Events == nil {
		w.Events = []string{}
	}
	return json.Marshal(w)
}
