package featureconfig

import (
	"encoding/json"
	"math"
	"strconv"
)

// Coerce converts a value obtained outside the feature document (for example
// an override record) into the Go representation of vt. It reports false when
// the value cannot represent vt without loss.
func Coerce(vt ValueType, v any) (any, bool) {
	switch vt {
	case ValueBoolean:
		b, ok := v.(bool)
		return b, ok
	case ValueInteger:
		switch n := v.(type) {
		case int64:
			return n, true
		case int:
			return int64(n), true
		case float64:
			// -2^63 is exact in float64; 2^63 is the first value out of range.
			if n != math.Trunc(n) || n < -(1<<63) || n >= 1<<63 {
				return nil, false
			}
			return int64(n), true
		case json.Number:
			i, err := strconv.ParseInt(n.String(), 10, 64)
			return i, err == nil
		}
		return nil, false
	case ValueFloat:
		switch n := v.(type) {
		case float64:
			return n, true
		case int64:
			return float64(n), true
		case int:
			return float64(n), true
		case json.Number:
			f, err := n.Float64()
			return f, err == nil
		}
		return nil, false
	case ValueString:
		s, ok := v.(string)
		return s, ok
	case ValueMap:
		m, ok := v.(map[string]any)
		return m, ok
	default:
		return nil, false
	}
}

// CloneValue returns a deep copy of a decoded JSON value. Map and slice
// values handed to callers must not alias the loaded document.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = CloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}
