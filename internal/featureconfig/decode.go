package featureconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// fieldError is a decoding error in the stable wording used in load failures,
// e.g. `invalid type: string "3248", expected u32`.
type fieldError struct {
	msg string
}

func (e *fieldError) Error() string { return e.msg }

func invalidType(raw json.RawMessage, expected string) error {
	return &fieldError{msg: fmt.Sprintf("invalid type: %s, expected %s", describe(raw), expected)}
}

func invalidValue(raw json.RawMessage, expected string) error {
	return &fieldError{msg: fmt.Sprintf("invalid value: %s, expected %s", describe(raw), expected)}
}

func missingField(name string) error {
	return &fieldError{msg: fmt.Sprintf("missing field `%s`", name)}
}

// describe renders a JSON literal the way load failures report unexpected input.
func describe(raw json.RawMessage) string {
	v, err := decodeAny(raw)
	if err != nil {
		return "malformed JSON"
	}

	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return fmt.Sprintf("boolean `%t`", t)
	case string:
		return fmt.Sprintf("string %q", t)
	case json.Number:
		s := t.String()
		if strings.ContainsAny(s, ".eE") {
			return fmt.Sprintf("floating point `%s`", s)
		}
		return fmt.Sprintf("integer `%s`", s)
	case []any:
		return "sequence"
	case map[string]any:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func decodeAny(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// object is a decoded JSON object with typed, wording-aware accessors.
// Fields are looked up by their JSON name; absent and null fields fall back to
// the zero value unless the accessor is a required one.
type object map[string]json.RawMessage

func parseObject(raw json.RawMessage, what string) (object, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, invalidType(raw, what)
	}

	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, &fieldError{msg: err.Error()}
	}
	return obj, nil
}

func (o object) has(name string) bool {
	raw, ok := o[name]
	return ok && !isNull(raw)
}

func (o object) requireU32(name string) (uint32, error) {
	if !o.has(name) {
		return 0, missingField(name)
	}
	return o.u32(name)
}

func (o object) u32(name string) (uint32, error) {
	n, err := o.unsigned(name, math.MaxUint32, "u32")
	return uint32(n), err
}

func (o object) u64(name string) (uint64, error) {
	return o.unsigned(name, math.MaxUint64, "u64")
}

func (o object) unsigned(name string, max uint64, expected string) (uint64, error) {
	raw, ok := o[name]
	if !ok || isNull(raw) {
		return 0, nil
	}

	v, err := decodeAny(raw)
	if err != nil {
		return 0, &fieldError{msg: err.Error()}
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, invalidType(raw, expected)
	}

	s := num.String()
	if strings.ContainsAny(s, ".eE") {
		return 0, invalidType(raw, expected)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n > max {
		return 0, invalidValue(raw, expected)
	}
	return n, nil
}

func (o object) requireString(name string) (string, error) {
	if !o.has(name) {
		return "", missingField(name)
	}
	return o.string(name)
}

func (o object) string(name string) (string, error) {
	raw, ok := o[name]
	if !ok || isNull(raw) {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalidType(raw, "a string")
	}
	return s, nil
}

func (o object) requireFloat(name string) (float64, error) {
	raw, ok := o[name]
	if !ok || isNull(raw) {
		return 0, missingField(name)
	}

	v, err := decodeAny(raw)
	if err != nil {
		return 0, &fieldError{msg: err.Error()}
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, invalidType(raw, "f64")
	}
	f, err := num.Float64()
	if err != nil {
		return 0, invalidValue(raw, "f64")
	}
	return f, nil
}

func (o object) bool(name string) (bool, error) {
	raw, ok := o[name]
	if !ok || isNull(raw) {
		return false, nil
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, invalidType(raw, "a boolean")
	}
	return b, nil
}

// positionalFields is the declaration order used when a feature is written as
// a JSON array instead of an object.
var positionalFields = []struct {
	name     string
	expected string
	accepts  func(v any) bool
}{
	{"id", "u32", isNumber},
	{"name", "a string", isString},
	{"enabled", "a boolean", isBool},
	{"version", "a string", isString},
	{"type", "a string", isString},
	{"start_ts", "u64", isNumber},
	{"stop_ts", "u64", isNumber},
	{"owner", "a string", isString},
	{"emit_event", "a boolean", isBool},
	{"experiment", "struct Experiment", isMap},
	{"value", "any valid JSON value", func(any) bool { return true }},
	{"value_type", "a string", isString},
}

// positionalError reports why an array cannot be read as a feature:
// the first element of the wrong type, or the array being too short.
func positionalError(raw json.RawMessage) error {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return &fieldError{msg: err.Error()}
	}

	for i, elem := range elems {
		if i >= len(positionalFields) {
			break
		}
		v, err := decodeAny(elem)
		if err != nil {
			return &fieldError{msg: err.Error()}
		}
		if !positionalFields[i].accepts(v) {
			return invalidType(elem, positionalFields[i].expected)
		}
	}

	return &fieldError{msg: fmt.Sprintf("invalid length %d, expected struct Feature with %d elements", len(elems), len(positionalFields))}
}

func isNumber(v any) bool {
	_, ok := v.(json.Number)
	return ok
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

func isMap(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}
