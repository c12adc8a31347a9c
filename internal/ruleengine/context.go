// Package ruleengine provides the evaluation primitives used by the decider:
// the request Context, compiled targeting trees and deterministic bucketing.
//
// Everything in this package is stateless or immutable after construction,
// so all values can be shared across goroutines without synchronization.
package ruleengine

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
)

// OtherFieldsKey is the context key holding free-form targeting attributes.
const OtherFieldsKey = "other_fields"

// fieldKind describes the JSON shape expected for a well-known context field.
type fieldKind int

const (
	kindString fieldKind = iota
	kindBool
	kindInteger
)

// identityFields lists the well-known context fields and their expected shape.
// Unknown top-level keys are accepted as-is and remain available to targeting.
var identityFields = map[string]fieldKind{
	"user_id":                  kindString,
	"device_id":                kindString,
	"canonical_url":            kindString,
	"locale":                   kindString,
	"country_code":             kindString,
	"origin_service":           kindString,
	"app_name":                 kindString,
	"oauth_client_id":          kindString,
	"user_is_employee":         kindBool,
	"logged_in":                kindBool,
	"build_number":             kindInteger,
	"cookie_created_timestamp": kindInteger,
}

// Context is the immutable, request-scoped data a decision is computed against.
// It is built once per call with NewContext and discarded afterwards.
type Context struct {
	fields map[string]any
	other  map[string]any
}

// NewContext validates the basic shape of the supplied fields and returns a Context.
// Only shape is checked here: whether a feature finds the fields it needs is
// decided later, during targeting and bucketing.
func NewContext(fields map[string]any) (*Context, error) {
	ctx := &Context{
		fields: make(map[string]any, len(fields)),
	}

	for key, value := range fields {
		if key == OtherFieldsKey {
			other, err := asObject(value)
			if err != nil {
				return nil, &ContextError{Field: key, Reason: err.Error()}
			}
			ctx.other = other
			continue
		}

		if kind, known := identityFields[key]; known && value != nil {
			if err := checkKind(kind, value); err != nil {
				return nil, &ContextError{Field: key, Reason: err.Error()}
			}
		}
		ctx.fields[key] = value
	}

	return ctx, nil
}

// Get returns the value of a field, checking top-level fields first and
// other_fields second. Explicit nulls are reported as absent.
func (c *Context) Get(field string) (any, bool) {
	if c == nil {
		return nil, false
	}
	if v, ok := c.fields[field]; ok && v != nil {
		return v, true
	}
	if v, ok := c.other[field]; ok && v != nil {
		return v, true
	}
	return nil, false
}

// Identifier resolves the bucketing identifier named by bucketVal and renders it
// as the string that is hashed and written to events.
func (c *Context) Identifier(bucketVal string) (string, error) {
	v, ok := c.Get(bucketVal)
	if !ok {
		return "", &MissingFieldError{Field: bucketVal, BucketVal: bucketVal}
	}

	s, ok := identifierString(v)
	if !ok {
		return "", &ContextError{Field: bucketVal, Reason: fmt.Sprintf("%T cannot be used as a bucketing identifier", v)}
	}

	// Empty strings cannot be hashed reliably for distribution.
	if s == "" {
		return "", &MissingFieldError{Field: bucketVal, BucketVal: bucketVal}
	}

	return s, nil
}

// Fields returns a copy of the top-level fields, including other_fields.
func (c *Context) Fields() map[string]any {
	out := maps.Clone(c.fields)
	if out == nil {
		out = make(map[string]any)
	}
	if c.other != nil {
		out[OtherFieldsKey] = maps.Clone(c.other)
	}
	return out
}

func asObject(v any) (map[string]any, error) {
	switch obj := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return obj, nil
	default:
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
}

func checkKind(kind fieldKind, v any) error {
	switch kind {
	case kindString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected a string, got %T", v)
		}
	case kindBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected a boolean, got %T", v)
		}
	case kindInteger:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("expected an integer, got %v", v)
		}
	}
	return nil
}

// identifierString renders scalar JSON values the same way they appear in config files.
func identifierString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}
