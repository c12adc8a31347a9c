package ruleengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

const (
	// MaxTargetingDepth bounds the nesting of ALL/ANY/NOT nodes.
	// Evaluation cost is proportional to tree size, and deep trees are almost
	// always generated by mistake.
	MaxTargetingDepth = 32

	// MaxEQValues limits the number of values in a single EQ/NE predicate.
	// Large identifier lists belong in overrides, not in targeting.
	MaxEQValues = 10_000
)

// eqData is the JSON shape of EQ and NE predicates.
// Either Values or Value may be given.
type eqData struct {
	Field  string            `json:"field"`
	Values []json.RawMessage `json:"values"`
	Value  json.RawMessage   `json:"value"`
}

// compareData is the JSON shape of GT/GE/LT/LE predicates.
type compareData struct {
	Field string      `json:"field"`
	Value json.Number `json:"value"`
}

// CompileTargeting parses a targeting tree into an evaluable Node.
// This must be called once when features are loaded; evaluation never parses JSON.
// An empty or null message yields a nil Node (always eligible).
func CompileTargeting(raw json.RawMessage) (Node, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	return compileNode(raw, 1)
}

func compileNode(raw json.RawMessage, depth int) (Node, error) {
	if depth > MaxTargetingDepth {
		return nil, fmt.Errorf("%w: tree exceeds maximum depth %d", ErrInvalidTargeting, MaxTargetingDepth)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: expected an object with a single operator: %v", ErrInvalidTargeting, err)
	}
	if len(obj) != 1 {
		ops := make([]string, 0, len(obj))
		for op := range obj {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		return nil, fmt.Errorf("%w: expected exactly one operator, got %v", ErrInvalidTargeting, ops)
	}

	for op, body := range obj {
		switch op {
		case "ALL":
			children, err := compileChildren(op, body, depth)
			if err != nil {
				return nil, err
			}
			return &allNode{children: children}, nil
		case "ANY":
			children, err := compileChildren(op, body, depth)
			if err != nil {
				return nil, err
			}
			return &anyNode{children: children}, nil
		case "NOT":
			child, err := compileNode(body, depth+1)
			if err != nil {
				return nil, err
			}
			return &notNode{child: child}, nil
		case "EQ":
			return compileEQ(body, false)
		case "NE":
			return compileEQ(body, true)
		case string(opGT), string(opGE), string(opLT), string(opLE):
			return compileCompare(compareOp(op), body)
		default:
			return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidTargeting, op)
		}
	}

	// Unreachable: the map holds exactly one entry.
	return nil, fmt.Errorf("%w: empty node", ErrInvalidTargeting)
}

func compileChildren(op string, body json.RawMessage, depth int) ([]Node, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("%w: %s expects a list: %v", ErrInvalidTargeting, op, err)
	}

	children := make([]Node, 0, len(raws))
	for _, r := range raws {
		child, err := compileNode(r, depth+1)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// compileEQ turns the value list into a set keyed by canonical value.
func compileEQ(body json.RawMessage, negate bool) (Node, error) {
	op := "EQ"
	if negate {
		op = "NE"
	}

	var data eqData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: invalid %s data: %v", ErrInvalidTargeting, op, err)
	}
	if data.Field == "" {
		return nil, fmt.Errorf("%w: %s requires a field", ErrInvalidTargeting, op)
	}

	raws := data.Values
	if len(data.Value) > 0 {
		raws = append(raws, data.Value)
	}
	if len(raws) > MaxEQValues {
		return nil, fmt.Errorf("%w: %s on %q exceeds maximum size: %d > %d", ErrInvalidTargeting, op, data.Field, len(raws), MaxEQValues)
	}

	set := make(map[string]struct{}, len(raws))
	for _, r := range raws {
		v, err := decodeScalar(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %s on %q: %v", ErrInvalidTargeting, op, data.Field, err)
		}
		key, ok := valueKey(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s on %q accepts only strings, numbers and booleans", ErrInvalidTargeting, op, data.Field)
		}
		set[key] = struct{}{}
	}

	return &eqNode{field: data.Field, values: set, negate: negate}, nil
}

func compileCompare(op compareOp, body json.RawMessage) (Node, error) {
	var data compareData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: invalid %s data: %v", ErrInvalidTargeting, op, err)
	}
	if data.Field == "" {
		return nil, fmt.Errorf("%w: %s requires a field", ErrInvalidTargeting, op)
	}

	value, err := data.Value.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: %s on %q requires a numeric value", ErrInvalidTargeting, op, data.Field)
	}

	return &compareNode{field: data.Field, op: op, value: value}, nil
}

func decodeScalar(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
