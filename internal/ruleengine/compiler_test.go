package ruleengine

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustContext(t *testing.T, fields map[string]any) *Context {
	t.Helper()
	ctx, err := NewContext(fields)
	require.NoError(t, err)
	return ctx
}

func TestCompileTargeting_Empty(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "  ", "null"} {
		t.Run(fmt.Sprintf("Should yield nil tree for %q", raw), func(t *testing.T) {
			// Act
			node, err := CompileTargeting(json.RawMessage(raw))

			// Assert
			require.NoError(t, err)
			assert.Nil(t, node)
			assert.True(t, Evaluate(node, mustContext(t, map[string]any{})), "absent targeting must always be eligible")
		})
	}
}

func TestCompileTargeting_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		errorMsg string
	}{
		{name: "Should reject a bare list", raw: `[]`, errorMsg: "single operator"},
		{name: "Should reject two operators in one node", raw: `{"ALL": [], "ANY": []}`, errorMsg: "exactly one operator"},
		{name: "Should reject an empty object", raw: `{}`, errorMsg: "exactly one operator"},
		{name: "Should reject unknown operators", raw: `{"XOR": []}`, errorMsg: `unknown operator "XOR"`},
		{name: "Should reject ALL with an object body", raw: `{"ALL": {}}`, errorMsg: "ALL expects a list"},
		{name: "Should reject EQ without a field", raw: `{"EQ": {"values": ["a"]}}`, errorMsg: "EQ requires a field"},
		{name: "Should reject EQ with object values", raw: `{"EQ": {"field": "f", "values": [{}]}}`, errorMsg: "accepts only strings"},
		{name: "Should reject GT with a string value", raw: `{"GT": {"field": "f", "value": "ten"}}`, errorMsg: "invalid GT data"},
		{name: "Should reject nested invalid children", raw: `{"ANY": [{"NOT": {"LT": {"value": 3}}}]}`, errorMsg: "LT requires a field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			node, err := CompileTargeting(json.RawMessage(tt.raw))

			// Assert
			require.Error(t, err)
			assert.Nil(t, node)
			assert.ErrorIs(t, err, ErrInvalidTargeting)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestCompileTargeting_DepthLimit(t *testing.T) {
	t.Parallel()

	build := func(depth int) string {
		leaf := `{"EQ": {"field": "f", "value": 1}}`
		return strings.Repeat(`{"NOT": `, depth-1) + leaf + strings.Repeat(`}`, depth-1)
	}

	t.Run(fmt.Sprintf("at limit (%d)", MaxTargetingDepth), func(t *testing.T) {
		_, err := CompileTargeting(json.RawMessage(build(MaxTargetingDepth)))
		require.NoError(t, err)
	})

	t.Run(fmt.Sprintf("above limit (%d)", MaxTargetingDepth+1), func(t *testing.T) {
		_, err := CompileTargeting(json.RawMessage(build(MaxTargetingDepth + 1)))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "maximum depth")
	})
}

func TestCompileTargeting_EQSizeLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		size        int
		shouldError bool
	}{
		{name: fmt.Sprintf("at limit (%d)", MaxEQValues), size: MaxEQValues},
		{name: fmt.Sprintf("above limit (%d)", MaxEQValues+1), size: MaxEQValues + 1, shouldError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			values := make([]string, tt.size)
			for i := range tt.size {
				values[i] = fmt.Sprintf("user_%d", i)
			}
			valuesJSON, err := json.Marshal(values)
			require.NoError(t, err, "test setup failed: could not marshal values")

			raw := fmt.Sprintf(`{"EQ": {"field": "user_id", "values": %s}}`, valuesJSON)

			// Act
			_, err = CompileTargeting(json.RawMessage(raw))

			// Assert
			if tt.shouldError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "exceeds maximum size")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	ctx := mustContext(t, map[string]any{
		"user_id":          "795244",
		"build_number":     1234,
		"user_is_employee": true,
		"locale":           "us_en",
		"other_fields":     map[string]any{"foo": "bar", "karma": json.Number("10.5")},
	})

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{name: "Should match EQ on other_fields", raw: `{"ALL": [{"EQ": {"field": "foo", "values": ["bar"]}}]}`, want: true},
		{name: "Should miss EQ on a different value", raw: `{"ALL": [{"EQ": {"field": "foo", "values": ["huh"]}}]}`, want: false},
		{name: "Should accept the single value form", raw: `{"EQ": {"field": "locale", "value": "us_en"}}`, want: true},
		{name: "Should compare numbers numerically", raw: `{"EQ": {"field": "build_number", "values": [1234.0]}}`, want: true},
		{name: "Should not equate numbers and strings", raw: `{"EQ": {"field": "build_number", "values": ["1234"]}}`, want: false},
		{name: "Should match booleans", raw: `{"EQ": {"field": "user_is_employee", "value": true}}`, want: true},
		{name: "Should fail EQ on a missing field", raw: `{"EQ": {"field": "missing", "values": ["x"]}}`, want: false},
		{name: "Should pass NE on a different value", raw: `{"NE": {"field": "locale", "value": "fr"}}`, want: true},
		{name: "Should fail NE on a missing field", raw: `{"NE": {"field": "missing", "value": "fr"}}`, want: false},
		{name: "Should evaluate GT", raw: `{"GT": {"field": "build_number", "value": 1000}}`, want: true},
		{name: "Should evaluate GE at the boundary", raw: `{"GE": {"field": "build_number", "value": 1234}}`, want: true},
		{name: "Should evaluate LT on json numbers", raw: `{"LT": {"field": "karma", "value": 11}}`, want: true},
		{name: "Should evaluate LE", raw: `{"LE": {"field": "build_number", "value": 1233}}`, want: false},
		{name: "Should fail comparisons on non-numeric fields", raw: `{"GT": {"field": "locale", "value": 1}}`, want: false},
		{name: "Should treat empty ALL as true", raw: `{"ALL": []}`, want: true},
		{name: "Should treat empty ANY as false", raw: `{"ANY": []}`, want: false},
		{name: "Should negate with NOT", raw: `{"NOT": {"EQ": {"field": "foo", "value": "bar"}}}`, want: false},
		{
			name: "Should combine nested nodes",
			raw: `{"ANY": [
				{"EQ": {"field": "locale", "value": "fr"}},
				{"ALL": [{"GT": {"field": "build_number", "value": 1}}, {"NOT": {"EQ": {"field": "missing", "value": 1}}}]}
			]}`,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			node, err := CompileTargeting(json.RawMessage(tt.raw))
			require.NoError(t, err)

			// Act
			got := Evaluate(node, ctx)

			// Assert
			assert.Equal(t, tt.want, got)
		})
	}
}
