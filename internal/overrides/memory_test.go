package overrides

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/decider/internal/decider"
	"github.com/rafaeljc/decider/internal/testsupport"
)

func newStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(1000, 0)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestMemoryStore_Replace(t *testing.T) {
	t.Run("Should serve records after replace", func(t *testing.T) {
		// Arrange
		s := newStore(t)

		// Act
		rejected := s.Replace(map[string]map[string]decider.Override{
			"exp_a": {
				"u1": {Variant: "variant_1"},
				"u2": {Value: true, HasValue: true},
			},
		})

		// Assert
		assert.Zero(t, rejected)
		o, ok := s.Lookup("exp_a", "u1")
		require.True(t, ok)
		assert.Equal(t, "variant_1", o.Variant)

		o, ok = s.Lookup("exp_a", "u2")
		require.True(t, ok)
		assert.True(t, o.HasValue)
		assert.Equal(t, true, o.Value)
	})

	t.Run("Should drop identifiers missing from the new set", func(t *testing.T) {
		s := newStore(t)
		s.Replace(map[string]map[string]decider.Override{"exp_a": {"u1": {Variant: "a"}, "u2": {Variant: "b"}}})

		s.Replace(map[string]map[string]decider.Override{"exp_a": {"u2": {Variant: "c"}}})

		_, ok := s.Lookup("exp_a", "u1")
		assert.False(t, ok)
		o, ok := s.Lookup("exp_a", "u2")
		require.True(t, ok)
		assert.Equal(t, "c", o.Variant)
	})

	t.Run("Should drop features missing from the new set", func(t *testing.T) {
		s := newStore(t)
		s.Replace(map[string]map[string]decider.Override{
			"exp_a": {"u1": {Variant: "a"}},
			"exp_b": {"u1": {Variant: "b"}},
		})

		s.Replace(map[string]map[string]decider.Override{"exp_b": {"u1": {Variant: "b2"}}})

		_, ok := s.Lookup("exp_a", "u1")
		assert.False(t, ok)
		o, ok := s.Lookup("exp_b", "u1")
		require.True(t, ok)
		assert.Equal(t, "b2", o.Variant)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("Should replace many features in one call", func(t *testing.T) {
		s := newStore(t)
		records := make(map[string]map[string]decider.Override)
		for i := range 50 {
			records[fmt.Sprintf("exp_%d", i)] = map[string]decider.Override{
				"u1": {Variant: "a"},
				"u2": {Variant: "b"},
			}
		}
		s.Replace(records)

		delete(records, "exp_0")
		s.Replace(records)

		assert.Equal(t, 98, s.Len())
		_, ok := s.Lookup("exp_0", "u1")
		assert.False(t, ok)
	})

	t.Run("Should empty the store on a nil set", func(t *testing.T) {
		s := newStore(t)
		s.Replace(map[string]map[string]decider.Override{"exp_a": {"u1": {Variant: "a"}}})

		s.Replace(nil)

		assert.Zero(t, s.Len())
	})
}

func TestMemoryStore_LookupMetrics(t *testing.T) {
	s := newStore(t)
	s.Replace(map[string]map[string]decider.Override{"exp_a": {"u1": {Variant: "a"}}})

	testsupport.AssertMetricDelta(t, "decider_overrides_lookups_total", map[string]string{"result": "hit"}, 1, func() {
		s.Lookup("exp_a", "u1")
	})
	testsupport.AssertMetricDelta(t, "decider_overrides_lookups_total", map[string]string{"result": "miss"}, 1, func() {
		s.Lookup("exp_a", "nobody")
	})
}

func TestDecodeRecord(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    decider.Override
		wantErr bool
	}{
		{
			name:    "Should decode a variant record",
			payload: `{"variant": "variant_2"}`,
			want:    decider.Override{Variant: "variant_2"},
		},
		{
			name:    "Should decode a value record keeping integers exact",
			payload: `{"value": 9007199254740993}`,
			want:    decider.Override{Value: json.Number("9007199254740993"), HasValue: true},
		},
		{
			name:    "Should decode a map value",
			payload: `{"value": {"color": "red"}}`,
			want:    decider.Override{Value: map[string]any{"color": "red"}, HasValue: true},
		},
		{
			name:    "Should reject a record without variant or value",
			payload: `{}`,
			wantErr: true,
		},
		{
			name:    "Should reject a null value",
			payload: `{"value": null}`,
			wantErr: true,
		},
		{
			name:    "Should reject malformed JSON",
			payload: `variant_1`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRecord([]byte(tt.payload))

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRecord)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeRecord(t *testing.T) {
	t.Run("Should encode what decode reads back", func(t *testing.T) {
		payload, err := encodeRecord(decider.Override{Value: "blue", HasValue: true})
		require.NoError(t, err)
		assert.JSONEq(t, `{"value": "blue"}`, payload)
	})

	t.Run("Should refuse an empty override", func(t *testing.T) {
		_, err := encodeRecord(decider.Override{})
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})
}
