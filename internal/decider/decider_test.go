package decider

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/decider/internal/ruleengine"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func fixedClock() time.Time { return fixedNow }

// recordingSink captures outcomes for assertions.
type recordingSink struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (s *recordingSink) RecordOutcome(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
}

func (s *recordingSink) last() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcomes[len(s.outcomes)-1]
}

func validCtx() map[string]any {
	return map[string]any{
		"user_id":                  "795244",
		"device_id":                "1234",
		"canonical_url":            "www.reddit.com",
		"locale":                   "us_en",
		"user_is_employee":         true,
		"logged_in":                nil,
		"app_name":                 "ios",
		"build_number":             1234,
		"country_code":             "UA",
		"origin_service":           "oss",
		"oauth_client_id":          "test",
		"cookie_created_timestamp": 1648859753,
	}
}

func fiveVariants() []any {
	return []any{
		map[string]any{"range_start": 0.0, "range_end": 0.2, "name": "control_1"},
		map[string]any{"range_start": 0.2, "range_end": 0.4, "name": "variant_2"},
		map[string]any{"range_start": 0.4, "range_end": 0.6, "name": "variant_3"},
		map[string]any{"range_start": 0.6, "range_end": 0.8, "name": "variant_4"},
		map[string]any{"range_start": 0.8, "range_end": 1.0, "name": "variant_5"},
	}
}

func rangeVariant(id int, name, bucketVal string) map[string]any {
	return map[string]any{
		"id":         id,
		"name":       name,
		"enabled":    true,
		"owner":      "test",
		"version":    "5",
		"type":       "range_variant",
		"start_ts":   0,
		"stop_ts":    2147483648,
		"emit_event": true,
		"experiment": map[string]any{
			"variants":           fiveVariants(),
			"experiment_version": 5,
			"shuffle_version":    91,
			"bucket_val":         bucketVal,
			"log_bucketing":      false,
		},
	}
}

func genexp0() map[string]any {
	return map[string]any{"genexp_0": rangeVariant(6299, "genexp_0", "user_id")}
}

func deviceIDExp() map[string]any {
	return map[string]any{"genexp_device_id": rangeVariant(6222, "genexp_device_id", "device_id")}
}

func canonicalURLExp() map[string]any {
	return map[string]any{"genexp_canonical_url": rangeVariant(6233, "genexp_canonical_url", "canonical_url")}
}

func additionalExps() map[string]any {
	return map[string]any{
		"exp_0": map[string]any{
			"id": 3248, "name": "exp_0", "enabled": true, "owner": "test", "version": "2",
			"type": "range_variant", "emit_event": true, "start_ts": 37173982, "stop_ts": 2147483648,
			"experiment": map[string]any{
				"variants": []any{
					map[string]any{"range_start": 0.0, "range_end": 0.2, "name": "control_1"},
					map[string]any{"range_start": 0.2, "range_end": 0.4, "name": "control_2"},
					map[string]any{"range_start": 0.4, "range_end": 0.6, "name": "variant_2"},
					map[string]any{"range_start": 0.6, "range_end": 0.8, "name": "variant_3"},
					map[string]any{"range_start": 0.8, "range_end": 1.0, "name": "variant_4"},
				},
				"experiment_version": 2, "shuffle_version": 91, "bucket_val": "user_id", "log_bucketing": false,
			},
		},
		"exp_1": map[string]any{
			"id": 3246, "name": "exp_1", "enabled": true, "owner": "test", "version": "2",
			"type": "range_variant", "emit_event": true, "start_ts": 37173982, "stop_ts": 2147483648,
			"experiment": map[string]any{
				"variants":           []any{map[string]any{"range_start": 0, "range_end": 0, "name": "variant_0"}},
				"experiment_version": 2, "shuffle_version": 0, "bucket_val": "user_id", "log_bucketing": false,
			},
		},
	}
}

func merge(docs ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, d := range docs {
		maps.Copy(out, d)
	}
	return out
}

func newTestDecider(t *testing.T, cfg map[string]any, opts ...Option) *Decider {
	t.Helper()

	data, err := json.Marshal(cfg)
	require.NoError(t, err, "test setup failed: could not marshal config")

	opts = append([]Option{WithClock(fixedClock)}, opts...)
	d, err := NewFromBytes(data, opts...)
	require.NoError(t, err)
	return d
}

func genexp0Decision() Decision {
	return Decision{
		Variant:        "variant_5",
		FeatureID:      6299,
		FeatureName:    "genexp_0",
		FeatureVersion: 5,
		Events:         []string{"0::::6299::::genexp_0::::5::::variant_5::::795244::::user_id::::0::::2147483648::::test"},
	}
}

func exp0Decision() Decision {
	return Decision{
		Variant:        "variant_3",
		FeatureID:      3248,
		FeatureName:    "exp_0",
		FeatureVersion: 2,
		Events:         []string{"0::::3248::::exp_0::::2::::variant_3::::795244::::user_id::::37173982::::2147483648::::test"},
	}
}

func exp1Decision() Decision {
	return Decision{FeatureID: 3246, FeatureName: "exp_1", FeatureVersion: 2, Events: []string{}}
}

func canonicalURLDecision() Decision {
	return Decision{
		Variant:        "control_1",
		FeatureID:      6233,
		FeatureName:    "genexp_canonical_url",
		FeatureVersion: 5,
		Events:         []string{"0::::6233::::genexp_canonical_url::::5::::control_1::::www.reddit.com::::canonical_url::::0::::2147483648::::test"},
	}
}

func TestNew_InitErrors(t *testing.T) {
	t.Parallel()

	t.Run("Should fail for a missing file", func(t *testing.T) {
		// Arrange
		sink := &recordingSink{}

		// Act
		d, err := NewFromFile(filepath.Join(t.TempDir(), "foo"), WithMetrics(sink))

		// Assert
		require.Error(t, err)
		assert.Nil(t, d)
		var initErr *InitError
		assert.True(t, errors.As(err, &initErr))
		assert.Equal(t, Outcome{Operation: OpInit, ErrorType: ErrTypeInitException, PkgVersion: Version}, sink.last())
	})

	t.Run("Should fail for a non-object document", func(t *testing.T) {
		_, err := NewFromBytes([]byte(`[1, 2]`))
		require.Error(t, err)
		assert.Equal(t, ErrTypeInitException, ErrorType(err))
	})

	t.Run("Should load a document from disk", func(t *testing.T) {
		// Arrange
		data, err := json.Marshal(genexp0())
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "cfg.json")
		require.NoError(t, os.WriteFile(path, data, 0o600))
		sink := &recordingSink{}

		// Act
		d, err := NewFromFile(path, WithMetrics(sink))

		// Assert
		require.NoError(t, err)
		assert.Nil(t, d.LoadErrors())
		assert.Equal(t, []string{"genexp_0"}, d.Features())
		assert.Equal(t, Outcome{Operation: OpInit, Success: true, PkgVersion: Version}, sink.last())
	})
}

func TestNew_PartialLoad(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     map[string]any
		wantLog string
	}{
		{
			name: "Should report a string id",
			cfg: map[string]any{"exp_0": map[string]any{
				"id": "3248", "name": "exp_0", "enabled": true, "type": "range_variant",
				"experiment": map[string]any{"variants": []any{}, "bucket_val": "user_id"},
			}},
			wantLog: `Partially loaded Decider: 1 features failed to load: {'exp_0': 'invalid type: string "3248", expected u32'}`,
		},
		{
			name:    "Should report a malformed entry next to a valid feature",
			cfg:     merge(genexp0(), map[string]any{"some_key": []any{1, 2, 3}}),
			wantLog: "Partially loaded Decider: 1 features failed to load: {'some_key': 'invalid type: integer `2`, expected a string'}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			var logBuf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelWarn}))
			sink := &recordingSink{}

			// Act
			d := newTestDecider(t, tt.cfg, WithLogger(logger), WithMetrics(sink))

			// Assert
			require.NotNil(t, d.LoadErrors())
			assert.Equal(t, tt.wantLog, d.LoadErrors().Error())
			assert.Contains(t, logBuf.String(), "level=WARN")
			assert.Contains(t, logBuf.String(), "Partially loaded Decider: 1 features failed to load")
			assert.Equal(t, Outcome{Operation: OpInit, ErrorType: ErrTypePartialInitException, PkgVersion: Version}, sink.last())
		})
	}

	t.Run("Should serve the valid features", func(t *testing.T) {
		t.Parallel()

		// Arrange
		d := newTestDecider(t, merge(genexp0(), map[string]any{"some_key": []any{1, 2, 3}}))

		// Act
		decision, err := d.Choose("genexp_0", validCtx())
		all, allErr := d.ChooseAll(validCtx(), "")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, genexp0Decision(), decision)
		require.NoError(t, allErr)
		assert.NotContains(t, all, "some_key")
	})
}

func TestChoose(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     map[string]any
		feature string
		ctx     func() map[string]any
		want    Decision
	}{
		{
			name:    "Should bucket on user_id",
			cfg:     genexp0(),
			feature: "genexp_0",
			ctx:     validCtx,
			want:    genexp0Decision(),
		},
		{
			name:    "Should bucket on device_id",
			cfg:     deviceIDExp(),
			feature: "genexp_device_id",
			ctx:     validCtx,
			want: Decision{
				Variant:        "variant_5",
				FeatureID:      6222,
				FeatureName:    "genexp_device_id",
				FeatureVersion: 5,
				Events:         []string{"0::::6222::::genexp_device_id::::5::::variant_5::::1234::::device_id::::0::::2147483648::::test"},
			},
		},
		{
			name:    "Should bucket on canonical_url",
			cfg:     canonicalURLExp(),
			feature: "genexp_canonical_url",
			ctx:     validCtx,
			want:    canonicalURLDecision(),
		},
		{
			name:    "Should bucket into the middle of a range set",
			cfg:     additionalExps(),
			feature: "exp_0",
			ctx:     validCtx,
			want:    exp0Decision(),
		},
		{
			name:    "Should assign nothing for 0% variants",
			cfg:     additionalExps(),
			feature: "exp_1",
			ctx:     validCtx,
			want:    exp1Decision(),
		},
		{
			name: "Should resolve a dynamic config value",
			cfg: map[string]any{"dc_bool": map[string]any{
				"id": 3393, "value": true, "type": "dynamic_config", "version": "2", "enabled": true,
				"owner": "test", "name": "dc_bool", "value_type": "Boolean",
				"experiment": map[string]any{"experiment_version": 2},
			}},
			feature: "dc_bool",
			ctx:     validCtx,
			want:    Decision{Value: true, FeatureID: 3393, FeatureName: "dc_bool", FeatureVersion: 2, Events: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			sink := &recordingSink{}
			d := newTestDecider(t, tt.cfg, WithMetrics(sink))

			// Act
			got, err := d.Choose(tt.feature, tt.ctx())

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, Outcome{Operation: OpChoose, Success: true, PkgVersion: Version}, sink.last())
		})
	}
}

func TestChoose_Determinism(t *testing.T) {
	t.Parallel()

	d := newTestDecider(t, genexp0())
	first, err := d.Choose("genexp_0", validCtx())
	require.NoError(t, err)

	for i := range 1000 {
		got, err := d.Choose("genexp_0", validCtx())
		require.NoError(t, err)
		assert.Equal(t, first.Variant, got.Variant, "variant flipped on iteration %d", i)
	}
}

func TestChoose_WithoutVariant(t *testing.T) {
	t.Parallel()

	// Arrange
	cfg := genexp0()
	exp := cfg["genexp_0"].(map[string]any)["experiment"].(map[string]any)
	exp["variants"] = []any{
		map[string]any{"name": "enabled", "size": 0, "range_end": 0, "range_start": 0},
		map[string]any{"name": "control_1", "size": 0, "range_end": 0, "range_start": 0},
	}
	d := newTestDecider(t, cfg)

	// Act
	got, err := d.Choose("genexp_0", validCtx())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, Decision{FeatureID: 6299, FeatureName: "genexp_0", FeatureVersion: 5, Events: []string{}}, got)
}

func TestChoose_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		cfg         map[string]any
		feature     string
		ctx         map[string]any
		wantMsg     string
		wantErrType string
		wantIs      error
	}{
		{
			name:        "Should reject a nil context",
			cfg:         genexp0(),
			feature:     "genexp_0",
			ctx:         nil,
			wantMsg:     "Missing `context` param for feature_name: genexp_0",
			wantErrType: ErrTypeMissingContext,
			wantIs:      ErrMissingContext,
		},
		{
			name:        "Should reject a malformed context",
			cfg:         genexp0(),
			feature:     "genexp_0",
			ctx:         map[string]any{"user_id": 795244},
			wantMsg:     `invalid context: invalid context field "user_id": expected a string, got int`,
			wantErrType: ErrTypeInvalidContext,
			wantIs:      ErrDecider,
		},
		{
			name:        "Should report unknown features",
			cfg:         map[string]any{},
			feature:     "any",
			ctx:         validCtx(),
			wantMsg:     `Feature "any" not found.`,
			wantErrType: ErrTypeFeatureNotFound,
		},
		{
			name:    "Should fail when device_id is missing",
			cfg:     deviceIDExp(),
			feature: "genexp_device_id",
			ctx: func() map[string]any {
				c := validCtx()
				delete(c, "device_id")
				return c
			}(),
			wantMsg:     `Missing field "device_id" in context for bucket_val = device_id`,
			wantErrType: ErrTypeDeciderException,
			wantIs:      ErrDecider,
		},
		{
			name:    "Should fail when canonical_url is missing",
			cfg:     canonicalURLExp(),
			feature: "genexp_canonical_url",
			ctx: func() map[string]any {
				c := validCtx()
				delete(c, "canonical_url")
				return c
			}(),
			wantMsg:     `Missing field "canonical_url" in context for bucket_val = canonical_url`,
			wantErrType: ErrTypeDeciderException,
			wantIs:      ErrDecider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			sink := &recordingSink{}
			d := newTestDecider(t, tt.cfg, WithMetrics(sink))

			// Act
			_, err := d.Choose(tt.feature, tt.ctx)

			// Assert
			require.Error(t, err)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, tt.wantErrType, ErrorType(err))
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			assert.Equal(t, Outcome{Operation: OpChoose, ErrorType: tt.wantErrType, PkgVersion: Version}, sink.last())
		})
	}

	t.Run("Should expose the missing field", func(t *testing.T) {
		d := newTestDecider(t, deviceIDExp())
		ctx := validCtx()
		delete(ctx, "device_id")

		_, err := d.Choose("genexp_device_id", ctx)

		var missing *ruleengine.MissingFieldError
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, "device_id", missing.Field)
	})
}

func TestChoose_Targeting(t *testing.T) {
	t.Parallel()

	// Arrange
	cfg := genexp0()
	exp := cfg["genexp_0"].(map[string]any)["experiment"].(map[string]any)
	exp["targeting"] = map[string]any{"ALL": []any{map[string]any{"EQ": map[string]any{"field": "foo", "values": []any{"bar"}}}}}
	d := newTestDecider(t, cfg)

	t.Run("Should bucket when targeting matches", func(t *testing.T) {
		ctx := validCtx()
		ctx["other_fields"] = map[string]any{"foo": "bar"}

		got, err := d.Choose("genexp_0", ctx)

		require.NoError(t, err)
		assert.Equal(t, genexp0Decision(), got)
	})

	t.Run("Should assign nothing when targeting misses", func(t *testing.T) {
		ctx := validCtx()
		ctx["other_fields"] = map[string]any{"foo": "huh"}

		got, err := d.Choose("genexp_0", ctx)

		require.NoError(t, err)
		assert.Equal(t, Decision{FeatureID: 6299, FeatureName: "genexp_0", FeatureVersion: 5, Events: []string{}}, got)
	})

	t.Run("Should not require the bucketing identifier when targeting misses", func(t *testing.T) {
		ctx := validCtx()
		delete(ctx, "user_id")
		ctx["other_fields"] = map[string]any{"foo": "huh"}

		_, err := d.Choose("genexp_0", ctx)

		assert.NoError(t, err)
	})
}

func TestChoose_ActiveWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(f map[string]any)
	}{
		{name: "Should assign nothing when disabled", mutate: func(f map[string]any) { f["enabled"] = false }},
		{name: "Should assign nothing before start_ts", mutate: func(f map[string]any) { f["start_ts"] = fixedNow.Unix() + 1 }},
		{name: "Should assign nothing after stop_ts", mutate: func(f map[string]any) { f["stop_ts"] = fixedNow.Unix() - 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			cfg := genexp0()
			tt.mutate(cfg["genexp_0"].(map[string]any))
			d := newTestDecider(t, cfg)

			// Act: the context lacks user_id, proving no bucketing happens.
			got, err := d.Choose("genexp_0", map[string]any{})

			// Assert
			require.NoError(t, err)
			assert.False(t, got.HasVariant())
			assert.Empty(t, got.Events)
		})
	}

	t.Run("Should treat stop_ts 0 as unbounded", func(t *testing.T) {
		cfg := genexp0()
		cfg["genexp_0"].(map[string]any)["stop_ts"] = 0
		d := newTestDecider(t, cfg)

		got, err := d.Choose("genexp_0", validCtx())

		require.NoError(t, err)
		assert.Equal(t, "variant_5", got.Variant)
		assert.Equal(t, "0::::6299::::genexp_0::::5::::variant_5::::795244::::user_id::::0::::0::::test", got.Events[0])
	})
}

func TestChoose_EmitEvent(t *testing.T) {
	t.Parallel()

	// Arrange
	cfg := genexp0()
	cfg["genexp_0"].(map[string]any)["emit_event"] = false
	d := newTestDecider(t, cfg)

	// Act
	got, err := d.Choose("genexp_0", validCtx())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "variant_5", got.Variant)
	assert.Empty(t, got.Events)
}

func TestChooseAll(t *testing.T) {
	t.Parallel()

	t.Run("Should return every range variant including no-variant decisions", func(t *testing.T) {
		// Arrange
		sink := &recordingSink{}
		d := newTestDecider(t, merge(genexp0(), additionalExps()), WithMetrics(sink))

		// Act
		got, err := d.ChooseAll(validCtx(), "")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, map[string]Decision{
			"genexp_0": genexp0Decision(),
			"exp_0":    exp0Decision(),
			"exp_1":    exp1Decision(),
		}, got)
		assert.Equal(t, Outcome{Operation: OpChooseAll, Success: true, PkgVersion: Version}, sink.last())
	})

	t.Run("Should filter on bucket_val", func(t *testing.T) {
		d := newTestDecider(t, merge(genexp0(), additionalExps(), canonicalURLExp()))

		got, err := d.ChooseAll(validCtx(), "canonical_url")

		require.NoError(t, err)
		assert.Equal(t, map[string]Decision{"genexp_canonical_url": canonicalURLDecision()}, got)
	})

	t.Run("Should exclude features missing their identifier", func(t *testing.T) {
		d := newTestDecider(t, merge(deviceIDExp(), additionalExps()))
		ctx := validCtx()
		delete(ctx, "device_id")

		got, err := d.ChooseAll(ctx, "")

		require.NoError(t, err)
		assert.Equal(t, map[string]Decision{"exp_0": exp0Decision(), "exp_1": exp1Decision()}, got)
	})

	t.Run("Should skip dynamic configs and inactive features", func(t *testing.T) {
		cfg := merge(genexp0(), additionalExps(), map[string]any{
			"dc": map[string]any{"id": 1, "name": "dc", "type": "dynamic_config", "enabled": true, "value": 1, "value_type": "Integer"},
		})
		cfg["exp_0"].(map[string]any)["enabled"] = false
		d := newTestDecider(t, cfg)

		got, err := d.ChooseAll(validCtx(), "")

		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"genexp_0", "exp_1"}, keys(got))
	})

	t.Run("Should reject a nil context", func(t *testing.T) {
		sink := &recordingSink{}
		d := newTestDecider(t, genexp0(), WithMetrics(sink))

		_, err := d.ChooseAll(nil, "")

		require.Error(t, err)
		assert.Equal(t, "Missing `context` param", err.Error())
		assert.Equal(t, Outcome{Operation: OpChooseAll, ErrorType: ErrTypeMissingContext, PkgVersion: Version}, sink.last())
	})
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestDecision_MarshalJSON(t *testing.T) {
	t.Parallel()

	t.Run("Should render a missing variant as null", func(t *testing.T) {
		data, err := json.Marshal(Decision{FeatureID: 1, FeatureName: "f", FeatureVersion: 2})
		require.NoError(t, err)
		assert.JSONEq(t, `{"variant": null, "value": null, "feature_id": 1, "feature_name": "f", "feature_version": 2, "events": []}`, string(data))
	})

	t.Run("Should render assigned variants and events", func(t *testing.T) {
		data, err := json.Marshal(genexp0Decision())
		require.NoError(t, err)
		assert.JSONEq(t, `{"variant": "variant_5", "value": null, "feature_id": 6299, "feature_name": "genexp_0", "feature_version": 5,
			"events": ["0::::6299::::genexp_0::::5::::variant_5::::795244::::user_id::::0::::2147483648::::test"]}`, string(data))
	})
}

func TestDecider_ConcurrentUse(t *testing.T) {
	t.Parallel()

	// Arrange
	d := newTestDecider(t, merge(genexp0(), additionalExps()))
	var wg sync.WaitGroup

	// Act & Assert: run with -race to catch shared-state mutation.
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				got, err := d.Choose("genexp_0", validCtx())
				assert.NoError(t, err)
				assert.Equal(t, "variant_5", got.Variant)

				_, err = d.ChooseAll(validCtx(), "")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}
