package overrides

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/decider/internal/decider"
	"github.com/rafaeljc/decider/internal/observability"
)

// ErrInvalidRecord is returned when an override record cannot be decoded.
var ErrInvalidRecord = errors.New("invalid override record")

// RedisSource reads and writes override records.
//
// Each feature owns one hash at prefix+feature. Hash fields are identifiers
// and hash values are JSON records: {"variant": "..."} for experiments or
// {"value": ...} for dynamic configs.
type RedisSource struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisSource creates a source over client. prefix is typically "decider:overrides:".
func NewRedisSource(client *redis.Client, prefix string, logger *slog.Logger) *RedisSource {
	if client == nil {
		panic("overrides: redis client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSource{client: client, prefix: prefix, logger: logger}
}

// Key returns the Redis hash key of feature.
func (s *RedisSource) Key(feature string) string {
	return s.prefix + feature
}

// FetchAll reads the override records of every feature in one pipelined round trip.
// Records that fail to decode are skipped and counted; a missing hash yields an empty set.
func (s *RedisSource) FetchAll(ctx context.Context, features []string) (map[string]map[string]decider.Override, error) {
	if len(features) == 0 {
		return map[string]map[string]decider.Override{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(features))
	for i, f := range features {
		cmds[i] = pipe.HGetAll(ctx, s.Key(f))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch overrides: %w", err)
	}

	out := make(map[string]map[string]decider.Override, len(features))
	for i, f := range features {
		raw := cmds[i].Val()
		records := make(map[string]decider.Override, len(raw))
		for identifier, payload := range raw {
			o, err := decodeRecord([]byte(payload))
			if err != nil {
				observability.OverridesInvalidTotal.Inc()
				s.logger.Warn("skipping override record",
					slog.String("feature", f),
					slog.String("identifier", identifier),
					slog.String("error", err.Error()),
				)
				continue
			}
			records[identifier] = o
		}
		out[f] = records
	}
	return out, nil
}

// Put stores the override of identifier on feature.
func (s *RedisSource) Put(ctx context.Context, feature, identifier string, o decider.Override) error {
	payload, err := encodeRecord(o)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.Key(feature), identifier, payload).Err(); err != nil {
		return fmt.Errorf("failed to store override for %q: %w", feature, err)
	}
	return nil
}

// Delete removes the override of identifier on feature. Deleting a missing record is not an error.
func (s *RedisSource) Delete(ctx context.Context, feature, identifier string) error {
	if err := s.client.HDel(ctx, s.Key(feature), identifier).Err(); err != nil {
		return fmt.Errorf("failed to delete override for %q: %w", feature, err)
	}
	return nil
}

type record struct {
	Variant string          `json:"variant,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
}

func decodeRecord(payload []byte) (decider.Override, error) {
	var r record
	if err := json.Unmarshal(payload, &r); err != nil {
		return decider.Override{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	hasValue := len(r.Value) > 0 && !bytes.Equal(r.Value, []byte("null"))
	if r.Variant == "" && !hasValue {
		return decider.Override{}, fmt.Errorf("%w: needs a variant or a value", ErrInvalidRecord)
	}

	o := decider.Override{Variant: r.Variant}
	if hasValue {
		// Numbers stay json.Number so integers survive beyond 2^53.
		dec := json.NewDecoder(bytes.NewReader(r.Value))
		dec.UseNumber()
		if err := dec.Decode(&o.Value); err != nil {
			return decider.Override{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		o.HasValue = true
	}
	return o, nil
}

func encodeRecord(o decider.Override) (string, error) {
	r := record{Variant: o.Variant}
	if o.HasValue {
		v, err := json.Marshal(o.Value)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		r.Value = v
	}
	if r.Variant == "" && r.Value == nil {
		return "", fmt.Errorf("%w: needs a variant or a value", ErrInvalidRecord)
	}

	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return string(b), nil
}
