package testsupport

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/rafaeljc/decider/internal/config"
)

// RedisContainer is an override store backed by a throwaway container.
type RedisContainer struct {
	Container testcontainers.Container
	Endpoint  string
	Client    *redis.Client
}

// Terminate closes the client and removes the container.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	_ = c.Client.Close()
	return c.Container.Terminate(ctx)
}

// Reset drops every authored override so subtests start from an empty store.
func (c *RedisContainer) Reset(t *testing.T) {
	t.Helper()
	require.NoError(t, c.Client.FlushDB(context.Background()).Err())
}

// Config returns field-based settings pointing at the container, the same
// shape `decider serve` reads from DECIDER_REDIS_*.
func (c *RedisContainer) Config() *config.RedisConfig {
	host, port, _ := net.SplitHostPort(c.Endpoint)
	return &config.RedisConfig{
		Host:            host,
		Port:            port,
		PoolSize:        2,
		DialTimeout:     time.Second,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 64 * time.Millisecond,
		PingMaxRetries:  2,
		PingBackoff:     10 * time.Millisecond,
	}
}

// StartRedisContainer runs redis:7-alpine and returns a pinged client on DB 0.
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	ctr, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	uri, err := ctr.ConnectionString(ctx)
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to get redis connection string: %w", err)
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to parse redis connection string: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisContainer{
		Container: ctr,
		Endpoint:  opts.Addr,
		Client:    client,
	}, nil
}
