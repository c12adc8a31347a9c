package overrides

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthChecker reports overrides as ready while Redis answers and the
// in-memory copy is fresher than maxAge. Past that, TTL expiry has started
// dropping overrides the authors still expect to apply.
type HealthChecker struct {
	client *redis.Client
	syncer *Syncer
	maxAge time.Duration
	now    func() time.Time
}

// NewHealthChecker checks client, and the freshness of syncer when it is not nil.
// A zero maxAge only requires that one sync has completed.
func NewHealthChecker(client *redis.Client, syncer *Syncer, maxAge time.Duration) *HealthChecker {
	return &HealthChecker{client: client, syncer: syncer, maxAge: maxAge, now: time.Now}
}

func (h *HealthChecker) Name() string {
	return "redis"
}

func (h *HealthChecker) Check(ctx context.Context) error {
	if h.syncer != nil {
		last := h.syncer.LastSuccess()
		if last.IsZero() {
			return errors.New("no override sync has completed")
		}
		if age := h.now().Sub(last); h.maxAge > 0 && age > h.maxAge {
			return fmt.Errorf("overrides last synced %s ago, limit %s", age.Truncate(time.Second), h.maxAge)
		}
	}
	if h.client == nil {
		return errors.New("redis client is nil")
	}
	return h.client.Ping(ctx).Err()
}
