// Package idempotency guards against duplicate webhook deliveries by
// claiming event identifiers in redis before any CRM mutation runs.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a claimed event id blocks redelivery. The
// sales platform retries within hours, not days.
const DefaultTTL = 24 * time.Hour

// Guard claims webhook event ids. A nil *Guard disables the check, so
// deployments without redis still process every delivery.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a guard from a redis URL. An empty URL returns nil (disabled).
func New(redisURL string, ttl time.Duration) (*Guard, error) {
	if redisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Guard{client: redis.NewClient(opts), ttl: ttl}, nil
}

// NewWithClient wraps an existing redis client. Used by tests.
func NewWithClient(client *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{client: client, ttl: ttl}
}

// Claim attempts to claim an event id. It returns true when this delivery is
// the first one seen; false means a duplicate. An empty id is never claimed,
// deliveries without an id are always processed.
func (g *Guard) Claim(ctx context.Context, eventID string) (bool, error) {
	if g == nil || eventID == "" {
		return true, nil
	}

	claimed, err := g.client.SetNX(ctx, "webhook:event:"+eventID, "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim event id: %w", err)
	}
	return claimed, nil
}

// Release frees a claimed event id so the platform's retry can reprocess a
// delivery that failed mid-flight.
func (g *Guard) Release(ctx context.Context, eventID string) error {
	if g == nil || eventID == "" {
		return nil
	}
	return g.client.Del(ctx, "webhook:event:"+eventID).Err()
}

// Close releases the underlying redis connection.
func (g *Guard) Close() error {
	if g == nil {
		return nil
	}
	return g.client.Close()
}
