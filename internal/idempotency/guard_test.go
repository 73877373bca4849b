package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestGuard(t *testing.T) (*Guard, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	return NewWithClient(client, time.Hour), srv
}

func TestClaimFirstDeliveryWins(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	first, err := guard.Claim(ctx, "evt-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Fatal("first delivery must claim the event id")
	}

	second, err := guard.Claim(ctx, "evt-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second {
		t.Fatal("duplicate delivery must not claim the event id")
	}
}

func TestClaimEmptyIDAlwaysProcesses(t *testing.T) {
	guard, _ := newTestGuard(t)

	for i := 0; i < 3; i++ {
		ok, err := guard.Claim(context.Background(), "")
		if err != nil || !ok {
			t.Fatalf("deliveries without an id must always process, got %v, %v", ok, err)
		}
	}
}

func TestNilGuardDisablesCheck(t *testing.T) {
	var guard *Guard

	ok, err := guard.Claim(context.Background(), "evt-123")
	if err != nil || !ok {
		t.Fatalf("nil guard must pass everything through, got %v, %v", ok, err)
	}
	if err := guard.Release(context.Background(), "evt-123"); err != nil {
		t.Fatalf("nil guard release should be a no-op, got %v", err)
	}
}

func TestReleaseAllowsRetry(t *testing.T) {
	guard, _ := newTestGuard(t)
	ctx := context.Background()

	if ok, _ := guard.Claim(ctx, "evt-9"); !ok {
		t.Fatal("initial claim failed")
	}
	if err := guard.Release(ctx, "evt-9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := guard.Claim(ctx, "evt-9"); !ok {
		t.Fatal("released event id must be claimable again")
	}
}

func TestClaimExpiresWithTTL(t *testing.T) {
	guard, srv := newTestGuard(t)
	ctx := context.Background()

	if ok, _ := guard.Claim(ctx, "evt-ttl"); !ok {
		t.Fatal("initial claim failed")
	}

	srv.FastForward(2 * time.Hour)

	if ok, _ := guard.Claim(ctx, "evt-ttl"); !ok {
		t.Fatal("expired claim must be claimable again")
	}
}
