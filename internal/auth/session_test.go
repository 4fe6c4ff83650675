package auth

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("no local redis available: %v", err)
	}
	return rdb, func() { rdb.FlushDB(context.Background()); rdb.Close() }
}

func TestActiveSessionRoundTrip(t *testing.T) {
	rdb, cleanup := newTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	if err := SetActiveSession(ctx, rdb, 42, "sess-1", time.Minute); err != nil {
		t.Fatalf("SetActiveSession: %v", err)
	}
	got, err := GetActiveSession(ctx, rdb, 42)
	if err != nil {
		t.Fatalf("GetActiveSession: %v", err)
	}
	if got != "sess-1" {
		t.Errorf("expected sess-1, got %q", got)
	}

	if err := DeleteActiveSession(ctx, rdb, 42); err != nil {
		t.Fatalf("DeleteActiveSession: %v", err)
	}
	if _, err := GetActiveSession(ctx, rdb, 42); err == nil {
		t.Errorf("expected error after delete")
	}
}
