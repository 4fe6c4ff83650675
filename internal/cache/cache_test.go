package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at localhost:6379: %v", err)
	}
	return New(rdb)
}

func TestSeenSet(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	sessionID := "test-session-seen"

	ok, err := c.HasSeen(ctx, sessionID, "what is 2 + 2")
	if err != nil {
		t.Fatalf("HasSeen: %v", err)
	}
	if ok {
		t.Fatalf("expected not seen yet")
	}

	if err := c.AddSeen(ctx, sessionID, "what is 2 + 2"); err != nil {
		t.Fatalf("AddSeen: %v", err)
	}

	ok, err = c.HasSeen(ctx, sessionID, "what is 2 + 2")
	if err != nil || !ok {
		t.Fatalf("expected seen after AddSeen, ok=%v err=%v", ok, err)
	}

	texts, err := c.SeenTexts(ctx, sessionID)
	if err != nil {
		t.Fatalf("SeenTexts: %v", err)
	}
	if len(texts) != 1 || texts[0] != "what is 2 + 2" {
		t.Errorf("unexpected seen texts: %v", texts)
	}
}

func TestPrecacheRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, ok, err := c.GetPrecache(ctx, 1, "sess1", BranchCorrect, 42)
	if err != nil {
		t.Fatalf("GetPrecache: %v", err)
	}
	if ok {
		t.Fatalf("expected no entry yet")
	}

	if err := c.PutPrecache(ctx, 1, "sess1", BranchCorrect, 42, `{"content":"2+2"}`); err != nil {
		t.Fatalf("PutPrecache: %v", err)
	}

	payload, ok, err := c.GetPrecache(ctx, 1, "sess1", BranchCorrect, 42)
	if err != nil || !ok {
		t.Fatalf("expected entry, ok=%v err=%v", ok, err)
	}
	if payload != `{"content":"2+2"}` {
		t.Errorf("unexpected payload: %s", payload)
	}

	if err := c.ClearPrecache(ctx, 1, "sess1", 42); err != nil {
		t.Fatalf("ClearPrecache: %v", err)
	}
	_, ok, err = c.GetPrecache(ctx, 1, "sess1", BranchCorrect, 42)
	if err != nil {
		t.Fatalf("GetPrecache after clear: %v", err)
	}
	if ok {
		t.Fatalf("expected entry cleared")
	}
}
