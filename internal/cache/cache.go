// Package cache holds the Redis-backed ephemeral state that sits outside
// the relational repository: the session dedup set and the dual pre-cache
// entries. Grounded on internal/auth/session.go's key-format-plus-thin-
// wrapper idiom (fmt.Sprintf key, one redis call per method).
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionSeenKeyFmt = "dedup:session:%s:seen"
	precacheKeyFmt    = "precache:%d:%s:%s:%d"

	// precacheTTL bounds how long a speculative entry can outlive the turn
	// that triggered it; pre-cache is an optimization, so a stale unclaimed
	// entry simply expires rather than leaking forever.
	precacheTTL = 10 * time.Minute
)

// Branch identifies which simulated outcome a pre-cache entry was
// generated under.
type Branch string

const (
	BranchCorrect Branch = "correct"
	BranchWrong   Branch = "wrong"
)

type Client struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// AddSeen records normalizedText as shown in this session (dedup set 1).
func (c *Client) AddSeen(ctx context.Context, sessionID, normalizedText string) error {
	key := fmt.Sprintf(sessionSeenKeyFmt, sessionID)
	return c.rdb.SAdd(ctx, key, normalizedText).Err()
}

// HasSeen reports whether normalizedText was already shown this session.
func (c *Client) HasSeen(ctx context.Context, sessionID, normalizedText string) (bool, error) {
	key := fmt.Sprintf(sessionSeenKeyFmt, sessionID)
	return c.rdb.SIsMember(ctx, key, normalizedText).Result()
}

// SeenTexts returns every normalized text shown this session, for use as
// part of the dedup prompt hint (exclusion set 3).
func (c *Client) SeenTexts(ctx context.Context, sessionID string) ([]string, error) {
	key := fmt.Sprintf(sessionSeenKeyFmt, sessionID)
	return c.rdb.SMembers(ctx, key).Result()
}

// PutPrecache stores a speculatively generated item payload (pre-serialized
// by the caller) under the (learner, session, branch, concept) key.
func (c *Client) PutPrecache(ctx context.Context, learnerID uint, sessionID string, branch Branch, conceptID uint, payload string) error {
	key := fmt.Sprintf(precacheKeyFmt, learnerID, sessionID, branch, conceptID)
	return c.rdb.Set(ctx, key, payload, precacheTTL).Err()
}

// GetPrecache returns the stored payload, if any, for the given key.
func (c *Client) GetPrecache(ctx context.Context, learnerID uint, sessionID string, branch Branch, conceptID uint) (string, bool, error) {
	key := fmt.Sprintf(precacheKeyFmt, learnerID, sessionID, branch, conceptID)
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// ClearPrecache removes both branch entries for a concept once the
// foreground turn has consumed (or rejected) them.
func (c *Client) ClearPrecache(ctx context.Context, learnerID uint, sessionID string, conceptID uint) error {
	correctKey := fmt.Sprintf(precacheKeyFmt, learnerID, sessionID, BranchCorrect, conceptID)
	wrongKey := fmt.Sprintf(precacheKeyFmt, learnerID, sessionID, BranchWrong, conceptID)
	return c.rdb.Del(ctx, correctKey, wrongKey).Err()
}
