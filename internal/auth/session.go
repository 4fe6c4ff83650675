package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const activeSessionKeyFmt = "active_session:%d"

// SetActiveSession records sessionID as the learner's current active
// session. At-most-one active session per learner is a policy, not an
// invariant (spec §3) — callers overwrite the previous entry on a new
// start() rather than rejecting it.
func SetActiveSession(ctx context.Context, rdb *redis.Client, learnerID uint, sessionID string, duration time.Duration) error {
	key := fmt.Sprintf(activeSessionKeyFmt, learnerID)
	return rdb.Set(ctx, key, sessionID, duration).Err()
}

func GetActiveSession(ctx context.Context, rdb *redis.Client, learnerID uint) (string, error) {
	key := fmt.Sprintf(activeSessionKeyFmt, learnerID)
	return rdb.Get(ctx, key).Result()
}

func DeleteActiveSession(ctx context.Context, rdb *redis.Client, learnerID uint) error {
	key := fmt.Sprintf(activeSessionKeyFmt, learnerID)
	return rdb.Del(ctx, key).Err()
}
