package cache

import (
	"context"
	"errors"
	"time"

	"feedsync/internal/observability"

	"github.com/redis/go-redis/v9"
)

// FollowStatusCache remembers follow relationships for a short time so that
// opening a post menu does not always hit the user service. A nil client
// disables it.
type FollowStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewFollowStatusCache returns a cache over client. A ttl of zero uses FollowTTL.
func NewFollowStatusCache(client *redis.Client, ttl time.Duration) *FollowStatusCache {
	if ttl <= 0 {
		ttl = FollowTTL
	}
	return &FollowStatusCache{client: client, ttl: ttl}
}

// Get returns the cached follow state and whether it was present.
func (c *FollowStatusCache) Get(ctx context.Context, viewer, author string) (following, ok bool) {
	if c == nil || c.client == nil {
		return false, false
	}
	val, err := c.client.Get(ctx, FollowKey(viewer, author)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			observability.GlobalLogger.WarnContext(ctx, "follow cache read failed", "error", err)
		}
		return false, false
	}
	return val == "1", true
}

// Set stores the follow state.
func (c *FollowStatusCache) Set(ctx context.Context, viewer, author string, following bool) {
	if c == nil || c.client == nil {
		return
	}
	val := "0"
	if following {
		val = "1"
	}
	if err := c.client.Set(ctx, FollowKey(viewer, author), val, c.ttl).Err(); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "follow cache write failed", "error", err)
	}
}

// Invalidate drops the cached state.
func (c *FollowStatusCache) Invalidate(ctx context.Context, viewer, author string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, FollowKey(viewer, author))
}
