package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"feedsync/internal/cache"
	"feedsync/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each user's recent searches in a Redis list, most recent
// first.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore returns a store over client. A ttl of zero uses
// cache.RecentSearchesTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = cache.RecentSearchesTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Load returns the searches saved for userID.
func (s *RedisStore) Load(ctx context.Context, userID string) ([]models.RecentSearch, error) {
	raw, err := s.client.LRange(ctx, cache.RecentSearchesKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load recent searches: %w", err)
	}

	out := make([]models.RecentSearch, 0, len(raw))
	for _, entry := range raw {
		var rs models.RecentSearch
		if err := json.Unmarshal([]byte(entry), &rs); err != nil {
			// Skip entries written by an incompatible version.
			continue
		}
		out = append(out, rs)
	}
	return out, nil
}

// Save replaces the searches saved for userID and refreshes the expiry.
func (s *RedisStore) Save(ctx context.Context, userID string, searches []models.RecentSearch) error {
	key := cache.RecentSearchesKey(userID)

	values := make([]interface{}, 0, len(searches))
	for _, rs := range searches {
		b, err := json.Marshal(rs)
		if err != nil {
			return fmt.Errorf("encode recent search: %w", err)
		}
		values = append(values, string(b))
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save recent searches: %w", err)
	}
	return nil
}
