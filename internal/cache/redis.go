package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matheus3301/wisp/internal/store"
)

const windowPrefix = "wisp:window:"

// Redis is a Cache backed by a Redis server, for deployments where
// several wispd instances should share warm channel windows. Entries
// expire server-side via TTL.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis creates a Redis-backed cache.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, channelKey string) (*Entry, error) {
	data, err := r.rdb.Get(ctx, windowPrefix+channelKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached window: %w", err)
	}
	var e Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		// Malformed entry, treat as a miss.
		_ = r.rdb.Del(ctx, windowPrefix+channelKey).Err()
		return nil, nil
	}
	return &e, nil
}

func (r *Redis) Put(ctx context.Context, channelKey string, msgs []store.Message) error {
	data, err := json.Marshal(Entry{Messages: msgs, SavedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal window: %w", err)
	}
	if err := r.rdb.Set(ctx, windowPrefix+channelKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("store window: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, channelKey string) error {
	if err := r.rdb.Del(ctx, windowPrefix+channelKey).Err(); err != nil {
		return fmt.Errorf("delete window: %w", err)
	}
	return nil
}
