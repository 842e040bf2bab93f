package blog

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisOrphanCache shares the orphan list between service replicas.
// The list is stored as a JSON array under a single key without TTL, so
// it only changes through Set and Invalidate.
type RedisOrphanCache struct {
	client *redis.Client
	key    string
}

// NewRedisOrphanCache creates a Redis-backed cache. Key may be empty.
func NewRedisOrphanCache(client *redis.Client, key string) *RedisOrphanCache {
	if key == "" {
		key = "osmbc:orphan-blogs"
	}
	return &RedisOrphanCache{client: client, key: key}
}

func (r *RedisOrphanCache) Get(ctx context.Context) ([]string, bool, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return nil, false, err
	}
	return names, true, nil
}

func (r *RedisOrphanCache) Set(ctx context.Context, names []string) error {
	if names == nil {
		names = []string{}
	}
	b, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, b, 0).Err()
}

func (r *RedisOrphanCache) Invalidate(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
