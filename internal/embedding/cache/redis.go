package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// RedisKV stores cache entries as plain Redis strings.
type RedisKV struct {
	client rueidis.Client
	ttl    time.Duration
}

// NewRedisKV creates a KV over client. A zero ttl keeps entries forever.
func NewRedisKV(client rueidis.Client, ttl time.Duration) *RedisKV {
	return &RedisKV{client: client, ttl: ttl}
}

// Get returns ErrMiss for absent keys.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Do(ctx, r.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

// Set stores value, with EX when a ttl is configured.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	var cmd rueidis.Completed
	if r.ttl > 0 {
		cmd = r.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(r.ttl).Build()
	} else {
		cmd = r.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Build()
	}
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
