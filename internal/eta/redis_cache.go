package eta

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-booking/internal/models"
)

// RedisCache shares route durations between server replicas.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "route:", ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, from, to models.Coordinate) (time.Duration, bool) {
	v, err := r.client.Get(ctx, r.prefix+keyFor(from, to)).Result()
	if err != nil {
		// redis.Nil and connection errors both count as a miss
		return 0, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms < 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

func (r *RedisCache) Set(ctx context.Context, from, to models.Coordinate, d time.Duration) {
	_ = r.client.Set(ctx, r.prefix+keyFor(from, to), strconv.FormatInt(d.Milliseconds(), 10), r.ttl).Err()
}
