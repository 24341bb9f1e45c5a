package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-booking/internal/models"
)

// RedisGeo implements Locator using Redis GEO commands.
type RedisGeo struct {
	client redis.UniversalClient
	key    string
}

func NewRedisGeo(client redis.UniversalClient, key string) *RedisGeo {
	return &RedisGeo{client: client, key: key}
}

func (r *RedisGeo) Upsert(ctx context.Context, loc models.DriverLocation) error {
	if err := loc.Position.Validate(); err != nil {
		return err
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now()
	}
	name := member(loc.DriverID)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: loc.Position.Longitude, Latitude: loc.Position.Latitude, Name: name})
		p.HSet(ctx, metaKey(name), "updated", loc.Timestamp.UTC().Format(time.RFC3339Nano))
		return nil
	})
	if err != nil {
		return fmt.Errorf("geo upsert driver %d: %w", loc.DriverID, err)
	}
	return nil
}

func (r *RedisGeo) Positions(ctx context.Context, driverIDs []int64) (map[int64]models.Coordinate, error) {
	out := make(map[int64]models.Coordinate, len(driverIDs))
	if len(driverIDs) == 0 {
		return out, nil
	}
	names := make([]string, len(driverIDs))
	for i, id := range driverIDs {
		names[i] = member(id)
	}
	res, err := r.client.GeoPos(ctx, r.key, names...).Result()
	if err != nil {
		return nil, fmt.Errorf("geo positions: %w", err)
	}
	for i, p := range res {
		if p == nil {
			continue
		}
		out[driverIDs[i]] = models.Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
	}
	return out, nil
}

// LastSeen reports when a driver last sent a position.
func (r *RedisGeo) LastSeen(ctx context.Context, driverID int64) (time.Time, bool, error) {
	v, err := r.client.HGet(ctx, metaKey(member(driverID)), "updated").Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}

func member(id int64) string { return strconv.FormatInt(id, 10) }

func metaKey(name string) string { return "driver:meta:" + name }
