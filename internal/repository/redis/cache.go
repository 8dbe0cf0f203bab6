package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/kirinyoku/tix-queue/internal/domain"
)

// Cache holds the read models of an event: its summary and its
// availability counters. Redis failures degrade to a direct load.
type Cache struct {
	rdb    *redis.Client
	sf     singleflight.Group
	logger *slog.Logger
}

func NewCache(client *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{rdb: client, logger: logger}
}

// EventSummary returns the cached event, loading it with load on a miss.
func (c *Cache) EventSummary(
	ctx context.Context,
	eventID int64,
	ttl time.Duration,
	load func(ctx context.Context) (domain.Event, error),
) (domain.Event, error) {
	return readThrough(ctx, c, KeyEventSummary(eventID), ttl, load)
}

// Availability returns the cached counters of an event, loading them with
// load on a miss.
func (c *Cache) Availability(
	ctx context.Context,
	eventID int64,
	ttl time.Duration,
	load func(ctx context.Context) (domain.EventCounts, error),
) (domain.EventCounts, error) {
	return readThrough(ctx, c, KeyEventAvailability(eventID), ttl, load)
}

// InvalidateEvent drops every cached read model of the event.
func (c *Cache) InvalidateEvent(ctx context.Context, eventID int64) error {
	const op = "redisrepo.Cache.InvalidateEvent"

	if err := c.rdb.Del(ctx, KeyEventSummary(eventID), KeyEventAvailability(eventID)).Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// readThrough serves key from Redis or runs load once for all concurrent
// misses on that key. Undecodable entries count as misses.
func readThrough[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	load func(ctx context.Context) (T, error),
) (T, error) {
	if v, ok := lookup[T](ctx, c, key); ok {
		return v, nil
	}

	res, err, _ := c.sf.Do(key, func() (any, error) {
		if v, ok := lookup[T](ctx, c, key); ok {
			return v, nil
		}

		v, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if b, err := json.Marshal(v); err == nil {
			if err := c.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
				c.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
			}
		}

		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return res.(T), nil
}

func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T

	b, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return v, false
	case err != nil:
		c.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
		return v, false
	}

	if err := json.Unmarshal(b, &v); err != nil {
		_ = c.rdb.Del(ctx, key).Err()
		return v, false
	}

	return v, true
}
