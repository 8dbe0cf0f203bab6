package redisrepo

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-queue/internal/domain"
)

// unreachableCache points at a port nothing listens on.
func unreachableCache(t *testing.T) *Cache {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewCache(rdb, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCache_LoadsWhenRedisIsDown(t *testing.T) {
	c := unreachableCache(t)
	ctx := context.Background()

	var loads atomic.Int32
	ev, err := c.EventSummary(ctx, 7, time.Minute, func(context.Context) (domain.Event, error) {
		loads.Add(1)
		return domain.Event{ID: 7, MovieTitle: "Harakiri", Capacity: 30}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Harakiri", ev.MovieTitle)
	assert.EqualValues(t, 1, loads.Load())

	counts, err := c.Availability(ctx, 7, time.Minute, func(context.Context) (domain.EventCounts, error) {
		return domain.EventCounts{EventID: 7, Capacity: 30, Remaining: 30}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 30, counts.Remaining)

	assert.Error(t, c.InvalidateEvent(ctx, 7))
}

func TestCache_LoaderErrorIsReturned(t *testing.T) {
	c := unreachableCache(t)

	_, err := c.EventSummary(context.Background(), 7, time.Minute, func(context.Context) (domain.Event, error) {
		return domain.Event{}, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}
