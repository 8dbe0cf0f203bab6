package admin

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-queue/internal/domain"
	"github.com/kirinyoku/tix-queue/internal/repository/memory"
)

type countingPublisher struct{ events []int64 }

func (p *countingPublisher) PublishEventChanged(_ context.Context, eventID int64) error {
	p.events = append(p.events, eventID)
	return nil
}

func TestService_Catalogue(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pub := &countingPublisher{}
	svc := New(store, pub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := svc.CreateMovie(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyTitle)

	movieID, err := svc.CreateMovie(ctx, "Paris, Texas")
	require.NoError(t, err)

	_, err = svc.CreateEvent(ctx, movieID, 0, time.Now())
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = svc.CreateEvent(ctx, movieID+100, 10, time.Now())
	assert.ErrorIs(t, err, ErrMovieNotFound)

	eventID, err := svc.CreateEvent(ctx, movieID, 10, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []int64{eventID}, pub.events)

	ev, err := store.GetEvent(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, "Paris, Texas", ev.MovieTitle)
	assert.Equal(t, 10, ev.Capacity)
}

func TestService_CreateUser(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := New(store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	id, err := svc.CreateUser(ctx, "ann@example.com", "")
	require.NoError(t, err)

	u, err := store.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, u.Role)

	_, err = svc.CreateUser(ctx, "ANN@example.com", domain.RoleAdmin)
	assert.ErrorIs(t, err, ErrUserConflict)

	_, err = svc.CreateUser(ctx, "root@example.com", "ROOT")
	assert.ErrorIs(t, err, ErrInvalidRole)
}
