package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-queue/internal/repository/memory"
	"github.com/kirinyoku/tix-queue/internal/service/reservation"
)

type stubReconciler struct {
	calls []int64
	err   error
}

func (r *stubReconciler) Reconcile(_ context.Context, eventID int64) error {
	r.calls = append(r.calls, eventID)
	return r.err
}

func TestService_GetEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	movieID, err := store.CreateMovie(ctx, "Ran")
	require.NoError(t, err)
	eventID, err := store.CreateEvent(ctx, movieID, 120, time.Date(2025, 7, 1, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	svc := New(store, nil, nil, Config{})

	ev, err := svc.GetEvent(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, "Ran", ev.MovieTitle)
	assert.Equal(t, 120, ev.Capacity)

	_, err = svc.GetEvent(ctx, eventID+1)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestService_Availability(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	movieID, err := store.CreateMovie(ctx, "Ran")
	require.NoError(t, err)
	eventID, err := store.CreateEvent(ctx, movieID, 10, time.Now())
	require.NoError(t, err)

	rec := &stubReconciler{}
	svc := New(store, nil, rec, Config{})

	counts, err := svc.Availability(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, []int64{eventID}, rec.calls)
	assert.Equal(t, 10, counts.Remaining)
	assert.Zero(t, counts.Used)

	rec.err = reservation.ErrEventNotFound
	_, err = svc.Availability(ctx, eventID+1)
	assert.ErrorIs(t, err, ErrEventNotFound)

	rec.err = errors.New("boom")
	_, err = svc.Availability(ctx, eventID)
	assert.EqualError(t, errors.Unwrap(err), "boom")
}
