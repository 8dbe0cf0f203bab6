package postgresrepo

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-queue/internal/domain"
	"github.com/kirinyoku/tix-queue/internal/repository"
	"github.com/kirinyoku/tix-queue/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	pool := testutil.NewTestPool(t)
	return NewStore(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seed(t *testing.T, s *Store, capacity int) (movieID, eventID, userID int64) {
	t.Helper()
	ctx := context.Background()

	movieID, err := s.CreateMovie(ctx, "Tokyo Story")
	require.NoError(t, err)
	eventID, err = s.CreateEvent(ctx, movieID, capacity, time.Now().Add(24*time.Hour).UTC().Truncate(time.Second))
	require.NoError(t, err)
	userID, err = s.CreateUser(ctx, "ozu@example.com", domain.RoleCustomer)
	require.NoError(t, err)

	return movieID, eventID, userID
}

func newReservation(eventID, userID int64, seats int, status domain.ReservationStatus, at time.Time) *domain.Reservation {
	r := &domain.Reservation{
		ID:        uuid.New(),
		EventID:   eventID,
		UserID:    userID,
		Seats:     seats,
		Status:    status,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if status == domain.StatusOpen {
		exp := at.Add(time.Minute)
		r.ExpiresAt = &exp
	}
	return r
}

func TestStore_Catalog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	movieID, eventID, userID := seed(t, s, 40)

	ev, err := s.GetEvent(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, movieID, ev.MovieID)
	assert.Equal(t, "Tokyo Story", ev.MovieTitle)
	assert.Equal(t, 40, ev.Capacity)

	u, err := s.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, u.Role)

	_, err = s.CreateUser(ctx, "OZU@example.com", domain.RoleAdmin)
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = s.CreateEvent(ctx, movieID+100, 10, time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.GetEvent(ctx, eventID+100)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	ids, err := s.ListEventIDsByMovie(ctx, movieID)
	require.NoError(t, err)
	assert.Equal(t, []int64{eventID}, ids)

	_, err = s.ListEventIDsByMovie(ctx, movieID+100)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_TxLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, eventID, userID := seed(t, s, 10)

	now := time.Now().UTC().Truncate(time.Microsecond)
	open := newReservation(eventID, userID, 3, domain.StatusOpen, now)
	first := newReservation(eventID, userID, 2, domain.StatusPending, now.Add(time.Millisecond))
	second := newReservation(eventID, userID, 1, domain.StatusPending, now.Add(2*time.Millisecond))
	gone := newReservation(eventID, userID, 4, domain.StatusExpired, now.Add(3*time.Millisecond))

	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ev, err := tx.LockEvent(ctx, eventID)
		require.NoError(t, err)
		assert.Equal(t, 10, ev.Capacity)

		for _, r := range []*domain.Reservation{open, first, second, gone} {
			require.NoError(t, tx.InsertReservation(ctx, r))
		}

		used, err := tx.UsedSeats(ctx, eventID)
		require.NoError(t, err)
		assert.Equal(t, 6, used)

		holds, err := tx.OpenHolds(ctx, eventID)
		require.NoError(t, err)
		require.Len(t, holds, 1)
		assert.Equal(t, open.ID, holds[0].ID)

		next, err := tx.NextPending(ctx, eventID)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, first.ID, next.ID)

		return nil
	})
	require.NoError(t, err)

	list, err := s.ListReservationsByEvent(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, []uuid.UUID{open.ID, first.ID, second.ID, gone.ID},
		[]uuid.UUID{list[0].ID, list[1].ID, list[2].ID, list[3].ID})

	counts, err := s.EventCounts(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.EventCounts{
		EventID: eventID, Capacity: 10, Used: 6, Remaining: 4,
		Pending: 2, Open: 1, Confirmed: 0, Expired: 1,
	}, *counts)

	holds, err := s.ListOpenHolds(ctx)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	require.NotNil(t, holds[0].ExpiresAt)
	assert.WithinDuration(t, *open.ExpiresAt, *holds[0].ExpiresAt, time.Millisecond)
}

func TestStore_SecondOpenHoldRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, eventID, userID := seed(t, s, 10)

	now := time.Now().UTC()
	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertReservation(ctx, newReservation(eventID, userID, 1, domain.StatusOpen, now))
	}))

	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertReservation(ctx, newReservation(eventID, userID, 1, domain.StatusOpen, now))
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestStore_RollbackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, eventID, userID := seed(t, s, 10)

	r := newReservation(eventID, userID, 1, domain.StatusPending, time.Now().UTC())
	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.InsertReservation(ctx, r))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = s.GetReservation(ctx, r.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
