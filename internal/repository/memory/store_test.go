package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-queue/internal/domain"
	"github.com/kirinyoku/tix-queue/internal/repository"
)

var epoch = time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC)

func seed(t *testing.T) (*Store, int64, int64) {
	t.Helper()
	ctx := context.Background()
	s := NewStore()

	movieID, err := s.CreateMovie(ctx, "Stalker")
	require.NoError(t, err)
	eventID, err := s.CreateEvent(ctx, movieID, 5, epoch)
	require.NoError(t, err)
	userID, err := s.CreateUser(ctx, "u@example.com", domain.RoleCustomer)
	require.NoError(t, err)

	return s, eventID, userID
}

func insert(t *testing.T, s *Store, r domain.Reservation) {
	t.Helper()
	err := s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertReservation(ctx, &r)
	})
	require.NoError(t, err)
}

func TestStore_RollbackOnError(t *testing.T) {
	s, eventID, userID := seed(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		r := domain.Reservation{ID: uuid.New(), EventID: eventID, UserID: userID, Seats: 1, Status: domain.StatusPending, CreatedAt: epoch}
		require.NoError(t, tx.InsertReservation(ctx, &r))
		return boom
	})
	require.ErrorIs(t, err, boom)

	list, err := s.ListReservationsByEvent(ctx, eventID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_OrderAndLedger(t *testing.T) {
	s, eventID, userID := seed(t)
	ctx := context.Background()

	first := domain.Reservation{ID: uuid.New(), EventID: eventID, UserID: userID, Seats: 2, Status: domain.StatusPending, CreatedAt: epoch}
	second := domain.Reservation{ID: uuid.New(), EventID: eventID, UserID: userID, Seats: 1, Status: domain.StatusPending, CreatedAt: epoch}
	expired := domain.Reservation{ID: uuid.New(), EventID: eventID, UserID: userID, Seats: 3, Status: domain.StatusExpired, CreatedAt: epoch.Add(-time.Hour)}
	insert(t, s, first)
	insert(t, s, second)
	insert(t, s, expired)

	list, err := s.ListReservationsByEvent(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, expired.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, second.ID, list[2].ID)

	err = s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		used, err := tx.UsedSeats(ctx, eventID)
		require.NoError(t, err)
		assert.Equal(t, 3, used)

		next, err := tx.NextPending(ctx, eventID)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, first.ID, next.ID)
		return nil
	})
	require.NoError(t, err)

	counts, err := s.EventCounts(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.EventCounts{EventID: eventID, Capacity: 5, Used: 3, Remaining: 2, Pending: 2, Expired: 1}, *counts)
}

func TestStore_NotFoundAndConflict(t *testing.T) {
	s, _, _ := seed(t)
	ctx := context.Background()

	_, err := s.GetEvent(ctx, 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.GetReservation(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.CreateEvent(ctx, 42, 1, epoch)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.CreateUser(ctx, "U@example.com", domain.RoleAdmin)
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = s.ListEventIDsByMovie(ctx, 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s, eventID, userID := seed(t)
	ctx := context.Background()

	exp := epoch.Add(time.Minute)
	r := domain.Reservation{ID: uuid.New(), EventID: eventID, UserID: userID, Seats: 1, Status: domain.StatusOpen, ExpiresAt: &exp, CreatedAt: epoch}
	insert(t, s, r)

	got, err := s.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	*got.ExpiresAt = epoch.Add(time.Hour)

	again, err := s.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, exp, *again.ExpiresAt)
}
