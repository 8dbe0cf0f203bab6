package amqptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-queue/internal/clock"
	"github.com/kirinyoku/tix-queue/internal/domain"
	"github.com/kirinyoku/tix-queue/internal/notify"
	"github.com/kirinyoku/tix-queue/internal/repository/memory"
	"github.com/kirinyoku/tix-queue/internal/service"
)

type env struct {
	h       *Handlers
	userID  int64
	movieID int64
	eventID int64
}

func newEnv(t *testing.T, capacity int) *env {
	t.Helper()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()

	movieID, err := store.CreateMovie(ctx, "Stalker")
	require.NoError(t, err)
	eventID, err := store.CreateEvent(ctx, movieID, capacity, time.Now().Add(time.Hour))
	require.NoError(t, err)
	userID, err := store.CreateUser(ctx, "viewer@example.com", domain.RoleCustomer)
	require.NoError(t, err)

	svcs := service.NewServices(service.Deps{
		Backend: store,
		Clock:   clock.NewMockClock(time.Now()),
		Sender:  notify.NewLogSender(logger),
		Logger:  logger,
	}, service.Config{})
	t.Cleanup(svcs.Reservation.Close)

	return &env{
		h:       NewHandlers(svcs.Reservation, logger),
		userID:  userID,
		movieID: movieID,
		eventID: eventID,
	}
}

func body(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandlers_Create(t *testing.T) {
	e := newEnv(t, 3)
	ctx := context.Background()

	r := e.h.Create(ctx, body(t, createRequest{UserID: e.userID, EventID: e.eventID, Seats: 2}))
	require.Equal(t, "success", r.Type)

	v, ok := r.Data.(*domain.ReservationView)
	require.True(t, ok)
	assert.Equal(t, domain.StatusOpen, v.Status)
	assert.Equal(t, 2, v.Seats)

	r = e.h.Create(ctx, body(t, createRequest{UserID: e.userID, EventID: e.eventID, Seats: 2}))
	assert.Equal(t, Reply{Type: "error", Message: "not enough seats"}, r)

	r = e.h.Create(ctx, body(t, createRequest{UserID: e.userID, EventID: e.eventID + 1, Seats: 1}))
	assert.Equal(t, Reply{Type: "error", Message: "event not found"}, r)

	r = e.h.Create(ctx, body(t, createRequest{UserID: e.userID + 100, EventID: e.eventID, Seats: 1}))
	assert.Equal(t, Reply{Type: "error", Message: "user not found"}, r)

	r = e.h.Create(ctx, []byte("{"))
	assert.Equal(t, "error", r.Type)
}

func TestHandlers_Lists(t *testing.T) {
	e := newEnv(t, 5)
	ctx := context.Background()

	for range 2 {
		r := e.h.Create(ctx, body(t, createRequest{UserID: e.userID, EventID: e.eventID, Seats: 1}))
		require.Equal(t, "success", r.Type)
	}

	r := e.h.ListByEvent(ctx, body(t, eventListRequest{EventID: e.eventID}))
	require.Equal(t, "success", r.Type)
	list := r.Data.([]domain.ReservationView)
	require.Len(t, list, 2)
	assert.Equal(t, domain.StatusOpen, list[0].Status)
	assert.Equal(t, 1, list[1].Rank)

	r = e.h.ListByMovie(ctx, body(t, movieListRequest{MovieID: e.movieID}))
	require.Equal(t, "success", r.Type)
	assert.Len(t, r.Data.([]domain.ReservationView), 2)

	r = e.h.ListByMovie(ctx, body(t, movieListRequest{MovieID: e.movieID + 1}))
	assert.Equal(t, Reply{Type: "error", Message: "movie not found"}, r)
}

func TestReply_JSON(t *testing.T) {
	b, err := json.Marshal(failure("not enough seats"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":"not enough seats"}`, string(b))
}
