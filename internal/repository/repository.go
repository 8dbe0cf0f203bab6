package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/tix-queue/internal/domain"
)

// Tx is the view of the store available inside a reservation transaction.
// LockEvent must be the first call: it serializes writers on the event.
type Tx interface {
	LockEvent(ctx context.Context, eventID int64) (*domain.Event, error)
	UsedSeats(ctx context.Context, eventID int64) (int, error)
	OpenHolds(ctx context.Context, eventID int64) ([]domain.Reservation, error)
	NextPending(ctx context.Context, eventID int64) (*domain.Reservation, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	InsertReservation(ctx context.Context, r *domain.Reservation) error
	UpdateReservation(ctx context.Context, r *domain.Reservation) error
}

// Store is the reservation storage used by the engine. Lists of
// reservations are ordered by creation time, ties broken by insertion order.
type Store interface {
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetEvent(ctx context.Context, id int64) (*domain.Event, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	ListReservationsByEvent(ctx context.Context, eventID int64) ([]domain.Reservation, error)
	ListEventIDsByMovie(ctx context.Context, movieID int64) ([]int64, error)
	ListOpenHolds(ctx context.Context) ([]domain.Reservation, error)
}

type Catalog interface {
	CreateMovie(ctx context.Context, title string) (int64, error)
	CreateEvent(ctx context.Context, movieID int64, capacity int, startsAt time.Time) (int64, error)
	CreateUser(ctx context.Context, email string, role domain.Role) (int64, error)
}

type Counter interface {
	EventCounts(ctx context.Context, eventID int64) (*domain.EventCounts, error)
}

// Backend is everything a storage driver provides.
type Backend interface {
	Store
	Catalog
	Counter
}
