package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "PENDING"
	StatusOpen      ReservationStatus = "OPEN"
	StatusConfirmed ReservationStatus = "CONFIRMED"
	StatusExpired   ReservationStatus = "EXPIRED"
)

// Terminal reports whether no further transition is possible from s.
func (s ReservationStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusExpired
}

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAdmin    Role = "ADMIN"
)

type Movie struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Event is a single showing of a movie with a fixed seat capacity.
type Event struct {
	ID         int64     `json:"id"`
	MovieID    int64     `json:"movie_id"`
	MovieTitle string    `json:"movie_title"`
	Capacity   int       `json:"capacity"`
	StartsAt   time.Time `json:"starts_at"`
}

type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Reservation is a request for Seats seats on an event. ExpiresAt is set
// only while the reservation is OPEN.
type Reservation struct {
	ID        uuid.UUID
	EventID   int64
	UserID    int64
	Seats     int
	Status    ReservationStatus
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Lapsed reports whether r is an OPEN hold whose deadline has passed at now.
func (r *Reservation) Lapsed(now time.Time) bool {
	return r.Status == StatusOpen && r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// ReservationView is the read model handed to callers. Rank is the 1-based
// position of a PENDING reservation in its event's waitlist, and zero for
// any other status.
type ReservationView struct {
	ID        uuid.UUID         `json:"id"`
	EventID   int64             `json:"event_id"`
	UserID    int64             `json:"user_id"`
	Seats     int               `json:"seats"`
	Status    ReservationStatus `json:"status"`
	Rank      int               `json:"rank"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Caller identifies who is asking for a reservation.
type Caller struct {
	UserID int64
	Admin  bool
}

type EventCounts struct {
	EventID   int64 `json:"event_id"`
	Capacity  int   `json:"capacity"`
	Used      int   `json:"used"`
	Remaining int   `json:"remaining"`
	Pending   int   `json:"pending"`
	Open      int   `json:"open"`
	Confirmed int   `json:"confirmed"`
	Expired   int   `json:"expired"`
}
