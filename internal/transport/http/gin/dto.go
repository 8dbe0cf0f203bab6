package httpgin

import (
	"time"

	"github.com/kirinyoku/tix-queue/internal/domain"
)

type CreateReservationRequest struct {
	Seats int `json:"seats" binding:"required,gt=0"`
}

type CreateMovieRequest struct {
	Title string `json:"title" binding:"required"`
}

type CreateEventRequest struct {
	MovieID  int64  `json:"movie_id" binding:"required"`
	Capacity int    `json:"capacity" binding:"required,gt=0"`
	StartsAt string `json:"starts_at" binding:"required"`
}

type CreateUserRequest struct {
	Email string      `json:"email" binding:"required,email"`
	Role  domain.Role `json:"role" binding:"omitempty,oneof=CUSTOMER ADMIN"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateMovieResponse struct {
	MovieID int64 `json:"movie_id"`
}

type CreateEventResponse struct {
	EventID int64 `json:"event_id"`
}

type CreateUserResponse struct {
	UserID int64 `json:"user_id"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
