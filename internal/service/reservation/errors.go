package reservation

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

var (
	ErrEventNotFound       = fmt.Errorf("event %w", ErrNotFound)
	ErrMovieNotFound       = fmt.Errorf("movie %w", ErrNotFound)
	ErrReservationNotFound = fmt.Errorf("reservation %w", ErrNotFound)
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)

	ErrCapacityExceeded = errors.New("not enough seats left")
	ErrNotYetOpen       = errors.New("reservation is still waiting for its turn")
	ErrAlreadyConfirmed = errors.New("reservation already confirmed")
	ErrAlreadyExpired   = errors.New("reservation expired")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidSeatCount = errors.New("seat count must be at least 1")
)
