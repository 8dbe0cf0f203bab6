package admin

import (
	"errors"
)

var (
	ErrMovieNotFound   = errors.New("movie not found")
	ErrUserConflict    = errors.New("user with this email already exists")
	ErrInvalidCapacity = errors.New("capacity must be at least 1")
	ErrInvalidRole     = errors.New("unknown role")
	ErrEmptyTitle      = errors.New("title is required")
)
