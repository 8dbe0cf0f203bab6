package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirinyoku/tix-queue/internal/domain"
	"github.com/kirinyoku/tix-queue/internal/repository"
)

// EventPublisher announces catalogue changes to other instances.
type EventPublisher interface {
	PublishEventChanged(ctx context.Context, eventID int64) error
}

type Service struct {
	catalog   repository.Catalog
	publisher EventPublisher
	logger    *slog.Logger
}

// New builds the catalogue service. publisher may be nil.
func New(catalog repository.Catalog, publisher EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		catalog:   catalog,
		publisher: publisher,
		logger:    logger.With("component", "admin"),
	}
}

// CreateMovie creates a movie record and returns its ID.
func (s *Service) CreateMovie(ctx context.Context, title string) (int64, error) {
	const op = "service.admin.CreateMovie"

	title = strings.TrimSpace(title)
	if title == "" {
		return 0, fmt.Errorf("%s:%w", op, ErrEmptyTitle)
	}

	id, err := s.catalog.CreateMovie(ctx, title)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

// CreateEvent schedules a showing of a movie.
//
// Parameters:
//   - ctx: request-scoped context.
//   - movieID: ID of the movie being shown.
//   - capacity: number of seats, at least 1.
//   - startsAt: start of the showing.
//
// Returns:
//   - int64: the created event ID on success.
//   - error: admin.ErrInvalidCapacity if capacity < 1.
//   - error: admin.ErrMovieNotFound if the movie does not exist.
func (s *Service) CreateEvent(ctx context.Context, movieID int64, capacity int, startsAt time.Time) (int64, error) {
	const op = "service.admin.CreateEvent"

	if capacity < 1 {
		return 0, fmt.Errorf("%s:%w", op, ErrInvalidCapacity)
	}

	id, err := s.catalog.CreateEvent(ctx, movieID, capacity, startsAt)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("%s:%w", op, ErrMovieNotFound)
		}
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishEventChanged(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "publish event changed", "event_id", id, "error", err)
		}
	}

	return id, nil
}

// CreateUser registers a user. An empty role defaults to CUSTOMER.
//
// Returns:
//   - int64: the created user ID on success.
//   - error: admin.ErrInvalidRole if role is not CUSTOMER or ADMIN.
//   - error: admin.ErrUserConflict if the email is already registered.
func (s *Service) CreateUser(ctx context.Context, email string, role domain.Role) (int64, error) {
	const op = "service.admin.CreateUser"

	switch role {
	case "":
		role = domain.RoleCustomer
	case domain.RoleCustomer, domain.RoleAdmin:
	default:
		return 0, fmt.Errorf("%s:%w", op, ErrInvalidRole)
	}

	id, err := s.catalog.CreateUser(ctx, strings.TrimSpace(email), role)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return 0, fmt.Errorf("%s:%w", op, ErrUserConflict)
		}
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}
