package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/tix-queue/internal/domain"
	"github.com/kirinyoku/tix-queue/internal/repository"
	redisrepo "github.com/kirinyoku/tix-queue/internal/repository/redis"
	"github.com/kirinyoku/tix-queue/internal/service/reservation"
)

type Config struct {
	EventSummaryTTL time.Duration
	AvailabilityTTL time.Duration
}

type Store interface {
	GetEvent(ctx context.Context, id int64) (*domain.Event, error)
	EventCounts(ctx context.Context, eventID int64) (*domain.EventCounts, error)
}

// Reconciler settles lapsed holds of an event before its counters are read.
type Reconciler interface {
	Reconcile(ctx context.Context, eventID int64) error
}

type Service struct {
	store      Store
	cache      *redisrepo.Cache
	reconciler Reconciler
	cfg        Config
}

// New builds the read-side service. cache may be nil, in which case every
// call goes to storage.
func New(store Store, cache *redisrepo.Cache, reconciler Reconciler, cfg Config) *Service {
	if cfg.EventSummaryTTL <= 0 {
		cfg.EventSummaryTTL = 60 * time.Second
	}

	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 15 * time.Second
	}

	return &Service{
		store:      store,
		cache:      cache,
		reconciler: reconciler,
		cfg:        cfg,
	}
}

// GetEvent retrieves an event by its ID, utilizing a caching layer to improve performance.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: ID of the event to retrieve.
//
// Returns:
//   - *domain.Event: the retrieved event, or nil if not found.
//   - error: query.ErrEventNotFound if the event is not found.
func (s *Service) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "service.query.GetEvent"

	load := func(ctx context.Context) (domain.Event, error) {
		e, err := s.store.GetEvent(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Event{}, ErrEventNotFound
			}

			return domain.Event{}, err
		}

		return *e, nil
	}

	var (
		event domain.Event
		err   error
	)
	if s.cache != nil {
		event, err = s.cache.EventSummary(ctx, id, s.cfg.EventSummaryTTL, load)
	} else {
		event, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &event, nil
}

// Availability returns the capacity counters of an event. Lapsed holds are
// expired before the counters are loaded, so remaining seats never include
// a hold that is already over.
//
// Parameters:
//   - ctx: request-scoped context.
//   - eventID: ID of the event.
//
// Returns:
//   - *domain.EventCounts: capacity, used and remaining seats plus per-status counts.
//   - error: query.ErrEventNotFound if the event is not found.
func (s *Service) Availability(ctx context.Context, eventID int64) (*domain.EventCounts, error) {
	const op = "service.query.Availability"

	load := func(ctx context.Context) (domain.EventCounts, error) {
		if s.reconciler != nil {
			if err := s.reconciler.Reconcile(ctx, eventID); err != nil {
				if errors.Is(err, reservation.ErrEventNotFound) {
					return domain.EventCounts{}, ErrEventNotFound
				}
				return domain.EventCounts{}, err
			}
		}

		ec, err := s.store.EventCounts(ctx, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.EventCounts{}, ErrEventNotFound
			}

			return domain.EventCounts{}, err
		}

		return *ec, nil
	}

	var (
		counts domain.EventCounts
		err    error
	)
	if s.cache != nil {
		counts, err = s.cache.Availability(ctx, eventID, s.cfg.AvailabilityTTL, load)
	} else {
		counts, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &counts, nil
}
