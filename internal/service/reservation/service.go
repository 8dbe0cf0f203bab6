package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/tix-queue/internal/clock"
	"github.com/kirinyoku/tix-queue/internal/domain"
	"github.com/kirinyoku/tix-queue/internal/notify"
	"github.com/kirinyoku/tix-queue/internal/repository"
	"github.com/kirinyoku/tix-queue/internal/scheduler"
	"github.com/kirinyoku/tix-queue/internal/uow"
)

const (
	defaultHoldDuration = 60 * time.Second
	expireTimeout       = 10 * time.Second
	expireRetryDelay    = 5 * time.Second
)

type Config struct {
	HoldDuration time.Duration
}

// Publisher broadcasts reservation changes to other instances.
type Publisher interface {
	PublishEventChanged(ctx context.Context, eventID int64) error
	PublishHoldClosed(ctx context.Context, eventID int64, reservationID uuid.UUID) error
}

// Invalidator drops cached read models of an event.
type Invalidator interface {
	InvalidateEvent(ctx context.Context, eventID int64) error
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithInvalidator(c Invalidator) Option {
	return func(s *Service) { s.cache = c }
}

// Service admits reservations against event capacity and walks each
// event's waitlist one hold at a time.
type Service struct {
	store     repository.Store
	uow       *uow.UoW[repository.Tx]
	scheduler *scheduler.Scheduler
	clock     clock.Clock
	sender    notify.Sender
	publisher Publisher
	cache     Invalidator
	logger    *slog.Logger
	locks     *eventLocks
	cfg       Config
}

func New(
	store repository.Store,
	sched *scheduler.Scheduler,
	clk clock.Clock,
	sender notify.Sender,
	logger *slog.Logger,
	cfg Config,
	opts ...Option,
) *Service {
	if cfg.HoldDuration <= 0 {
		cfg.HoldDuration = defaultHoldDuration
	}

	s := &Service{
		store:     store,
		uow:       uow.NewUoW[repository.Tx](store),
		scheduler: sched,
		clock:     clk,
		sender:    sender,
		logger:    logger.With("component", "reservation"),
		locks:     newEventLocks(),
		cfg:       cfg,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Request places a reservation for seats on an event. The reservation joins
// the end of the event's waitlist and becomes the open hold right away when
// no other hold is open.
//
// Parameters:
//   - ctx: request-scoped context.
//   - eventID: ID of the event.
//   - userID: ID of the authenticated requester.
//   - seats: number of seats, at least 1.
//
// Returns:
//   - *domain.ReservationView: the stored reservation with its rank.
//   - error: reservation.ErrUnauthorized if there is no requester.
//   - error: reservation.ErrUserNotFound if userID is not a known user.
//   - error: reservation.ErrInvalidSeatCount if seats < 1.
//   - error: reservation.ErrEventNotFound if the event does not exist.
//   - error: reservation.ErrCapacityExceeded if the seats do not fit.
func (s *Service) Request(
	ctx context.Context,
	eventID, userID int64,
	seats int,
) (*domain.ReservationView, error) {
	const op = "service.reservation.Request"

	if _, err := s.authenticate(ctx, userID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if seats < 1 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidSeatCount)
	}

	var (
		id       uuid.UUID
		rejected bool
	)

	err := s.withEvent(ctx, eventID, func(ctx context.Context, m *mutation) error {
		rejected = false

		if _, err := s.sweep(ctx, m); err != nil {
			return err
		}

		ok, err := hasRoom(ctx, m, seats)
		if err != nil {
			return err
		}
		if !ok {
			// commit whatever the sweep released
			rejected = true
			return nil
		}

		res := domain.Reservation{
			ID:        uuid.New(),
			EventID:   eventID,
			UserID:    userID,
			Seats:     seats,
			Status:    domain.StatusPending,
			CreatedAt: m.now,
			UpdatedAt: m.now,
		}
		if err := m.tx.InsertReservation(ctx, &res); err != nil {
			return err
		}
		id = res.ID

		if err := s.promote(ctx, m); err != nil {
			return err
		}

		s.announce(m)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if rejected {
		return nil, fmt.Errorf("%s:%w", op, ErrCapacityExceeded)
	}

	s.logger.InfoContext(ctx, "reservation requested",
		"reservation_id", id,
		"event_id", eventID,
		"user_id", userID,
		"seats", seats,
	)

	return s.Format(ctx, id)
}

// Confirm turns the caller's open hold into a confirmed reservation and
// sends the confirmation email. A hold whose deadline has passed is expired
// instead, and the call reports reservation.ErrAlreadyExpired.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: ID of the reservation.
//   - userID: ID of the authenticated caller, who must own the reservation.
//
// Returns:
//   - *domain.ReservationView: the confirmed reservation.
//   - error: reservation.ErrUnauthorized if there is no requester.
//   - error: reservation.ErrUserNotFound if userID is not a known user.
//   - error: reservation.ErrReservationNotFound if it does not exist or is not owned by the caller.
//   - error: reservation.ErrNotYetOpen if it is still waiting.
//   - error: reservation.ErrAlreadyConfirmed or reservation.ErrAlreadyExpired if it is terminal.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, userID int64) (*domain.ReservationView, error) {
	const op = "service.reservation.Confirm"

	user, err := s.authenticate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, s.notFound(err, ErrReservationNotFound))
	}
	if r.UserID != userID {
		return nil, fmt.Errorf("%s:%w", op, ErrReservationNotFound)
	}

	var (
		lapsed bool
		event  domain.Event
		seats  int
	)

	err = s.withEvent(ctx, r.EventID, func(ctx context.Context, m *mutation) error {
		lapsed = false

		cur, err := m.tx.GetReservation(ctx, id)
		if err != nil {
			return s.notFound(err, ErrReservationNotFound)
		}

		switch cur.Status {
		case domain.StatusConfirmed:
			return ErrAlreadyConfirmed
		case domain.StatusExpired:
			return ErrAlreadyExpired
		case domain.StatusPending:
			return ErrNotYetOpen
		}

		if cur.Lapsed(m.now) {
			lapsed = true
			if err := s.expire(ctx, m, cur); err != nil {
				return err
			}
			s.announce(m)
			return nil
		}

		cur.Status = domain.StatusConfirmed
		cur.ExpiresAt = nil
		cur.UpdatedAt = m.now
		if err := m.tx.UpdateReservation(ctx, cur); err != nil {
			return err
		}
		s.holdClosed(m, cur)

		if err := s.promote(ctx, m); err != nil {
			return err
		}
		s.announce(m)

		event = *m.event
		seats = cur.Seats

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if lapsed {
		return nil, fmt.Errorf("%s:%w", op, ErrAlreadyExpired)
	}

	s.logger.InfoContext(ctx, "reservation confirmed",
		"reservation_id", id,
		"event_id", event.ID,
		"user_id", userID,
	)

	s.notifyConfirmed(ctx, user, event, seats)

	return s.Format(ctx, id)
}

// Expire closes an open hold whose deadline has passed and hands the turn
// to the next waiting reservation. It is a no-op for reservations that are
// not open, and re-arms the timer of a hold that has not lapsed yet.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) error {
	const op = "service.reservation.Expire"

	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return fmt.Errorf("%s:%w", op, s.notFound(err, ErrReservationNotFound))
	}
	if r.Status != domain.StatusOpen {
		return nil
	}

	err = s.withEvent(ctx, r.EventID, func(ctx context.Context, m *mutation) error {
		cur, err := m.tx.GetReservation(ctx, id)
		if err != nil {
			return s.notFound(err, ErrReservationNotFound)
		}
		if cur.Status != domain.StatusOpen {
			return nil
		}

		if !cur.Lapsed(m.now) {
			expiresAt := *cur.ExpiresAt
			m.after(func(context.Context) { s.arm(id, expiresAt) })
			return nil
		}

		if err := s.expire(ctx, m, cur); err != nil {
			return err
		}
		s.announce(m)

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Reconcile expires the event's hold if its deadline has passed.
func (s *Service) Reconcile(ctx context.Context, eventID int64) error {
	const op = "service.reservation.Reconcile"

	err := s.withEvent(ctx, eventID, func(ctx context.Context, m *mutation) error {
		swept, err := s.sweep(ctx, m)
		if err != nil {
			return err
		}
		if swept {
			s.announce(m)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// GetReservation returns a reservation visible to the caller: its owner or
// an administrator. Anyone else gets reservation.ErrReservationNotFound.
// Live reservations settle their event first, so a lapsed hold ahead of
// them is never reported as still blocking the line.
func (s *Service) GetReservation(
	ctx context.Context,
	id uuid.UUID,
	caller domain.Caller,
) (*domain.ReservationView, error) {
	const op = "service.reservation.GetReservation"

	if caller.UserID <= 0 && !caller.Admin {
		return nil, fmt.Errorf("%s:%w", op, ErrUnauthorized)
	}

	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, s.notFound(err, ErrReservationNotFound))
	}

	if !caller.Admin && r.UserID != caller.UserID {
		return nil, fmt.Errorf("%s:%w", op, ErrReservationNotFound)
	}

	if !r.Status.Terminal() {
		if err := s.Reconcile(ctx, r.EventID); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	v, err := s.Format(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return v, nil
}

// Format renders the current state of a reservation with a freshly
// computed waitlist rank.
func (s *Service) Format(ctx context.Context, id uuid.UUID) (*domain.ReservationView, error) {
	const op = "service.reservation.Format"

	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, s.notFound(err, ErrReservationNotFound))
	}

	rank := 0
	if r.Status == domain.StatusPending {
		list, err := s.store.ListReservationsByEvent(ctx, r.EventID)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		rank = rankIn(list, r.ID)
	}

	v := view(*r, rank)

	return &v, nil
}

// ListByEvent lists every reservation of an event in creation order.
//
// Returns:
//   - []domain.ReservationView: reservations with their ranks, possibly empty.
//   - error: reservation.ErrEventNotFound if the event does not exist.
func (s *Service) ListByEvent(ctx context.Context, eventID int64) ([]domain.ReservationView, error) {
	const op = "service.reservation.ListByEvent"

	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, s.notFound(err, ErrEventNotFound))
	}

	list, err := s.store.ListReservationsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if anyLapsed(list, s.clock.Now()) {
		if err := s.Reconcile(ctx, eventID); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if list, err = s.store.ListReservationsByEvent(ctx, eventID); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	return views(list), nil
}

// ListByMovie lists the reservations of every showing of a movie, grouped
// by event in ascending event ID order.
func (s *Service) ListByMovie(ctx context.Context, movieID int64) ([]domain.ReservationView, error) {
	const op = "service.reservation.ListByMovie"

	ids, err := s.store.ListEventIDsByMovie(ctx, movieID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, s.notFound(err, ErrMovieNotFound))
	}

	out := []domain.ReservationView{}
	for _, eventID := range ids {
		vs, err := s.ListByEvent(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		out = append(out, vs...)
	}

	return out, nil
}

// RearmOpenHolds restores expiry timers for holds that are open in storage,
// typically after a restart. Holds already past their deadline are expired
// on the spot.
func (s *Service) RearmOpenHolds(ctx context.Context) (int, error) {
	const op = "service.reservation.RearmOpenHolds"

	holds, err := s.store.ListOpenHolds(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	now := s.clock.Now()
	for _, h := range holds {
		if h.Lapsed(now) {
			if err := s.Expire(ctx, h.ID); err != nil {
				return 0, fmt.Errorf("%s:%w", op, err)
			}
			continue
		}
		s.arm(h.ID, *h.ExpiresAt)
	}

	return len(holds), nil
}

// DropTimer cancels the local expiry timer of a hold closed elsewhere.
func (s *Service) DropTimer(id uuid.UUID) {
	s.scheduler.Cancel(id)
}

// Close stops all pending expiry timers.
func (s *Service) Close() {
	s.scheduler.Stop()
}

func (s *Service) withEvent(
	ctx context.Context,
	eventID int64,
	fn func(ctx context.Context, m *mutation) error,
) error {
	unlock := s.locks.lock(eventID)

	var effects []func(context.Context)
	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		ev, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return s.notFound(err, ErrEventNotFound)
		}

		m := &mutation{
			tx:    tx,
			event: ev,
			now:   s.clock.Now(),
			after: after,
		}
		if err := fn(ctx, m); err != nil {
			return err
		}
		effects = m.effects

		return nil
	})
	unlock()

	if err != nil {
		return err
	}

	for _, e := range effects {
		e(ctx)
	}

	return nil
}

// promote opens a hold for the oldest waiting reservation when the event
// has no open hold.
func (s *Service) promote(ctx context.Context, m *mutation) error {
	hold, err := activeHold(ctx, m)
	if err != nil || hold != nil {
		return err
	}

	next, err := m.tx.NextPending(ctx, m.event.ID)
	if err != nil || next == nil {
		return err
	}

	expiresAt := m.now.Add(s.cfg.HoldDuration)
	next.Status = domain.StatusOpen
	next.ExpiresAt = &expiresAt
	next.UpdatedAt = m.now
	if err := m.tx.UpdateReservation(ctx, next); err != nil {
		return err
	}

	id, eventID := next.ID, m.event.ID
	m.after(func(ctx context.Context) {
		s.arm(id, expiresAt)
		s.logger.InfoContext(ctx, "hold opened",
			"reservation_id", id,
			"event_id", eventID,
			"expires_at", expiresAt,
		)
	})

	return nil
}

func (s *Service) expire(ctx context.Context, m *mutation, r *domain.Reservation) error {
	r.Status = domain.StatusExpired
	r.ExpiresAt = nil
	r.UpdatedAt = m.now
	if err := m.tx.UpdateReservation(ctx, r); err != nil {
		return err
	}
	s.holdClosed(m, r)

	id, eventID := r.ID, r.EventID
	m.after(func(ctx context.Context) {
		s.logger.InfoContext(ctx, "hold expired",
			"reservation_id", id,
			"event_id", eventID,
		)
	})

	return s.promote(ctx, m)
}

// sweep expires the event's hold if it has lapsed.
func (s *Service) sweep(ctx context.Context, m *mutation) (bool, error) {
	hold, err := activeHold(ctx, m)
	if err != nil || hold == nil {
		return false, err
	}

	if !hold.Lapsed(m.now) {
		return false, nil
	}

	return true, s.expire(ctx, m, hold)
}

func (s *Service) holdClosed(m *mutation, r *domain.Reservation) {
	id, eventID := r.ID, r.EventID

	m.after(func(context.Context) { s.scheduler.Cancel(id) })

	if s.publisher == nil {
		return
	}
	m.publish(func(ctx context.Context) {
		if err := s.publisher.PublishHoldClosed(ctx, eventID, id); err != nil {
			s.logger.WarnContext(ctx, "publish hold closed", "reservation_id", id, "error", err)
		}
	})
}

func (s *Service) announce(m *mutation) {
	eventID := m.event.ID

	m.publish(func(ctx context.Context) {
		if s.cache != nil {
			if err := s.cache.InvalidateEvent(ctx, eventID); err != nil {
				s.logger.WarnContext(ctx, "invalidate event cache", "event_id", eventID, "error", err)
			}
		}
		if s.publisher != nil {
			if err := s.publisher.PublishEventChanged(ctx, eventID); err != nil {
				s.logger.WarnContext(ctx, "publish event changed", "event_id", eventID, "error", err)
			}
		}
	})
}

func (s *Service) arm(id uuid.UUID, expiresAt time.Time) {
	d := expiresAt.Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}
	s.scheduler.Arm(id, d, s.onHoldTimeout)
}

func (s *Service) onHoldTimeout(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
	defer cancel()

	err := s.Expire(ctx, id)
	if err == nil || errors.Is(err, ErrNotFound) {
		return
	}

	s.logger.Error("expire hold", "reservation_id", id, "error", err)
	s.scheduler.Arm(id, expireRetryDelay, s.onHoldTimeout)
}

func (s *Service) notifyConfirmed(ctx context.Context, user *domain.User, event domain.Event, seats int) {
	subject, body, err := notify.ConfirmationEmail(event, seats)
	if err != nil {
		s.logger.ErrorContext(ctx, "render confirmation email", "error", err)
		return
	}

	if err := s.sender.SendEmail(ctx, user.Email, subject, body); err != nil {
		s.logger.WarnContext(ctx, "send confirmation email",
			"user_id", user.ID,
			"event_id", event.ID,
			"error", err,
		)
	}
}

func (s *Service) authenticate(ctx context.Context, userID int64) (*domain.User, error) {
	if userID <= 0 {
		return nil, ErrUnauthorized
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, s.notFound(err, ErrUserNotFound)
	}

	return u, nil
}

func (s *Service) notFound(err, target error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return target
	}
	return err
}

func anyLapsed(list []domain.Reservation, now time.Time) bool {
	for i := range list {
		if list[i].Lapsed(now) {
			return true
		}
	}
	return false
}
