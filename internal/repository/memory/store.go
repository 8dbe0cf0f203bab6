package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/tix-queue/internal/domain"
	"github.com/kirinyoku/tix-queue/internal/repository"
)

// Store keeps the whole catalogue and every reservation in process memory.
// Transactions are serialized on a single mutex and rolled back by
// restoring a snapshot of the reservation table.
type Store struct {
	mu sync.Mutex

	movies       map[int64]domain.Movie
	events       map[int64]domain.Event
	users        map[int64]domain.User
	reservations map[uuid.UUID]*row

	nextMovieID int64
	nextEventID int64
	nextUserID  int64
	nextSeq     int64
}

type row struct {
	res domain.Reservation
	seq int64
}

func NewStore() *Store {
	return &Store{
		movies:       make(map[int64]domain.Movie),
		events:       make(map[int64]domain.Event),
		users:        make(map[int64]domain.User),
		reservations: make(map[uuid.UUID]*row),
	}
}

var _ repository.Backend = (*Store)(nil)

func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	const op = "repository.memory.Store.RunTx"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	if err := fn(ctx, &txView{s: s}); err != nil {
		s.reservations = snapshot
		return err
	}

	return nil
}

func (s *Store) GetEvent(_ context.Context, id int64) (*domain.Event, error) {
	const op = "repository.memory.Store.GetEvent"

	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.event(id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return ev, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*domain.User, error) {
	const op = "repository.memory.Store.GetUser"

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return &u, nil
}

func (s *Store) GetReservation(_ context.Context, id uuid.UUID) (*domain.Reservation, error) {
	const op = "repository.memory.Store.GetReservation"

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.reservation(id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return r, nil
}

func (s *Store) ListReservationsByEvent(_ context.Context, eventID int64) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.filter(eventID, nil), nil
}

func (s *Store) ListEventIDsByMovie(_ context.Context, movieID int64) ([]int64, error) {
	const op = "repository.memory.Store.ListEventIDsByMovie"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.movies[movieID]; !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	var ids []int64
	for id, ev := range s.events {
		if ev.MovieID == movieID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

func (s *Store) ListOpenHolds(_ context.Context) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Reservation
	for _, r := range s.sorted() {
		if r.res.Status == domain.StatusOpen {
			out = append(out, r.res)
		}
	}

	return out, nil
}

func (s *Store) CreateMovie(_ context.Context, title string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMovieID++
	s.movies[s.nextMovieID] = domain.Movie{ID: s.nextMovieID, Title: title}

	return s.nextMovieID, nil
}

func (s *Store) CreateEvent(_ context.Context, movieID int64, capacity int, startsAt time.Time) (int64, error) {
	const op = "repository.memory.Store.CreateEvent"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.movies[movieID]; !ok {
		return 0, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	s.nextEventID++
	s.events[s.nextEventID] = domain.Event{
		ID:       s.nextEventID,
		MovieID:  movieID,
		Capacity: capacity,
		StartsAt: startsAt.UTC(),
	}

	return s.nextEventID, nil
}

func (s *Store) CreateUser(_ context.Context, email string, role domain.Role) (int64, error) {
	const op = "repository.memory.Store.CreateUser"

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return 0, fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}

	s.nextUserID++
	s.users[s.nextUserID] = domain.User{ID: s.nextUserID, Email: email, Role: role}

	return s.nextUserID, nil
}

func (s *Store) EventCounts(_ context.Context, eventID int64) (*domain.EventCounts, error) {
	const op = "repository.memory.Store.EventCounts"

	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.event(eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	c := &domain.EventCounts{EventID: eventID, Capacity: ev.Capacity}
	for _, r := range s.reservations {
		if r.res.EventID != eventID {
			continue
		}
		switch r.res.Status {
		case domain.StatusPending:
			c.Pending++
		case domain.StatusOpen:
			c.Open++
		case domain.StatusConfirmed:
			c.Confirmed++
		case domain.StatusExpired:
			c.Expired++
			continue
		}
		c.Used += r.res.Seats
	}
	c.Remaining = c.Capacity - c.Used

	return c, nil
}

func (s *Store) event(id int64) (*domain.Event, error) {
	ev, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	ev.MovieTitle = s.movies[ev.MovieID].Title

	return &ev, nil
}

func (s *Store) reservation(id uuid.UUID) (*domain.Reservation, error) {
	r, ok := s.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	res := copyReservation(r.res)

	return &res, nil
}

func (s *Store) sorted() []*row {
	rows := make([]*row, 0, len(s.reservations))
	for _, r := range s.reservations {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.res.CreatedAt.Equal(b.res.CreatedAt) {
			return a.res.CreatedAt.Before(b.res.CreatedAt)
		}
		return a.seq < b.seq
	})

	return rows
}

func (s *Store) filter(eventID int64, status *domain.ReservationStatus) []domain.Reservation {
	var out []domain.Reservation
	for _, r := range s.sorted() {
		if r.res.EventID != eventID {
			continue
		}
		if status != nil && r.res.Status != *status {
			continue
		}
		out = append(out, copyReservation(r.res))
	}

	return out
}

func (s *Store) snapshot() map[uuid.UUID]*row {
	out := make(map[uuid.UUID]*row, len(s.reservations))
	for id, r := range s.reservations {
		out[id] = &row{res: copyReservation(r.res), seq: r.seq}
	}

	return out
}

func copyReservation(r domain.Reservation) domain.Reservation {
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		r.ExpiresAt = &t
	}

	return r
}

// txView runs with Store.mu already held.
type txView struct {
	s *Store
}

func (t *txView) LockEvent(_ context.Context, eventID int64) (*domain.Event, error) {
	const op = "repository.memory.txView.LockEvent"

	ev, err := t.s.event(eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return ev, nil
}

func (t *txView) UsedSeats(_ context.Context, eventID int64) (int, error) {
	used := 0
	for _, r := range t.s.reservations {
		if r.res.EventID == eventID && r.res.Status != domain.StatusExpired {
			used += r.res.Seats
		}
	}

	return used, nil
}

func (t *txView) OpenHolds(_ context.Context, eventID int64) ([]domain.Reservation, error) {
	status := domain.StatusOpen
	return t.s.filter(eventID, &status), nil
}

func (t *txView) NextPending(_ context.Context, eventID int64) (*domain.Reservation, error) {
	status := domain.StatusPending
	pending := t.s.filter(eventID, &status)
	if len(pending) == 0 {
		return nil, nil
	}

	return &pending[0], nil
}

func (t *txView) GetReservation(_ context.Context, id uuid.UUID) (*domain.Reservation, error) {
	const op = "repository.memory.txView.GetReservation"

	r, err := t.s.reservation(id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return r, nil
}

func (t *txView) InsertReservation(_ context.Context, r *domain.Reservation) error {
	const op = "repository.memory.txView.InsertReservation"

	if _, ok := t.s.reservations[r.ID]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}
	if _, ok := t.s.users[r.UserID]; !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	t.s.nextSeq++
	t.s.reservations[r.ID] = &row{res: copyReservation(*r), seq: t.s.nextSeq}

	return nil
}

func (t *txView) UpdateReservation(_ context.Context, r *domain.Reservation) error {
	const op = "repository.memory.txView.UpdateReservation"

	cur, ok := t.s.reservations[r.ID]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	cur.res.Status = r.Status
	cur.res.ExpiresAt = copyReservation(*r).ExpiresAt
	cur.res.UpdatedAt = r.UpdatedAt

	return nil
}
