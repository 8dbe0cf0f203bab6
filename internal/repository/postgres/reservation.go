package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/tix-queue/internal/domain"
)

type ReservationRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ReservationRepo) With(db DB) *ReservationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ReservationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const reservationColumns = `id, event_id, user_id, seats, status, expires_at, created_at, updated_at`

// LockEvent loads an event and takes a row lock on it for the rest of the
// transaction.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - eventID: unique identifier of the event to lock.
//
// Returns:
//   - *domain.Event: the locked event, with the movie title filled in.
//   - error: repository.ErrNotFound if the event does not exist.
func (r *ReservationRepo) LockEvent(ctx context.Context, eventID int64) (*domain.Event, error) {
	const op = "postgresrepo.ReservationRepo.LockEvent"

	var e domain.Event
	err := r.handle().QueryRow(ctx, `
		SELECT e.id, e.movie_id, m.title, e.capacity, e.starts_at
		FROM events e
		JOIN movies m ON m.id = e.movie_id
		WHERE e.id = $1
		FOR UPDATE OF e`,
		eventID,
	).Scan(&e.ID, &e.MovieID, &e.MovieTitle, &e.Capacity, &e.StartsAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

// UsedSeats sums the seats of every non-expired reservation on the event.
func (r *ReservationRepo) UsedSeats(ctx context.Context, eventID int64) (int, error) {
	const op = "postgresrepo.ReservationRepo.UsedSeats"

	var used int
	err := r.handle().QueryRow(ctx, `
		SELECT COALESCE(SUM(seats), 0)::int
		FROM reservations
		WHERE event_id = $1 AND status <> 'EXPIRED'`,
		eventID,
	).Scan(&used)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return used, nil
}

func (r *ReservationRepo) OpenHolds(ctx context.Context, eventID int64) ([]domain.Reservation, error) {
	const op = "postgresrepo.ReservationRepo.OpenHolds"

	rows, err := r.handle().Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE event_id = $1 AND status = 'OPEN'
		ORDER BY created_at, seq`,
		eventID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectReservations(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// NextPending returns the oldest PENDING reservation of the event, or nil
// when the waitlist is empty.
func (r *ReservationRepo) NextPending(ctx context.Context, eventID int64) (*domain.Reservation, error) {
	const op = "postgresrepo.ReservationRepo.NextPending"

	row := r.handle().QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE event_id = $1 AND status = 'PENDING'
		ORDER BY created_at, seq
		LIMIT 1`,
		eventID,
	)

	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return res, nil
}

func (r *ReservationRepo) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	const op = "postgresrepo.ReservationRepo.GetReservation"

	row := r.handle().QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = $1`,
		id,
	)

	res, err := scanReservation(row)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return res, nil
}

// InsertReservation stores a new reservation.
//
// Returns:
//   - error: repository.ErrNotFound if the event or user does not exist.
//   - error: repository.ErrConflict if the id is taken or a second hold would open.
func (r *ReservationRepo) InsertReservation(ctx context.Context, res *domain.Reservation) error {
	const op = "postgresrepo.ReservationRepo.InsertReservation"

	_, err := r.handle().Exec(ctx, `
		INSERT INTO reservations (id, event_id, user_id, seats, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.ID, res.EventID, res.UserID, res.Seats, string(res.Status),
		res.ExpiresAt, res.CreatedAt, res.UpdatedAt,
	)

	return wrapDBErr(op, err)
}

// UpdateReservation writes the status, deadline and update time of res.
func (r *ReservationRepo) UpdateReservation(ctx context.Context, res *domain.Reservation) error {
	const op = "postgresrepo.ReservationRepo.UpdateReservation"

	tag, err := r.handle().Exec(ctx, `
		UPDATE reservations
		SET status = $2, expires_at = $3, updated_at = $4
		WHERE id = $1`,
		res.ID, string(res.Status), res.ExpiresAt, res.UpdatedAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, pgx.ErrNoRows)
	}

	return nil
}

func (r *ReservationRepo) ListByEvent(ctx context.Context, eventID int64) ([]domain.Reservation, error) {
	const op = "postgresrepo.ReservationRepo.ListByEvent"

	rows, err := r.handle().Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE event_id = $1
		ORDER BY created_at, seq`,
		eventID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectReservations(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// ListOpen returns every OPEN hold across all events.
func (r *ReservationRepo) ListOpen(ctx context.Context) ([]domain.Reservation, error) {
	const op = "postgresrepo.ReservationRepo.ListOpen"

	rows, err := r.handle().Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = 'OPEN'
		ORDER BY expires_at`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectReservations(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var (
		res       domain.Reservation
		status    string
		expiresAt *time.Time
	)

	if err := row.Scan(
		&res.ID,
		&res.EventID,
		&res.UserID,
		&res.Seats,
		&status,
		&expiresAt,
		&res.CreatedAt,
		&res.UpdatedAt,
	); err != nil {
		return nil, err
	}

	res.Status = domain.ReservationStatus(status)
	res.ExpiresAt = expiresAt

	return &res, nil
}

func collectReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *res)
	}

	return out, rows.Err()
}
