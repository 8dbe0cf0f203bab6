package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/tix-queue/internal/domain"
)

type QueryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *QueryRepo) With(db DB) *QueryRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *QueryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetEvent retrieves an event by its ID.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - id: unique identifier of the event to retrieve.
//
// Returns:
//   - *domain.Event: the event when found.
//   - error: repository.ErrNotFound if the event is not found.
func (r *QueryRepo) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgresrepo.QueryRepo.GetEvent"

	db := r.handle()

	var e domain.Event
	err := db.QueryRow(ctx,
		`SELECT e.id, e.movie_id, m.title, e.capacity, e.starts_at
		 FROM events e
		 JOIN movies m ON m.id = e.movie_id
		 WHERE e.id = $1`,
		id,
	).Scan(&e.ID, &e.MovieID, &e.MovieTitle, &e.Capacity, &e.StartsAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

func (r *QueryRepo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	const op = "postgresrepo.QueryRepo.GetUser"

	var (
		u    domain.User
		role string
	)
	err := r.handle().QueryRow(ctx,
		`SELECT id, email, role FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &role)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	u.Role = domain.Role(role)

	return &u, nil
}

// ListEventIDsByMovie lists the events showing a movie.
//
// Returns:
//   - []int64: event IDs in ascending order, possibly empty.
//   - error: repository.ErrNotFound if the movie does not exist.
func (r *QueryRepo) ListEventIDsByMovie(ctx context.Context, movieID int64) ([]int64, error) {
	const op = "postgresrepo.QueryRepo.ListEventIDsByMovie"

	db := r.handle()

	var exists bool
	if err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM movies WHERE id = $1)`,
		movieID,
	).Scan(&exists); err != nil {
		return nil, wrapDBErr(op, err)
	}
	if !exists {
		return nil, wrapDBErr(op, pgx.ErrNoRows)
	}

	rows, err := db.Query(ctx,
		`SELECT id FROM events WHERE movie_id = $1 ORDER BY id`,
		movieID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBErr(op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return ids, nil
}

// EventCounts counts reservations by status for an event.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - eventID: unique identifier of the event.
//
// Returns:
//   - *domain.EventCounts: the counters and remaining capacity.
//   - error: repository.ErrNotFound if the event is not found.
func (r *QueryRepo) EventCounts(ctx context.Context, eventID int64) (*domain.EventCounts, error) {
	const op = "postgresrepo.QueryRepo.EventCounts"

	db := r.handle()

	ec := domain.EventCounts{EventID: eventID}
	err := db.QueryRow(ctx,
		`SELECT
		 	e.capacity,
		 	COALESCE(SUM(r.seats) FILTER (WHERE r.status <> 'EXPIRED'), 0)::int,
		 	COUNT(r.id) FILTER (WHERE r.status = 'PENDING')::int,
		 	COUNT(r.id) FILTER (WHERE r.status = 'OPEN')::int,
		 	COUNT(r.id) FILTER (WHERE r.status = 'CONFIRMED')::int,
		 	COUNT(r.id) FILTER (WHERE r.status = 'EXPIRED')::int
		 FROM events e
		 LEFT JOIN reservations r ON r.event_id = e.id
		 WHERE e.id = $1
		 GROUP BY e.id, e.capacity`,
		eventID,
	).Scan(&ec.Capacity, &ec.Used, &ec.Pending, &ec.Open, &ec.Confirmed, &ec.Expired)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	ec.Remaining = ec.Capacity - ec.Used

	return &ec, nil
}
