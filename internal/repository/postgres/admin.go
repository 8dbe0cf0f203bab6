package postgresrepo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/tix-queue/internal/domain"
)

type AdminRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AdminRepo) With(db DB) *AdminRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *AdminRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *AdminRepo) CreateMovie(ctx context.Context, title string) (int64, error) {
	const op = "postgresrepo.AdminRepo.CreateMovie"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO movies(title)
		 VALUES ($1)
		 RETURNING id`,
		title,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// CreateEvent schedules a showing of an existing movie.
//
// Returns:
//   - int64: the new event ID.
//   - error: repository.ErrNotFound if the movie does not exist.
func (r *AdminRepo) CreateEvent(
	ctx context.Context,
	movieID int64,
	capacity int,
	startsAt time.Time,
) (int64, error) {
	const op = "postgresrepo.AdminRepo.CreateEvent"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO events(movie_id, capacity, starts_at)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		movieID, capacity, startsAt,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// CreateUser registers a user. Emails are unique case-insensitively.
//
// Returns:
//   - int64: the new user ID.
//   - error: repository.ErrConflict if the email is taken.
func (r *AdminRepo) CreateUser(ctx context.Context, email string, role domain.Role) (int64, error) {
	const op = "postgresrepo.AdminRepo.CreateUser"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO users(email, role)
		 VALUES ($1, $2)
		 RETURNING id`,
		email, string(role),
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}
