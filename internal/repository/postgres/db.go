package postgresrepo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/tix-queue/internal/domain"
	"github.com/kirinyoku/tix-queue/internal/repository"
)

const maxTxRetries = 3

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{
		pool:   pool,
		logger: logger,
	}
}

var _ repository.Backend = (*Store)(nil)

// RunTx runs fn in a read-committed transaction. Writers on the same event
// are serialized by the row lock taken in LockEvent, so stronger isolation
// only adds aborts.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	opts := &pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}

	return s.runTxWithRetry(ctx, opts, func(ctx context.Context, tx DB) error {
		return fn(ctx, s.Reservations().With(tx))
	})
}

func (s *Store) runTxWithRetry(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	var err error

	for attempt := 0; attempt <= maxTxRetries; attempt++ {
		err = s.runTx(ctx, opts, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}

		wait := time.Duration(attempt+1) * 50 * time.Millisecond
		s.logger.Warn("retrying transaction",
			"attempt", attempt+1,
			"wait", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return err
}

func (s *Store) runTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *Store) Query() *QueryRepo              { return &QueryRepo{pool: s.pool} }
func (s *Store) Admin() *AdminRepo              { return &AdminRepo{pool: s.pool} }
func (s *Store) Reservations() *ReservationRepo { return &ReservationRepo{pool: s.pool} }

func (s *Store) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	return s.Query().GetEvent(ctx, id)
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return s.Query().GetUser(ctx, id)
}

func (s *Store) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return s.Reservations().GetReservation(ctx, id)
}

func (s *Store) ListReservationsByEvent(ctx context.Context, eventID int64) ([]domain.Reservation, error) {
	return s.Reservations().ListByEvent(ctx, eventID)
}

func (s *Store) ListEventIDsByMovie(ctx context.Context, movieID int64) ([]int64, error) {
	return s.Query().ListEventIDsByMovie(ctx, movieID)
}

func (s *Store) ListOpenHolds(ctx context.Context) ([]domain.Reservation, error) {
	return s.Reservations().ListOpen(ctx)
}

func (s *Store) EventCounts(ctx context.Context, eventID int64) (*domain.EventCounts, error) {
	return s.Query().EventCounts(ctx, eventID)
}

func (s *Store) CreateMovie(ctx context.Context, title string) (int64, error) {
	return s.Admin().CreateMovie(ctx, title)
}

func (s *Store) CreateEvent(ctx context.Context, movieID int64, capacity int, startsAt time.Time) (int64, error) {
	return s.Admin().CreateEvent(ctx, movieID, capacity, startsAt)
}

func (s *Store) CreateUser(ctx context.Context, email string, role domain.Role) (int64, error) {
	return s.Admin().CreateUser(ctx, email, role)
}
