package uow

import (
	"context"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// Runner opens a transaction and hands fn a view of type Tx. A runner may
// call fn more than once when it retries a failed transaction.
type Runner[Tx any] interface {
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// UoW represents a unit of work.
type UoW[Tx any] struct {
	runner Runner[Tx]
}

func NewUoW[Tx any](runner Runner[Tx]) *UoW[Tx] {
	return &UoW[Tx]{runner: runner}
}

// Do runs fn inside the transaction. After a successful commit,
// it executes the after-commit hooks registered by the last attempt.
func (u *UoW[Tx]) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx Tx, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.runner.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		hooks = hooks[:0]
		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
