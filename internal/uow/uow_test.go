package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type retryRunner struct {
	attempts int
}

func (r *retryRunner) RunTx(ctx context.Context, fn func(ctx context.Context, tx string) error) error {
	var err error
	for i := 0; i < r.attempts; i++ {
		err = fn(ctx, "tx")
		if err == nil {
			return nil
		}
	}
	return err
}

func TestUoW_HooksRunOnceAfterRetries(t *testing.T) {
	u := NewUoW[string](&retryRunner{attempts: 3})

	var calls, ran int
	err := u.Do(context.Background(), func(ctx context.Context, tx string, after func(AfterCommit)) error {
		calls++
		after(func(context.Context) { ran++ })
		if calls < 3 {
			return errors.New("serialization failure")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, ran)
}

func TestUoW_HooksSkippedOnError(t *testing.T) {
	u := NewUoW[string](&retryRunner{attempts: 1})
	boom := errors.New("boom")

	var ran bool
	err := u.Do(context.Background(), func(ctx context.Context, tx string, after func(AfterCommit)) error {
		after(func(context.Context) { ran = true })
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, ran)
}
