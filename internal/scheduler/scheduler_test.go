package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-queue/internal/clock"
)

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestScheduler_FiresOnce(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	s := New(clk)
	id := uuid.New()

	var calls atomic.Int32
	s.Arm(id, time.Minute, func(got uuid.UUID) {
		assert.Equal(t, id, got)
		calls.Add(1)
	})
	require.Equal(t, 1, s.Len())

	clk.Add(59 * time.Second)
	assert.Equal(t, int32(0), calls.Load())

	clk.Add(time.Second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, s.Len())

	clk.Add(time.Hour)
	assert.Equal(t, int32(1), calls.Load())
}

func TestScheduler_CancelPreventsFire(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	s := New(clk)
	id := uuid.New()

	var calls atomic.Int32
	s.Arm(id, time.Minute, func(uuid.UUID) { calls.Add(1) })

	assert.True(t, s.Cancel(id))
	assert.False(t, s.Cancel(id))

	clk.Add(2 * time.Minute)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, clk.Pending())
}

func TestScheduler_RearmReplacesTimer(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	s := New(clk)
	id := uuid.New()

	var first, second atomic.Int32
	s.Arm(id, time.Minute, func(uuid.UUID) { first.Add(1) })
	s.Arm(id, 2*time.Minute, func(uuid.UUID) { second.Add(1) })
	require.Equal(t, 1, s.Len())

	clk.Add(time.Minute)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(0), second.Load())

	clk.Add(time.Minute)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestScheduler_StopCancelsEverything(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	s := New(clk)

	var calls atomic.Int32
	for range 3 {
		s.Arm(uuid.New(), time.Minute, func(uuid.UUID) { calls.Add(1) })
	}
	s.Stop()
	s.Arm(uuid.New(), time.Minute, func(uuid.UUID) { calls.Add(1) })

	clk.Add(time.Hour)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_CallbackMayRearm(t *testing.T) {
	clk := clock.NewMockClock(epoch)
	s := New(clk)
	id := uuid.New()

	var calls atomic.Int32
	var onExpire func(uuid.UUID)
	onExpire = func(got uuid.UUID) {
		if calls.Add(1) == 1 {
			s.Arm(got, time.Minute, onExpire)
		}
	}
	s.Arm(id, time.Minute, onExpire)

	clk.Add(3 * time.Minute)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, s.Len())
}
