package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-queue/internal/clock"
	"github.com/kirinyoku/tix-queue/internal/domain"
	"github.com/kirinyoku/tix-queue/internal/notify"
	postgresrepo "github.com/kirinyoku/tix-queue/internal/repository/postgres"
	"github.com/kirinyoku/tix-queue/internal/scheduler"
	"github.com/kirinyoku/tix-queue/internal/testutil"
)

// Two engines over one database stand in for two processes; only the event
// row lock keeps them consistent.
func TestPostgres_TwoInstancesShareCapacity(t *testing.T) {
	const (
		capacity = 5
		callers  = 20
	)

	ctx := context.Background()
	store := postgresrepo.NewStore(testutil.NewTestPool(t), discardLogger())

	movieID, err := store.CreateMovie(ctx, "Ikiru")
	require.NoError(t, err)
	eventID, err := store.CreateEvent(ctx, movieID, capacity, epoch.Add(24*time.Hour))
	require.NoError(t, err)

	clk := clock.NewMockClock(epoch)
	engines := make([]*Service, 2)
	for i := range engines {
		engines[i] = New(store, scheduler.New(clk), clk, notify.NewLogSender(discardLogger()),
			discardLogger(), Config{HoldDuration: hold})
		t.Cleanup(engines[i].Close)
	}

	users := make([]int64, callers)
	for i := range users {
		users[i], err = store.CreateUser(ctx, fmt.Sprintf("u%d@example.com", i), domain.RoleCustomer)
		require.NoError(t, err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i, u := range users {
		wg.Add(1)
		go func(svc *Service, userID int64) {
			defer wg.Done()
			_, err := svc.Request(ctx, eventID, userID, 1)
			if err != nil && !errors.Is(err, ErrCapacityExceeded) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(engines[i%2], u)
	}
	wg.Wait()

	assert.Equal(t, capacity, accepted)

	counts, err := store.EventCounts(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, capacity, counts.Used)
	assert.Equal(t, 1, counts.Open)
	assert.Equal(t, capacity-1, counts.Pending)

	// the hold lapses and the next waiter is promoted
	clk.Add(hold)

	counts, err = store.EventCounts(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Expired)
	assert.Equal(t, 1, counts.Open)
	assert.Equal(t, capacity-2, counts.Pending)
}
