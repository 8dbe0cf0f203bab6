package reservation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventLocks_SerializesSameEvent(t *testing.T) {
	l := newEventLocks()

	unlock := l.lock(1)

	acquired := make(chan struct{})
	go func() {
		release := l.lock(1)
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held event lock")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	<-acquired
	assert.Eventually(t, func() bool { return l.len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestEventLocks_IndependentEvents(t *testing.T) {
	l := newEventLocks()

	unlock := l.lock(1)
	defer unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.lock(2)()
	}()
	wg.Wait()

	assert.Equal(t, 1, l.len())
}
