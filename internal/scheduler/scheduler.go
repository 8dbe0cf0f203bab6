package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/tix-queue/internal/clock"
)

// Scheduler keeps at most one expiry timer per reservation. A timer fires
// its callback at most once, and never after it was cancelled or replaced.
type Scheduler struct {
	clock clock.Clock

	mu      sync.Mutex
	timers  map[uuid.UUID]*entry
	stopped bool
}

type entry struct {
	timer clock.Timer
}

func New(clk clock.Clock) *Scheduler {
	return &Scheduler{
		clock:  clk,
		timers: make(map[uuid.UUID]*entry),
	}
}

// Arm schedules onExpire(id) to run after d. An existing timer for id is
// replaced. Arm is a no-op once the scheduler is stopped.
func (s *Scheduler) Arm(id uuid.UUID, d time.Duration, onExpire func(uuid.UUID)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if old, ok := s.timers[id]; ok {
		old.timer.Stop()
	}

	e := &entry{}
	s.timers[id] = e
	e.timer = s.clock.AfterFunc(d, func() {
		s.fire(id, e, onExpire)
	})
}

// Cancel stops the timer for id. It reports whether a timer was pending.
func (s *Scheduler) Cancel(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timers[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.timers, id)

	return true
}

// Len returns the number of pending timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.timers)
}

// Stop cancels every pending timer and rejects further Arm calls.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) fire(id uuid.UUID, e *entry, onExpire func(uuid.UUID)) {
	s.mu.Lock()
	if cur, ok := s.timers[id]; !ok || cur != e {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	s.mu.Unlock()

	onExpire(id)
}
