package reservation

import (
	"context"
	"time"

	crerrors "github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/kirinyoku/tix-queue/internal/domain"
	"github.com/kirinyoku/tix-queue/internal/repository"
	"github.com/kirinyoku/tix-queue/internal/uow"
)

// mutation is one transaction attempt on a locked event. Timer work goes
// through after and runs while the event lock is still held; effects run
// once the lock is released.
type mutation struct {
	tx      repository.Tx
	event   *domain.Event
	now     time.Time
	after   func(uow.AfterCommit)
	effects []func(ctx context.Context)
}

func (m *mutation) publish(fn func(ctx context.Context)) {
	m.effects = append(m.effects, fn)
}

// hasRoom reports whether seats more seats fit under the event capacity.
// Every non-expired reservation counts against it.
func hasRoom(ctx context.Context, m *mutation, seats int) (bool, error) {
	used, err := m.tx.UsedSeats(ctx, m.event.ID)
	if err != nil {
		return false, err
	}

	if used > m.event.Capacity {
		return false, crerrors.AssertionFailedf(
			"event %d: %d seats committed over capacity %d", m.event.ID, used, m.event.Capacity,
		)
	}

	return used+seats <= m.event.Capacity, nil
}

// activeHold returns the event's single OPEN reservation, or nil.
func activeHold(ctx context.Context, m *mutation) (*domain.Reservation, error) {
	holds, err := m.tx.OpenHolds(ctx, m.event.ID)
	if err != nil {
		return nil, err
	}

	switch len(holds) {
	case 0:
		return nil, nil
	case 1:
		return &holds[0], nil
	default:
		return nil, crerrors.AssertionFailedf("event %d has %d open holds", m.event.ID, len(holds))
	}
}

// rankIn returns the 1-based waitlist position of id in an event listing
// ordered by creation, or 0 if id is not waiting.
func rankIn(list []domain.Reservation, id uuid.UUID) int {
	rank := 0
	for _, r := range list {
		if r.Status != domain.StatusPending {
			continue
		}
		rank++
		if r.ID == id {
			return rank
		}
	}

	return 0
}

// views converts an ordered event listing, ranking PENDING entries by
// their 1-based position in the waitlist.
func views(list []domain.Reservation) []domain.ReservationView {
	out := make([]domain.ReservationView, 0, len(list))
	rank := 0
	for _, r := range list {
		v := view(r, 0)
		if r.Status == domain.StatusPending {
			rank++
			v.Rank = rank
		}
		out = append(out, v)
	}

	return out
}

func view(r domain.Reservation, rank int) domain.ReservationView {
	if r.Status != domain.StatusPending {
		rank = 0
	}

	return domain.ReservationView{
		ID:        r.ID,
		EventID:   r.EventID,
		UserID:    r.UserID,
		Seats:     r.Seats,
		Status:    r.Status,
		Rank:      rank,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
