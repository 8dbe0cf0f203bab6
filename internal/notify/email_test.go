package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-queue/internal/domain"
)

func TestConfirmationEmail(t *testing.T) {
	ev := domain.Event{
		ID:         7,
		MovieTitle: "Heat & Dust",
		StartsAt:   time.Date(2025, 3, 1, 19, 30, 0, 0, time.FixedZone("CET", 3600)),
	}

	subject, body, err := ConfirmationEmail(ev, 3)
	require.NoError(t, err)

	assert.Equal(t, "Reservation confirmed", subject)
	assert.Contains(t, body, "Heat &amp; Dust")
	assert.Contains(t, body, "Seats: 3")
	assert.Contains(t, body, "2025-03-01T18:30:00Z")
}

type fakePublisher struct {
	queue string
	msg   any
	err   error
}

func (p *fakePublisher) PublishJSON(_ context.Context, queue string, v any) error {
	p.queue = queue
	p.msg = v
	return p.err
}

func TestQueueSender(t *testing.T) {
	pub := &fakePublisher{}
	s := NewQueueSender(pub, "mail.send")

	require.NoError(t, s.SendEmail(context.Background(), "a@b.c", "subj", "<p>x</p>"))
	assert.Equal(t, "mail.send", pub.queue)
	assert.Equal(t, mailMessage{To: "a@b.c", Subject: "subj", HTML: "<p>x</p>"}, pub.msg)

	pub.err = errors.New("channel closed")
	assert.ErrorIs(t, s.SendEmail(context.Background(), "a@b.c", "s", "b"), pub.err)
}
