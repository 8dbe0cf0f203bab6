package notify

import (
	"context"
	"fmt"
)

// Publisher sends a JSON document to a named queue.
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, v any) error
}

type mailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// QueueSender hands emails to a mailer service over the message broker.
type QueueSender struct {
	pub   Publisher
	queue string
}

func NewQueueSender(pub Publisher, queue string) *QueueSender {
	return &QueueSender{pub: pub, queue: queue}
}

func (s *QueueSender) SendEmail(ctx context.Context, to, subject, body string) error {
	const op = "notify.QueueSender.SendEmail"

	msg := mailMessage{To: to, Subject: subject, HTML: body}
	if err := s.pub.PublishJSON(ctx, s.queue, msg); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
