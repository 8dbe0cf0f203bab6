package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const maxBackoff = 30 * time.Second

// Dial connects to the broker, retrying with exponential backoff until it
// succeeds or ctx is done.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*amqp.Connection, error) {
	const op = "broker.Dial"

	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}

		logger.Warn("broker dial failed", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s:%w", op, ctx.Err())
		case <-time.After(backoff):
		}

		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// Publisher publishes persistent messages over a lazily opened channel.
// A failed publish drops the channel so the next call reconnects.
type Publisher struct {
	url    string
	logger *slog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

func NewPublisher(url string, logger *slog.Logger) *Publisher {
	return &Publisher{
		url:      url,
		logger:   logger,
		declared: make(map[string]bool),
	}
}

// PublishJSON declares queue as durable on first use and publishes v to it
// through the default exchange.
func (p *Publisher) PublishJSON(ctx context.Context, queue string, v any) error {
	const op = "broker.Publisher.PublishJSON"

	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if !p.declared[queue] {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			p.reset()
			return fmt.Errorf("%s: declare %s: %w", op, queue, err)
		}
		p.declared[queue] = true
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.conn != nil {
		err = p.conn.Close()
	}
	p.conn, p.ch = nil, nil

	return err
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, err
		}
		p.conn = conn
	}

	ch, err := p.conn.Channel()
	if err != nil {
		p.reset()
		return nil, err
	}
	p.ch = ch
	p.declared = make(map[string]bool)

	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil

	p.logger.Warn("broker publisher reset")
}
