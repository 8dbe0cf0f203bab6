package amqptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/tix-queue/internal/broker"
)

const (
	prefetch       = 50
	reconnectDelay = 2 * time.Second
	handlerTimeout = 15 * time.Second
)

// HandlerFunc handles one request body and returns the reply envelope.
type HandlerFunc func(ctx context.Context, body []byte) Reply

// Consumer serves request/reply handlers on durable queues. Each queue is
// consumed on its own goroutine; replies go to the request's reply_to queue
// with its correlation id.
type Consumer struct {
	url      string
	logger   *slog.Logger
	handlers map[string]HandlerFunc
}

func NewConsumer(url string, logger *slog.Logger) *Consumer {
	return &Consumer{
		url:      url,
		logger:   logger.With("component", "amqp-consumer"),
		handlers: make(map[string]HandlerFunc),
	}
}

func (c *Consumer) Handle(queue string, h HandlerFunc) {
	c.handlers[queue] = h
}

// Run consumes until ctx is done, reconnecting whenever the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		conn, err := broker.Dial(ctx, c.url, c.logger)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = c.serve(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return nil
		}

		c.logger.Warn("consume loop ended, reconnecting", "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Consumer) serve(ctx context.Context, conn *amqp.Connection) error {
	replies, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("reply channel: %w", err)
	}
	defer replies.Close()

	var replyMu sync.Mutex
	reply := func(ctx context.Context, d amqp.Delivery, r Reply) error {
		if d.ReplyTo == "" {
			return nil
		}

		body, err := json.Marshal(r)
		if err != nil {
			return err
		}

		replyMu.Lock()
		defer replyMu.Unlock()

		return replies.PublishWithContext(ctx, "", d.ReplyTo, false, false, amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: d.CorrelationId,
			Body:          body,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for queue, h := range c.handlers {
		g.Go(func() error {
			return c.consume(gctx, conn, queue, h, reply)
		})
	}

	return g.Wait()
}

func (c *Consumer) consume(
	ctx context.Context,
	conn *amqp.Connection,
	queue string,
	h HandlerFunc,
	reply func(context.Context, amqp.Delivery, Reply) error,
) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%s: channel open: %w", queue, err)
	}
	defer ch.Close()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		c.logger.Warn("set qos failed", "queue", queue, "error", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("%s: queue declare: %w", queue, err)
	}

	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: consume: %w", queue, err)
	}

	c.logger.Info("consuming", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New(queue + ": deliveries channel closed")
			}

			hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
			r := h(hctx, d.Body)
			if err := reply(hctx, d, r); err != nil {
				c.logger.Error("reply failed", "queue", queue, "correlation_id", d.CorrelationId, "error", err)
			}
			cancel()

			_ = d.Ack(false)
		}
	}
}
