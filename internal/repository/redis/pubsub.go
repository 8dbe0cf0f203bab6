package redisrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	MsgEventChanged = "event_changed"
	MsgHoldClosed   = "hold_closed"
)

// EventsPubSub fans reservation changes out to every running instance.
type EventsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewEventsPubSub(rdb *redis.Client) *EventsPubSub {
	return &EventsPubSub{
		rdb:     rdb,
		channel: ChannelEvents(),
	}
}

type EventMessage struct {
	Type          string    `json:"type"`
	EventID       int64     `json:"event_id"`
	ReservationID uuid.UUID `json:"reservation_id"`
	TsUnix        int64     `json:"ts_unix"`
}

func (p *EventsPubSub) PublishEventChanged(ctx context.Context, eventID int64) error {
	return p.publish(ctx, EventMessage{
		Type:    MsgEventChanged,
		EventID: eventID,
	})
}

func (p *EventsPubSub) PublishHoldClosed(ctx context.Context, eventID int64, reservationID uuid.UUID) error {
	return p.publish(ctx, EventMessage{
		Type:          MsgHoldClosed,
		EventID:       eventID,
		ReservationID: reservationID,
	})
}

func (p *EventsPubSub) publish(ctx context.Context, msg EventMessage) error {
	const op = "redisrepo.EventsPubSub.publish"

	msg.TsUnix = time.Now().Unix()

	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := p.rdb.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Subscribe delivers messages to handler until ctx is done. Malformed
// payloads are skipped.
func (p *EventsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, msg EventMessage)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg EventMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil &&
				msg.EventID != 0 {
				handler(ctx, msg)
			}
		}
	}
}
