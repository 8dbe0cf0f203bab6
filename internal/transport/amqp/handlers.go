package amqptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/kirinyoku/tix-queue/internal/domain"
	"github.com/kirinyoku/tix-queue/internal/service/reservation"
)

const (
	QueueReservationCreate    = "reservation.create"
	QueueReservationEventList = "reservation.event.list"
	QueueReservationMovieList = "reservation.movie.list"
)

// Reply is the envelope sent back on reply_to.
type Reply struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func success(data any) Reply { return Reply{Type: "success", Data: data} }

func failure(msg string) Reply { return Reply{Type: "error", Message: msg} }

type createRequest struct {
	UserID  int64 `json:"user_id"`
	EventID int64 `json:"event_id"`
	Seats   int   `json:"seats"`
}

type eventListRequest struct {
	EventID int64 `json:"event_id"`
}

type movieListRequest struct {
	MovieID int64 `json:"movie_id"`
}

// ReservationService is the part of the reservation engine reachable over
// the broker.
type ReservationService interface {
	Request(ctx context.Context, eventID, userID int64, seats int) (*domain.ReservationView, error)
	ListByEvent(ctx context.Context, eventID int64) ([]domain.ReservationView, error)
	ListByMovie(ctx context.Context, movieID int64) ([]domain.ReservationView, error)
}

type Handlers struct {
	svc    ReservationService
	logger *slog.Logger
}

func NewHandlers(svc ReservationService, logger *slog.Logger) *Handlers {
	return &Handlers{svc: svc, logger: logger}
}

// Register binds every reservation queue on c. createQueue overrides the
// default name of the create queue when not empty.
func (h *Handlers) Register(c *Consumer, createQueue string) {
	if createQueue == "" {
		createQueue = QueueReservationCreate
	}

	c.Handle(createQueue, h.Create)
	c.Handle(QueueReservationEventList, h.ListByEvent)
	c.Handle(QueueReservationMovieList, h.ListByMovie)
}

func (h *Handlers) Create(ctx context.Context, body []byte) Reply {
	var req createRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return failure("invalid payload")
	}

	v, err := h.svc.Request(ctx, req.EventID, req.UserID, req.Seats)
	if err != nil {
		return h.replyErr(ctx, err)
	}

	return success(v)
}

func (h *Handlers) ListByEvent(ctx context.Context, body []byte) Reply {
	var req eventListRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return failure("invalid payload")
	}

	list, err := h.svc.ListByEvent(ctx, req.EventID)
	if err != nil {
		return h.replyErr(ctx, err)
	}

	return success(list)
}

func (h *Handlers) ListByMovie(ctx context.Context, body []byte) Reply {
	var req movieListRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return failure("invalid payload")
	}

	list, err := h.svc.ListByMovie(ctx, req.MovieID)
	if err != nil {
		return h.replyErr(ctx, err)
	}

	return success(list)
}

func (h *Handlers) replyErr(ctx context.Context, err error) Reply {
	switch {
	case errors.Is(err, reservation.ErrEventNotFound):
		return failure("event not found")
	case errors.Is(err, reservation.ErrMovieNotFound):
		return failure("movie not found")
	case errors.Is(err, reservation.ErrUserNotFound):
		return failure("user not found")
	case errors.Is(err, reservation.ErrCapacityExceeded):
		return failure("not enough seats")
	case errors.Is(err, reservation.ErrInvalidSeatCount):
		return failure("seats must be at least 1")
	case errors.Is(err, reservation.ErrUnauthorized):
		return failure("unauthorized")
	default:
		h.logger.ErrorContext(ctx, "rpc handler failed", "error", err)
		return failure("internal error")
	}
}
