package service

import (
	"log/slog"

	"github.com/kirinyoku/tix-queue/internal/clock"
	"github.com/kirinyoku/tix-queue/internal/notify"
	"github.com/kirinyoku/tix-queue/internal/repository"
	redisrepo "github.com/kirinyoku/tix-queue/internal/repository/redis"
	"github.com/kirinyoku/tix-queue/internal/scheduler"
	"github.com/kirinyoku/tix-queue/internal/service/admin"
	"github.com/kirinyoku/tix-queue/internal/service/query"
	"github.com/kirinyoku/tix-queue/internal/service/reservation"
)

type Services struct {
	Reservation *reservation.Service
	Query       *query.Service
	Admin       *admin.Service
}

type Config struct {
	Reservation reservation.Config
	Query       query.Config
}

// Deps groups what the services are built from. Cache and PubSub are nil
// when Redis is not configured.
type Deps struct {
	Backend repository.Backend
	Clock   clock.Clock
	Sender  notify.Sender
	Cache   *redisrepo.Cache
	PubSub  *redisrepo.EventsPubSub
	Logger  *slog.Logger
}

func NewServices(deps Deps, cfg Config) *Services {
	clk := deps.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}

	var opts []reservation.Option
	var events admin.EventPublisher
	if deps.PubSub != nil {
		opts = append(opts, reservation.WithPublisher(deps.PubSub))
		events = deps.PubSub
	}
	if deps.Cache != nil {
		opts = append(opts, reservation.WithInvalidator(deps.Cache))
	}

	engine := reservation.New(
		deps.Backend,
		scheduler.New(clk),
		clk,
		deps.Sender,
		deps.Logger,
		cfg.Reservation,
		opts...,
	)

	return &Services{
		Reservation: engine,
		Query:       query.New(deps.Backend, deps.Cache, engine, cfg.Query),
		Admin:       admin.New(deps.Backend, events, deps.Logger),
	}
}
