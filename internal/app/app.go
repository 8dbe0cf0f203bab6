package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/tix-queue/internal/broker"
	"github.com/kirinyoku/tix-queue/internal/clock"
	"github.com/kirinyoku/tix-queue/internal/config"
	"github.com/kirinyoku/tix-queue/internal/notify"
	"github.com/kirinyoku/tix-queue/internal/postgres"
	redisx "github.com/kirinyoku/tix-queue/internal/redis"
	"github.com/kirinyoku/tix-queue/internal/repository"
	"github.com/kirinyoku/tix-queue/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/tix-queue/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tix-queue/internal/repository/redis"
	"github.com/kirinyoku/tix-queue/internal/service"
	"github.com/kirinyoku/tix-queue/internal/service/query"
	"github.com/kirinyoku/tix-queue/internal/service/reservation"
	amqptransport "github.com/kirinyoku/tix-queue/internal/transport/amqp"
	httpgin "github.com/kirinyoku/tix-queue/internal/transport/http/gin"
)

const (
	idempotencyTTL  = 2 * time.Hour
	shutdownTimeout = 5 * time.Second
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	services   *service.Services
	httpServer *http.Server
	pubsub     *redisrepo.EventsPubSub
	consumer   *amqptransport.Consumer
	closers    []io.Closer
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}

	var (
		cache *redisrepo.Cache
		deps  httpgin.Deps
	)
	if cfg.Redis.Addr != "" {
		rdb, err := redisx.New(ctx, redisx.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, rdb)

		cache = redisrepo.NewCache(rdb, logger)
		a.pubsub = redisrepo.NewEventsPubSub(rdb)
		deps.Idempotency = redisrepo.NewIdempotencyStore(rdb, idempotencyTTL)
		deps.Limiter = redisrepo.NewSlidingWindowLimiter(
			rdb, "reservations", cfg.RateLimit.Limit, cfg.RateLimit.Window,
		)
	} else {
		logger.Info("redis disabled: no cache, pub/sub, idempotency or rate limiting")
	}

	var sender notify.Sender = notify.NewLogSender(logger)
	if cfg.AMQP.Enabled {
		pub := broker.NewPublisher(cfg.AMQP.URL, logger)
		a.closers = append(a.closers, pub)
		sender = notify.NewQueueSender(pub, cfg.AMQP.MailQueue)
	}

	a.services = service.NewServices(service.Deps{
		Backend: backend,
		Clock:   clock.NewRealClock(),
		Sender:  sender,
		Cache:   cache,
		PubSub:  a.pubsub,
		Logger:  logger,
	}, service.Config{
		Reservation: reservation.Config{HoldDuration: cfg.Reservation.HoldDuration},
		Query:       query.Config{},
	})

	if cfg.AMQP.Enabled {
		a.consumer = amqptransport.NewConsumer(cfg.AMQP.URL, logger)
		amqptransport.NewHandlers(a.services.Reservation, logger).Register(a.consumer, cfg.AMQP.CreateQueue)
	}

	deps.Services = a.services
	deps.JWTSecret = []byte(cfg.Auth.JWTSecret)
	deps.Logger = logger

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           httpgin.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) openBackend(ctx context.Context) (repository.Backend, error) {
	switch a.cfg.Storage.Driver {
	case config.DriverMemory:
		a.logger.Warn("using in-memory storage, state is lost on restart")
		return memory.NewStore(), nil
	default:
		pool, err := postgres.New(ctx, postgres.Config{
			User:     a.cfg.Postgres.User,
			Password: a.cfg.Postgres.Password,
			Host:     a.cfg.Postgres.Host,
			Port:     a.cfg.Postgres.Port,
			Name:     a.cfg.Postgres.Name,
			SSLMode:  a.cfg.Postgres.SSLMode,
			MaxConns: a.cfg.Postgres.MaxConns,
			Migrate:  a.cfg.Postgres.Migrate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		a.closers = append(a.closers, closerFunc(func() error { pool.Close(); return nil }))

		return postgresrepo.NewStore(pool, a.logger), nil
	}
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.Close()

	if a.cfg.Reservation.RearmOnStart {
		n, err := a.services.Reservation.RearmOpenHolds(ctx)
		if err != nil {
			return fmt.Errorf("failed to re-arm open holds: %w", err)
		}
		a.logger.Info("open holds re-armed", "count", n)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	if a.pubsub != nil {
		g.Go(func() error {
			err := a.pubsub.Subscribe(gCtx, a.onEventMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("event subscription: %w", err)
			}
			return nil
		})
	}

	if a.consumer != nil {
		g.Go(func() error {
			return a.consumer.Run(gCtx)
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// onEventMessage drops local timers of holds closed by another instance.
func (a *App) onEventMessage(_ context.Context, msg redisrepo.EventMessage) {
	if msg.Type == redisrepo.MsgHoldClosed {
		a.services.Reservation.DropTimer(msg.ReservationID)
	}
}

// Close stops expiry timers and releases connections.
func (a *App) Close() {
	if a.services != nil {
		a.services.Reservation.Close()
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
