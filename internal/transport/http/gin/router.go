package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	redisrepo "github.com/kirinyoku/tix-queue/internal/repository/redis"
	"github.com/kirinyoku/tix-queue/internal/service"
	"github.com/kirinyoku/tix-queue/internal/service/admin"
	"github.com/kirinyoku/tix-queue/internal/service/query"
	"github.com/kirinyoku/tix-queue/internal/service/reservation"
)

const (
	idemLockTTL     = 60 * time.Second
	eventMaxAge     = 60 * time.Second
	availabilityAge = 15 * time.Second
)

// Idempotency stores the first response produced for an Idempotency-Key.
type Idempotency interface {
	AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	SaveResult(ctx context.Context, key string, status int, jsonPayload string) error
	GetResult(ctx context.Context, key string) (int, string, bool, error)
	Release(ctx context.Context, key string) error
}

// Deps is what the router is built from. Idempotency and Limiter are
// optional.
type Deps struct {
	Services    *service.Services
	Idempotency Idempotency
	Limiter     Limiter
	JWTSecret   []byte
	Logger      *slog.Logger
}

func NewRouter(deps Deps, middlewares ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(deps.Logger), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	svcs := deps.Services

	r.GET("/events/:id", handleGetEvent(svcs))
	r.GET("/events/:id/availability", handleGetAvailability(svcs))

	authed := r.Group("/", JWTAuth(deps.JWTSecret))
	{
		authed.POST("/events/:id/reservations",
			RateLimit(deps.Limiter, deps.Logger),
			handleCreateReservation(svcs, deps.Idempotency),
		)
		authed.GET("/events/:id/reservations", handleListByEvent(svcs))
		authed.GET("/movies/:id/reservations", handleListByMovie(svcs))
		authed.GET("/reservations/:id", handleGetReservation(svcs))
		authed.POST("/reservations/:id/confirm", handleConfirmReservation(svcs))
	}

	adm := r.Group("/admin", JWTAuth(deps.JWTSecret), RequireAdmin())
	{
		adm.POST("/movies", handleCreateMovie(svcs))
		adm.POST("/events", handleCreateEvent(svcs))
		adm.POST("/users", handleCreateUser(svcs))
	}

	return r
}

// @Summary  Get event
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  domain.Event
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		e, err := svcs.Query.GetEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, e, eventMaxAge)
	}
}

// @Summary  Get availability counters
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  domain.EventCounts
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		cnt, err := svcs.Query.Availability(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, cnt, availabilityAge)
	}
}

// @Summary  Request seats (idempotent)
// @Security BearerAuth
// @Param    id  path  int  true  "Event ID"
// @Param    Idempotency-Key header string false "replays the first response"
// @Param    req body  CreateReservationRequest true "payload"
// @Success  201 {object} domain.ReservationView
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "not enough seats / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /events/{id}/reservations [post]
func handleCreateReservation(svcs *service.Services, idem Idempotency) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		caller, err := callerFrom(c)
		if err != nil {
			respondErr(c, reservation.ErrUnauthorized)
			return
		}
		var req CreateReservationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var storageKey string
		if idem != nil && idemKey != "" {
			storageKey = redisrepo.KeyIdemReservation(eventID, caller.UserID, idemKey)

			if replay(c, idem, storageKey, idemKey) {
				return
			}

			locked, err := idem.AcquireLock(ctx, storageKey, idemLockTTL)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if replay(c, idem, storageKey, idemKey) {
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		v, err := svcs.Reservation.Request(ctx, eventID, caller.UserID, req.Seats)
		if err != nil {
			if storageKey != "" {
				_ = idem.Release(ctx, storageKey)
			}
			respondErr(c, err)
			return
		}

		if storageKey != "" {
			b, _ := json.Marshal(v)
			_ = idem.SaveResult(ctx, storageKey, http.StatusCreated, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, v)
	}
}

func replay(c *gin.Context, idem Idempotency, storageKey, idemKey string) bool {
	status, payload, ok, _ := idem.GetResult(c.Request.Context(), storageKey)
	if !ok {
		return false
	}
	c.Header("Idempotency-Key", idemKey)
	c.Header("Idempotent-Replayed", "true")
	c.Data(status, "application/json; charset=utf-8", []byte(payload))
	return true
}

// @Summary  Confirm an open hold
// @Security BearerAuth
// @Param    id  path  string  true  "Reservation ID (uuid)"
// @Success  200 {object} domain.ReservationView
// @Failure  400 {object} ErrorResponse "not yet open / already confirmed"
// @Failure  404 {object} ErrorResponse
// @Failure  410 {object} ErrorResponse "hold expired"
// @Router   /reservations/{id}/confirm [post]
func handleConfirmReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		caller, err := callerFrom(c)
		if err != nil {
			respondErr(c, reservation.ErrUnauthorized)
			return
		}
		v, err := svcs.Reservation.Confirm(c.Request.Context(), id, caller.UserID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// @Summary  Get reservation
// @Security BearerAuth
// @Param    id  path  string  true  "Reservation ID (uuid)"
// @Success  200 {object} domain.ReservationView
// @Failure  404 {object} ErrorResponse
// @Router   /reservations/{id} [get]
func handleGetReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		caller, err := callerFrom(c)
		if err != nil {
			respondErr(c, reservation.ErrUnauthorized)
			return
		}
		v, err := svcs.Reservation.GetReservation(c.Request.Context(), id, caller)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// @Summary  List reservations of an event
// @Security BearerAuth
// @Param    id  path  int  true  "Event ID"
// @Success  200 {array} domain.ReservationView
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id}/reservations [get]
func handleListByEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		list, err := svcs.Reservation.ListByEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  List reservations of every showing of a movie
// @Security BearerAuth
// @Param    id  path  int  true  "Movie ID"
// @Success  200 {array} domain.ReservationView
// @Failure  404 {object} ErrorResponse
// @Router   /movies/{id}/reservations [get]
func handleListByMovie(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		movieID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		list, err := svcs.Reservation.ListByMovie(c.Request.Context(), movieID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  Create movie
// @Security BearerAuth
// @Param    req body  CreateMovieRequest true "payload"
// @Success  201 {object} CreateMovieResponse
// @Router   /admin/movies [post]
func handleCreateMovie(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateMovieRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		id, err := svcs.Admin.CreateMovie(c.Request.Context(), req.Title)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateMovieResponse{MovieID: id})
	}
}

// @Summary  Create event
// @Security BearerAuth
// @Param    req body  CreateEventRequest true "payload"
// @Success  201 {object} CreateEventResponse
// @Failure  404 {object} ErrorResponse "movie not found"
// @Router   /admin/events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		starts, err := parseRFC3339(req.StartsAt)
		if err != nil {
			badRequest(c, "invalid starts_at (RFC3339)")
			return
		}
		id, err := svcs.Admin.CreateEvent(c.Request.Context(), req.MovieID, req.Capacity, starts)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateEventResponse{EventID: id})
	}
}

// @Summary  Create user
// @Security BearerAuth
// @Param    req body  CreateUserRequest true "payload"
// @Success  201 {object} CreateUserResponse
// @Failure  409 {object} ErrorResponse "email taken"
// @Router   /admin/users [post]
func handleCreateUser(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		id, err := svcs.Admin.CreateUser(c.Request.Context(), req.Email, req.Role)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateUserResponse{UserID: id})
	}
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, "internal error"

	switch {
	// admin service
	case errors.Is(err, admin.ErrMovieNotFound):
		status, msg = http.StatusNotFound, "movie not found"
	case errors.Is(err, admin.ErrUserConflict):
		status, msg = http.StatusConflict, "email already registered"
	case errors.Is(err, admin.ErrInvalidCapacity),
		errors.Is(err, admin.ErrInvalidRole),
		errors.Is(err, admin.ErrEmptyTitle):
		status, msg = http.StatusBadRequest, err.Error()
	// query service
	case errors.Is(err, query.ErrEventNotFound):
		status, msg = http.StatusNotFound, "event not found"
	// reservation service
	case errors.Is(err, reservation.ErrEventNotFound):
		status, msg = http.StatusNotFound, "event not found"
	case errors.Is(err, reservation.ErrMovieNotFound):
		status, msg = http.StatusNotFound, "movie not found"
	case errors.Is(err, reservation.ErrUserNotFound):
		status, msg = http.StatusNotFound, "user not found"
	case errors.Is(err, reservation.ErrReservationNotFound):
		status, msg = http.StatusNotFound, "reservation not found"
	case errors.Is(err, reservation.ErrCapacityExceeded):
		status, msg = http.StatusConflict, "not enough seats"
	case errors.Is(err, reservation.ErrNotYetOpen):
		status, msg = http.StatusBadRequest, "reservation is not open yet"
	case errors.Is(err, reservation.ErrAlreadyConfirmed):
		status, msg = http.StatusBadRequest, "reservation already confirmed"
	case errors.Is(err, reservation.ErrAlreadyExpired):
		status, msg = http.StatusGone, "reservation expired"
	case errors.Is(err, reservation.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, reservation.ErrInvalidSeatCount):
		status, msg = http.StatusBadRequest, "seats must be at least 1"
	default:
		_ = c.Error(err)
	}

	c.JSON(status, ErrorResponse{Error: msg})
}
