// cmd/server/server.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api"
	"github.com/codr1/courtbook/internal/api/auth"
	"github.com/codr1/courtbook/internal/api/bookings"
	"github.com/codr1/courtbook/internal/api/chat"
	"github.com/codr1/courtbook/internal/api/courts"
	"github.com/codr1/courtbook/internal/api/playerrequests"
	"github.com/codr1/courtbook/internal/api/reviews"
	"github.com/codr1/courtbook/internal/api/timeslots"
	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/config"
	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/email"
	"github.com/codr1/courtbook/internal/ratelimit"
	"github.com/codr1/courtbook/internal/scheduler"
	"github.com/codr1/courtbook/internal/seed"
	"github.com/codr1/courtbook/internal/slotlock"
	"github.com/codr1/courtbook/internal/store"
	"github.com/codr1/courtbook/internal/store/memstore"
	"github.com/codr1/courtbook/internal/store/sqlstore"
)

// app owns the long-lived collaborators behind the HTTP handler.
type app struct {
	handler http.Handler

	database *db.DB
	redis    *redis.Client
	notifier *email.BookingNotifier
	limiter  *ratelimit.Limiter

	closeOnce sync.Once
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	s, err := a.openStore(cfg)
	if err != nil {
		return nil, err
	}

	opts := booking.Options{
		ClaimMode:          booking.ClaimMode(strings.ToLower(cfg.Booking.ClaimMode)),
		AllowAnyTransition: cfg.Booking.AllowAnyTransition,
	}
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		locker := slotlock.NewRedis(a.redis, time.Duration(cfg.Booking.LockTTLSeconds)*time.Second)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := locker.Ping(pingCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		opts.Locker = locker
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using redis slot locks")
	}
	if cfg.Email.Enabled() {
		ses, err := email.NewSESClient(ctx, cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("init ses client: %w", err)
		}
		a.notifier = email.NewBookingNotifier(ses, s.Users(), email.DefaultSendTimeout)
		opts.Notifier = a.notifier
	} else {
		log.Info().Msg("SES not configured; booking emails disabled")
	}

	coordinator, err := booking.New(s, opts)
	if err != nil {
		return nil, fmt.Errorf("init booking coordinator: %w", err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.App.SecretKey, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}
	a.limiter = ratelimit.New(&ratelimit.Config{
		MaxAttempts:  cfg.RateLimit.LoginMaxAttempts,
		Lockout:      time.Duration(cfg.RateLimit.LoginLockoutSeconds) * time.Second,
		MaxIPPerHour: cfg.RateLimit.LoginMaxIPPerHour,
	})

	auth.InitHandlers(auth.Options{
		Store:              s,
		Tokens:             tokens,
		Limiter:            a.limiter,
		PhoneDefaultRegion: cfg.Auth.PhoneDefaultRegion,
	})
	courts.InitHandlers(s)
	timeslots.InitHandlers(s)
	bookings.InitHandlers(s, coordinator)
	playerrequests.InitHandlers(s)
	reviews.InitHandlers(s)
	chat.InitHandlers(s)
	chat.InitLive(tokens)

	if cfg.App.SeedDemo {
		seedCtx := log.Logger.WithContext(ctx)
		if _, err := seed.Demo(seedCtx, s, time.Now()); err != nil {
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
	}

	if err := scheduler.Init(); err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	if cfg.Scheduler.Enabled {
		svc, err := scheduler.ServiceInstance()
		if err != nil {
			return nil, err
		}
		maintenance := scheduler.Maintenance{Coordinator: coordinator, Store: s}
		if err := maintenance.Register(svc, cfg.Scheduler); err != nil {
			return nil, fmt.Errorf("register scheduler jobs: %w", err)
		}
	}

	router := http.NewServeMux()
	registerRoutes(router)

	a.handler = api.ChainMiddleware(
		router,
		api.WithMetrics,
		api.WithAuth,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
	)
	ok = true
	return a, nil
}

func (a *app) openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		log.Warn().Msg("Using in-memory store; data is lost on restart")
		return memstore.New(), nil
	default:
		database, err := db.NewFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.database = database
		log.Info().Str("filename", cfg.Database.Filename).Msg("Database ready")
		return sqlstore.New(database), nil
	}
}

// Close stops background work and releases connections. Safe to call twice.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		if _, err := scheduler.ServiceInstance(); err == nil {
			if err := scheduler.Stop(); err != nil {
				log.Error().Err(err).Msg("Failed to stop scheduler")
			}
		}
		if a.notifier != nil {
			a.notifier.Close()
		}
		if a.limiter != nil {
			a.limiter.Close()
		}
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close redis client")
			}
		}
		if a.database != nil {
			if err := a.database.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close database")
			}
		}
	})
}

func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	// Auth routes
	mux.HandleFunc("POST /api/auth/register", auth.HandleRegister)
	mux.HandleFunc("POST /api/auth/login", auth.HandleLogin)
	mux.HandleFunc("GET /api/auth/me", auth.HandleMe)

	// Court routes
	mux.HandleFunc("GET /api/courts", courts.HandleListCourts)
	mux.HandleFunc("POST /api/courts", courts.HandleCreateCourt)
	mux.HandleFunc("GET /api/courts/{id}", courts.HandleGetCourt)
	mux.HandleFunc("PUT /api/courts/{id}", courts.HandleUpdateCourt)
	mux.HandleFunc("DELETE /api/courts/{id}", courts.HandleDeleteCourt)

	// Time slot routes
	mux.HandleFunc("GET /api/time-slots/{courtId}/{date}", timeslots.HandleListSlots)
	mux.HandleFunc("POST /api/time-slots", timeslots.HandleCreateSlot)
	mux.HandleFunc("POST /api/time-slots/generate", timeslots.HandleGenerateSlots)

	// Booking routes
	mux.HandleFunc("GET /api/bookings/user", bookings.HandleListUserBookings)
	mux.HandleFunc("GET /api/bookings/court/{courtId}", bookings.HandleListCourtBookings)
	mux.HandleFunc("POST /api/bookings", bookings.HandleCreateBooking)
	mux.HandleFunc("PATCH /api/bookings/{id}/status", bookings.HandleUpdateBookingStatus)

	// Player request routes
	mux.HandleFunc("GET /api/player-requests", playerrequests.HandleListActive)
	mux.HandleFunc("GET /api/player-requests/user", playerrequests.HandleListUserRequests)
	mux.HandleFunc("POST /api/player-requests", playerrequests.HandleCreate)
	mux.HandleFunc("PATCH /api/player-requests/{id}/status", playerrequests.HandleUpdateStatus)

	// Review routes
	mux.HandleFunc("GET /api/reviews/court/{courtId}", reviews.HandleListCourtReviews)
	mux.HandleFunc("POST /api/reviews", reviews.HandleCreateReview)

	// Chat routes
	mux.HandleFunc("GET /api/chat/{receiverId}", chat.HandleConversation)
	mux.HandleFunc("POST /api/chat/{receiverId}", chat.HandleSend)
	mux.HandleFunc("GET /ws", chat.HandleLive)
}
