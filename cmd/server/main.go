package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/fleetrent/internal/handler"
	"github.com/yourorg/fleetrent/internal/infrastructure/redis"
	"github.com/yourorg/fleetrent/internal/observability/metrics"
	"github.com/yourorg/fleetrent/internal/observability/tracing"
	"github.com/yourorg/fleetrent/internal/repository"
	"github.com/yourorg/fleetrent/internal/security"
	"github.com/yourorg/fleetrent/internal/security/audit"
	"github.com/yourorg/fleetrent/internal/security/auth"
	"github.com/yourorg/fleetrent/internal/security/middleware"
	"github.com/yourorg/fleetrent/internal/security/ratelimit"
	"github.com/yourorg/fleetrent/internal/service"
	"github.com/yourorg/fleetrent/internal/worker"
	"github.com/yourorg/fleetrent/pkg/cache"
	"github.com/yourorg/fleetrent/pkg/config"
	"github.com/yourorg/fleetrent/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := newLogger(cfg.LogLevel)
	log.Info("starting fleetrent server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing (no-op without OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := tracing.Init(ctx, log, "fleetrent", cfg.Environment)
	if err != nil {
		log.Warn("tracing disabled", slog.String("error", err.Error()))
		shutdownTracing = func(context.Context) error { return nil }
	}

	// 4. Connect to Postgres
	pool, err := database.NewConnectionPool(ctx, &database.Config{
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		Database:        cfg.DBName,
		SSLMode:         cfg.DBSSLMode,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, log)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	db := pool.GetDB()

	// 5. Connect to Redis. The catalog cache is optional; the server runs
	// degraded without it.
	var redisClient *redis.Client
	if client, err := redis.NewClient(cfg.RedisURL); err != nil {
		log.Warn("redis unavailable, catalog cache disabled", slog.String("error", err.Error()))
	} else {
		redisClient = client
		defer redisClient.Close()
	}

	// 6. Repositories
	reservationRepo := repository.NewPostgresReservationRepository(db, log)
	vehicleRepo := repository.NewPostgresVehicleRepository(db, log)
	catalogRepo := repository.NewPostgresCatalogRepository(db, log)
	userRepo := repository.NewPostgresUserRepository(db, log)

	// 7. Services
	authz := security.NewAuthorizationService(log)
	roleCache := cache.New()
	reservationService := service.NewReservationService(reservationRepo, vehicleRepo, catalogRepo, userRepo, authz, roleCache, log)
	catalogService := service.NewCatalogService(vehicleRepo, catalogRepo, redisClient, cfg.CatalogCacheTTL, log)
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, "fleetrent")
	authService := service.NewAuthService(userRepo, tokenManager, cfg.TokenTTL, log)

	// 8. Handlers
	reservationHandler := handler.NewReservationHandler(reservationService, log)
	vehicleHandler := handler.NewVehicleHandler(catalogService, userRepo, authz, log)
	catalogHandler := handler.NewCatalogHandler(catalogService, log)
	authHandler := handler.NewAuthHandler(authService, log)

	var cachePinger handler.Pinger
	if redisClient != nil {
		cachePinger = redisClient
	}
	healthHandler := handler.NewHealthHandler(handler.PingerFunc(pool.Health), cachePinger, log)

	// 9. Security components
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitMax, cfg.RateLimitWin)
	auditLogger := audit.NewLogger(log)

	// 10. Routes
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	mux.HandleFunc("GET /api/reservations", reservationHandler.List)
	mux.HandleFunc("POST /api/reservations", reservationHandler.Create)
	mux.HandleFunc("PUT /api/reservations/{id}", reservationHandler.Update)
	mux.HandleFunc("POST /api/reservations/{id}", reservationHandler.Update)
	mux.HandleFunc("POST /api/reservations/{id}/cancel", reservationHandler.Cancel)
	mux.HandleFunc("DELETE /api/reservations/{id}", reservationHandler.Delete)

	mux.HandleFunc("GET /api/vehicles", vehicleHandler.List)
	mux.HandleFunc("GET /api/vehicles/available", vehicleHandler.Available)
	mux.HandleFunc("GET /api/vehicles/stats", vehicleHandler.Stats)
	mux.HandleFunc("GET /api/vehicles/{plate}", vehicleHandler.Get)
	mux.HandleFunc("POST /api/vehicles", vehicleHandler.Create)
	mux.HandleFunc("PUT /api/vehicles/{plate}", vehicleHandler.Update)
	mux.HandleFunc("PUT /api/vehicles/{plate}/state", vehicleHandler.SetState)
	mux.HandleFunc("POST /api/vehicles/{plate}/state", vehicleHandler.SetState)
	mux.HandleFunc("DELETE /api/vehicles/{plate}", vehicleHandler.Delete)

	mux.HandleFunc("GET /api/models", catalogHandler.Models)
	mux.HandleFunc("GET /api/brands", catalogHandler.Brands)
	mux.HandleFunc("GET /api/insurance", catalogHandler.Insurances)
	mux.HandleFunc("GET /api/branches", catalogHandler.Branches)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", healthHandler.Live)
	mux.HandleFunc("GET /readyz", healthHandler.Ready)

	// CORS honoring configured origins
	handlerWithCORS := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(cfg.CORSAllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(cfg.CORSAllowedOrigins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowedOrigins[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})

	// Chain middleware: request ID -> JWT -> audit -> rate limit -> CORS.
	// JWT runs first so audit attribution and the limiter key see the
	// authenticated user instead of falling back to the client IP.
	rootHandler := withRequestID(
		middleware.JWTMiddleware(tokenManager, log)(
			middleware.AuditMiddleware(auditLogger)(
				middleware.RateLimitMiddleware(rateLimiter, log)(handlerWithCORS),
			),
		),
		log,
	)
	rootHandler = metrics.HTTPMetricsMiddleware(rootHandler)
	rootHandler = otelhttp.NewHandler(rootHandler, "fleetrent.http")

	// 11. Background gauge refresh
	statsWorker := worker.NewStatsWorker(reservationRepo, log, cfg.StatsInterval)
	go statsWorker.Start(ctx)

	// 12. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Int("rate_limit", cfg.RateLimitMax),
		slog.Duration("rate_limit_window", cfg.RateLimitWin),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}

	cancel() // stop background workers
	rateLimiter.Stop()
	log.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

type requestIDKey struct{}

// withRequestID attaches a request ID to the context and response headers and
// logs one line per completed request.
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
