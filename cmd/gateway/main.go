package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/lenslearn/ai-gateway/config"
	"github.com/lenslearn/ai-gateway/internal/auth"
	"github.com/lenslearn/ai-gateway/internal/billing"
	"github.com/lenslearn/ai-gateway/internal/governance"
	"github.com/lenslearn/ai-gateway/internal/profile"
	providerpkg "github.com/lenslearn/ai-gateway/internal/provider"
	"github.com/lenslearn/ai-gateway/internal/provider/gemini"
	"github.com/lenslearn/ai-gateway/internal/proxy"
	"github.com/lenslearn/ai-gateway/internal/seeder"
	"github.com/lenslearn/ai-gateway/internal/telemetry"
	"github.com/lenslearn/ai-gateway/internal/worker"
	"github.com/lenslearn/ai-gateway/pkg/ratelimit"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("lenslearn-ai-gateway", cfg)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	logger.Info("PostgreSQL connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to ping redis", zap.Error(err))
	}
	logger.Info("Redis connected")

	// 5. Stores
	authStore := auth.NewPostgresStore(pool)
	profileStore := profile.NewPostgresStore(pool)

	// 6. Governance core
	engine := governance.NewEngine(profileStore, governance.Models{
		Full:    cfg.ModelFull,
		Economy: cfg.ModelEconomy,
	}, logger)
	auditor := governance.NewAuditor(profileStore, logger)

	retries := worker.NewRetryQueue(auditor, logger)
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go retries.Process(workerCtx)

	// 7. AI backend behind a circuit breaker
	backend := providerpkg.WithBreaker(gemini.New(cfg.GeminiAPIKey))

	// 8. Coarse abuse limiter
	limiter := ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitTPM)

	// 9. HTTP handlers
	authMiddleware := auth.NewMiddleware(authStore, rdb, logger)
	tracer := otel.GetTracerProvider().Tracer("lenslearn-ai-gateway")
	handler := proxy.NewHandler(engine, auditor, retries, backend, profileStore, limiter, tracer, logger)

	billingSvc := billing.NewService(profileStore, logger)
	admin := proxy.NewAdminHandler(billingSvc, cfg.AdminToken, logger)

	// 10. Seed test user if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedTestUser(ctx, authStore, billingSvc, logger)
	}

	// 11. Routes
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"lenslearn-ai-gateway"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/v1/explanations", handler.HandleExplanation)
		r.Post("/v1/explanations/stream", handler.HandleExplanationStream)
		r.Post("/v1/scenes", handler.HandleScene)
		r.Get("/v1/usage", handler.HandleUsage)
	})

	// Billing collaborator surface
	r.Group(func(r chi.Router) {
		r.Use(admin.Middleware)
		r.Post("/v1/admin/profiles", admin.HandleCreateProfile)
		r.Post("/v1/admin/billing/upgrade", admin.HandleUpgrade)
		r.Post("/v1/admin/billing/reset", admin.HandleResetCycle)
	})

	// 12. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("AI gateway starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
