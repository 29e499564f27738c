// Ingestion API - Tracking Event Ingress
// =======================================
// Accepts tracking events over HTTP, authenticates the caller's ingestion
// token, validates and deduplicates the request, and hands it off to the
// worker queue for asynchronous processing.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/originsignal/ingestion/internal/ingestion/application/ports"
	"github.com/originsignal/ingestion/internal/ingestion/application/usecase"
	"github.com/originsignal/ingestion/internal/ingestion/infrastructure/cache"
	"github.com/originsignal/ingestion/internal/ingestion/infrastructure/persistence/postgres"
	"github.com/originsignal/ingestion/internal/ingestion/infrastructure/queue"
	"github.com/originsignal/ingestion/internal/ingestion/infrastructure/ratelimit"
	ingestionhttp "github.com/originsignal/ingestion/internal/ingestion/interfaces/http"
	"github.com/originsignal/ingestion/pkg/config"
	"github.com/originsignal/ingestion/pkg/database"
	"github.com/originsignal/ingestion/pkg/logger"
	"github.com/originsignal/ingestion/pkg/response"
	"github.com/originsignal/ingestion/pkg/tracer"
)

// Version information (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	cfg.App.Name = "ingestion-api"

	log := logger.New(logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Caller: cfg.Logger.Caller,
	})
	log = log.With().Service(cfg.App.Name).Logger()
	logger.SetGlobal(log)

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("Starting ingestion API")

	tr, err := tracer.New(&cfg.Tracer, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracer")
	}
	defer tr.Close(context.Background())

	db, err := database.NewPostgres(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer db.Close()

	redisClient, err := database.NewRedis(&cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	eventQueue, err := queue.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer eventQueue.Close()

	uow := postgres.NewUnitOfWork(db.SQLX)
	tokenCache := cache.NewRedisCache(redisClient)

	limiter := ratelimit.New(redisClient, ratelimit.Config{
		RequestsPerWindow: int(cfg.Ingestion.RateLimitPerSecond),
		Window:            time.Second,
		LocalBurst:        cfg.Ingestion.RateLimitBurst,
	})

	var clock ports.Clock = ports.SystemClock{}

	authUseCase := usecase.NewAuthenticateTokenUseCase(uow.TokenRepository(), tokenCache, clock)
	ingestUseCase := usecase.NewIngestEventUseCase(eventQueue, uow.EventRepository(), clock, cfg.Ingestion.MaxEventPropertyBytes)

	handler := ingestionhttp.NewHandler(ingestionhttp.HandlerDependencies{
		AuthUseCase:   authUseCase,
		IngestUseCase: ingestUseCase,
		RateLimiter:   limiter,
		Clock:         clock,
	})

	r := chi.NewRouter()
	r.Use(middleware.Compress(5))

	startTime := time.Now()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]response.HealthCheck)

		if err := db.Health(r.Context()); err != nil {
			checks["postgresql"] = response.HealthCheck{Status: "unhealthy", Message: err.Error()}
		} else {
			checks["postgresql"] = response.HealthCheck{Status: "healthy"}
		}

		if err := redisClient.Health(r.Context()); err != nil {
			checks["redis"] = response.HealthCheck{Status: "unhealthy", Message: err.Error()}
		} else {
			checks["redis"] = response.HealthCheck{Status: "healthy"}
		}

		status := "healthy"
		for _, check := range checks {
			if check.Status != "healthy" {
				status = "unhealthy"
				break
			}
		}

		response.Health(w, status, Version, time.Since(startTime), checks)
	})

	handler.RegisterRoutes(r)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
