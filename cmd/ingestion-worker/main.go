// Ingestion Worker - Tracking Event Processing
// =============================================
// Consumes accepted tracking events off the queue and runs them through
// identity resolution, sessionization, event persistence, touch
// management, and conversion attribution inside a single transaction per
// job.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/originsignal/ingestion/internal/ingestion/application/ports"
	"github.com/originsignal/ingestion/internal/ingestion/application/usecase"
	"github.com/originsignal/ingestion/internal/ingestion/infrastructure/persistence/postgres"
	"github.com/originsignal/ingestion/internal/ingestion/infrastructure/queue"
	"github.com/originsignal/ingestion/pkg/config"
	"github.com/originsignal/ingestion/pkg/database"
	"github.com/originsignal/ingestion/pkg/logger"
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

	cfg.App.Name = "ingestion-worker"

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
		Msg("Starting ingestion worker")

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

	eventQueue, err := queue.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer eventQueue.Close()

	uow := postgres.NewUnitOfWork(db.SQLX)
	var clock ports.Clock = ports.SystemClock{}

	processUseCase := usecase.NewProcessEventUseCase(uow, clock, usecase.ProcessEventConfig{
		SessionTimeout:       cfg.Ingestion.SessionTimeout,
		IPStitchWindow:       cfg.Ingestion.IPStitchWindow,
		CookiePresenceWindow: cfg.Ingestion.CookiePresenceWindow,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobTimeout := cfg.RabbitMQ.JobTimeout

	go func() {
		err := eventQueue.Consume(ctx, func(ctx context.Context, job ports.EventJob) error {
			return handleJob(ctx, processUseCase, job, jobTimeout, log)
		})
		if err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("Event consumer stopped unexpectedly")
		}
	}()

	log.Info().Msg("Worker started, consuming events")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker...")
	cancel()
	log.Info().Msg("Worker stopped")
}

// handleJob decodes the queued payload and runs it through the pipeline
// under a per-job deadline, so one stuck job can't hold its delivery (and
// the connection's prefetch slot) forever.
func handleJob(ctx context.Context, uc *usecase.ProcessEventUseCase, job ports.EventJob, jobTimeout time.Duration, log *logger.Logger) error {
	var payload usecase.EventPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		log.Error().Err(err).Str("idempotency_key", job.IdempotencyKey).Msg("failed to decode event payload, dropping job")
		return nil
	}

	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	result, err := uc.Execute(jobCtx, payload)
	if err != nil {
		return fmt.Errorf("failed to process event %s: %w", job.IdempotencyKey, err)
	}

	log.Info().
		Int64("website_id", payload.WebsiteID).
		Int64("event_id", result.EventID).
		Int64("customer_id", result.CustomerID).
		Int64("session_id", result.SessionID).
		Bool("no_customer", result.NoCustomer).
		Str("idempotency_key", job.IdempotencyKey).
		Msg("processed event")
	return nil
}
