// Package queue adapts the service's RabbitMQ event bus to the application
// layer's EventQueue port, carrying accepted events from C3's HTTP ingress
// to the worker's C5-C9 pipeline (§5).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/originsignal/ingestion/internal/ingestion/application/ports"
	"github.com/originsignal/ingestion/pkg/config"
	"github.com/originsignal/ingestion/pkg/events"
	"github.com/originsignal/ingestion/pkg/logger"
	"github.com/originsignal/ingestion/pkg/resilience"
)

// attemptHeaderKey names the events.Event.Metadata entry carrying the retry
// count, since Metadata is the only per-message extension point the shared
// envelope exposes. Metadata travels inside the JSON message body; it is not
// copied into the AMQP headers.
const attemptHeaderKey = "attempt"

// Queue implements ports.EventQueue on top of events.RabbitMQEventBus.
type Queue struct {
	bus          *events.RabbitMQEventBus
	log          *logger.Logger
	maxAttempts  int
	publishRetry *resilience.Retryer
}

// New creates a new Queue backed by a RabbitMQ connection. maxAttempts is
// read from cfg.MaxAttempts (§5's "queue retries up to 3 times with
// backoff"), defaulting to 3 when unset. Publishing itself gets its own
// short retry budget, since a momentary channel hiccup shouldn't fail an
// ingestion request outright.
func New(cfg *config.RabbitMQConfig, log *logger.Logger) (*Queue, error) {
	bus, err := events.NewRabbitMQEventBus(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create event queue: %w", err)
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	publishRetry := resilience.NewRetryer(
		resilience.WithRetryMaxAttempts(3),
		resilience.WithRetryInitialDelay(50*time.Millisecond),
		resilience.WithRetryMaxDelay(500*time.Millisecond),
	)

	return &Queue{bus: bus, log: log, maxAttempts: maxAttempts, publishRetry: publishRetry}, nil
}

var _ ports.EventQueue = (*Queue)(nil)

// Enqueue publishes a job for asynchronous processing.
func (q *Queue) Enqueue(ctx context.Context, job ports.EventJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal event job: %w", err)
	}

	evt := events.NewEvent(events.EventTypeTrackedEvent, job.WebsiteID, job.IdempotencyKey, map[string]interface{}{
		"job": json.RawMessage(data),
	})
	evt = evt.WithMetadata(attemptHeaderKey, fmt.Sprintf("%d", job.Attempt))
	for k, v := range job.Headers {
		evt = evt.WithMetadata(k, v)
	}

	if err := q.publishRetry.Do(ctx, func(ctx context.Context) error {
		return q.bus.Publish(ctx, evt)
	}); err != nil {
		return fmt.Errorf("failed to enqueue event job: %w", err)
	}
	return nil
}

// Consume registers a handler invoked for each delivered job. A failed job
// is republished with its attempt count incremented rather than left to the
// broker's native requeue, since amqp091-go carries no attempt counter of
// its own; once MaxAttempts is reached the job is logged and dropped
// (dead-lettered) instead of retried again (§5).
func (q *Queue) Consume(ctx context.Context, handler func(context.Context, ports.EventJob) error) error {
	return q.bus.Subscribe(ctx, []events.EventType{events.EventTypeTrackedEvent}, func(ctx context.Context, evt *events.Event) error {
		job, attempt, err := decodeJob(evt)
		if err != nil {
			q.log.Error().Err(err).Str("event_id", evt.ID).Msg("failed to decode queued event job, dropping")
			return nil
		}
		job.Attempt = attempt

		if err := handler(ctx, job); err != nil {
			if attempt >= q.maxAttempts {
				q.log.Error().
					Err(err).
					Int64("website_id", job.WebsiteID).
					Str("idempotency_key", job.IdempotencyKey).
					Int("attempt", attempt).
					Msg("event job permanently failed, dead-lettering")
				return nil
			}

			job.Attempt = attempt + 1
			if enqueueErr := q.Enqueue(ctx, job); enqueueErr != nil {
				return fmt.Errorf("failed to requeue event job after attempt %d: %w", attempt, enqueueErr)
			}
			q.log.Warn().
				Err(err).
				Int64("website_id", job.WebsiteID).
				Str("idempotency_key", job.IdempotencyKey).
				Int("attempt", attempt).
				Msg("event job failed, requeued for retry")
			return nil
		}
		return nil
	})
}

func decodeJob(evt *events.Event) (ports.EventJob, int, error) {
	raw, ok := evt.Data["job"]
	if !ok {
		return ports.EventJob{}, 0, fmt.Errorf("queued event %s missing job payload", evt.ID)
	}

	var data []byte
	switch v := raw.(type) {
	case json.RawMessage:
		data = v
	case string:
		data = []byte(v)
	default:
		marshaled, err := json.Marshal(v)
		if err != nil {
			return ports.EventJob{}, 0, fmt.Errorf("failed to re-marshal job payload: %w", err)
		}
		data = marshaled
	}

	var job ports.EventJob
	if err := json.Unmarshal(data, &job); err != nil {
		return ports.EventJob{}, 0, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}

	attempt := 1
	if raw, ok := evt.Metadata[attemptHeaderKey]; ok {
		var parsed int
		if _, err := fmt.Sscanf(raw, "%d", &parsed); err == nil && parsed > 0 {
			attempt = parsed
		}
	}

	return job, attempt, nil
}

// Close releases the underlying broker connection.
func (q *Queue) Close() error {
	return q.bus.Close()
}
