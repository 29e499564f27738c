package queue

import (
	"context"
	"flag"
	"os"
	"testing"
	"time"

	"github.com/originsignal/ingestion/internal/ingestion/application/ports"
	"github.com/originsignal/ingestion/pkg/config"
	"github.com/originsignal/ingestion/pkg/logger"
	"github.com/originsignal/ingestion/pkg/testing/containers"
	"github.com/originsignal/ingestion/pkg/testing/helpers"
)

var testBroker *containers.RabbitMQContainer

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var err error
	testBroker, err = containers.NewRabbitMQContainer(ctx, containers.DefaultRabbitMQConfig())
	if err != nil {
		panic("failed to connect to test RabbitMQ: " + err.Error())
	}

	code := m.Run()

	if testBroker != nil {
		_ = testBroker.Close()
	}
	os.Exit(code)
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	helpers.SkipIfShort(t)

	cfg := &config.RabbitMQConfig{
		URL:            testBroker.ConnectionURL(),
		Exchange:       "ingestion.events.test",
		ExchangeType:   "topic",
		Queue:          "ingestion.events.test.worker",
		ReconnectDelay: time.Second,
		MaxAttempts:    2,
		JobTimeout:     5 * time.Second,
	}
	q, err := New(cfg, logger.New(logger.Config{Level: "error"}))
	helpers.RequireNoError(t, err, "failed to construct queue")
	t.Cleanup(func() { _ = q.Close() })
	return q
}

// TestQueue_EnqueueConsume_Roundtrip enqueues one job and checks that a
// consumer whose handler succeeds receives it with its idempotency key
// intact.
func TestQueue_EnqueueConsume_Roundtrip(t *testing.T) {
	helpers.SkipIfShort(t)
	q := newTestQueue(t)

	job := ports.EventJob{
		WebsiteID:      1,
		IdempotencyKey: "integration-test-key",
		Payload:        []byte(`{"website_id":1}`),
		EnqueuedAt:     time.Now(),
		Attempt:        1,
	}
	helpers.RequireNoError(t, q.Enqueue(context.Background(), job))

	received := make(chan ports.EventJob, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go func() {
		_ = q.Consume(ctx, func(_ context.Context, j ports.EventJob) error {
			select {
			case received <- j:
			default:
			}
			return nil
		})
	}()

	select {
	case got := <-received:
		helpers.AssertEqual(t, job.IdempotencyKey, got.IdempotencyKey)
	case <-ctx.Done():
		t.Fatal("timed out waiting for queued job to be delivered")
	}
}
