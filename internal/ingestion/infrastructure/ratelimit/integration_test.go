package ratelimit

import (
	"context"
	"flag"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/originsignal/ingestion/pkg/config"
	"github.com/originsignal/ingestion/pkg/database"
	"github.com/originsignal/ingestion/pkg/logger"
	"github.com/originsignal/ingestion/pkg/testing/containers"
	"github.com/originsignal/ingestion/pkg/testing/helpers"
)

var testRedisContainer *containers.RedisContainer

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	testRedisContainer, err = containers.NewRedisContainer(ctx, containers.DefaultRedisConfig())
	if err != nil {
		panic("failed to connect to test Redis: " + err.Error())
	}

	code := m.Run()
	os.Exit(code)
}

func newTestLimiter(t *testing.T, cfg Config) *Limiter {
	t.Helper()
	helpers.SkipIfShort(t)

	port, err := strconv.Atoi(testRedisContainer.Port)
	helpers.RequireNoError(t, err)

	client, err := database.NewRedis(&config.RedisConfig{
		Host:     testRedisContainer.Host,
		Port:     port,
		Password: testRedisContainer.Password,
		DB:       testRedisContainer.DB,
	}, logger.New(logger.Config{Level: "error"}))
	helpers.RequireNoError(t, err, "failed to connect to test Redis")
	t.Cleanup(func() { _ = client.Close() })

	return New(client, cfg)
}

// TestLimiter_AllowsUpToDistributedLimit exercises the Redis-backed counter:
// once RequestsPerWindow is exceeded within Window, further calls are denied
// even though the local bucket alone would still admit them.
func TestLimiter_AllowsUpToDistributedLimit(t *testing.T) {
	limiter := newTestLimiter(t, Config{
		RequestsPerWindow: 3,
		Window:            time.Minute,
		LocalBurst:        10,
	})

	key := "integration-test:" + t.Name()
	ctx := context.Background()
	t.Cleanup(func() { _ = limiter.Reset(ctx, key) })

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, key)
		helpers.RequireNoError(t, err)
		helpers.AssertTrue(t, allowed, "request %d should be allowed", i)
	}

	allowed, err := limiter.Allow(ctx, key)
	helpers.RequireNoError(t, err)
	helpers.AssertFalse(t, allowed, "request beyond the window limit should be denied")
}

func TestLimiter_Reset(t *testing.T) {
	limiter := newTestLimiter(t, Config{
		RequestsPerWindow: 1,
		Window:            time.Minute,
		LocalBurst:        5,
	})

	key := "integration-test:" + t.Name()
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, key)
	helpers.RequireNoError(t, err)
	helpers.AssertTrue(t, allowed)

	allowed, err = limiter.Allow(ctx, key)
	helpers.RequireNoError(t, err)
	helpers.AssertFalse(t, allowed)

	helpers.RequireNoError(t, limiter.Reset(ctx, key))

	allowed, err = limiter.Allow(ctx, key)
	helpers.RequireNoError(t, err)
	helpers.AssertTrue(t, allowed, "request after reset should be allowed again")
}
