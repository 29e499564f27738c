package cache

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

func newTestRedisClient(t *testing.T) *database.RedisClient {
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
	return client
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	client := newTestRedisClient(t)
	c := NewRedisCache(client)
	ctx := context.Background()

	key := "ingestion:test:" + t.Name()
	helpers.RequireNoError(t, c.Set(ctx, key, []byte("payload"), time.Minute))

	exists, err := c.Exists(ctx, key)
	helpers.RequireNoError(t, err)
	helpers.AssertTrue(t, exists)

	got, err := c.Get(ctx, key)
	helpers.RequireNoError(t, err)
	helpers.AssertEqual(t, "payload", string(got))

	helpers.RequireNoError(t, c.Delete(ctx, key))

	got, err = c.Get(ctx, key)
	helpers.RequireNoError(t, err)
	helpers.AssertNil(t, got)
}

func TestRedisCache_Get_Miss(t *testing.T) {
	client := newTestRedisClient(t)
	c := NewRedisCache(client)

	got, err := c.Get(context.Background(), "ingestion:test:missing-key")
	helpers.RequireNoError(t, err)
	helpers.AssertNil(t, got)
}
