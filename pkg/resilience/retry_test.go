package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryer_Do_SucceedsAfterTransientFailures(t *testing.T) {
	retryer := NewRetryer(
		WithRetryMaxAttempts(3),
		WithRetryInitialDelay(time.Millisecond),
		WithRetryMaxDelay(5*time.Millisecond),
	)

	attempts := 0
	err := retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryer_Do_StopsOnPermanentError(t *testing.T) {
	retryer := NewRetryer(WithRetryMaxAttempts(5), WithRetryInitialDelay(time.Millisecond))

	attempts := 0
	err := retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return MarkPermanent(errors.New("fatal"))
	})

	var retryErr *RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected *RetryError, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a permanent error to stop after 1 attempt, got %d", attempts)
	}
}

func TestRetryer_Do_ExhaustsMaxAttempts(t *testing.T) {
	retryer := NewRetryer(WithRetryMaxAttempts(2), WithRetryInitialDelay(time.Millisecond))

	attempts := 0
	err := retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("still failing")
	})

	var retryErr *RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected *RetryError, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestRetryer_Do_HonorsContextCancellation(t *testing.T) {
	retryer := NewRetryer(WithRetryMaxAttempts(5), WithRetryInitialDelay(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retryer.Do(ctx, func(ctx context.Context) error {
		return errors.New("never reached meaningfully")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
