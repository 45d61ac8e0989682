package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig bounds the retry loop. Zero values get the standard policy:
// three attempts starting at one second, doubling between attempts.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// sleep is swapped out by tests.
	sleep func(context.Context, time.Duration) error
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}

	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}

	if c.sleep == nil {
		c.sleep = sleepCtx
	}

	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// permanentError marks a failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps an error so Retry returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// Retry runs fn until it succeeds, the attempt budget runs out, the context
// expires, or fn returns a Permanent error. The delay doubles after every
// failed attempt.
func Retry(ctx context.Context, config RetryConfig, fn func(context.Context) error) error {
	config = config.withDefaults()

	var lastErr error

	delay := config.BaseDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var permanent *permanentError
		if errors.As(lastErr, &permanent) {
			return permanent.err
		}

		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}

		if attempt == config.MaxAttempts {
			break
		}

		if err := config.sleep(ctx, delay); err != nil {
			return err
		}

		delay *= 2
	}

	return fmt.Errorf("all %d attempts failed: %w", config.MaxAttempts, lastErr)
}
