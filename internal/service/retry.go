package service

import (
	"context"
	"time"

	"github.com/dariov/coursekb/internal/logger"
)

// sleepFunc waits for d or until the context is done. Injectable so tests
// do not wait out real delays.
type sleepFunc func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retrier re-runs failing operations a fixed number of times with a fixed
// delay between attempts, re-raising the last error after exhaustion.
type retrier struct {
	attempts int
	delay    time.Duration
	sleep    sleepFunc
}

func newRetrier(attempts int, delay time.Duration) *retrier {
	if attempts < 1 {
		attempts = 1
	}
	return &retrier{attempts: attempts, delay: delay, sleep: contextSleep}
}

// Do runs fn up to the configured attempt count. The name labels the
// operation in retry logs.
func (r *retrier) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == r.attempts {
			break
		}
		logger.FromContext(ctx).WithError(lastErr).
			WithField(logger.FieldAttempt, attempt).
			Warnf("%s failed, retrying in %s", name, r.delay)
		if err := r.sleep(ctx, r.delay); err != nil {
			return err
		}
	}
	return lastErr
}
