package catalog

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// withRateLimitRetry runs call with a per-attempt timeout. A rate-limited attempt is
// retried exactly once after backoff; any other outcome is returned as is.
func withRateLimitRetry[T any](
	ctx context.Context,
	timeout, backoff time.Duration,
	logger *zap.Logger,
	call func(ctx context.Context) (T, error),
) (T, error) {
	result, err := attempt(ctx, timeout, call)
	if !errors.Is(err, ErrRateLimited) {
		return result, err
	}

	logger.Warn("Catalog rate limited, retrying once", zap.Duration("backoff", backoff))
	if err := sleep(ctx, backoff); err != nil {
		var zero T
		return zero, err
	}

	return attempt(ctx, timeout, call)
}

func attempt[T any](ctx context.Context, timeout time.Duration, call func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return call(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return call(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
