package llmhandler

import (
	"context"
	"errors"
	"time"
)

// ErrAttemptsExhausted is returned when every retry attempt failed.
var ErrAttemptsExhausted = errors.New("llmhandler: retry attempts exhausted")

// RetryResult mirrors the teacher's generic RetryResult[T], kept
// non-generic here since the only caller retries a single concrete
// response type.
type RetryResult struct {
	Attempts  int
	LastError error
}

// WithRetry runs fn up to policy.MaxAttempts times, sleeping according to
// ComputeBackoff between attempts and honoring context cancellation.
// Per spec.md §4.5: failure of the last attempt is returned to the
// caller, which surfaces as a listener error so a later tick or restart
// retries the same envelope — the LLM call must therefore be idempotent
// from the store's perspective.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, fn func(attempt int) (T, error)) (T, RetryResult, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, RetryResult{Attempts: attempt, LastError: lastErr}, err
		}

		value, err := fn(attempt)
		if err == nil {
			return value, RetryResult{Attempts: attempt}, nil
		}
		lastErr = err

		if attempt < policy.MaxAttempts {
			if err := sleep(ctx, ComputeBackoff(policy, attempt)); err != nil {
				return zero, RetryResult{Attempts: attempt, LastError: lastErr}, err
			}
		}
	}
	return zero, RetryResult{Attempts: policy.MaxAttempts, LastError: lastErr}, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
