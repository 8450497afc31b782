// Package llmhandler implements the LLM Handler (C5): it subscribes to
// UserCompletion/ToolResults events, drives a Provider through a
// jittered exponential backoff retry, and issues PutCompletion back
// through the owning Handler.
//
// The retry mechanics are grounded on the teacher's internal/backoff
// package (BackoffPolicy/ComputeBackoffWithRand/RetryWithBackoff),
// generalised from additive to the 50-150% multiplicative jitter spec.md
// §4.5 calls for.
package llmhandler

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy mirrors the teacher's BackoffPolicy shape but expresses
// jitter as a multiplicative range applied to the exponential base,
// rather than an additive fraction.
type RetryPolicy struct {
	BaseMs      float64
	MaxMs       float64
	Factor      float64
	JitterMin   float64
	JitterMax   float64
	MaxAttempts int
}

// DefaultRetryPolicy is spec.md §4.5's default: base 250ms, cap 5s,
// factor 2, 50-150% jitter, 4 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseMs:      250,
		MaxMs:       5000,
		Factor:      2,
		JitterMin:   0.5,
		JitterMax:   1.5,
		MaxAttempts: 4,
	}
}

// ComputeBackoff returns the delay before attempt (1-indexed), using the
// package's shared random source.
func ComputeBackoff(policy RetryPolicy, attempt int) time.Duration {
	return ComputeBackoffWithRand(policy, attempt, rand.Float64()) //nolint:gosec // jitter, not security-sensitive
}

// ComputeBackoffWithRand is the deterministic core, exposed for tests:
// base = min(maxMs, baseMs * factor^(attempt-1)); jitterFactor is
// linearly interpolated between JitterMin and JitterMax by randomValue
// in [0,1); total = base * jitterFactor.
func ComputeBackoffWithRand(policy RetryPolicy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := math.Min(policy.MaxMs, policy.BaseMs*math.Pow(policy.Factor, exp))
	jitterFactor := policy.JitterMin + (policy.JitterMax-policy.JitterMin)*randomValue
	total := base * jitterFactor
	return time.Duration(math.Round(total)) * time.Millisecond
}
