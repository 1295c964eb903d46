// Package retry implements jittered exponential backoff for exchange calls,
// ported from the teacher's pkg/retry. The exchange adapters call retry.Do
// around a single exchange request, and the grid engine uses it for sell
// placement; the scalping buy-filled handler runs its own attempt loop.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy defines how to retry an operation.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is a sensible default retry policy for exchange requests.
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// IsTransientFunc decides whether an error returned by fn should be retried.
type IsTransientFunc func(error) bool

// Do executes fn, retrying according to policy while isTransient(err) is
// true. It never retries past ctx cancellation.
func Do(ctx context.Context, policy Policy, isTransient IsTransientFunc, fn func() error) error {
	var err error
	backoff := policy.InitialBackoff

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !isTransient(err) {
			return err
		}

		if attempt == policy.MaxAttempts-1 {
			break
		}

		jitter := time.Duration(0)
		if backoff > 1 {
			jitter = time.Duration(rand.Int63n(int64(backoff / 2)))
		}
		sleepTime := backoff + jitter

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepTime):
			backoff = minDuration(backoff*2, policy.MaxBackoff)
		}
	}

	return err
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
