package graphstore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
)

// retryConfig mirrors the shape of pkg/adapters/resilience/retry.go's RetryConfig,
// narrowed to the fixed N=3/50ms/×2 policy spec.md §4.2 names for store
// operations.
var retryConfig = struct {
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
}{
	maxRetries:      3,
	initialInterval: 50 * time.Millisecond,
	maxInterval:     1 * time.Second,
	multiplier:      2.0,
}

// withRetry retries operation up to retryConfig.maxRetries times with
// exponential backoff, but only when isTransient(err) is true — a
// non-transient error is returned immediately via backoff.Permanent so the
// caller surfaces it as-is. Grounded on
// pkg/adapters/resilience/retry.go's Retry/RetryIfFn shape.
func withRetry(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryConfig.initialInterval
	b.MaxInterval = retryConfig.maxInterval
	b.Multiplier = retryConfig.multiplier

	bounded := backoff.WithMaxRetries(b, retryConfig.maxRetries)
	ctxBackoff := backoff.WithContext(bounded, ctx)

	return backoff.Retry(func() error {
		err := operation()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, ctxBackoff)
}

// isTransient classifies a driver-level error as retryable: connection
// loss, deadlocks, and serialization failures are transient; constraint
// violations, syntax errors, and permission errors are not.
func isTransient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08": // connection exception
			return true
		case "40": // transaction rollback (includes serialization failure, deadlock)
			return true
		case "53": // insufficient resources
			return true
		case "57": // operator intervention (admin shutdown, crash)
			return true
		default:
			return false
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	// Unrecognized errors (e.g. a closed network connection during a
	// pool hiccup) are assumed transient rather than surfaced as a
	// permanent schema/data problem.
	return true
}
