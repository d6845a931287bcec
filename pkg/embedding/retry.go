package embedding

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryOnce retries operation once with a short exponential backoff,
// implementing the "EmbeddingFailed retried once; then surfaced" rule of
// spec.md §7. Grounded on pkg/adapters/resilience/retry.go.
func retryOnce(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.Multiplier = 2
	withRetries := backoff.WithMaxRetries(b, 1)
	ctxBackoff := backoff.WithContext(withRetries, ctx)

	return backoff.Retry(operation, ctxBackoff)
}
