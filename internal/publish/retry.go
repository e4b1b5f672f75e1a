package publish

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds the provider call loop: Attempts is the total number of
// HTTP attempts (not retries beyond the first), with exponential backoff
// starting at Backoff between them. Only 429 and 5xx responses re-enter the
// loop; 4xx client failures surface immediately.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy is 3 total attempts backed off 1s, 2s.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: time.Second}

// do runs fn under the policy. fn's *apiError results are retried while
// transient; the last error is returned once the attempt budget is spent, so
// an exhausted 429 surfaces RATE_LIMIT_EXCEEDED rather than a generic
// failure.
func (p RetryPolicy) do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(p.Backoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Retryable() {
			return retry.RetryableError(err)
		}
		return err
	})
}
