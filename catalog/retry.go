package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ridelines/drivetrain"
)

// baseDelay and maxRetries implement the retry policy spec.md section 4.3
// requires: 2 retries beyond the initial attempt, base delay 500ms,
// multiplier 2 (go-retry's exponential backoff doubles by default).
const (
	baseDelay  = 500 * time.Millisecond
	maxRetries = 2
)

// retryableErr marks err as retryable to go-retry's Do loop. Non-transient
// errors are returned unwrapped so Do stops immediately, per the
// "non-transient errors propagate immediately" rule in spec.md section 4.3.
func retryableErr(err error) error {
	return retry.RetryableError(err)
}

// WithBackoff runs fn under the catalog's exponential-backoff retry policy.
// fn is responsible for calling retryableErr on failures that should be
// retried; any other error returned by fn stops the loop immediately.
func WithBackoff(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff, err := retry.NewExponential(baseDelay)
	if err != nil {
		return err
	}
	backoff = retry.WithMaxRetries(maxRetries, backoff)

	err = retry.Do(ctx, backoff, fn)
	if err != nil {
		var transient *drivetrain.Transient
		if errors.As(err, &transient) {
			return transient
		}
		return err
	}
	return nil
}
