package sleuth

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy is the shared resilience wrapper applied around every network
// and model call. It performs bounded exponential backoff with a capped
// maximum wait, and refuses to retry errors classified as permanent by
// IsRetryable, which then surface immediately without consuming the budget.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first. Zero
	// or one means no retries.
	MaxAttempts uint64
	// InitialWait is the backoff before the first retry.
	InitialWait time.Duration
	// MaxWait caps the backoff between attempts.
	MaxWait time.Duration
}

// DefaultRetryPolicy is three attempts with waits between one and ten
// seconds, enough to ride out transient network and provider hiccups.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		InitialWait: 1 * time.Second,
		MaxWait:     10 * time.Second,
	}
}

// Do runs fn under the policy. The operation name is only used for logging.
// Cancellation of ctx aborts the backoff wait and returns the context error.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, op string, fn func() error) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialWait
	exp.MaxInterval = p.MaxWait
	exp.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, attempts-1), ctx)

	attempt := 0
	wrapped := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("retrying operation",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	return backoff.RetryNotify(wrapped, policy, notify)
}
