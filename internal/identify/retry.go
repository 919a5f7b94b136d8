package identify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hoshi42/phonox/internal/identify/ierr"
)

// RetryPolicy configures the retryable-call primitive (§5): exponential
// backoff doubling from BaseBackoff and capped at MaxBackoff. The default
// allows 3 attempts, so it waits 1s and then 2s; the 4s cap is reached
// only with more attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy matches §5's stated schedule.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: 4 * time.Second}
}

// classifyCallError buckets an error into the §7 taxonomy with a
// substring-hint heuristic: errors already wrapping a sentinel keep it,
// errors whose message hints at a transient failure become
// provider_transient, and everything else becomes provider_fatal.
func classifyCallError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ierr.ErrParse) || errors.Is(err, ierr.ErrProviderFatal) || errors.Is(err, ierr.ErrProviderTransient) {
		return err
	}

	msg := strings.ToLower(err.Error())
	transientHints := []string{
		"timeout", "context deadline", "rate limit", "too many requests",
		"429", "temporar", "connection", "unavailable", "network", "i/o",
		"502", "503", "504",
	}
	for _, h := range transientHints {
		if strings.Contains(msg, h) {
			return errors.Join(err, ierr.ErrProviderTransient)
		}
	}
	return errors.Join(err, ierr.ErrProviderFatal)
}

// backoffFor computes the delay before attempt number `attempt` (1-based),
// capped at policy.MaxBackoff.
func backoffFor(policy RetryPolicy, attempt int) time.Duration {
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > 10 {
		shift = 10
	}
	backoff := policy.BaseBackoff * time.Duration(int64(1)<<uint(shift))
	if backoff > policy.MaxBackoff {
		backoff = policy.MaxBackoff
	}
	return backoff
}

// RetryableCall runs fn up to policy.MaxAttempts times, backing off between
// transient failures and giving up immediately on a fatal (non-transient)
// classification. It returns the last error, classified, if every attempt
// fails.
func RetryableCall(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(err, ierr.ErrDeadlineExceeded)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		classified := classifyCallError(err)
		lastErr = classified

		if !errors.Is(classified, ierr.ErrProviderTransient) {
			return classified
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := backoffFor(policy, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), ierr.ErrDeadlineExceeded)
		case <-timer.C:
		}
	}
	return lastErr
}
