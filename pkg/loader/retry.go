package loader

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"time"

	"github.com/mounirtms/gridcore/pkg/errors"
)

// RetryPolicy defines retry behavior for transient load failures.
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64
}

// DefaultRetryPolicy returns the policy used for lazy page loads:
// three attempts with exponential backoff starting at one second.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    1 * time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

// NoRetryPolicy returns a policy that doesn't retry.
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 1,
	}
}

// Clone creates a copy of the retry policy.
func (rp *RetryPolicy) Clone() *RetryPolicy {
	out := *rp
	return &out
}

// WithMaxAttempts returns a new policy with updated max attempts.
func (rp *RetryPolicy) WithMaxAttempts(attempts int) *RetryPolicy {
	policy := rp.Clone()
	policy.MaxAttempts = attempts
	return policy
}

// WithDelay returns a new policy with updated delays.
func (rp *RetryPolicy) WithDelay(initial, max time.Duration) *RetryPolicy {
	policy := rp.Clone()
	policy.InitialDelay = initial
	policy.MaxDelay = max
	return policy
}

// Execute runs fn under the policy, retrying only when shouldRetry
// reports the error as transient.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	var lastErr error

	for attempt := 0; attempt < rp.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}

		// Don't retry on the last attempt
		if attempt == rp.MaxAttempts-1 {
			break
		}

		delay := rp.calculateDelay(attempt)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// GetDelay returns the delay for a specific attempt (for testing/preview).
func (rp *RetryPolicy) GetDelay(attempt int) time.Duration {
	return rp.calculateDelay(attempt)
}

// calculateDelay calculates the delay for a given attempt
func (rp *RetryPolicy) calculateDelay(attempt int) time.Duration {
	delay := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))

	if rp.MaxDelay > 0 && delay > float64(rp.MaxDelay) {
		delay = float64(rp.MaxDelay)
	}

	// Jitter
	if rp.RandomizeFactor > 0 {
		delta := delay * rp.RandomizeFactor
		minDelay := delay - delta
		maxDelay := delay + delta
		delay = minDelay + (rand.Float64() * (maxDelay - minDelay))
	}

	return time.Duration(delay)
}

// LoadWithRetry loads a query through l, retrying transient failures
// per the policy. Non-retryable errors return immediately; exhausted
// retries surface as a loader error wrapping the last failure.
func LoadWithRetry(ctx context.Context, l Loader, q Query, policy *RetryPolicy) (Result, error) {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	var result Result
	err := policy.Execute(ctx, func() error {
		var loadErr error
		result, loadErr = l.Load(ctx, q)
		return loadErr
	}, func(err error) bool {
		// Plain adapter errors are treated as transient; typed errors
		// answer for themselves.
		var typed *errors.Error
		if stderrors.As(err, &typed) {
			return errors.IsRetryable(err)
		}
		return true
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, err
		}
		var typed *errors.Error
		if stderrors.As(err, &typed) {
			return Result{}, err
		}
		return Result{}, errors.Wrap(err, errors.ErrorTypeLoader, "load failed after retries")
	}

	return result, nil
}
