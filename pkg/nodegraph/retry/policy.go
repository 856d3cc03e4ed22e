package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	// Values below 1 are treated as 1.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`

	// MaxBackoff caps the wait between attempts. Zero means no cap.
	MaxBackoff time.Duration `yaml:"max_backoff" json:"max_backoff"`

	// Factor multiplies the backoff after each attempt. Values below 1 are treated as 1.
	Factor float64 `yaml:"factor" json:"factor"`

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64 `yaml:"jitter" json:"jitter"`

	// Retryable optionally overrides IsRetryable.
	Retryable func(error) bool `yaml:"-" json:"-"`
}

// Default is the standard retry policy.
var Default = Policy{
	MaxAttempts:    3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
	Factor:         2.0,
	Jitter:         0.1,
}

// None runs exactly once.
var None = Policy{MaxAttempts: 1}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted, or ctx is done. fn receives the 1-based attempt number.
//
// Returns the number of attempts made and the last error.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}

	backoff := p.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, lastErr
			}
			return attempt - 1, err
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if attempt == maxAttempts || !retryable(lastErr) {
			return attempt, lastErr
		}

		timer := time.NewTimer(jittered(backoff, p.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, lastErr
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * factor)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return maxAttempts, lastErr
}

// jittered returns base +/- (base * jitter * random).
func jittered(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	delta := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + delta)
}
