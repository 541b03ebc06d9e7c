// Package retry defines the single backoff policy shared by client
// reconnection and transient-error retries.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

// Policy defines a retry strategy.
type Policy struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	JitterFactor float64       `json:"jitter_factor"` // 0.0-1.0
}

// DefaultPolicy returns the policy used for transient storage and
// identity-provider failures.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		JitterFactor: 0.25,
	}
}

// ReconnectPolicy returns the policy used by the client connection
// manager when the transport drops unexpectedly.
func ReconnectPolicy() Policy {
	return Policy{
		MaxAttempts:  10,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.3,
	}
}

// Delay calculates the capped exponential delay for a 1-based attempt,
// with jitter applied symmetrically around the raw delay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := time.Duration(float64(p.InitialDelay) * math.Pow(2, float64(attempt-1)))
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}

	if p.JitterFactor > 0 {
		jitter := float64(delay) * p.JitterFactor * (rand.Float64()*2 - 1)
		delay = time.Duration(float64(delay) + jitter)
		if delay < 0 {
			delay = 0
		}
	}

	return delay
}

// Exhausted reports whether the 1-based attempt count has hit the cap.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// Do runs fn, retrying transient errors per the policy. Authorization,
// validation, and auth errors are returned immediately.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !apperrors.IsTransient(lastErr) {
			return lastErr
		}
		if p.Exhausted(attempt) {
			return lastErr
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
