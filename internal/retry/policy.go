package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Policy is the single retry policy shared by the provider decorator and the
// item generator: how many attempts, how long to wait, and what is worth
// another attempt.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64

	// Jitter is the +/- fraction applied to each wait. 0 disables it.
	Jitter float64

	// Retryable classifies an error. Nil means every non-context error is
	// retryable.
	Retryable func(error) bool

	// OnRetry, when set, is called with the failed attempt and its error
	// once the wait is over and the next attempt is about to start.
	OnRetry func(attempt int, err error)
}

// Delayer is implemented by errors that carry a server-provided retry hint,
// e.g. a rate-limit response with Retry-After.
type Delayer interface {
	RetryDelay() time.Duration
}

// Default returns the policy used when nothing is configured.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		InitialWait: 1 * time.Second,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

// Attempts returns MaxAttempts, never less than one.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// ShouldRetry reports whether err is worth another attempt. Context
// cancellation and deadline errors are never retried.
func (p Policy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// Backoff computes the wait before the attempt following attempt (0-based).
func (p Policy) Backoff(attempt int, err error) time.Duration {
	var d Delayer
	if errors.As(err, &d) && d.RetryDelay() > 0 {
		return d.RetryDelay()
	}

	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	wait := float64(p.InitialWait) * math.Pow(mult, float64(attempt))
	if p.MaxWait > 0 && wait > float64(p.MaxWait) {
		wait = float64(p.MaxWait)
	}

	if p.Jitter > 0 {
		wait += wait * p.Jitter * (2*rand.Float64() - 1)
	}
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}

// Wait sleeps for the backoff of attempt, returning early with the context
// error if ctx is done first.
func (p Policy) Wait(ctx context.Context, attempt int, err error) error {
	wait := p.Backoff(attempt, err)
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error
	n := p.Attempts()
	for attempt := range n {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !p.ShouldRetry(err) || attempt == n-1 {
			break
		}
		if werr := p.Wait(ctx, attempt, err); werr != nil {
			return werr
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
	}
	return lastErr
}
