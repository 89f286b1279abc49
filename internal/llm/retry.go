package llm

import (
	"context"
	"errors"

	"github.com/abhisek/qbankgen/internal/retry"
)

// RetryProvider is a decorator that retries transient errors using the
// shared retry policy.
type RetryProvider struct {
	inner  Provider
	policy retry.Policy
}

// WithRetry wraps a Provider with retry logic. The policy's Retryable
// classifier defaults to IsTransient when unset.
func WithRetry(p Provider, policy retry.Policy) Provider {
	classify := policy.Retryable
	if classify == nil {
		classify = IsTransient
	}
	policy.Retryable = func(err error) bool {
		var stop permanent
		if errors.As(err, &stop) {
			return false
		}
		return classify(err)
	}
	return &RetryProvider{inner: p, policy: policy}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	invalidRetried := false

	policy := r.policy
	if observe := attemptObserverFrom(ctx); observe != nil {
		policy.OnRetry = func(_ int, err error) { observe(r.inner.ModelID(), err) }
	}
	err := policy.Do(ctx, func(int) error {
		var err error
		resp, err = r.inner.Generate(ctx, req)
		if err == nil {
			return nil
		}
		// Invalid output gets exactly one transport-level retry; the item
		// generator owns content-level retries with feedback.
		var invResp *ErrInvalidResponse
		if errors.As(err, &invResp) {
			if invalidRetried {
				return permanent{err}
			}
			invalidRetried = true
		}
		return err
	})
	if err != nil {
		var p permanent
		if errors.As(err, &p) {
			return nil, p.err
		}
		return nil, err
	}
	return resp, nil
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// permanent marks an error that must stop the retry loop.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }
