package llm

import "context"

type contextKey string

const (
	purposeKey contextKey = "llm_purpose"
	scopeKey   contextKey = "llm_scope"
	attemptKey contextKey = "llm_attempt_observer"
)

// WithPurpose attaches a purpose label to the context for event logging.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom extracts the purpose label from the context.
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok {
		return v
	}
	return "unknown"
}

// WithScope attaches the quota cell being worked on, e.g.
// "selective/reading/inference/d2/practice_1".
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// ScopeFrom extracts the scope label from the context, or "".
func ScopeFrom(ctx context.Context) string {
	v, _ := ctx.Value(scopeKey).(string)
	return v
}

// AttemptObserver is told about every attempt a decorator retried inside a
// single Generate call. The final attempt is not reported; its outcome is
// what Generate returns.
type AttemptObserver func(model string, err error)

// WithAttemptObserver attaches fn to the context.
func WithAttemptObserver(ctx context.Context, fn AttemptObserver) context.Context {
	return context.WithValue(ctx, attemptKey, fn)
}

func attemptObserverFrom(ctx context.Context) AttemptObserver {
	fn, _ := ctx.Value(attemptKey).(AttemptObserver)
	return fn
}
