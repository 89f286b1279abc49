package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// blockingProvider waits for the context to end before answering.
type blockingProvider struct{}

func (blockingProvider) Generate(ctx context.Context, _ Request) (*Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingProvider) ModelID() string { return "blocking" }

func TestTimeout_AttemptDeadline(t *testing.T) {
	p := WithTimeout(blockingProvider{}, 5*time.Millisecond)

	_, err := p.Generate(context.Background(), Request{})
	var to *ErrTimeout
	if !errors.As(err, &to) {
		t.Fatalf("expected ErrTimeout, got %T (%v)", err, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("ErrTimeout must not look like a caller deadline")
	}
}

func TestTimeout_CallerCancellationPassesThrough(t *testing.T) {
	p := WithTimeout(blockingProvider{}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Generate(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTimeout_ZeroDisables(t *testing.T) {
	mock := NewMockProvider()
	if p := WithTimeout(mock, 0); p != Provider(mock) {
		t.Fatal("expected provider to be returned unchanged")
	}
}

func TestTimeout_RetriedUnderPolicy(t *testing.T) {
	calls := 0
	var inner Provider = providerFunc(func(ctx context.Context, req Request) (*Response, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &Response{Content: json.RawMessage(`{"ok":true}`)}, nil
	})
	p := WithRetry(WithTimeout(inner, 5*time.Millisecond), retryConfig())

	resp, err := p.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Content) != `{"ok":true}` {
		t.Fatalf("unexpected content: %s", resp.Content)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

type providerFunc func(ctx context.Context, req Request) (*Response, error)

func (f providerFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

func (providerFunc) ModelID() string { return "func" }
