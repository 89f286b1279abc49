package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/abhisek/qbankgen/internal/logger"
	"github.com/abhisek/qbankgen/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogging_RecordsSuccessAndFailure(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{"ok":true}`), Usage: Usage{InputTokens: 1000, OutputTokens: 500}},
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
	)
	mock.SetModel("claude-sonnet-4-5-20250929")
	events := store.NewMemory()
	p := WithLogging(mock, events, logger.Nop())

	ctx := WithScope(WithPurpose(context.Background(), "item-gen"), "selective/reading/inference/d1/diagnostic")
	_, err := p.Generate(ctx, Request{System: "sys", Messages: []Message{{Role: RoleUser, Content: "write one"}}})
	require.NoError(t, err)
	_, err = p.Generate(ctx, Request{})
	require.Error(t, err)

	got, err := events.QueryLLMEvents(ctx, store.QueryOpts{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	failed, ok := got[0], got[1]
	assert.True(t, ok.Success)
	assert.Equal(t, "mock", ok.Provider)
	assert.Equal(t, "item-gen", ok.Purpose)
	assert.Equal(t, "selective/reading/inference/d1/diagnostic", ok.Scope)
	assert.Equal(t, 1000, ok.InputTokens)
	assert.Greater(t, ok.CostUSD, 0.0)
	assert.Contains(t, ok.RequestBody, "[system]\nsys")
	assert.Equal(t, `{"ok":true}`, ok.ResponseBody)

	assert.False(t, failed.Success)
	assert.Contains(t, failed.ErrorMessage, "unavailable")
}

func TestLogging_NilRepo(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`)})
	p := WithLogging(mock, nil, nil)
	_, err := p.Generate(context.Background(), Request{})
	require.NoError(t, err)
}
