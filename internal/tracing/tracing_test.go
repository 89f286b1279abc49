package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestEnabled(t *testing.T) {
	t.Setenv(EnabledEnv, "")
	assert.False(t, Enabled())
	t.Setenv(EnabledEnv, "TRUE")
	assert.True(t, Enabled())
	t.Setenv(EnabledEnv, "0")
	assert.False(t, Enabled())
}

func TestSetup_ExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), nil, Config{Writer: &buf, Version: "test"})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "orchestrator.GenerateSection")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "orchestrator.GenerateSection")
	assert.Contains(t, buf.String(), "qbankgen")
}
