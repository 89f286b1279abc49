// Package tracing wires OpenTelemetry spans for generation runs. Spans are
// emitted by the itemgen and orchestrator packages through the global
// tracer provider; without Setup they go to the no-op provider.
package tracing

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/abhisek/qbankgen/internal/logger"
)

// EnabledEnv turns tracing on when set to 1/true/yes/on.
const EnabledEnv = "QBANK_TRACE"

// Config controls the tracer provider.
type Config struct {
	ServiceName string
	Version     string

	// Writer receives spans as JSON lines. Defaults to stderr.
	Writer io.Writer

	// SampleRatio in [0,1]. Defaults to 1.
	SampleRatio float64
}

// Enabled reports whether QBANK_TRACE asks for tracing.
func Enabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnabledEnv))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Setup installs a global tracer provider exporting to cfg.Writer and
// returns its shutdown function, which flushes pending spans.
func Setup(ctx context.Context, log *logger.Logger, cfg Config) (func(context.Context) error, error) {
	log = logger.OrNop(log)
	if cfg.ServiceName == "" {
		cfg.ServiceName = "qbankgen"
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}
	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer))
	if err != nil {
		return nil, err
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	log.Debug("tracing initialized", "service", cfg.ServiceName, "sample_ratio", strconv.FormatFloat(ratio, 'f', -1, 64))
	return tp.Shutdown, nil
}
