package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/JakeFAU/fetch-manifest/internal/config"
)

func TestInitTracingDisabled(t *testing.T) {
	t.Parallel()

	shutdown, err := InitTracing(context.Background(), config.TelemetryConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

// Not parallel: installs the global tracer provider.
func TestInitTracingWithoutExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := InitTracing(context.Background(), config.TelemetryConfig{
		TracingEnabled: true,
		ServiceName:    "fetch-manifest-test",
		SampleRatio:    1,
	}, nil)
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)

	_, span := otel.Tracer("test").Start(context.Background(), "probe")
	require.True(t, span.SpanContext().IsSampled())
	span.End()
	require.NoError(t, shutdown(context.Background()))
}
