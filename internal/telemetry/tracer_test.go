package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func keepGlobalProvider(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestNewProvider_DisabledIsNoop(t *testing.T) {
	keepGlobalProvider(t)

	p, err := NewProvider(context.Background(), Config{Exporter: "grpc"})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))

	_, span := Tracer("test").Start(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.IsRecording())
}

func TestNewProvider_UnsupportedExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "zipkin"})
	require.ErrorIs(t, err, ErrUnsupportedExporter)
	assert.Contains(t, err.Error(), `"zipkin"`)
}

func TestNewProvider_HTTPExporterRecords(t *testing.T) {
	keepGlobalProvider(t)

	// Exporters connect lazily, so an unreachable endpoint is fine until a
	// span is exported.
	p, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		Exporter:     "http",
		Endpoint:     "127.0.0.1:1",
		SamplingRate: 1,
	})
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	_, span := Tracer("test").Start(context.Background(), "compress")
	assert.True(t, span.IsRecording())

	require.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()), "second shutdown returns the first result")
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		rate float64
		root string
	}{
		{1, "root:AlwaysOnSampler"},
		{2, "root:AlwaysOnSampler"},
		{0, "root:AlwaysOffSampler"},
		{-1, "root:AlwaysOffSampler"},
		{0.25, "root:TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		desc := newSampler(tt.rate).Description()
		assert.Contains(t, desc, "ParentBased")
		assert.Contains(t, desc, tt.root, "rate %v", tt.rate)
	}
}

func TestProvider_NilSafe(t *testing.T) {
	var p *Provider
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}
