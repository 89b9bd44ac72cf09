// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jdswan/sonicat/internal/config"
)

func TestNewProviderDisabledInstallsNoop(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		Enabled:      false,
		ServiceName:  "sonicat-tasks",
		ExporterType: "grpc",
	})
	require.NoError(t, err)
	require.Nil(t, provider.tp)

	tracer := otel.Tracer("probe")
	_, span := tracer.Start(context.Background(), "probe")
	require.False(t, span.IsRecording())
	span.End()
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "sonicat-tasks",
		ExporterType: "carrier-pigeon",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported exporter")
}

func TestShutdownOnNoopProvider(t *testing.T) {
	provider := &Provider{}
	require.NoError(t, provider.Shutdown(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, provider.Shutdown(ctx))
}

func TestTracerYieldsUsableSpans(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	tracer := Tracer("sonicat.runner")
	ctx, span := tracer.Start(context.Background(), "task.librosa.basic")
	require.NotNil(t, span)
	span.End()
	require.NotNil(t, trace.SpanFromContext(ctx))
}

func TestFromAppDerivesServiceName(t *testing.T) {
	cfg := &config.AppConfig{
		Telemetry: config.TelemetryConfig{
			Enabled:      true,
			Exporter:     "http",
			Endpoint:     "localhost:4318",
			SamplingRate: 0.25,
		},
	}
	got := FromApp(cfg, "librosa", "1.2.0")
	require.Equal(t, Config{
		Enabled:        true,
		ServiceName:    "sonicat-librosa",
		ServiceVersion: "1.2.0",
		ExporterType:   "http",
		Endpoint:       "localhost:4318",
		SamplingRate:   0.25,
	}, got)
}
