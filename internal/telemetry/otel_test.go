package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func disableExporters(t *testing.T) {
	t.Setenv(tracesExporterKey, "none")
	t.Setenv(metricsExporterKey, "none")
	t.Setenv(logsExporterKey, "none")
}

func TestSetupOTelSDK(t *testing.T) {
	ctx := context.Background()

	t.Run("no exporters", func(t *testing.T) {
		disableExporters(t)
		shutdown, err := SetupOTelSDK(ctx, "v0.0.0-test")
		require.NoError(t, err)
		assert.NoError(t, shutdown(ctx))
	})
	t.Run("unsupported exporter", func(t *testing.T) {
		disableExporters(t)
		t.Setenv(tracesExporterKey, "none,zipkin")
		_, err := SetupOTelSDK(ctx, "v0.0.0-test")
		assert.ErrorContains(t, err, `unsupported exporter: "zipkin" from OTEL_TRACES_EXPORTER="none,zipkin"`)
	})
	t.Run("unsupported propagator", func(t *testing.T) {
		disableExporters(t)
		t.Setenv(propagatorsKey, "tracecontext,b3")
		_, err := SetupOTelSDK(ctx, "v0.0.0-test")
		assert.ErrorContains(t, err, `unsupported propagator: "b3"`)
	})
	t.Run("unknown console writer", func(t *testing.T) {
		disableExporters(t)
		t.Setenv(logsExporterKey, "console")
		t.Setenv(consoleLogsWriterKey, "file")
		_, err := SetupOTelSDK(ctx, "v0.0.0-test")
		assert.ErrorContains(t, err, `unknown writer: "file"`)
	})
}

func TestNewResource(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	res, err := newResource(context.Background(), "v1.2.3")
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, serviceName, attrs["service.name"])
	assert.Equal(t, "v1.2.3", attrs["service.version"])
}
