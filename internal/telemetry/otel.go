package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/hyperledger-labs/interop-relayer/metrics"
)

const (
	serviceName = "irly"

	// Some of the environment variables that the Go SDK doesn't support
	propagatorsKey     = "OTEL_PROPAGATORS"
	defaultPropagators = "tracecontext,baggage"

	// Environment variables for exporter selection
	// cf. https://opentelemetry.io/docs/specs/otel/configuration/sdk-environment-variables/#exporter-selection
	tracesExporterKey      = "OTEL_TRACES_EXPORTER"
	metricsExporterKey     = "OTEL_METRICS_EXPORTER"
	logsExporterKey        = "OTEL_LOGS_EXPORTER"
	defaultTracesExporter  = "otlp"
	defaultMetricsExporter = "otlp"
	defaultLogsExporter    = "otlp"

	// Environment variables for the Prometheus exporter
	// cf. https://opentelemetry.io/docs/specs/otel/configuration/sdk-environment-variables/#prometheus-exporter
	prometheusHostKey     = "OTEL_EXPORTER_PROMETHEUS_HOST"
	prometheusPortKey     = "OTEL_EXPORTER_PROMETHEUS_PORT"
	defaultPrometheusHost = "localhost"
	defaultPrometheusPort = 9464

	// Custom environment variables similar to the OTLP exporter (https://opentelemetry.io/docs/specs/otel/protocol/exporter/)
	consoleTracesWriterKey      = "OTEL_EXPORTER_CONSOLE_TRACES_WRITER"
	consoleLogsWriterKey        = "OTEL_EXPORTER_CONSOLE_LOGS_WRITER"
	consoleMetricsWriterKey     = "OTEL_EXPORTER_CONSOLE_METRICS_WRITER"
	defaultConsoleTracesWriter  = "stdout"
	defaultConsoleLogsWriter    = "stdout"
	defaultConsoleMetricsWriter = "stdout"
)

// SetupOTelSDK bootstraps the OpenTelemetry pipeline using the environment variables
// described on https://opentelemetry.io/docs/specs/otel/configuration/sdk-environment-variables/.
// If it does not return an error, make sure to call shutdown for proper cleanup.
//
// Every signal is tagged with the irly service name and the given version.
// OTEL_RESOURCE_ATTRIBUTES and OTEL_SERVICE_NAME take precedence.
//
// Although the SDK specification states that an unknown enum value must be ignored with a warning,
// this function returns an error instead to make such issues more noticeable to users.
func SetupOTelSDK(ctx context.Context, version string) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	handleErr := func(inErr error) {
		err = errors.Join(inErr, shutdown(ctx))
	}

	res, err := newResource(ctx, version)
	if err != nil {
		handleErr(err)
		return
	}

	prop, err := newPropagator()
	if err != nil {
		handleErr(err)
		return
	}
	otel.SetTextMapPropagator(prop)

	tracerProvider, err := newTracerProvider(ctx, res)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	meterProvider, err := newMeterProvider(ctx, res)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	loggerProvider, err := newLoggerProvider(ctx, res)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	return
}

func newResource(ctx context.Context, version string) (*resource.Resource, error) {
	return resource.Merge(
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
		// the environment is applied last so that it can override the defaults
		resource.Environment(),
	)
}

func getEnv(envName, defaultValue string) string {
	if v := os.Getenv(envName); v != "" {
		return v
	}
	return defaultValue
}

// errUnsupportedExporter is returned by an exporter constructor that does not know the name
var errUnsupportedExporter = errors.New("unsupported exporter")

// forEachExporter calls add for every exporter named in the comma separated list of envName.
// "none" is skipped.
func forEachExporter(envName, defaultValue string, add func(name string) error) error {
	for _, name := range strings.Split(getEnv(envName, defaultValue), ",") {
		name = strings.TrimSpace(name)
		if name == "none" {
			continue
		}
		if err := add(name); errors.Is(err, errUnsupportedExporter) {
			return fmt.Errorf("unsupported exporter: %q from %s=%q", name, envName, os.Getenv(envName))
		} else if err != nil {
			return err
		}
	}
	return nil
}

func getWriter(envName, defaultValue string) (io.Writer, error) {
	v := getEnv(envName, defaultValue)
	switch v {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return nil, fmt.Errorf("unknown writer: %q from %s=%q", v, envName, os.Getenv(envName))
	}
}

func newPropagator() (propagation.TextMapPropagator, error) {
	var propagators []propagation.TextMapPropagator
	for _, propagator := range strings.Split(getEnv(propagatorsKey, defaultPropagators), ",") {
		switch strings.TrimSpace(propagator) {
		case "tracecontext":
			propagators = append(propagators, propagation.TraceContext{})
		case "baggage":
			propagators = append(propagators, propagation.Baggage{})
		default:
			return nil, fmt.Errorf("unsupported propagator: %q from %s=%q", propagator, propagatorsKey, os.Getenv(propagatorsKey))
		}
	}

	return propagation.NewCompositeTextMapPropagator(propagators...), nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	err := forEachExporter(tracesExporterKey, defaultTracesExporter, func(name string) error {
		var exp sdktrace.SpanExporter
		var err error
		switch name {
		case "otlp":
			exp, err = otlptracegrpc.New(ctx)
		case "console":
			writer, werr := getWriter(consoleTracesWriterKey, defaultConsoleTracesWriter)
			if werr != nil {
				return werr
			}
			exp, err = stdouttrace.New(stdouttrace.WithWriter(writer))
		default:
			return errUnsupportedExporter
		}
		if err != nil {
			return err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	err := forEachExporter(metricsExporterKey, defaultMetricsExporter, func(name string) error {
		var exp sdkmetric.Exporter
		var err error
		switch name {
		case "otlp":
			exp, err = otlpmetricgrpc.New(ctx)
		case "console":
			writer, werr := getWriter(consoleMetricsWriterKey, defaultConsoleMetricsWriter)
			if werr != nil {
				return werr
			}
			exp, err = stdoutmetric.New(stdoutmetric.WithWriter(writer))
		case "prometheus":
			// the prometheus exporter is a pull reader serving /metrics
			addr := fmt.Sprintf("%s:%s", getEnv(prometheusHostKey, defaultPrometheusHost), getEnv(prometheusPortKey, fmt.Sprint(defaultPrometheusPort)))
			reader, err := metrics.NewPrometheusExporter(addr)
			if err != nil {
				return err
			}
			opts = append(opts, sdkmetric.WithReader(reader))
			return nil
		default:
			return errUnsupportedExporter
		}
		if err != nil {
			return err
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

func newLoggerProvider(ctx context.Context, res *resource.Resource) (*sdklog.LoggerProvider, error) {
	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	err := forEachExporter(logsExporterKey, defaultLogsExporter, func(name string) error {
		var exp sdklog.Exporter
		var err error
		switch name {
		case "otlp":
			exp, err = otlploggrpc.New(ctx)
		case "console":
			writer, werr := getWriter(consoleLogsWriterKey, defaultConsoleLogsWriter)
			if werr != nil {
				return werr
			}
			exp, err = stdoutlog.New(stdoutlog.WithWriter(writer))
		default:
			return errUnsupportedExporter
		}
		if err != nil {
			return err
		}
		opts = append(opts, sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sdklog.NewLoggerProvider(opts...), nil
}
