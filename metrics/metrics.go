package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hyperledger-labs/interop-relayer/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
)

const (
	meterName     = "github.com/hyperledger-labs/interop-relayer"
	namespaceRoot = "relayer"
)

// Instruments default to no-ops so that the core can be used before InitializeMetrics is called.
var (
	meterProvider *metric.MeterProvider
	meter         api.Meter

	BundlesExtractedCounter   api.Int64Counter = noop.Int64Counter{}
	ProofsFetchedCounter      api.Int64Counter = noop.Int64Counter{}
	PollAttemptsCounter       api.Int64Counter = noop.Int64Counter{}
	SubmissionsCounter        api.Int64Counter = noop.Int64Counter{}
	FinalizedBlockHeightGauge *Int64SyncGauge
)

// Attribute keys of the relayer instruments.
const (
	StageKey   = attribute.Key("stage")
	ModeKey    = attribute.Key("mode")
	ResultKey  = attribute.Key("result")
	ChainIDKey = attribute.Key("chain_id")
)

type ExporterConfig interface {
	exporterType() string
}

type ExporterNull struct{}

func (e ExporterNull) exporterType() string { return "null" }

type ExporterProm struct {
	Addr string
}

func (e ExporterProm) exporterType() string { return "prometheus" }

// ExporterOTel records to the global MeterProvider installed by the OpenTelemetry SDK.
type ExporterOTel struct{}

func (e ExporterOTel) exporterType() string { return "otel" }

func InitializeMetrics(exporterConf ExporterConfig) error {
	var err error

	switch exporterConf := exporterConf.(type) {
	case ExporterNull:
		meterProvider = metric.NewMeterProvider()
		meter = meterProvider.Meter(meterName)
	case ExporterProm:
		if exporter, err := NewPrometheusExporter(exporterConf.Addr); err != nil {
			return err
		} else {
			meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
		}
		meter = meterProvider.Meter(meterName)
	case ExporterOTel:
		// the SDK owns the provider and shuts it down
		meterProvider = nil
		meter = otel.GetMeterProvider().Meter(meterName)
	default:
		panic("unexpected exporter type")
	}

	// create the instrument "relayer.bundles_extracted"
	name := fmt.Sprintf("%s.bundles_extracted", namespaceRoot)
	if BundlesExtractedCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of bundles decoded from source transactions"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.proofs_fetched"
	name = fmt.Sprintf("%s.proofs_fetched", namespaceRoot)
	if ProofsFetchedCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of inclusion proofs obtained"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.poll_attempts"
	name = fmt.Sprintf("%s.poll_attempts", namespaceRoot)
	if PollAttemptsCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of polls made while waiting for finality, proofs or roots"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.submissions"
	name = fmt.Sprintf("%s.submissions", namespaceRoot)
	if SubmissionsCounter, err = meter.Int64Counter(
		name,
		api.WithUnit("1"),
		api.WithDescription("number of bundle submissions by mode and result"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	// create the instrument "relayer.finalized_block_height"
	name = fmt.Sprintf("%s.finalized_block_height", namespaceRoot)
	if FinalizedBlockHeightGauge, err = NewInt64SyncGauge(
		meter,
		name,
		api.WithUnit("1"),
		api.WithDescription("latest finalized height observed on a source chain"),
	); err != nil {
		return fmt.Errorf("failed to create the instrument %s: %v", name, err)
	}

	return nil
}

func ShutdownMetrics(ctx context.Context) error {
	if meterProvider == nil {
		return nil
	}
	mp := meterProvider
	meterProvider = nil
	if err := mp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown the MeterProvider: %v", err)
	}
	return nil
}

func NewPrometheusExporter(addr string) (*prometheus.Exporter, error) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.GetLogger().Fatal("Prometheus exporter server failed", err, "addr", addr)
		}
	}()

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create the Prometheus Exporter: %v", err)
	}

	return exporter, nil
}
