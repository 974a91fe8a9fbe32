package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/deckflow/deckflow-go/deckflow"
)

// MeterProvider global instance
var globalMeterProvider *sdkmetric.MeterProvider

// InitMetrics initializes OpenTelemetry metrics with Prometheus export.
func InitMetrics(serviceName string) (*sdkmetric.MeterProvider, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	globalMeterProvider = provider
	return provider, nil
}

// GetMeter returns a meter from the current global meter provider.
func GetMeter(name string) metric.Meter {
	// Always resolved through the global provider so tests can inject
	// their own.
	return otel.Meter(name)
}

// ShutdownMetrics gracefully shuts down the meter provider.
func ShutdownMetrics(ctx context.Context) error {
	if globalMeterProvider != nil {
		return globalMeterProvider.Shutdown(ctx)
	}
	return nil
}

// InstrumentedAPI wraps a document API with request, error, and latency
// instruments. It satisfies deckflow.DocumentAPI so it can be dropped
// in front of any backend.
type InstrumentedAPI struct {
	api              deckflow.DocumentAPI
	requestCounter   metric.Int64Counter
	errorCounter     metric.Int64Counter
	latencyHistogram metric.Float64Histogram
	batchSizeHist    metric.Int64Histogram
}

// NewInstrumentedAPI wraps api with metrics collection.
func NewInstrumentedAPI(api deckflow.DocumentAPI) (*InstrumentedAPI, error) {
	meter := GetMeter("deckflow.observability")

	requestCounter, err := meter.Int64Counter(
		"deckflow.document_api.requests",
		metric.WithDescription("Total number of document API requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"deckflow.document_api.errors",
		metric.WithDescription("Total number of document API errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	latencyHistogram, err := meter.Float64Histogram(
		"deckflow.document_api.latency",
		metric.WithDescription("Document API call latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create latency histogram: %w", err)
	}

	batchSizeHist, err := meter.Int64Histogram(
		"deckflow.document_api.batch_size",
		metric.WithDescription("Requests per batch update"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch size histogram: %w", err)
	}

	return &InstrumentedAPI{
		api:              api,
		requestCounter:   requestCounter,
		errorCounter:     errorCounter,
		latencyHistogram: latencyHistogram,
		batchSizeHist:    batchSizeHist,
	}, nil
}

// Document fetches the container tree with metrics collection.
func (m *InstrumentedAPI) Document(ctx context.Context, documentID string) (*deckflow.Document, error) {
	start := time.Now()
	doc, err := m.api.Document(ctx, documentID)
	m.record(ctx, "get_document", start, err)
	return doc, err
}

// BatchUpdate applies the mutation batch with metrics collection.
func (m *InstrumentedAPI) BatchUpdate(ctx context.Context, documentID string, requests []deckflow.Request) ([]deckflow.Reply, error) {
	start := time.Now()
	replies, err := m.api.BatchUpdate(ctx, documentID, requests)

	m.batchSizeHist.Record(ctx, int64(len(requests)),
		metric.WithAttributes(attribute.String("call", "batch_update")))
	m.record(ctx, "batch_update", start, err)
	return replies, err
}

func (m *InstrumentedAPI) record(ctx context.Context, call string, start time.Time, err error) {
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0
	attrs := []attribute.KeyValue{attribute.String("call", call)}

	if err != nil {
		errorAttrs := append(attrs,
			attribute.String("status", "error"),
			attribute.String("error.class", deckflow.Classify(err).String()),
		)
		m.requestCounter.Add(ctx, 1, metric.WithAttributes(errorAttrs...))
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(errorAttrs...))
		m.latencyHistogram.Record(ctx, latencyMs, metric.WithAttributes(errorAttrs...))
		return
	}

	successAttrs := append(attrs, attribute.String("status", "success"))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(successAttrs...))
	m.latencyHistogram.Record(ctx, latencyMs, metric.WithAttributes(successAttrs...))
}
