package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "relayloader"

// LoaderMetrics holds the instruments recorded by loaders and stores. A nil
// *LoaderMetrics records nothing.
type LoaderMetrics struct {
	cacheHits     metric.Int64Counter
	cacheMisses   metric.Int64Counter
	batches       metric.Int64Counter
	batchSize     metric.Int64Histogram
	queryDuration metric.Float64Histogram
}

// NewLoaderMetrics creates loader instruments on the global meter provider.
func NewLoaderMetrics() (*LoaderMetrics, error) {
	return NewLoaderMetricsWithMeter(otel.Meter(meterName))
}

// NewLoaderMetricsWithMeter creates loader instruments on meter.
func NewLoaderMetricsWithMeter(meter metric.Meter) (*LoaderMetrics, error) {
	cacheHits, err := meter.Int64Counter(
		"relayloader.loader.cache_hits",
		metric.WithDescription("Loads served from the per-request cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	cacheMisses, err := meter.Int64Counter(
		"relayloader.loader.cache_misses",
		metric.WithDescription("Loads that required a batch fetch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}

	batches, err := meter.Int64Counter(
		"relayloader.loader.batches",
		metric.WithDescription("Batch fetches issued by loaders"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batches counter: %w", err)
	}

	batchSize, err := meter.Int64Histogram(
		"relayloader.loader.batch_size",
		metric.WithDescription("Number of distinct keys in a batch fetch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch size histogram: %w", err)
	}

	queryDuration, err := meter.Float64Histogram(
		"relayloader.query.duration",
		metric.WithDescription("Duration of store queries in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query duration histogram: %w", err)
	}

	return &LoaderMetrics{
		cacheHits:     cacheHits,
		cacheMisses:   cacheMisses,
		batches:       batches,
		batchSize:     batchSize,
		queryDuration: queryDuration,
	}, nil
}

func (m *LoaderMetrics) RecordCacheHit(ctx context.Context, loader string) {
	if m == nil {
		return
	}
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("loader", loader)))
}

func (m *LoaderMetrics) RecordCacheMiss(ctx context.Context, loader string) {
	if m == nil {
		return
	}
	m.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("loader", loader)))
}

// RecordBatch records one flush of size distinct keys.
func (m *LoaderMetrics) RecordBatch(ctx context.Context, loader string, size int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("loader", loader))
	m.batches.Add(ctx, 1, attrs)
	m.batchSize.Record(ctx, int64(size), attrs)
}

// RecordQuery records a store query duration by operation and outcome.
func (m *LoaderMetrics) RecordQuery(ctx context.Context, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.queryDuration.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("error", err != nil),
	))
}

// RequestMetrics holds the HTTP-level GraphQL request instruments.
type RequestMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
}

// NewRequestMetrics creates request instruments on the global meter provider.
func NewRequestMetrics() (*RequestMetrics, error) {
	return NewRequestMetricsWithMeter(otel.Meter(meterName))
}

// NewRequestMetricsWithMeter creates request instruments on meter.
func NewRequestMetricsWithMeter(meter metric.Meter) (*RequestMetrics, error) {

	requestDuration, err := meter.Float64Histogram(
		"relayloader.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"relayloader.requests.total",
		metric.WithDescription("Total number of GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"relayloader.requests.active",
		metric.WithDescription("Number of active GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	return &RequestMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		activeRequests:  activeRequests,
	}, nil
}

// RecordRequest records a finished request.
func (m *RequestMetrics) RecordRequest(ctx context.Context, duration time.Duration, status int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Int("http.status_code", status))
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
}

func (m *RequestMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

func (m *RequestMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics creates both instrument sets on the global meter provider.
func InitMetrics() (*LoaderMetrics, *RequestMetrics, error) {
	loaderMetrics, err := NewLoaderMetrics()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize loader metrics: %w", err)
	}
	requestMetrics, err := NewRequestMetrics()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize request metrics: %w", err)
	}
	return loaderMetrics, requestMetrics, nil
}
