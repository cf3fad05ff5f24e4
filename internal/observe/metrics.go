// Package observe provides application-wide observability primitives for
// DayMind: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] and served from /metrics by
// the operator server. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all DayMind metrics.
const meterName = "github.com/MrWong99/daymind"

// Capture window outcomes, used as the "outcome" attribute of
// [Metrics.CaptureWindows].
const (
	OutcomeKept        = "kept"
	OutcomeGated       = "gated"
	OutcomeNoSpeech    = "no_speech"
	OutcomeDeviceError = "device_error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// SegmenterDuration tracks how long speech segmentation of one capture
	// window takes.
	SegmenterDuration metric.Float64Histogram

	// UploadDuration tracks the latency of a single chunk delivery attempt.
	UploadDuration metric.Float64Histogram

	// --- Capture ---

	// CaptureWindows counts processed capture windows. Use with attribute:
	//   attribute.String("outcome", OutcomeKept|OutcomeGated|...)
	CaptureWindows metric.Int64Counter

	// CaptureLevel records the normalised peak level (0–1) of each
	// conditioned window.
	CaptureLevel metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// TranscriptsAppended counts transcript store writes. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	TranscriptsAppended metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of chunks waiting for delivery.
	QueueDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// both in-process segmentation and network uploads.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// levelBuckets splits the normalised 0–1 peak level into tenths.
var levelBuckets = []float64{
	0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SegmenterDuration, err = m.Float64Histogram("daymind.segmenter.duration",
		metric.WithDescription("Latency of speech segmentation per capture window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UploadDuration, err = m.Float64Histogram("daymind.upload.duration",
		metric.WithDescription("Latency of a chunk delivery attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CaptureLevel, err = m.Float64Histogram("daymind.capture.level",
		metric.WithDescription("Normalised peak input level of conditioned capture windows."),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(levelBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CaptureWindows, err = m.Int64Counter("daymind.capture.windows",
		metric.WithDescription("Total capture windows by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("daymind.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptsAppended, err = m.Int64Counter("daymind.transcripts.appended",
		metric.WithDescription("Total transcript store writes by status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("daymind.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("daymind.queue.depth",
		metric.WithDescription("Number of chunks waiting for delivery."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("daymind.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordCaptureWindow records one processed capture window.
func (m *Metrics) RecordCaptureWindow(ctx context.Context, outcome string) {
	m.CaptureWindows.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTranscript records one transcript store write.
func (m *Metrics) RecordTranscript(ctx context.Context, status string) {
	m.TranscriptsAppended.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
