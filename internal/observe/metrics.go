// Package observe provides application-wide observability primitives for
// Aircheck: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Aircheck metrics.
const meterName = "github.com/MrWong99/aircheck"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// FirstDeltaLatency tracks the delay between requesting a commentary
	// response and receiving its first text delta.
	FirstDeltaLatency metric.Float64Histogram

	// ResponseDuration tracks the delay between requesting a commentary
	// response and its completion.
	ResponseDuration metric.Float64Histogram

	// --- Counters ---

	// AudioFrames counts PCM frames forwarded to the realtime API.
	AudioFrames metric.Int64Counter

	// AudioBytes counts PCM bytes forwarded to the realtime API.
	AudioBytes metric.Int64Counter

	// Commits counts audio buffer commits sent to the realtime API.
	Commits metric.Int64Counter

	// Responses counts completed commentary responses. Use with attribute:
	//   attribute.String("status", ...)
	Responses metric.Int64Counter

	// TextDeltas counts text deltas received from the realtime API.
	TextDeltas metric.Int64Counter

	// RemoteErrors counts error events reported by the realtime API.
	RemoteErrors metric.Int64Counter

	// Connects counts websocket dial attempts. Use with attribute:
	//   attribute.String("status", ...)
	Connects metric.Int64Counter

	// DroppedMessages counts broadcast messages dropped because a subscriber
	// could not keep up.
	DroppedMessages metric.Int64Counter

	// --- Gauges ---

	// Subscribers tracks the number of connected commentary stream listeners.
	Subscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// model response latencies, which range from sub-second first deltas to
// multi-second full responses.
var latencyBuckets = []float64{
	0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.FirstDeltaLatency, err = m.Float64Histogram("aircheck.response.first_delta",
		metric.WithDescription("Latency from response request to first text delta."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResponseDuration, err = m.Float64Histogram("aircheck.response.duration",
		metric.WithDescription("Latency from response request to response completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AudioFrames, err = m.Int64Counter("aircheck.audio.frames",
		metric.WithDescription("Total PCM frames forwarded to the realtime API."),
	); err != nil {
		return nil, err
	}
	if met.AudioBytes, err = m.Int64Counter("aircheck.audio.bytes",
		metric.WithDescription("Total PCM bytes forwarded to the realtime API."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.Commits, err = m.Int64Counter("aircheck.realtime.commits",
		metric.WithDescription("Total audio buffer commits sent to the realtime API."),
	); err != nil {
		return nil, err
	}
	if met.Responses, err = m.Int64Counter("aircheck.realtime.responses",
		metric.WithDescription("Total completed commentary responses by status."),
	); err != nil {
		return nil, err
	}
	if met.TextDeltas, err = m.Int64Counter("aircheck.realtime.deltas",
		metric.WithDescription("Total text deltas received from the realtime API."),
	); err != nil {
		return nil, err
	}
	if met.RemoteErrors, err = m.Int64Counter("aircheck.realtime.errors",
		metric.WithDescription("Total error events reported by the realtime API."),
	); err != nil {
		return nil, err
	}
	if met.Connects, err = m.Int64Counter("aircheck.realtime.connects",
		metric.WithDescription("Total websocket dial attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.DroppedMessages, err = m.Int64Counter("aircheck.broadcast.dropped",
		metric.WithDescription("Total broadcast messages dropped on slow subscribers."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.Subscribers, err = m.Int64UpDownCounter("aircheck.stream.subscribers",
		metric.WithDescription("Number of connected commentary stream listeners."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("aircheck.http.request.duration",
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

// AddAudio records one forwarded PCM frame of n bytes.
func (m *Metrics) AddAudio(ctx context.Context, n int) {
	m.AudioFrames.Add(ctx, 1)
	m.AudioBytes.Add(ctx, int64(n))
}

// RecordConnect records a websocket dial attempt with the given outcome.
func (m *Metrics) RecordConnect(ctx context.Context, status string) {
	m.Connects.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordResponseDone records a completed commentary response with the status
// reported by the realtime API.
func (m *Metrics) RecordResponseDone(ctx context.Context, status string) {
	m.Responses.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
