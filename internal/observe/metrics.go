// Package observe provides application-wide observability primitives for
// Mirepoix: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all Mirepoix metrics.
const meterName = "github.com/mirepoix-app/mirepoix"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ConnectDuration tracks how long establishing a live session takes,
	// including the setup message.
	ConnectDuration metric.Float64Histogram

	// ToolDispatchDuration tracks how long one tool invocation takes from
	// receipt to acknowledgement.
	ToolDispatchDuration metric.Float64Histogram

	// --- Counters ---

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// Reconnects counts reconnect attempts. Use with attribute:
	//   attribute.String("outcome", "success"|"failure")
	Reconnects metric.Int64Counter

	// FramesCaptured counts conditioned uplink audio frames.
	FramesCaptured metric.Int64Counter

	// FramesScheduled counts playback frames handed to the output sink.
	FramesScheduled metric.Int64Counter

	// FramesDropped counts discarded playback frames. Use with attribute:
	//   attribute.String("reason", "corrupt"|"route")
	FramesDropped metric.Int64Counter

	// ContextPushes counts context synchronisation messages. Use with
	// attribute: attribute.String("status", ...)
	ContextPushes metric.Int64Counter

	// TimersFinished counts cooking timers that ran to zero.
	TimersFinished metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live cooking sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ConnectDuration, err = m.Float64Histogram("mirepoix.session.connect.duration",
		metric.WithDescription("Latency of live session establishment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolDispatchDuration, err = m.Float64Histogram("mirepoix.tool.dispatch.duration",
		metric.WithDescription("Latency of tool invocation dispatch, receipt to acknowledgement."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ToolCalls, err = m.Int64Counter("mirepoix.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("mirepoix.session.reconnects",
		metric.WithDescription("Total reconnect attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.FramesCaptured, err = m.Int64Counter("mirepoix.audio.frames.captured",
		metric.WithDescription("Total conditioned uplink audio frames."),
	); err != nil {
		return nil, err
	}
	if met.FramesScheduled, err = m.Int64Counter("mirepoix.audio.frames.scheduled",
		metric.WithDescription("Total playback frames handed to the output sink."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("mirepoix.audio.frames.dropped",
		metric.WithDescription("Total discarded playback frames by reason."),
	); err != nil {
		return nil, err
	}
	if met.ContextPushes, err = m.Int64Counter("mirepoix.context.pushes",
		metric.WithDescription("Total context synchronisation messages by status."),
	); err != nil {
		return nil, err
	}
	if met.TimersFinished, err = m.Int64Counter("mirepoix.timer.finished",
		metric.WithDescription("Total cooking timers that ran to zero."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("mirepoix.active_sessions",
		metric.WithDescription("Number of live cooking sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("mirepoix.http.request.duration",
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

// RecordToolCall records a tool call counter increment with the standard
// attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordReconnect records one reconnect attempt outcome.
func (m *Metrics) RecordReconnect(ctx context.Context, outcome string) {
	m.Reconnects.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordFrameDropped records one discarded playback frame.
func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordContextPush records one context synchronisation attempt.
func (m *Metrics) RecordContextPush(ctx context.Context, status string) {
	m.ContextPushes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
