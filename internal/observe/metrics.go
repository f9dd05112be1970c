// Package observe provides application-wide observability primitives for the
// tool-execution service: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all service metrics.
const meterName = "github.com/jbb-kryo/hive-protocol-sub002"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ExecutionDuration tracks tool handler latency, excluding the gate and
	// usage logging. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("kind", ...)
	ExecutionDuration metric.Float64Histogram

	// Executions counts execution attempts that passed the gate. Use with
	// attributes:
	//   attribute.String("tool", ...), attribute.String("kind", ...), attribute.String("status", ...)
	Executions metric.Int64Counter

	// GateRejections counts requests stopped by the authorization gate.
	// Use with attribute: attribute.String("code", ...) — the wire code, or
	// the HTTP status for codeless rejections.
	GateRejections metric.Int64Counter

	// UsageDropped counts audit records dropped because the usage buffer
	// was full.
	UsageDropped metric.Int64Counter

	// ActiveExecutions tracks the number of in-flight tool executions.
	ActiveExecutions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// the sub-second built-ins through the 30 s sandbox ceiling.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ExecutionDuration, err = m.Float64Histogram("hive.tool.execution.duration",
		metric.WithDescription("Latency of tool handler execution by tool and kind."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Executions, err = m.Int64Counter("hive.tool.executions",
		metric.WithDescription("Total tool execution attempts by tool, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.GateRejections, err = m.Int64Counter("hive.gate.rejections",
		metric.WithDescription("Total requests rejected by the authorization gate, by code."),
	); err != nil {
		return nil, err
	}
	if met.UsageDropped, err = m.Int64Counter("hive.usage.dropped",
		metric.WithDescription("Total audit records dropped due to a full usage buffer."),
	); err != nil {
		return nil, err
	}
	if met.ActiveExecutions, err = m.Int64UpDownCounter("hive.tool.active_executions",
		metric.WithDescription("Number of in-flight tool executions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("hive.http.request.duration",
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

// RecordExecution records one execution attempt: the counter with its status
// and the latency histogram.
func (m *Metrics) RecordExecution(ctx context.Context, tool, kind, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("kind", kind),
	)
	m.ExecutionDuration.Record(ctx, seconds, attrs)
	m.Executions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordRejection records one gate rejection by wire code.
func (m *Metrics) RecordRejection(ctx context.Context, code string) {
	m.GateRejections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("code", code)),
	)
}

// RecordUsageDrop records one dropped audit record.
func (m *Metrics) RecordUsageDrop(ctx context.Context) {
	m.UsageDropped.Add(ctx, 1)
}
