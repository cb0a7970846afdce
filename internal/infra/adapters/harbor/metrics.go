package harbor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/dexproxy/internal/telemetry"
)

type clientMetrics struct {
	environment string

	requests metric.Int64Counter
	latency  metric.Float64Histogram
	errors   metric.Int64Counter
}

func newClientMetrics() *clientMetrics {
	meter := otel.Meter("adapter.harbor")
	cm := &clientMetrics{
		environment: telemetry.Environment(),
		requests:    nil,
		latency:     nil,
		errors:      nil,
	}

	cm.requests, _ = meter.Int64Counter(telemetry.MetricUpstreamRequests,
		metric.WithDescription("Upstream calls issued against Harbor"),
		metric.WithUnit("{request}"))

	cm.latency, _ = meter.Float64Histogram(telemetry.MetricUpstreamDuration,
		metric.WithDescription("Round-trip latency of Harbor upstream calls"),
		metric.WithUnit("ms"))

	cm.errors, _ = meter.Int64Counter(telemetry.MetricUpstreamErrors,
		metric.WithDescription("Harbor upstream calls that ended in an error"),
		metric.WithUnit("{error}"))

	return cm
}

func (m *clientMetrics) record(ctx context.Context, op Op, b base, status int, elapsed time.Duration, result string) {
	if m == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := metric.WithAttributes(telemetry.UpstreamAttributes(m.environment, venueName, op.String(), b.String(), result)...)
	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if m.latency != nil && elapsed > 0 {
		m.latency.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	}
	if m.errors != nil && result != telemetry.ResultSuccess {
		m.errors.Add(ctx, 1, metric.WithAttributes(telemetry.ErrorAttributes(m.environment, venueName, op.String(), status)...))
	}
}

func resultFor(status int, err error) string {
	switch {
	case err == nil:
		return telemetry.ResultSuccess
	case status >= 400:
		return telemetry.ResultHTTPError
	case status == 0:
		return telemetry.ResultNetworkError
	default:
		return telemetry.ResultDecodeError
	}
}
