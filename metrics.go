package typebus

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type busMetrics struct {
	published   metric.Int64Counter
	subscribers metric.Int64UpDownCounter
	fanout      metric.Int64Histogram
	duration    metric.Float64Histogram
	dropped     metric.Int64Counter
}

func newBusMetrics() *busMetrics {
	meter := otel.Meter("typebus")

	m := new(busMetrics)
	m.published, _ = meter.Int64Counter("typebus.messages.published",
		metric.WithDescription("Number of messages published to the bus"),
		metric.WithUnit("{message}"))
	m.subscribers, _ = meter.Int64UpDownCounter("typebus.subscriptions",
		metric.WithDescription("Number of active subscriptions"),
		metric.WithUnit("{subscription}"))
	m.fanout, _ = meter.Int64Histogram("typebus.fanout.size",
		metric.WithDescription("Number of subscriptions per publish fan-out"),
		metric.WithUnit("{subscription}"))
	m.duration, _ = meter.Float64Histogram("typebus.publish.duration",
		metric.WithDescription("Latency of synchronous publish operations"),
		metric.WithUnit("ms"))
	m.dropped, _ = meter.Int64Counter("typebus.async.dropped",
		metric.WithDescription("Number of async publishes rejected by the dispatcher"),
		metric.WithUnit("{message}"))
	return m
}

func (m *busMetrics) observePublish(ctx context.Context, messageType string, fanout int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("message_type", messageType))
	if m.published != nil {
		m.published.Add(ctx, 1, attrs)
	}
	if m.fanout != nil {
		m.fanout.Record(ctx, int64(fanout), attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
}

func (m *busMetrics) subscriberDelta(ctx context.Context, messageType string, delta int64) {
	if m == nil || m.subscribers == nil {
		return
	}
	m.subscribers.Add(ctx, delta, metric.WithAttributes(attribute.String("message_type", messageType)))
}

func (m *busMetrics) observeDropped(ctx context.Context, messageType string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("message_type", messageType)))
}
