package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MQPublishSpan starts a producer span and injects its context into headers.
func MQPublishSpan(ctx context.Context, exchange, routingKey string, headers map[string]interface{}) (context.Context, trace.Span) {
	ctx, span := Tracer().Start(ctx, "mq.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination", exchange),
			attribute.String("messaging.rabbitmq.routing_key", routingKey),
		),
	)
	otel.GetTextMapPropagator().Inject(ctx, NewMQHeaderCarrier(headers))
	return ctx, span
}

// MQConsumeSpan extracts the producer's context from headers and starts a
// consumer span under it.
func MQConsumeSpan(ctx context.Context, queue, routingKey string, headers map[string]interface{}) (context.Context, trace.Span) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, NewMQHeaderCarrier(headers))
	return Tracer().Start(ctx, "mq.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination", queue),
			attribute.String("messaging.rabbitmq.routing_key", routingKey),
		),
	)
}

// MQHeaderCarrier 实现 TextMapCarrier，读写 RabbitMQ 消息头中的 trace context
type MQHeaderCarrier struct {
	headers map[string]interface{}
}

// NewMQHeaderCarrier wraps headers; a nil map makes Set a no-op.
func NewMQHeaderCarrier(headers map[string]interface{}) *MQHeaderCarrier {
	return &MQHeaderCarrier{headers: headers}
}

func (c *MQHeaderCarrier) Get(key string) string {
	if v, ok := c.headers[key].(string); ok {
		return v
	}
	return ""
}

func (c *MQHeaderCarrier) Set(key, value string) {
	if c.headers != nil {
		c.headers[key] = value
	}
}

func (c *MQHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for k := range c.headers {
		keys = append(keys, k)
	}
	return keys
}
