package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartOperationSpan starts a client span named after an RCP operation.
func StartOperationSpan(ctx context.Context, tracer trace.Tracer, op string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "rcp "+op,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("rpc.system", "rcp"),
		attribute.String("rpc.method", op),
	)
	return ctx, span
}

// StartInstanceSpan starts the parent span covering one instance lifecycle.
func StartInstanceSpan(ctx context.Context, tracer trace.Tracer, instanceID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "instance lifecycle",
		trace.WithAttributes(attribute.String("rstmdb.instance_id", instanceID)),
	)
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectPayload writes the W3C trace context of ctx into an event payload so
// the server-side event log carries the originating trace. Keys already set in
// payload are left untouched.
func InjectPayload(ctx context.Context, payload map[string]any) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		if _, exists := payload[k]; !exists {
			payload[k] = v
		}
	}
}
