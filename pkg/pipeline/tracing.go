package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ib-77/batchpipe/pkg/pipeline"

func tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

func startInvokeSpan(ctx context.Context, t trace.Tracer, b EventBatch) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("batchpipe.batch.id", b.ID.String()),
		attribute.String("batchpipe.batch.type", string(b.Type())),
		attribute.Int("batchpipe.batch.messages", b.Len()),
	}
	if id := b.CorrelationID(); id != "" {
		attrs = append(attrs, attribute.String("batchpipe.batch.correlation_id", id))
	}
	return t.Start(ctx, "batchpipe.invoke", trace.WithAttributes(attrs...))
}

func recordAttempt(span trace.Span, attempt int, d time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.Int("attempt", attempt),
		attribute.Int64("duration_ms", d.Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	span.AddEvent("attempt", trace.WithAttributes(attrs...))
}

func endInvokeSpan(span trace.Span, attempts int, err error) {
	span.SetAttributes(attribute.Int("batchpipe.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
