package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	AttrTaskID   = attribute.Key("linkprobe.task.id")
	AttrTestType = attribute.Key("linkprobe.test.type")
	AttrOutcome  = attribute.Key("linkprobe.outcome")
	AttrAverage  = attribute.Key("linkprobe.average")
	AttrSamples  = attribute.Key("linkprobe.samples")
)

// StartTaskSpan starts the span covering one test run.
func StartTaskSpan(ctx context.Context, tracer trace.Tracer, id, testType string) (context.Context, trace.Span) {
	spanName := "linkprobe " + testType
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrTaskID.String(id),
			AttrTestType.String(testType),
		),
	)
	return ctx, span
}

// RecordSample adds a sample event carrying the running average.
func RecordSample(span trace.Span, index int, value, average float64) {
	if !span.IsRecording() {
		return
	}
	span.AddEvent("sample", trace.WithAttributes(
		attribute.Int("index", index),
		attribute.Float64("value", value),
		attribute.Float64("average", average),
	))
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
