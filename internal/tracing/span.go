package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartSweepSpan starts the root span covering a whole sweep.
func StartSweepSpan(ctx context.Context, tracer trace.Tracer, runID string, levels []int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "sweep",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("crowdprobe.run_id", runID),
		attribute.IntSlice("crowdprobe.levels", levels),
	)
	return ctx, span
}

// StartTrialSpan starts a span covering one trial at the given concurrency level.
func StartTrialSpan(ctx context.Context, tracer trace.Tracer, level int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "trial",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(attribute.Int("crowdprobe.level", level))
	return ctx, span
}

// StartRequestSpan starts a client span for a single probe or hold request.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, operation, url string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, operation,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("http.request.method", http.MethodGet),
		attribute.String("url.full", url),
	)
	return ctx, span
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

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
