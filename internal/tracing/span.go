package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/lastrix/perftester/internal/metrics"
)

// Span attribute keys.
const (
	KeyPhase     = attribute.Key("perftester.phase")
	KeySession   = attribute.Key("perftester.session")
	KeyWorkload  = attribute.Key("perftester.workload")
	KeyWorkers   = attribute.Key("perftester.workers")
	KeyRound     = attribute.Key("perftester.round")
	KeyRequests  = attribute.Key("perftester.requests")
	KeyFailures  = attribute.Key("perftester.failures")
	KeyErrorKind = attribute.Key("perftester.error_kind")
)

// StartPhaseSpan starts an internal span named "perftester.<phase>" for one
// of the session phases: session, warmup, level or round.
func StartPhaseSpan(ctx context.Context, tracer trace.Tracer, phase string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "perftester."+phase,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(append([]attribute.KeyValue{KeyPhase.String(phase)}, attrs...)...),
	)
}

// EndSpan sets the final attributes and status of a phase span and ends it.
// A failed phase also records the error and its kind.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	if err == nil {
		span.SetStatus(codes.Ok, "")
		span.End()
		return
	}
	span.SetAttributes(KeyErrorKind.String(metrics.ClassifyError(err)))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

// InjectHTTPHeaders writes the W3C trace context of ctx into headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
