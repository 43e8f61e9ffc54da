package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName = "github.com/tless/tless-bench"
)

// StartSpan opens a span named after an orchestrator phase
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// EndSpan marks the span failed when err is set and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	span.End()
}

// RunAttributes tags spans and metrics with the unit of work
func RunAttributes(runID, baseline, workflow string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("run.id", runID)}
	if baseline != "" {
		attrs = append(attrs, attribute.String("baseline", baseline))
	}
	if workflow != "" {
		attrs = append(attrs, attribute.String("workflow", workflow))
	}
	return attrs
}
