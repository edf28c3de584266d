package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/persistent-state-go/statepersist"
)

const (
	statusSuccess = "success"
	statusError   = "error"
	attrStatus    = "status"
)

// TracingCollector implements statepersist.TracingCollector with the OpenTelemetry tracing API.
// Spans started here become children of the span in the incoming context.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a tracing collector on tracer, usually obtained from the TracerProvider.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan starts a span with attrs and returns the context carrying it.
func (t *TracingCollector) StartSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, statepersist.SpanContext) {

	spanCtx, span := t.tracer.Start(ctx, name, trace.WithAttributes(toAttributes(attrs)...))

	return spanCtx, &OTelSpanContext{span: span}
}

// FinishSpan sets the final attributes and status and ends the span.
// Spans not started by a TracingCollector are ignored.
func (t *TracingCollector) FinishSpan(spanCtx statepersist.SpanContext, status string, attrs map[string]string) {
	otelSpanCtx, ok := spanCtx.(*OTelSpanContext)
	if !ok {
		return
	}

	otelSpanCtx.span.SetAttributes(toAttributes(attrs)...)
	otelSpanCtx.SetStatus(status)
	otelSpanCtx.span.End()
}

var _ statepersist.TracingCollector = (*TracingCollector)(nil)

// OTelSpanContext implements statepersist.SpanContext by wrapping an OpenTelemetry span.
type OTelSpanContext struct {
	span trace.Span
}

// Span returns the wrapped OpenTelemetry span.
func (s *OTelSpanContext) Span() trace.Span {
	return s.span
}

// SetStatus maps "success" to codes.Ok and "error" to codes.Error.
// Any other status is recorded as a "status" attribute.
func (s *OTelSpanContext) SetStatus(status string) {
	switch status {
	case statusSuccess:
		s.span.SetStatus(codes.Ok, "")
	case statusError:
		s.span.SetStatus(codes.Error, "statepersist operation failed")
	default:
		s.span.SetAttributes(attribute.String(attrStatus, status))
	}
}

// AddAttribute adds a string attribute to the span.
func (s *OTelSpanContext) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

var _ statepersist.SpanContext = (*OTelSpanContext)(nil)
