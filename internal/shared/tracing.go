package shared

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an otel tracer for engine operations
type Tracer struct{ tracer trace.Tracer }

// NewTracer creates a tracer from tp, falling back to the global provider
func NewTracer(name string, tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(name)}
}

// NewFileTracerProvider exports spans as JSON lines to w and installs the
// provider globally. Callers must Shutdown it to flush.
func NewFileTracerProvider(serviceName string, w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceNameKey.String(serviceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// AddSpanEvent records a named event on the span carried by ctx
func (t *Tracer) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// TraceStorageOperation runs fn inside a "storage.<operation>" span and
// marks the span failed when fn returns an error.
func (t *Tracer) TraceStorageOperation(ctx context.Context, operation string, fn func(context.Context) error) error {
	begin := time.Now()
	ctx, span := t.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(attribute.String("logkv.operation", operation)))
	defer span.End()

	err := fn(ctx)
	span.SetAttributes(attribute.Int64("logkv.duration_us", time.Since(begin).Microseconds()))
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
