package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Outcome of a delivery attempt.
const (
	OutcomeDelivered = "delivered"
	OutcomeRetry     = "retry"
	OutcomeDropped   = "dropped"
)

// Tracer wraps OpenTelemetry tracing with delivery helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include payloads in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracerFromProvider creates a tracer from a specific provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(name),
		debug:  debug,
	}
}

// --- Delivery Spans ---

// DeliverySpanOptions describes the result of replaying one request.
type DeliverySpanOptions struct {
	Outcome    string
	StatusCode int
	Backlog    int
	Payload    []byte // Only included if debug=true
}

// StartDeliverySpan starts a span for replaying a queued request.
func (t *Tracer) StartDeliverySpan(ctx context.Context, requestID, endpoint string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "queue.deliver", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("request.endpoint", endpoint),
	)
	return ctx, span
}

// EndDeliverySpan ends a delivery span with attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, opts DeliverySpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("delivery.outcome", opts.Outcome),
		attribute.Int("queue.backlog", opts.Backlog),
	}
	if opts.StatusCode != 0 {
		attrs = append(attrs, attribute.Int("http.response.status_code", opts.StatusCode))
	}
	if t.debug && len(opts.Payload) > 0 {
		attrs = append(attrs, attribute.String("request.payload", truncate(string(opts.Payload), 4000)))
	}
	span.SetAttributes(attrs...)
	endSpan(span, err)
}

// --- Bucket Spans ---

// StartBucketSpan starts a span for ensuring buckets exist on reconnect.
func (t *Tracer) StartBucketSpan(ctx context.Context, buckets []string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "buckets.ensure", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.StringSlice("bucket.ids", buckets))
	return ctx, span
}

// EndBucketSpan ends a bucket span.
func (t *Tracer) EndBucketSpan(span trace.Span, err error) {
	endSpan(span, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// --- Helpers ---

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
