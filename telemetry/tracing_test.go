package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(debug bool) (*Tracer, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return NewTracerFromProvider(tp, "test", debug), rec
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestDeliverySpan(t *testing.T) {
	tr, rec := newRecordingTracer(false)

	_, span := tr.StartDeliverySpan(context.Background(), "id-1", "buckets/b/heartbeat")
	tr.EndDeliverySpan(span, DeliverySpanOptions{
		Outcome:    OutcomeDelivered,
		StatusCode: 200,
		Backlog:    3,
		Payload:    []byte(`{"secret":true}`),
	}, nil)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "queue.deliver" {
		t.Errorf("Name = %q", s.Name())
	}
	if v, _ := attr(s.Attributes(), "request.id"); v.AsString() != "id-1" {
		t.Errorf("request.id = %v", v)
	}
	if v, _ := attr(s.Attributes(), "delivery.outcome"); v.AsString() != OutcomeDelivered {
		t.Errorf("delivery.outcome = %v", v)
	}
	if v, _ := attr(s.Attributes(), "http.response.status_code"); v.AsInt64() != 200 {
		t.Errorf("status = %v", v)
	}
	if _, ok := attr(s.Attributes(), "request.payload"); ok {
		t.Error("payload must not be recorded outside debug mode")
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v", s.Status())
	}
}

func TestDeliverySpan_DebugAndError(t *testing.T) {
	tr, rec := newRecordingTracer(true)

	_, span := tr.StartDeliverySpan(context.Background(), "id-2", "buckets/b/events")
	tr.EndDeliverySpan(span, DeliverySpanOptions{
		Outcome: OutcomeRetry,
		Payload: []byte(strings.Repeat("x", 5000)),
	}, errors.New("connection refused"))

	s := rec.Ended()[0]
	v, ok := attr(s.Attributes(), "request.payload")
	if !ok {
		t.Fatal("payload should be recorded in debug mode")
	}
	if len(v.AsString()) != 4003 {
		t.Errorf("payload not truncated: %d", len(v.AsString()))
	}
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v", s.Status())
	}
	if _, ok := attr(s.Attributes(), "http.response.status_code"); ok {
		t.Error("no status code on connectivity failure")
	}
}

func TestBucketSpan(t *testing.T) {
	tr, rec := newRecordingTracer(false)
	_, span := tr.StartBucketSpan(context.Background(), []string{"a", "b"})
	tr.EndBucketSpan(span, nil)

	s := rec.Ended()[0]
	if v, _ := attr(s.Attributes(), "bucket.ids"); len(v.AsStringSlice()) != 2 {
		t.Errorf("bucket.ids = %v", v)
	}
}

func TestGetTracer_Noop(t *testing.T) {
	SetGlobalTracer(nil)
	tr := GetTracer()
	_, span := tr.StartDeliverySpan(context.Background(), "x", "y")
	tr.EndDeliverySpan(span, DeliverySpanOptions{Outcome: OutcomeDropped}, nil)
}

func TestInitProvider_RequiresEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if _, err := InitProvider(context.Background(), ProviderConfig{}); err == nil {
		t.Error("expected error without endpoint")
	}
}

func TestInitProvider_UnknownProtocol(t *testing.T) {
	_, err := InitProvider(context.Background(), ProviderConfig{Endpoint: "localhost:4318", Protocol: "carrier-pigeon"})
	if err == nil {
		t.Error("expected error for unknown protocol")
	}
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		endpoint, protocol string
		wantHost, wantProt string
		wantErr            bool
	}{
		{"localhost:4317", "", "localhost:4317", "grpc", false},
		{"localhost:4318", "", "localhost:4318", "http", false},
		{"http://collector:4317", "", "collector:4317", "http", false},
		{"https://collector", "grpc", "collector", "grpc", false},
		{"collector:9000", "http", "collector:9000", "http", false},
		{"collector:9000", "udp", "", "", true},
	}
	for _, tt := range tests {
		host, proto, err := splitEndpoint(tt.endpoint, tt.protocol)
		if (err != nil) != tt.wantErr {
			t.Errorf("splitEndpoint(%q, %q) error = %v", tt.endpoint, tt.protocol, err)
			continue
		}
		if host != tt.wantHost || proto != tt.wantProt {
			t.Errorf("splitEndpoint(%q, %q) = %q, %q; want %q, %q", tt.endpoint, tt.protocol, host, proto, tt.wantHost, tt.wantProt)
		}
	}
}
