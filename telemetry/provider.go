package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ErrNoEndpoint is returned by InitProvider when no collector is configured.
var ErrNoEndpoint = errors.New("telemetry endpoint not configured (set endpoint or OTEL_EXPORTER_OTLP_ENDPOINT)")

// ProviderConfig configures span export to an OTLP collector.
type ProviderConfig struct {
	// ServiceName names the watcher or tool. Falls back to
	// OTEL_SERVICE_NAME, then "awclient".
	ServiceName    string
	ServiceVersion string

	// ClientName and ServerAddress are attached to every span's resource
	// so traces from several watchers can be told apart.
	ClientName    string
	ServerAddress string

	// Endpoint is the collector, "host:port" or a URL. Falls back to
	// OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string

	// Protocol is "grpc" or "http". When empty it is taken from the
	// endpoint: an http(s):// URL or port 4318 means http, anything else
	// grpc.
	Protocol string

	Insecure bool

	// Debug records request endpoints and payload sizes on spans.
	Debug bool

	Headers map[string]string

	// SampleRatio is the fraction of delivery traces kept. Zero keeps
	// everything.
	SampleRatio float64

	BatchTimeout  time.Duration
	ExportTimeout time.Duration
}

// Provider owns the SDK tracer provider installed by InitProvider.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer *Tracer
}

// InitProvider installs a global tracer provider exporting to an OTLP
// collector. Shut it down to flush pending spans.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}
	hostport, protocol, err := splitEndpoint(endpoint, cfg.Protocol)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = os.Getenv("OTEL_SERVICE_NAME")
	}
	if serviceName == "" {
		serviceName = "awclient"
	}

	res, err := newResource(serviceName, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch protocol {
	case "grpc":
		exporter, err = grpcExporter(ctx, hostport, cfg)
	case "http":
		exporter, err = httpExporter(ctx, hostport, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s exporter: %w", protocol, err)
	}

	var batchOpts []sdktrace.BatchSpanProcessorOption
	if cfg.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}
	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batchOpts...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer := NewTracerFromProvider(tp, serviceName, cfg.Debug)
	SetGlobalTracer(tracer)
	return &Provider{tp: tp, tracer: tracer}, nil
}

// splitEndpoint strips any scheme from endpoint and settles the protocol.
func splitEndpoint(endpoint, protocol string) (hostport, proto string, err error) {
	hostport = endpoint
	scheme := ""
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", "", fmt.Errorf("telemetry endpoint %q: %w", endpoint, err)
		}
		scheme, hostport = u.Scheme, u.Host
	}

	proto = protocol
	if proto == "" {
		proto = "grpc"
		if scheme == "http" || scheme == "https" || strings.HasSuffix(hostport, ":4318") {
			proto = "http"
		}
	}
	if proto != "grpc" && proto != "http" {
		return "", "", fmt.Errorf("unknown telemetry protocol %q (use grpc or http)", proto)
	}
	return hostport, proto, nil
}

func newResource(serviceName string, cfg ProviderConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.ClientName != "" {
		attrs = append(attrs, attribute.String("awclient.name", cfg.ClientName))
	}
	if cfg.ServerAddress != "" {
		attrs = append(attrs, attribute.String("awclient.server", cfg.ServerAddress))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

func grpcExporter(ctx context.Context, hostport string, cfg ProviderConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(hostport)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	if cfg.ExportTimeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.ExportTimeout))
	}
	return otlptracegrpc.New(ctx, opts...)
}

func httpExporter(ctx context.Context, hostport string, cfg ProviderConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(hostport)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	if cfg.ExportTimeout > 0 {
		opts = append(opts, otlptracehttp.WithTimeout(cfg.ExportTimeout))
	}
	return otlptracehttp.New(ctx, opts...)
}

// Tracer returns the tracer bound to this provider.
func (p *Provider) Tracer() *Tracer {
	return p.tracer
}

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// ForceFlush exports pending spans without stopping.
func (p *Provider) ForceFlush(ctx context.Context) error {
	return p.tp.ForceFlush(ctx)
}
