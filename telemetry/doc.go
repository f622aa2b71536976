// Package telemetry provides OpenTelemetry tracing for queued deliveries.
//
// Each replay of a queued request gets a client span carrying the request
// ID, endpoint and outcome (delivered, retry or dropped). Bucket creation
// on reconnect gets a span of its own.
//
// Without InitProvider the global no-op tracer is used and spans cost
// nothing. To export:
//
//	p, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
//	    ServiceName: "aw-watcher-window",
//	    Endpoint:    "localhost:4318",
//	    Protocol:    "http",
//	    Insecure:    true,
//	})
//	defer p.Shutdown(ctx)
package telemetry
