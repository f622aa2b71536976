// Package transport performs single HTTP exchanges with the event server.
//
// # Overview
//
// Every request goes to <protocol>://<host>:<port>/api/0/<path> with a
// UTF-8 JSON body. The transport never retries; it classifies what went
// wrong and leaves the decision to the caller:
//
//   - no response at all (refused, reset, DNS, timeout): errors.Connectivity
//   - a response with a non-2xx status: errors.Remote carrying status and body
//
// # Usage
//
//	t, _ := transport.NewHTTP(transport.DefaultConfig())
//	resp, err := t.Post(ctx, "buckets/my-bucket/heartbeat?pulsetime=5", e)
//	if errors.IsConnectivity(err) {
//	    // server is down
//	}
//
// A json.RawMessage or []byte body is sent verbatim, which is how the
// dispatcher replays queued payloads without re-encoding them.
package transport
