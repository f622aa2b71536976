// Package errors provides the structured error taxonomy used across awclient.
// Every failure the client can observe is classified so that the dispatcher
// can decide, per queued request, whether to retry, drop or report it.
//
// # Error Categories
//
//   - Transient: the request may succeed later (server unreachable, timeouts, 5xx)
//   - Permanent: retrying cannot help (malformed payload, unknown bucket)
//   - Resource: the server is throttling (429)
//   - Internal: local failures such as queue storage errors or corrupt records
//
// # Remote errors
//
// A response with a non-2xx status becomes a Remote error carrying the
// status and body. Its code is derived from the status:
//
//	err := errors.Remote(400, `{"message":"bad timestamp"}`)
//	errors.IsRejected(err) // true: the dispatcher drops the request
//
//	err = errors.Remote(503, "")
//	errors.IsRetryable(err) // true: the request stays queued
//
// # Connectivity errors
//
// Requests that never got a response are Connectivity errors:
//
//	if errors.IsConnectivity(err) {
//	    // server down, keep buffering
//	}
//
// # JSON Serialization
//
// Errors serialize to JSON for logs and the CLI:
//
//	data, err := json.Marshal(clientErr)
package errors
