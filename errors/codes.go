package errors

import "net/http"

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: connection refused, timeouts, server-side faults.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: malformed payload, unknown bucket, permission denied.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates resource exhaustion or quota issues.
	// Examples: rate limiting, disk full.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors, bugs, or local failures.
	// Examples: corrupt queue records, assertion failures.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for common failure scenarios.
const (
	// Connectivity errors
	ErrCodeTimeout    ErrorCode = "TIMEOUT"     // Request timed out
	ErrCodeNetworkErr ErrorCode = "NETWORK_ERR" // Server unreachable

	// Remote errors (server answered with a non-2xx status)
	ErrCodeUnavailable   ErrorCode = "UNAVAILABLE"     // 502/503/504
	ErrCodeServerError   ErrorCode = "SERVER_ERROR"    // Other 5xx
	ErrCodeNotModified   ErrorCode = "NOT_MODIFIED"    // 304, resource already exists
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"   // 400/422
	ErrCodeUnauthorized  ErrorCode = "UNAUTHORIZED"    // 401
	ErrCodeForbidden     ErrorCode = "FORBIDDEN"       // 403
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"       // 404
	ErrCodeConflict      ErrorCode = "CONFLICT"        // 409
	ErrCodeRateLimit     ErrorCode = "RATE_LIMITED"    // 429
	ErrCodeRejected      ErrorCode = "REMOTE_REJECTED" // Any other non-2xx
	ErrCodeCanceled      ErrorCode = "CANCELED"        // Caller canceled the request
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"  // Local duplicate

	// Local errors
	ErrCodeStorage    ErrorCode = "STORAGE"    // Queue storage failure (disk full, I/O)
	ErrCodeCorruption ErrorCode = "CORRUPTION" // Undecodable queue record
	ErrCodeInternal   ErrorCode = "INTERNAL"   // Unexpected internal error
	ErrCodePanic      ErrorCode = "PANIC"      // Recovered from panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeNetworkErr, ErrCodeUnavailable, ErrCodeServerError:
		return CategoryTransient

	case ErrCodeNotModified, ErrCodeInvalidInput, ErrCodeUnauthorized, ErrCodeForbidden,
		ErrCodeNotFound, ErrCodeConflict, ErrCodeRejected, ErrCodeCanceled, ErrCodeAlreadyExists:
		return CategoryPermanent

	case ErrCodeRateLimit:
		return CategoryResource

	case ErrCodeStorage, ErrCodeCorruption, ErrCodeInternal, ErrCodePanic:
		return CategoryInternal

	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
func (c ErrorCode) DefaultRetryable() bool {
	return c.DefaultCategory().IsRetryable()
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:       "request timed out",
	ErrCodeNetworkErr:    "server unreachable",
	ErrCodeUnavailable:   "server temporarily unavailable",
	ErrCodeServerError:   "server error",
	ErrCodeNotModified:   "resource not modified",
	ErrCodeInvalidInput:  "invalid request",
	ErrCodeUnauthorized:  "authentication required",
	ErrCodeForbidden:     "access denied",
	ErrCodeNotFound:      "resource not found",
	ErrCodeConflict:      "conflicting request",
	ErrCodeRateLimit:     "rate limit exceeded",
	ErrCodeRejected:      "request rejected",
	ErrCodeCanceled:      "request canceled",
	ErrCodeAlreadyExists: "already exists",
	ErrCodeStorage:       "queue storage failure",
	ErrCodeCorruption:    "corrupt queue record",
	ErrCodeInternal:      "internal error",
	ErrCodePanic:         "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}

// CodeForStatus maps an HTTP status code to the error code a Remote error
// carries.
func CodeForStatus(status int) ErrorCode {
	switch status {
	case http.StatusNotModified:
		return ErrCodeNotModified
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrCodeInvalidInput
	case http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case http.StatusForbidden:
		return ErrCodeForbidden
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusRequestTimeout:
		return ErrCodeTimeout
	case http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrCodeUnavailable
	}
	if status >= 500 {
		return ErrCodeServerError
	}
	return ErrCodeRejected
}
