package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already an *Error, it wraps it with the new message and keeps
// its code, category and remote status.
// Otherwise, it creates a new Internal error wrapping the original.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var clientErr *Error
	if errors.As(err, &clientErr) {
		wrapped := &Error{
			code:       clientErr.code,
			category:   clientErr.category,
			message:    message,
			cause:      err,
			metadata:   clientErr.Metadata(),
			retryable:  clientErr.retryable,
			timestamp:  clientErr.timestamp,
			statusCode: clientErr.statusCode,
			body:       clientErr.body,
			endpoint:   clientErr.endpoint,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsClientError attempts to extract a ClientError from an error chain.
// Returns nil if none is found.
func AsClientError(err error) ClientError {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr
	}
	return nil
}

// Is checks if the outermost *Error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.code == code
	}
	return false
}

// IsRetryable checks if the error is retryable.
func IsRetryable(err error) bool {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Retryable()
	}
	// Default to not retryable for foreign errors
	return false
}

// IsConnectivity reports whether the request failed before any response
// arrived.
func IsConnectivity(err error) bool {
	var clientErr *Error
	if !errors.As(err, &clientErr) || clientErr.statusCode != 0 {
		return false
	}
	switch clientErr.code {
	case ErrCodeNetworkErr, ErrCodeTimeout:
		return true
	}
	return false
}

// IsRemote reports whether the server answered with a non-2xx status.
func IsRemote(err error) bool {
	return StatusCode(err) != 0
}

// IsRejected reports whether the server refused the request itself: a 4xx
// that retrying cannot fix. Such requests are dropped from the queue.
func IsRejected(err error) bool {
	status := StatusCode(err)
	return status >= 400 && status < 500 && !IsRetryable(err)
}

// IsStorage reports whether the error came from the local queue store.
func IsStorage(err error) bool {
	return Is(err, ErrCodeStorage) || Is(err, ErrCodeCorruption)
}

// StatusCode extracts the HTTP status from a remote error, 0 otherwise.
func StatusCode(err error) int {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.statusCode
	}
	return 0
}

// Body extracts the response body from a remote error.
func Body(err error) string {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.body
	}
	return ""
}

// Code extracts the error code from an error, if available.
// Returns empty string if err is not an *Error.
func Code(err error) ErrorCode {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.code
	}
	return ""
}

// Category extracts the error category from an error, if available.
// Returns empty string if err is not an *Error.
func Category(err error) ErrorCategory {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.category
	}
	return ""
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}

// Join combines multiple errors into a single error.
// Uses errors.Join from the standard library.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// RecoverPanic converts a recovered panic value into an Error.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	return New(ErrCodePanic, message, WithMetadata("panic_value", fmt.Sprintf("%T", recovered)))
}
