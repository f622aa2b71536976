package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Common errors.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrEmptyBody     = errors.New("response has no body")
)

// APIPrefix is prepended to every request path.
const APIPrefix = "/api/0/"

// Transport performs one request against the server and classifies the
// outcome. Implementations must be safe for concurrent use.
type Transport interface {
	// Get issues a GET. query is merged with any query string in path.
	Get(ctx context.Context, path string, query url.Values) (*Response, error)

	// Post issues a POST with a JSON body.
	Post(ctx context.Context, path string, body interface{}) (*Response, error)

	// Delete issues a DELETE, optionally with a JSON body.
	Delete(ctx context.Context, path string, body interface{}) (*Response, error)
}

// Response is a successful (2xx or 304) reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v interface{}) error {
	if len(r.Body) == 0 {
		return ErrEmptyBody
	}
	return json.Unmarshal(r.Body, v)
}

// NotModified reports whether the server answered 304.
func (r *Response) NotModified() bool {
	return r.StatusCode == http.StatusNotModified
}

// Config holds transport configuration.
type Config struct {
	// Protocol is "http" or "https".
	// Default: http
	Protocol string

	// Host is the server hostname.
	// Default: 127.0.0.1
	Host string

	// Port is the server port.
	// Default: 5600
	Port int

	// Timeout bounds a single request, including reading the body.
	// Default: 30s
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Protocol:  "http",
		Host:      "127.0.0.1",
		Port:      5600,
		Timeout:   30 * time.Second,
		UserAgent: "awclient",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Protocol != "http" && c.Protocol != "https" {
		return fmt.Errorf("%w: protocol must be http or https, got %q", ErrInvalidConfig, c.Protocol)
	}
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}

// BaseURL returns the API root, e.g. http://127.0.0.1:5600/api/0/.
func (c Config) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d%s", c.Protocol, c.Host, c.Port, APIPrefix)
}
