package transport

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vinayprograms/awclient/errors"
	"github.com/vinayprograms/awclient/logging"
)

// HTTPTransport talks to the server over net/http.
type HTTPTransport struct {
	cfg    Config
	base   *url.URL
	client *http.Client
	logger *logging.Logger
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *HTTPTransport) {
		t.client = c
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = l.WithComponent("transport")
	}
}

// NewHTTP creates an HTTP transport.
func NewHTTP(cfg Config, opts ...Option) (*HTTPTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(cfg.BaseURL())
	if err != nil {
		return nil, errors.Wrap(err, "parse base url", errors.WithCategory(errors.CategoryPermanent))
	}

	t := &HTTPTransport{
		cfg:    cfg,
		base:   base,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// BaseURL returns the API root this transport talks to.
func (t *HTTPTransport) BaseURL() string {
	return t.base.String()
}

// Get issues a GET request.
func (t *HTTPTransport) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return t.do(ctx, http.MethodGet, path, query, nil)
}

// Post issues a POST request with a JSON body.
func (t *HTTPTransport) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return t.do(ctx, http.MethodPost, path, nil, body)
}

// Delete issues a DELETE request.
func (t *HTTPTransport) Delete(ctx context.Context, path string, body interface{}) (*Response, error) {
	return t.do(ctx, http.MethodDelete, path, nil, body)
}

// resolve joins path (which may carry its own query string) onto the base.
func (t *HTTPTransport) resolve(path string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	u := t.base.ResolveReference(ref)
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// encodeBody turns a body into bytes. Raw bytes pass through unchanged.
func encodeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		return json.Marshal(b)
	}
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, query url.Values, body interface{}) (*Response, error) {
	u, err := t.resolve(path, query)
	if err != nil {
		return nil, errors.InvalidInput("invalid request path: "+err.Error(), errors.WithEndpoint(path), errors.WithCause(err))
	}

	payload, err := encodeBody(body)
	if err != nil {
		return nil, errors.InvalidInput("encode request body: "+err.Error(), errors.WithEndpoint(path), errors.WithCause(err))
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, errors.Wrap(err, "build request", errors.WithEndpoint(path))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Accept", "application/json")
	if t.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", t.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug("request failed", map[string]interface{}{
			"method": method,
			"path":   path,
			"error":  err.Error(),
		})
		return nil, classify(ctx, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(ctx, path, err)
	}

	t.logger.Debug("request", map[string]interface{}{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	})

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok && resp.StatusCode != http.StatusNotModified {
		return nil, errors.Remote(resp.StatusCode, string(data), errors.WithEndpoint(path), errors.WithMetadata("method", method))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// classify maps a failure without a response onto the error taxonomy.
func classify(ctx context.Context, path string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, "request aborted", errors.WithEndpoint(path))
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.Timeout(err.Error(), errors.WithEndpoint(path), errors.WithCause(err))
	}
	return errors.Connectivity(err.Error(), errors.WithEndpoint(path), errors.WithCause(err))
}

var _ Transport = (*HTTPTransport)(nil)
