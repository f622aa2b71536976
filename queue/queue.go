package queue

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/awclient/errors"
	"github.com/vinayprograms/awclient/logging"
)

// FormatVersion identifies the on-disk record layout.
const FormatVersion = 1

// Backend names accepted by Open.
const (
	BackendBolt   = "bolt"
	BackendPebble = "pebble"
	BackendMemory = "memory"
)

// Common errors.
var (
	ErrClosed         = stderrors.New("queue closed")
	ErrNothingPeeked  = stderrors.New("acknowledge without a peeked request")
	ErrLocked         = stderrors.New("queue is in use by another process")
	ErrInvalidRequest = stderrors.New("invalid request")
	ErrUnknownBackend = stderrors.New("unknown queue backend")
)

// Request is a write waiting for delivery.
type Request struct {
	// ID uniquely identifies the request in logs.
	ID string

	// Endpoint is the path relative to the API root, e.g.
	// "buckets/b/heartbeat?pulsetime=5".
	Endpoint string

	// Payload is the JSON body, sent verbatim.
	Payload json.RawMessage

	// EnqueuedAt is when the request was created.
	EnqueuedAt time.Time
}

// NewRequest builds a request from an endpoint and a JSON-encodable body.
func NewRequest(endpoint string, body interface{}) (Request, error) {
	var payload []byte
	switch b := body.(type) {
	case json.RawMessage:
		payload = b
	case []byte:
		payload = b
	default:
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return Request{}, errors.InvalidInput("encode payload: "+err.Error(), errors.WithCause(err), errors.WithEndpoint(endpoint))
		}
	}

	r := Request{
		ID:         uuid.NewString(),
		Endpoint:   endpoint,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

// Validate checks that the endpoint names a bucket and the payload is a
// JSON object or array.
func (r Request) Validate() error {
	if r.Bucket() == "" {
		return fmt.Errorf("%w: endpoint %q does not name a bucket", ErrInvalidRequest, r.Endpoint)
	}
	p := bytes.TrimSpace(r.Payload)
	if len(p) == 0 || (p[0] != '{' && p[0] != '[') || !json.Valid(p) {
		return fmt.Errorf("%w: payload must be a JSON object or array", ErrInvalidRequest)
	}
	return nil
}

// Bucket returns the bucket ID embedded in the endpoint, or "".
func (r Request) Bucket() string {
	path := r.Endpoint
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	rest, ok := strings.CutPrefix(path, "buckets/")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	return id
}

// Store is a durable FIFO of requests with a single consumer.
type Store interface {
	// Enqueue appends a request. It returns once the request is durable.
	Enqueue(r Request) error

	// Peek returns the oldest request without removing it, or nil when the
	// queue is empty. Repeated calls return the same request until it is
	// acknowledged.
	Peek() (*Request, error)

	// Acknowledge removes the request last returned by Peek.
	// Returns ErrNothingPeeked if there is none.
	Acknowledge() error

	// Size returns the number of pending requests.
	Size() (int, error)

	// Notify is signalled after every Enqueue. Consumers wait on it rather
	// than polling.
	Notify() <-chan struct{}

	// Close releases the store. Pending requests stay on disk.
	Close() error
}

// Options configures Open.
type Options struct {
	// Backend is one of "bolt", "pebble" or "memory".
	// Default: bolt
	Backend string

	// Dir is where the queue file lives.
	Dir string

	// Name is the base file name, usually from FileName.
	Name string

	// LockTimeout is how long to wait for another process to release a
	// queue file or directory before giving up with ErrLocked.
	// Default: 1s
	LockTimeout time.Duration

	// Logger receives corruption and storage diagnostics.
	Logger *logging.Logger
}

// FileName returns the queue base name for a client:
// <client>[-testing]-at-<host>-on-<port>.v<FormatVersion>.
func FileName(client string, testing bool, host string, port int) string {
	name := client
	if testing {
		name += "-testing"
	}
	return fmt.Sprintf("%s-at-%s-on-%d.v%d", name, sanitize(host), port, FormatVersion)
}

// Path returns the full path of the queue file for a backend.
func Path(dir, name, backend string) string {
	return filepath.Join(dir, name+"."+backend)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, s)
}

// Open opens the store described by opts.
func Open(opts Options) (Store, error) {
	backend := opts.Backend
	if backend == "" {
		backend = BackendBolt
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = time.Second
	}

	if backend == BackendMemory {
		return NewMemoryStore(), nil
	}
	if opts.Dir == "" || opts.Name == "" {
		return nil, errors.InvalidInput("queue directory and name are required")
	}

	path := Path(opts.Dir, opts.Name, backend)
	switch backend {
	case BackendBolt:
		return OpenBolt(path, opts)
	case BackendPebble:
		return OpenPebble(path, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// signal is a level-triggered wakeup: any number of sends before a
// receive collapse into one.
type signal struct {
	ch chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{}, 1)}
}

func (s *signal) notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *signal) C() <-chan struct{} {
	return s.ch
}
