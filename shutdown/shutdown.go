package shutdown

import (
	"context"
	"errors"
	"time"

	"github.com/vinayprograms/awclient/logging"
)

// Common errors.
var (
	ErrAlreadyShutdown = errors.New("shutdown already initiated")
	ErrTimeout         = errors.New("shutdown timeout exceeded")
	ErrHandlerFailed   = errors.New("one or more handlers failed")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

// Standard phases, in the order they run.
const (
	// PhaseWatchers stops whatever produces heartbeats.
	PhaseWatchers = 10

	// PhaseDrain gives dispatchers time to deliver queued requests.
	PhaseDrain = 20

	// PhaseClients commits pending heartbeats and closes queues.
	PhaseClients = 30

	// PhaseTelemetry flushes and stops span exporters.
	PhaseTelemetry = 40
)

// Handler is implemented by components that need orderly shutdown.
// client.Client implements it.
type Handler interface {
	// OnShutdown releases the component. ctx ends at the shutdown deadline.
	OnShutdown(ctx context.Context) error
}

// Func adapts a function to Handler.
type Func func(ctx context.Context) error

// OnShutdown implements Handler.
func (f Func) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// HandlerResult is the outcome of one handler.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result is the outcome of a whole shutdown.
type Result struct {
	TotalDuration time.Duration
	Results       []HandlerResult

	// Err is nil when every handler succeeded.
	Err error
}

// Failed returns the names of handlers that returned an error.
func (r *Result) Failed() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures a Coordinator.
type Config struct {
	// Timeout bounds a shutdown started by a signal or ShutdownWithTimeout.
	// Default: 10s
	Timeout time.Duration

	// ContinueOnError runs later phases even when a handler failed.
	// Default: true
	ContinueOnError bool

	// Logger receives one line per handler. Default: discard.
	Logger *logging.Logger
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		ContinueOnError: true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return ErrInvalidConfig
	}
	return nil
}
