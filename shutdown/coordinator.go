package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/vinayprograms/awclient/errors"
	"github.com/vinayprograms/awclient/logging"
)

type registration struct {
	name    string
	handler Handler
	phase   int
	order   int
}

// Coordinator runs registered handlers once, phase by phase.
type Coordinator struct {
	cfg    Config
	logger *logging.Logger

	mu       sync.Mutex
	handlers []registration

	once   sync.Once
	done   chan struct{}
	result *Result
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Coordinator{
		cfg:    cfg,
		logger: logger.WithComponent("shutdown"),
		done:   make(chan struct{}),
	}
}

// Register adds a handler to a phase.
func (c *Coordinator) Register(name string, phase int, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{
		name:    name,
		handler: h,
		phase:   phase,
		order:   len(c.handlers),
	})
}

// Shutdown runs every handler. Only the first call does work; later calls
// return ErrAlreadyShutdown once the first has finished.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	first := false
	c.once.Do(func() {
		first = true
		c.result = c.run(ctx)
		close(c.done)
	})
	if !first {
		<-c.done
		return ErrAlreadyShutdown
	}
	return c.result.Err
}

// ShutdownWithTimeout runs Shutdown bounded by the configured timeout.
func (c *Coordinator) ShutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals returns a context that ends on SIGINT or SIGTERM (or when
// parent ends), and starts the shutdown when it does.
func (c *Coordinator) HandleSignals(parent context.Context) context.Context {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
		c.logger.Info("shutting down", map[string]interface{}{"timeout": c.cfg.Timeout.String()})
		_ = c.ShutdownWithTimeout()
	}()
	return ctx
}

// Done is closed when shutdown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Result returns the shutdown outcome, or nil before Done is closed.
func (c *Coordinator) Result() *Result {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) *Result {
	start := time.Now()
	res := &Result{}

	for _, group := range c.phases() {
		if ctx.Err() != nil {
			res.Err = ErrTimeout
			break
		}
		results := c.runPhase(ctx, group)
		res.Results = append(res.Results, results...)

		failed := false
		for _, hr := range results {
			if hr.Err != nil {
				failed = true
			}
		}
		if failed {
			res.Err = ErrHandlerFailed
			if !c.cfg.ContinueOnError {
				break
			}
		}
	}

	res.TotalDuration = time.Since(start)
	return res
}

// phases returns the registrations grouped by phase, lowest first,
// registration order kept within a phase.
func (c *Coordinator) phases() [][]registration {
	c.mu.Lock()
	regs := make([]registration, len(c.handlers))
	copy(regs, c.handlers)
	c.mu.Unlock()

	sort.Slice(regs, func(i, j int) bool {
		if regs[i].phase != regs[j].phase {
			return regs[i].phase < regs[j].phase
		}
		return regs[i].order < regs[j].order
	})

	var groups [][]registration
	for i, r := range regs {
		if i == 0 || r.phase != regs[i-1].phase {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], r)
	}
	return groups
}

func (c *Coordinator) runPhase(ctx context.Context, group []registration) []HandlerResult {
	results := make([]HandlerResult, len(group))
	var wg sync.WaitGroup
	for i, r := range group {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := invoke(ctx, r.handler)
			results[i] = HandlerResult{Name: r.name, Phase: r.phase, Duration: time.Since(start), Err: err}

			fields := map[string]interface{}{"handler": r.name, "phase": r.phase, "duration": results[i].Duration.String()}
			if err != nil {
				fields["error"] = err.Error()
				c.logger.Warn("shutdown handler failed", fields)
				return
			}
			c.logger.Debug("shutdown handler done", fields)
		}()
	}
	wg.Wait()
	return results
}

// invoke runs a handler, turning a panic into an error so the remaining
// handlers still run.
func invoke(ctx context.Context, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
		}
	}()
	return h.OnShutdown(ctx)
}
