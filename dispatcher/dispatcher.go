package dispatcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vinayprograms/awclient/errors"
	"github.com/vinayprograms/awclient/event"
	"github.com/vinayprograms/awclient/logging"
	"github.com/vinayprograms/awclient/queue"
	"github.com/vinayprograms/awclient/telemetry"
	"github.com/vinayprograms/awclient/transport"
)

// Common errors.
var (
	ErrAlreadyStarted = stderrors.New("dispatcher already started")
	ErrNotStarted     = stderrors.New("dispatcher not started")
	ErrInvalidConfig  = stderrors.New("invalid configuration")
)

// Bucket is a bucket the dispatcher makes sure exists before delivering.
type Bucket struct {
	ID       string
	Type     string
	Client   string
	Hostname string
}

func (b Bucket) path() string {
	return "buckets/" + url.PathEscape(b.ID)
}

func (b Bucket) body() event.CreateRequest {
	return event.CreateRequest{
		Client:   b.Client,
		Hostname: b.Hostname,
		Type:     b.Type,
	}
}

// Config holds dispatcher configuration.
type Config struct {
	// Transport delivers requests. Required.
	Transport transport.Transport

	// Store is drained in FIFO order. Required.
	Store queue.Store

	// Logger for state and delivery events. Default: discard.
	Logger *logging.Logger

	// Tracer records delivery spans. Default: global tracer.
	Tracer *telemetry.Tracer

	// Server names the server in log lines.
	Server string

	// ReconnectInterval is the wait after a failed connection attempt.
	// Default: 10s
	ReconnectInterval time.Duration

	// PollInterval bounds how long an idle dispatcher waits before peeking
	// again without an enqueue signal.
	// Default: 200ms
	PollInterval time.Duration

	// ErrorBackoff is the wait after a failed delivery.
	// Default: 500ms
	ErrorBackoff time.Duration

	// BacklogLogInterval throttles "not connected" warnings.
	// Default: 1m
	BacklogLogInterval time.Duration

	// OnStateChange is called on every transition, outside any lock.
	OnStateChange func(from, to State)
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectInterval:  10 * time.Second,
		PollInterval:       200 * time.Millisecond,
		ErrorBackoff:       500 * time.Millisecond,
		BacklogLogInterval: time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Transport == nil {
		return fmt.Errorf("%w: transport is required", ErrInvalidConfig)
	}
	if c.Store == nil {
		return fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if c.ReconnectInterval < 0 || c.PollInterval < 0 || c.ErrorBackoff < 0 || c.BacklogLogInterval < 0 {
		return fmt.Errorf("%w: intervals must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Dispatcher delivers queued requests on a background goroutine.
type Dispatcher struct {
	cfg    Config
	logger *logging.Logger
	tracer *telemetry.Tracer

	mu      sync.Mutex
	state   State
	buckets map[string]Bucket
	pending map[string]struct{} // registered, not yet created on this connection

	backlogLog rate.Sometimes

	started atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	doneCh  chan struct{}

	delivered atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
	connects  atomic.Int64
}

// New creates a dispatcher. Zero durations take their defaults.
func New(cfg Config) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	def := DefaultConfig()
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = def.ReconnectInterval
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = def.ErrorBackoff
	}
	if cfg.BacklogLogInterval == 0 {
		cfg.BacklogLogInterval = def.BacklogLogInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.GetTracer()
	}

	return &Dispatcher{
		cfg:        cfg,
		logger:     logger.WithComponent("dispatcher"),
		tracer:     tracer,
		state:      Disconnected,
		buckets:    make(map[string]Bucket),
		pending:    make(map[string]struct{}),
		backlogLog: rate.Sometimes{First: 1, Interval: cfg.BacklogLogInterval},
	}, nil
}

// RegisterBucket adds a bucket that must exist before delivery. It is
// created on every (re)connect, and before the next delivery if the
// dispatcher is already connected.
func (d *Dispatcher) RegisterBucket(b Bucket) {
	d.mu.Lock()
	d.buckets[b.ID] = b
	d.pending[b.ID] = struct{}{}
	d.mu.Unlock()
}

// UnregisterBucket forgets a bucket. Queued requests for it are still
// delivered.
func (d *Dispatcher) UnregisterBucket(id string) {
	d.mu.Lock()
	delete(d.buckets, id)
	delete(d.pending, id)
	d.mu.Unlock()
}

// Buckets returns the registered bucket IDs, sorted.
func (d *Dispatcher) Buckets() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.buckets))
	for id := range d.buckets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// State returns the current state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	reconnects := d.connects.Load() - 1
	if reconnects < 0 {
		reconnects = 0
	}
	return Stats{
		State:      d.State(),
		Delivered:  d.delivered.Load(),
		Dropped:    d.dropped.Load(),
		Failed:     d.failed.Load(),
		Reconnects: reconnects,
	}
}

// Start launches the delivery goroutine. The dispatcher stops when Stop is
// called or ctx is done. Returns ErrAlreadyStarted if it was ever started.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.started.Swap(true) {
		return ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.mu.Lock()
	d.cancel = cancel
	d.doneCh = done
	d.mu.Unlock()

	go d.run(ctx, done)
	return nil
}

// Stop cancels any in-flight request and waits for the goroutine to exit.
// The request being delivered stays queued.
func (d *Dispatcher) Stop() error {
	if !d.started.Load() || d.stopped.Swap(true) {
		return ErrNotStarted
	}
	d.mu.Lock()
	cancel, done := d.cancel, d.doneCh
	d.mu.Unlock()

	d.setState(Stopping)
	cancel()
	<-done
	return nil
}

// Done is closed once the dispatcher has stopped. Nil before Start.
func (d *Dispatcher) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doneCh
}

func (d *Dispatcher) setState(to State) {
	d.mu.Lock()
	from := d.state
	if from == to || from == Stopped || (from == Stopping && to != Stopped) {
		d.mu.Unlock()
		return
	}
	d.state = to
	if to == Connected {
		d.connects.Add(1)
	}
	d.mu.Unlock()

	d.logger.StateChange(from.String(), to.String())
	if d.cfg.OnStateChange != nil {
		d.cfg.OnStateChange(from, to)
	}
}

// run is the delivery loop.
func (d *Dispatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer d.setState(Stopped)

	for {
		if ctx.Err() != nil {
			d.setState(Stopping)
			return
		}

		switch d.State() {
		case Disconnected:
			d.setState(Connecting)
		case Connecting:
			d.connect(ctx)
		case Connected:
			d.deliverNext(ctx)
		default:
			return
		}
	}
}

// connect creates every registered bucket. With none registered it probes
// the server instead.
func (d *Dispatcher) connect(ctx context.Context) {
	err := d.ensureBuckets(ctx, true)
	if err == nil && len(d.Buckets()) == 0 {
		_, err = d.cfg.Transport.Get(ctx, "info", nil)
	}
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		d.warnBacklog(err)
		d.sleep(ctx, d.cfg.ReconnectInterval)
		return
	}

	d.setState(Connected)
	size, _ := d.cfg.Store.Size()
	d.logger.Connected(d.cfg.Server, size)
}

// ensureBuckets creates buckets concurrently. all selects every registered
// bucket; otherwise only those registered since the last successful call.
func (d *Dispatcher) ensureBuckets(ctx context.Context, all bool) error {
	d.mu.Lock()
	var todo []Bucket
	for id, b := range d.buckets {
		if _, ok := d.pending[id]; all || ok {
			todo = append(todo, b)
		}
	}
	d.mu.Unlock()
	if len(todo) == 0 {
		return nil
	}

	ids := make([]string, len(todo))
	for i, b := range todo {
		ids[i] = b.ID
	}
	sort.Strings(ids)
	ctx, span := d.tracer.StartBucketSpan(ctx, ids)

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range todo {
		g.Go(func() error {
			_, err := d.cfg.Transport.Post(gctx, b.path(), b.body())
			if err != nil {
				return errors.Wrapf(err, "create bucket %s", b.ID)
			}
			return nil
		})
	}
	err := g.Wait()
	d.tracer.EndBucketSpan(span, err)
	if err != nil {
		return err
	}

	d.mu.Lock()
	for _, b := range todo {
		delete(d.pending, b.ID)
	}
	d.mu.Unlock()
	return nil
}

// deliverNext posts the oldest request, or waits for one.
func (d *Dispatcher) deliverNext(ctx context.Context) {
	if err := d.ensureBuckets(ctx, false); err != nil {
		d.deliveryFailed(ctx, err)
		return
	}

	req, err := d.cfg.Store.Peek()
	if err != nil {
		d.logger.Error("queue peek failed", map[string]interface{}{"error": err.Error()})
		d.sleep(ctx, d.cfg.ErrorBackoff)
		return
	}
	if req == nil {
		d.waitForWork(ctx)
		return
	}

	start := time.Now()
	spanCtx, span := d.tracer.StartDeliverySpan(ctx, req.ID, req.Endpoint)
	_, err = d.cfg.Transport.Post(spanCtx, req.Endpoint, req.Payload)
	backlog, _ := d.cfg.Store.Size()
	opts := telemetry.DeliverySpanOptions{
		StatusCode: errors.StatusCode(err),
		Backlog:    backlog,
		Payload:    req.Payload,
	}

	switch {
	case err == nil:
		opts.Outcome = telemetry.OutcomeDelivered
		d.tracer.EndDeliverySpan(span, opts, nil)
		if err := d.acknowledge(ctx); err != nil {
			return
		}
		d.delivered.Add(1)
		d.logger.RequestDelivered(req.ID, req.Endpoint, time.Since(start))

	case ctx.Err() != nil:
		// Stopping: the request stays queued.
		opts.Outcome = telemetry.OutcomeRetry
		d.tracer.EndDeliverySpan(span, opts, err)

	case errors.IsRejected(err):
		opts.Outcome = telemetry.OutcomeDropped
		d.tracer.EndDeliverySpan(span, opts, err)
		if err := d.acknowledge(ctx); err != nil {
			return
		}
		d.dropped.Add(1)
		d.logger.RequestDropped(req.ID, req.Endpoint, req.Payload, fmt.Sprintf("%v: %s", err, errors.Body(err)))

	default:
		opts.Outcome = telemetry.OutcomeRetry
		d.tracer.EndDeliverySpan(span, opts, err)
		d.deliveryFailed(ctx, err)
	}
}

func (d *Dispatcher) acknowledge(ctx context.Context) error {
	if err := d.cfg.Store.Acknowledge(); err != nil {
		d.logger.Error("queue acknowledge failed", map[string]interface{}{"error": err.Error()})
		d.sleep(ctx, d.cfg.ErrorBackoff)
		return err
	}
	return nil
}

func (d *Dispatcher) deliveryFailed(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	d.failed.Add(1)
	d.setState(Disconnected)
	d.warnBacklog(err)
	d.sleep(ctx, d.cfg.ErrorBackoff)
}

func (d *Dispatcher) warnBacklog(err error) {
	d.backlogLog.Do(func() {
		size, _ := d.cfg.Store.Size()
		d.logger.Backlog(size, err)
	})
}

// waitForWork blocks until an enqueue, the poll interval, or stop.
func (d *Dispatcher) waitForWork(ctx context.Context) {
	timer := time.NewTimer(d.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-d.cfg.Store.Notify():
	case <-timer.C:
	}
}

// sleep waits for dur or until ctx is done.
func (d *Dispatcher) sleep(ctx context.Context, dur time.Duration) {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
