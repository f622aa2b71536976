package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/vinayprograms/awclient/config"
	"github.com/vinayprograms/awclient/dispatcher"
	"github.com/vinayprograms/awclient/errors"
	"github.com/vinayprograms/awclient/event"
	"github.com/vinayprograms/awclient/heartbeat"
	"github.com/vinayprograms/awclient/logging"
	"github.com/vinayprograms/awclient/queue"
	"github.com/vinayprograms/awclient/telemetry"
	"github.com/vinayprograms/awclient/transport"
)

// DefaultName is used when Options.Name is empty.
const DefaultName = "aw-client"

// Common errors.
var (
	ErrClosed        = stderrors.New("client closed")
	ErrNotConnected  = stderrors.New("client not connected")
	ErrInvalidPeriod = stderrors.New("invalid time period")
	ErrNameRequired  = stderrors.New("a query name is required when caching")
)

// Options configures New. Zero values fall back to the loaded configuration.
type Options struct {
	// Name identifies the client to the server and names its queue file.
	// Default: aw-client
	Name string

	// Testing selects the testing profile (port 5666, separate queue).
	Testing bool

	// Host, Port and Protocol override the configuration.
	Host     string
	Port     int
	Protocol string

	// Hostname is reported when creating buckets.
	// Default: os.Hostname()
	Hostname string

	// Config is used as is when set. Otherwise the config file for the
	// profile is loaded and AWCLIENT_* variables are applied on top.
	Config *config.Config

	// Store replaces the on-disk queue. The client does not close it.
	Store queue.Store

	// Transport replaces the HTTP transport.
	Transport transport.Transport

	Logger *logging.Logger
	Tracer *telemetry.Tracer
}

// Info is the server description returned by GetInfo.
type Info struct {
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
	Testing  bool   `json:"testing"`
	DeviceID string `json:"device_id"`
}

// Status is a snapshot of the client's delivery machinery.
type Status struct {
	// State is Stopped when the client is not connected.
	State dispatcher.State

	// Stats are the counters of the current connection, zero when
	// disconnected.
	Stats dispatcher.Stats

	// QueueSize is the number of requests waiting for delivery.
	QueueSize int

	// Pending lists buckets with a heartbeat not yet committed to the queue.
	Pending []string
}

// Client talks to one event server.
type Client struct {
	name     string
	hostname string
	testing  bool
	cfg      config.Config

	tr        transport.Transport
	store     queue.Store
	ownsStore bool
	logger    *logging.Logger
	tracer    *telemetry.Tracer

	cache *heartbeat.Cache
	hbMu  sync.Mutex
	// endpoints remembers the endpoint of each bucket's pending heartbeat
	// so Flush can commit it.
	endpoints map[string]string

	// lifeMu serialises Connect and Disconnect, including the wait for a
	// stopping dispatcher. Lock order: lifeMu, then mu.
	lifeMu sync.Mutex

	mu      sync.Mutex
	disp    *dispatcher.Dispatcher
	buckets map[string]dispatcher.Bucket
	closed  bool
}

// New creates a client and opens its queue. It does not contact the
// server; call Connect to start delivering queued requests.
func New(opts Options) (*Client, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name = DefaultName
	}
	hostname := opts.Hostname
	if hostname == "" {
		if hostname, err = os.Hostname(); err != nil {
			hostname = "unknown"
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.New()
		if level, err := logging.ParseLevel(cfg.LogLevel); err == nil {
			logger.SetLevel(level)
		}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.GetTracer()
	}

	c := &Client{
		name:      name,
		hostname:  hostname,
		testing:   opts.Testing,
		cfg:       cfg,
		logger:    logger.WithComponent("client"),
		tracer:    tracer,
		cache:     heartbeat.NewCache(),
		endpoints: make(map[string]string),
		buckets:   make(map[string]dispatcher.Bucket),
	}

	c.tr = opts.Transport
	if c.tr == nil {
		c.tr, err = transport.NewHTTP(transport.Config{
			Protocol:  cfg.Protocol,
			Host:      cfg.Host,
			Port:      cfg.Port,
			Timeout:   cfg.RequestTimeout,
			UserAgent: name,
		}, transport.WithLogger(logger))
		if err != nil {
			return nil, err
		}
	}

	c.store = opts.Store
	if c.store == nil {
		c.store, err = queue.Open(queue.Options{
			Backend: cfg.QueueBackend,
			Dir:     cfg.DataDir,
			Name:    queue.FileName(name, opts.Testing, cfg.Host, cfg.Port),
			Logger:  logger,
		})
		if err != nil {
			return nil, errors.Wrap(err, "open request queue")
		}
		c.ownsStore = true
	}

	return c, nil
}

func resolveConfig(opts Options) (config.Config, error) {
	var cfg config.Config
	if opts.Config != nil {
		cfg = *opts.Config
	} else {
		loaded, _, err := config.Load(opts.Testing)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
		config.FromEnv(&cfg)
	}
	if opts.Host != "" {
		cfg.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Port = opts.Port
	}
	if opts.Protocol != "" {
		cfg.Protocol = opts.Protocol
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Name returns the client name.
func (c *Client) Name() string { return c.name }

// Hostname returns the hostname reported to the server.
func (c *Client) Hostname() string { return c.hostname }

// Config returns the resolved configuration.
func (c *Client) Config() config.Config { return c.cfg }

// ServerAddress returns host:port of the server.
func (c *Client) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
}

// Connect starts the background dispatcher. It is a no-op when already
// connected. The dispatcher stops when ctx is done or on Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.disp != nil {
		select {
		case <-c.disp.Done():
			// Parent context ended it; build a fresh one.
		default:
			return nil
		}
	}

	d, err := dispatcher.New(dispatcher.Config{
		Transport:         c.tr,
		Store:             c.store,
		Logger:            c.logger,
		Tracer:            c.tracer,
		Server:            c.ServerAddress(),
		ReconnectInterval: c.cfg.ReconnectInterval,
		PollInterval:      c.cfg.PollInterval,
		ErrorBackoff:      c.cfg.ErrorBackoff,
	})
	if err != nil {
		return err
	}
	for _, b := range c.buckets {
		d.RegisterBucket(b)
	}
	if err := d.Start(ctx); err != nil {
		return err
	}
	c.disp = d
	return nil
}

// Disconnect stops the dispatcher and waits for it. The request being
// delivered, if any, stays queued. It is a no-op when not connected.
func (c *Client) Disconnect() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	d := c.disp
	c.disp = nil
	c.mu.Unlock()

	if d == nil {
		return nil
	}
	if err := d.Stop(); err != nil && !stderrors.Is(err, dispatcher.ErrNotStarted) {
		return err
	}
	return nil
}

// Session connects, runs fn and disconnects, also when fn panics.
func (c *Client) Session(ctx context.Context, fn func(ctx context.Context, c *Client) error) (err error) {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if derr := c.Disconnect(); err == nil {
			err = derr
		}
	}()
	return fn(ctx, c)
}

// QueueSize returns the number of requests waiting for delivery.
func (c *Client) QueueSize() (int, error) {
	return c.store.Size()
}

// Status returns a snapshot of the connection and queue.
func (c *Client) Status() Status {
	st := Status{State: dispatcher.Stopped, Pending: c.cache.Buckets()}
	c.mu.Lock()
	d := c.disp
	c.mu.Unlock()
	if d != nil {
		st.Stats = d.Stats()
		st.State = st.Stats.State
	}
	if n, err := c.store.Size(); err == nil {
		st.QueueSize = n
	}
	return st
}

// Close commits pending heartbeats, disconnects and closes the queue.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var errs []error
	if err := c.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Disconnect(); err != nil {
		errs = append(errs, err)
	}
	if c.ownsStore {
		if err := c.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnShutdown closes the client, so it can be registered with a
// shutdown.Coordinator.
func (c *Client) OnShutdown(ctx context.Context) error {
	return c.Close()
}

// Drain waits until the queue is empty or ctx is done. Pending heartbeats
// are committed first. The client must be connected.
func (c *Client) Drain(ctx context.Context) error {
	c.mu.Lock()
	d := c.disp
	c.mu.Unlock()
	if d == nil {
		return ErrNotConnected
	}
	if err := c.Flush(); err != nil {
		return err
	}

	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = dispatcher.DefaultConfig().PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := c.store.Size()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "drain: %d requests left", n)
		case <-d.Done():
			return ErrNotConnected
		case <-ticker.C:
		}
	}
}

// GetInfo returns the server description.
func (c *Client) GetInfo(ctx context.Context) (*Info, error) {
	resp, err := c.tr.Get(ctx, "info", nil)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := resp.JSON(&info); err != nil {
		return nil, errors.Wrap(err, "decode info")
	}
	return &info, nil
}

func bucketPath(id string, rest ...string) string {
	p := "buckets/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// decodeEvent decodes an optional event body; null gives nil.
func decodeEvent(resp *transport.Response) (*event.Event, error) {
	if len(resp.Body) == 0 || string(resp.Body) == "null" {
		return nil, nil
	}
	var e event.Event
	if err := resp.JSON(&e); err != nil {
		return nil, errors.Wrap(err, "decode event")
	}
	return &e, nil
}
