package shutdown

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	awerrors "github.com/vinayprograms/awclient/errors"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handler(name string, err error) Handler {
	return Func(func(ctx context.Context) error {
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.mu.Unlock()
		return err
	})
}

func TestShutdown_PhaseOrder(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	rec := &recorder{}

	c.Register("telemetry", PhaseTelemetry, rec.handler("telemetry", nil))
	c.Register("client", PhaseClients, rec.handler("client", nil))
	c.Register("watcher", PhaseWatchers, rec.handler("watcher", nil))
	c.Register("drain", PhaseDrain, rec.handler("drain", nil))

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	want := []string{"watcher", "drain", "client", "telemetry"}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("order = %v, want %v", rec.calls, want)
	}

	select {
	case <-c.Done():
	default:
		t.Error("Done not closed")
	}
	if r := c.Result(); r == nil || len(r.Results) != 4 {
		t.Errorf("Result = %+v", r)
	}
}

func TestShutdown_SamePhaseConcurrent(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	release := make(chan struct{})
	started := make(chan struct{}, 2)

	for _, name := range []string{"a", "b"} {
		c.Register(name, PhaseClients, Func(func(ctx context.Context) error {
			started <- struct{}{}
			<-release
			return nil
		}))
	}

	errc := make(chan error, 1)
	go func() { errc <- c.Shutdown(context.Background()) }()

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("handlers in the same phase did not run concurrently")
		}
	}
	close(release)
	if err := <-errc; err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestShutdown_HandlerFailure(t *testing.T) {
	tests := []struct {
		name     string
		cont     bool
		wantRuns []string
	}{
		{"continue", true, []string{"watcher", "client"}},
		{"stop", false, []string{"watcher"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ContinueOnError = tt.cont
			c := NewCoordinator(cfg)
			rec := &recorder{}

			c.Register("watcher", PhaseWatchers, rec.handler("watcher", errors.New("boom")))
			c.Register("client", PhaseClients, rec.handler("client", nil))

			if err := c.Shutdown(context.Background()); !errors.Is(err, ErrHandlerFailed) {
				t.Errorf("err = %v, want ErrHandlerFailed", err)
			}
			if !reflect.DeepEqual(rec.calls, tt.wantRuns) {
				t.Errorf("ran %v, want %v", rec.calls, tt.wantRuns)
			}
			if failed := c.Result().Failed(); !reflect.DeepEqual(failed, []string{"watcher"}) {
				t.Errorf("Failed() = %v", failed)
			}
		})
	}
}

func TestShutdown_Timeout(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	rec := &recorder{}
	c.Register("slow", PhaseDrain, Func(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	c.Register("client", PhaseClients, rec.handler("client", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := c.Shutdown(ctx); !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
	if len(rec.calls) != 0 {
		t.Error("later phase ran after the deadline")
	}
}

func TestShutdown_Once(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	rec := &recorder{}
	c.Register("client", PhaseClients, rec.handler("client", nil))

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Shutdown(context.Background()); !errors.Is(err, ErrAlreadyShutdown) {
		t.Errorf("second Shutdown = %v", err)
	}
	if len(rec.calls) != 1 {
		t.Errorf("handler ran %d times", len(rec.calls))
	}
}

func TestHandleSignals_ParentCancel(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	rec := &recorder{}
	c.Register("client", PhaseClients, rec.handler("client", nil))

	parent, cancel := context.WithCancel(context.Background())
	ctx := c.HandleSignals(parent)
	cancel()

	<-ctx.Done()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not run after the context ended")
	}
	if len(rec.calls) != 1 {
		t.Errorf("calls = %v", rec.calls)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{Timeout: -time.Second}).Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Validate = %v", err)
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestShutdown_PanickingHandler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContinueOnError = true
	c := NewCoordinator(cfg)
	rec := &recorder{}

	c.Register("watcher", PhaseWatchers, Func(func(ctx context.Context) error {
		panic("watcher wedged")
	}))
	c.Register("client", PhaseClients, rec.handler("client", nil))

	if err := c.Shutdown(context.Background()); !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("Shutdown = %v, want ErrHandlerFailed", err)
	}
	if !reflect.DeepEqual(rec.calls, []string{"client"}) {
		t.Errorf("later phases should still run, calls = %v", rec.calls)
	}

	res := c.Result()
	if len(res.Results) != 2 {
		t.Fatalf("Results = %+v", res.Results)
	}
	if err := res.Results[0].Err; !awerrors.Is(err, awerrors.ErrCodePanic) || err.Error() != "watcher wedged" {
		t.Errorf("panic result = %v", err)
	}
}
