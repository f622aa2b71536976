package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/awclient/awtest"
	"github.com/vinayprograms/awclient/config"
	"github.com/vinayprograms/awclient/dispatcher"
	"github.com/vinayprograms/awclient/errors"
	"github.com/vinayprograms/awclient/event"
	"github.com/vinayprograms/awclient/logging"
	"github.com/vinayprograms/awclient/queue"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newServer(t *testing.T) *awtest.Server {
	t.Helper()
	srv := awtest.NewServer()
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, srv *awtest.Server, dataDir string) *config.Config {
	t.Helper()
	cfg := config.Default(true)
	cfg.Host = srv.Host()
	cfg.Port = srv.Port()
	cfg.CommitInterval = time.Minute
	cfg.ReconnectInterval = 20 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ErrorBackoff = 10 * time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	cfg.QueueBackend = "bolt"
	cfg.DataDir = dataDir
	return &cfg
}

func newClientWithConfig(t *testing.T, cfg *config.Config) *Client {
	t.Helper()
	c, err := New(Options{
		Name:     "test-client",
		Testing:  true,
		Hostname: "testhost",
		Config:   cfg,
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func newClient(t *testing.T, srv *awtest.Server) *Client {
	t.Helper()
	return newClientWithConfig(t, testConfig(t, srv, t.TempDir()))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func beat(offset time.Duration, app string) event.Event {
	return event.New(t0.Add(offset), 0, map[string]interface{}{"app": app})
}

func TestGetInfo(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)

	info, err := c.GetInfo(context.Background())
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if info.Hostname != "awtest" || !info.Testing {
		t.Errorf("info = %+v", info)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default(true)
	cfg.Protocol = "gopher"
	_, err := New(Options{Config: &cfg, Logger: logging.Discard()})
	if !stderrors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestCreateBucket_Sync(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	ctx := context.Background()

	if err := c.CreateBucket(ctx, "b1", "currentwindow", false); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	// Second create gets 304, which is success.
	if err := c.CreateBucket(ctx, "b1", "currentwindow", false); err != nil {
		t.Fatalf("CreateBucket again: %v", err)
	}

	b, ok := srv.Bucket("b1")
	if !ok {
		t.Fatal("bucket not created")
	}
	if b.Client != "test-client" || b.Hostname != "testhost" || b.Type != "currentwindow" {
		t.Errorf("bucket = %+v", b)
	}

	buckets, err := c.GetBuckets(ctx)
	if err != nil {
		t.Fatalf("GetBuckets: %v", err)
	}
	if _, ok := buckets["b1"]; !ok {
		t.Errorf("GetBuckets = %v", buckets)
	}
}

func TestCreateBucket_QueuedDoesNoIO(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)

	if err := c.SetupBucket("b1", "test"); err != nil {
		t.Fatalf("SetupBucket: %v", err)
	}
	if n := len(srv.Requests()); n != 0 {
		t.Errorf("queued create sent %d requests", n)
	}
}

func TestDeleteBucket(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	ctx := context.Background()
	srv.AddBucket("b1", "test")

	err := c.DeleteBucket(ctx, "b1", false)
	if errors.StatusCode(err) != http.StatusUnauthorized {
		t.Errorf("delete without force: err = %v", err)
	}
	if err := c.DeleteBucket(ctx, "b1", true); err != nil {
		t.Fatalf("DeleteBucket: %v", err)
	}
	if _, ok := srv.Bucket("b1"); ok {
		t.Error("bucket still exists")
	}
}

func TestEvents(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	ctx := context.Background()
	srv.AddBucket("b", "test")

	events := []event.Event{
		event.New(t0, time.Second, map[string]interface{}{"n": 1}),
		event.New(t0.Add(time.Minute), time.Second, map[string]interface{}{"n": 2}),
		event.New(t0.Add(time.Hour), time.Second, map[string]interface{}{"n": 3}),
	}
	if err := c.InsertEvents(ctx, "b", events); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
	if err := c.InsertEvent(ctx, "b", event.New(t0.Add(2*time.Hour), 0, nil)); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	got, err := c.GetEvents(ctx, "b", EventsFilter{Limit: 2})
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(got) != 2 || !got[0].Timestamp.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("GetEvents(limit 2) = %+v", got)
	}

	got, err = c.GetEvents(ctx, "b", EventsFilter{Start: t0.Add(30 * time.Second), End: t0.Add(90 * time.Minute)})
	if err != nil {
		t.Fatalf("GetEvents range: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("GetEvents(range) returned %d events, want 2", len(got))
	}

	n, err := c.GetEventCount(ctx, "b", EventsFilter{})
	if err != nil || n != 4 {
		t.Errorf("GetEventCount = %d, %v; want 4", n, err)
	}

	id := *got[0].ID
	e, err := c.GetEvent(ctx, "b", id)
	if err != nil || e == nil || *e.ID != id {
		t.Fatalf("GetEvent = %+v, %v", e, err)
	}
	if err := c.DeleteEvent(ctx, "b", id); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	e, err = c.GetEvent(ctx, "b", id)
	if err != nil || e != nil {
		t.Errorf("GetEvent after delete = %+v, %v; want nil, nil", e, err)
	}
}

func TestInsertEvents_Invalid(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)

	err := c.InsertEvent(context.Background(), "b", event.New(time.Time{}, 0, nil))
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("err = %v, want invalid input", err)
	}
	if len(srv.Requests()) != 0 {
		t.Error("invalid event was sent")
	}
}

func TestHeartbeat_Sync(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	ctx := context.Background()
	srv.AddBucket("b", "test")

	opts := HeartbeatOptions{Pulsetime: 2 * time.Second}
	var last *event.Event
	for i := 0; i < 3; i++ {
		var err error
		last, err = c.Heartbeat(ctx, "b", beat(time.Duration(i)*time.Second, "vim"), opts)
		if err != nil {
			t.Fatalf("Heartbeat %d: %v", i, err)
		}
	}
	if last == nil || last.Duration != 2*time.Second {
		t.Errorf("server event = %+v, want 2s", last)
	}
	if r := srv.RequestsTo("POST", "buckets/b/heartbeat"); len(r) != 3 || r[0].Query.Get("pulsetime") != "2" {
		t.Errorf("heartbeat requests = %+v", r)
	}
}

func TestHeartbeat_SyncErrorPropagates(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)

	_, err := c.Heartbeat(context.Background(), "missing", beat(0, "vim"), HeartbeatOptions{Pulsetime: time.Second})
	if errors.StatusCode(err) != http.StatusNotFound {
		t.Errorf("err = %v, want 404", err)
	}

	srv.SetDown(true)
	_, err = c.Heartbeat(context.Background(), "missing", beat(0, "vim"), HeartbeatOptions{Pulsetime: time.Second})
	if !errors.IsConnectivity(err) {
		t.Errorf("err = %v, want connectivity error", err)
	}
}

func TestHeartbeat_QueuedMergesLocally(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	ctx := context.Background()

	opts := HeartbeatOptions{Pulsetime: 2 * time.Second, Queued: true}
	for i := 0; i < 5; i++ {
		e, err := c.Heartbeat(ctx, "b", beat(time.Duration(i)*time.Second, "vim"), opts)
		if err != nil || e != nil {
			t.Fatalf("queued Heartbeat = %v, %v", e, err)
		}
	}
	if n, _ := c.QueueSize(); n != 0 {
		t.Fatalf("queue size = %d before data changed, want 0", n)
	}

	if _, err := c.Heartbeat(ctx, "b", beat(5*time.Second, "emacs"), opts); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.QueueSize(); n != 1 {
		t.Fatalf("queue size = %d after data changed, want 1", n)
	}
	if len(srv.Requests()) != 0 {
		t.Error("queued heartbeats touched the network")
	}
	if st := c.Status(); len(st.Pending) != 1 || st.State != dispatcher.Stopped {
		t.Errorf("Status = %+v", st)
	}

	if err := c.SetupBucket("b", "test"); err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, "delivery", func() bool { return len(srv.Events("b")) == 1 })

	got := srv.Events("b")[0]
	if got.Duration != 4*time.Second || got.Data["app"] != "vim" {
		t.Errorf("delivered event = %+v", got)
	}
}

func TestHeartbeat_QueuedCommitInterval(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	ctx := context.Background()

	opts := HeartbeatOptions{Pulsetime: 2 * time.Second, Queued: true, CommitInterval: 3 * time.Second}
	for i := 0; i <= 4; i++ {
		if _, err := c.Heartbeat(ctx, "b", beat(time.Duration(i)*time.Second, "vim"), opts); err != nil {
			t.Fatal(err)
		}
	}
	// 0..3s merged, reaching the interval; the beat at 4s extends it to 4s
	// and commits it.
	if n, _ := c.QueueSize(); n != 1 {
		t.Fatalf("queue size = %d, want 1", n)
	}
	req, err := c.store.Peek()
	if err != nil || req == nil {
		t.Fatalf("Peek = %v, %v", req, err)
	}
	var sent event.Event
	if err := json.Unmarshal(req.Payload, &sent); err != nil {
		t.Fatal(err)
	}
	if !sent.Timestamp.Equal(t0) || sent.Duration != 4*time.Second {
		t.Errorf("committed %v +%v, want %v +4s", sent.Timestamp, sent.Duration, t0)
	}
	if st := c.Status(); len(st.Pending) != 1 {
		t.Errorf("pending = %v, want the 4s beat", st.Pending)
	}
}

func TestFlush(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	ctx := context.Background()

	opts := HeartbeatOptions{Pulsetime: time.Second, Queued: true}
	c.Heartbeat(ctx, "a", beat(0, "vim"), opts)
	c.Heartbeat(ctx, "b", beat(0, "vim"), opts)

	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n, _ := c.QueueSize(); n != 2 {
		t.Errorf("queue size = %d, want 2", n)
	}
	if st := c.Status(); len(st.Pending) != 0 {
		t.Errorf("pending after flush = %v", st.Pending)
	}
}

func TestQueued_OfflineThenRecovery(t *testing.T) {
	srv := newServer(t)
	srv.SetDown(true)
	c := newClient(t, srv)
	ctx := context.Background()

	if err := c.SetupBucket("b", "test"); err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	opts := HeartbeatOptions{Pulsetime: time.Second, Queued: true}
	for i, app := range []string{"a", "b", "c", "d"} {
		if _, err := c.Heartbeat(ctx, "b", beat(time.Duration(i)*10*time.Second, app), opts); err != nil {
			t.Fatalf("Heartbeat while offline: %v", err)
		}
	}
	if n, _ := c.QueueSize(); n != 3 {
		t.Fatalf("queue size = %d, want 3", n)
	}
	if st := c.Status(); st.State == dispatcher.Connected {
		t.Errorf("state = %v while server is down", st.State)
	}

	srv.SetDown(false)
	waitFor(t, "queue drained", func() bool {
		n, _ := c.QueueSize()
		return n == 0 && len(srv.Events("b")) == 3
	})

	// The bucket was created before any event was delivered.
	reqs := srv.Requests()
	if len(reqs) == 0 || reqs[0].Method != "POST" || reqs[0].Path != "buckets/b" {
		t.Errorf("first request = %+v, want bucket creation", reqs[0])
	}
	var apps []string
	for _, e := range srv.Events("b") {
		apps = append(apps, e.Data["app"].(string))
	}
	if strings.Join(apps, ",") != "a,b,c" {
		t.Errorf("delivery order = %v", apps)
	}
}

func TestQueued_SurvivesRestart(t *testing.T) {
	srv := newServer(t)
	cfg := testConfig(t, srv, t.TempDir())
	ctx := context.Background()

	first, err := New(Options{Name: "test-client", Testing: true, Config: cfg, Logger: logging.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	opts := HeartbeatOptions{Pulsetime: time.Second, Queued: true}
	first.Heartbeat(ctx, "b", beat(0, "a"), opts)
	first.Heartbeat(ctx, "b", beat(10*time.Second, "b"), opts)
	// Close commits the pending heartbeat too.
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := newClientWithConfig(t, cfg)
	if n, _ := second.QueueSize(); n != 2 {
		t.Fatalf("queue size after restart = %d, want 2", n)
	}
	second.SetupBucket("b", "test")
	if err := second.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "delivery after restart", func() bool { return len(srv.Events("b")) == 2 })
}

func TestQueued_RejectedRequestDropped(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	ctx := context.Background()

	c.SetupBucket("b", "test")
	srv.FailNext(1, http.StatusBadRequest, "heartbeat")

	opts := HeartbeatOptions{Pulsetime: time.Second, Queued: true}
	c.Heartbeat(ctx, "b", beat(0, "bad"), opts)
	c.Heartbeat(ctx, "b", beat(10*time.Second, "good"), opts)
	c.Flush()

	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "queue drained", func() bool { n, _ := c.QueueSize(); return n == 0 })

	events := srv.Events("b")
	if len(events) != 1 || events[0].Data["app"] != "good" {
		t.Errorf("events = %+v, want only the good one", events)
	}
	waitFor(t, "counters", func() bool {
		st := c.Status().Stats
		return st.Dropped == 1 && st.Delivered == 1
	})
}

func TestConnectDisconnect(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	ctx := context.Background()

	if err := c.Disconnect(); err != nil {
		t.Errorf("Disconnect before Connect: %v", err)
	}
	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(ctx); err != nil {
		t.Errorf("second Connect: %v", err)
	}
	waitFor(t, "connected", func() bool { return c.Status().State == dispatcher.Connected })

	if err := c.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if st := c.Status(); st.State != dispatcher.Stopped {
		t.Errorf("state after Disconnect = %v", st.State)
	}

	// A fresh dispatcher after reconnecting.
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	waitFor(t, "reconnected", func() bool { return c.Status().State == dispatcher.Connected })
}

func TestSession(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	boom := stderrors.New("boom")

	err := c.Session(context.Background(), func(ctx context.Context, c *Client) error {
		if c.Status().State == dispatcher.Stopped {
			t.Error("not connected inside session")
		}
		return boom
	})
	if !stderrors.Is(err, boom) {
		t.Errorf("Session err = %v", err)
	}
	if st := c.Status(); st.State != dispatcher.Stopped {
		t.Errorf("state after session = %v", st.State)
	}
}

func TestSession_DisconnectsOnPanic(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)

	func() {
		defer func() {
			if r := recover(); r != "watcher crashed" {
				t.Errorf("recovered %v", r)
			}
		}()
		c.Session(context.Background(), func(ctx context.Context, c *Client) error {
			panic("watcher crashed")
		})
	}()

	if st := c.Status(); st.State != dispatcher.Stopped {
		t.Errorf("state after panicking session = %v", st.State)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Errorf("Connect after panicking session: %v", err)
	}
}

func TestConnectDisconnect_Concurrent(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Connect(ctx)
		}()
		go func() {
			defer wg.Done()
			c.Disconnect()
		}()
	}
	wg.Wait()
	if err := c.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if st := c.Status(); st.State != dispatcher.Stopped {
		t.Fatalf("state = %v, want stopped", st.State)
	}

	// No dispatcher may outlive the last Disconnect.
	req, err := queue.NewRequest("buckets/b/heartbeat?pulsetime=1", beat(0, "vim"))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.store.Enqueue(req); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if n, _ := c.QueueSize(); n != 1 {
		t.Errorf("queue size = %d, want 1: a dispatcher is still delivering", n)
	}
}

func TestClose(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := c.Connect(context.Background()); !stderrors.Is(err, ErrClosed) {
		t.Errorf("Connect after Close = %v", err)
	}
}

func TestQuery(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	ctx := context.Background()

	periods := []Period{
		{Start: t0, End: t0.Add(time.Hour)},
		{Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour)},
	}
	script := "events = query_bucket(\"b\");\nRETURN = events;"
	results, err := c.Query(ctx, script, periods, QueryOptions{Name: "q", Cache: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}

	reqs := srv.RequestsTo("POST", "query")
	if len(reqs) != 1 {
		t.Fatalf("query requests = %d", len(reqs))
	}
	if reqs[0].Query.Get("name") != "q" || reqs[0].Query.Get("cache") == "" {
		t.Errorf("query params = %v", reqs[0].Query)
	}
	var body awtest.QueryRequest
	if err := json.Unmarshal(reqs[0].Body, &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Query) != 2 || body.TimePeriods[0] != "2024-03-01T12:00:00Z/2024-03-01T13:00:00Z" {
		t.Errorf("body = %+v", body)
	}
}

func TestQuery_Validation(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	ctx := context.Background()
	ok := []Period{{Start: t0, End: t0.Add(time.Hour)}}

	tests := []struct {
		name    string
		periods []Period
		opts    QueryOptions
		want    error
	}{
		{"no periods", nil, QueryOptions{}, ErrInvalidPeriod},
		{"zero start", []Period{{End: t0}}, QueryOptions{}, ErrInvalidPeriod},
		{"reversed", []Period{{Start: t0, End: t0.Add(-time.Hour)}}, QueryOptions{}, ErrInvalidPeriod},
		{"cache without name", ok, QueryOptions{Cache: true}, ErrNameRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Query(ctx, "RETURN = [];", tt.periods, tt.opts)
			if !stderrors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if len(srv.Requests()) != 0 {
		t.Error("invalid queries reached the server")
	}
}

func TestExportImport(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	ctx := context.Background()

	if err := c.CreateBucket(ctx, "b", "test", false); err != nil {
		t.Fatal(err)
	}
	c.InsertEvents(ctx, "b", []event.Event{
		event.New(t0, time.Second, map[string]interface{}{"n": 1}),
		event.New(t0.Add(time.Minute), time.Second, map[string]interface{}{"n": 2}),
	})

	exported, err := c.ExportBucket(ctx, "b")
	if err != nil {
		t.Fatalf("ExportBucket: %v", err)
	}
	if len(exported.Events) != 2 {
		t.Fatalf("exported %d events", len(exported.Events))
	}

	all, err := c.ExportAll(ctx)
	if err != nil || len(all.Buckets) != 1 {
		t.Fatalf("ExportAll = %+v, %v", all, err)
	}

	if err := c.DeleteBucket(ctx, "b", true); err != nil {
		t.Fatal(err)
	}
	if err := c.ImportBucket(ctx, *exported); err != nil {
		t.Fatalf("ImportBucket: %v", err)
	}
	if n := len(srv.Events("b")); n != 2 {
		t.Errorf("imported %d events, want 2", n)
	}
}

func TestDrain(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	ctx := context.Background()

	if err := c.Drain(ctx); !stderrors.Is(err, ErrNotConnected) {
		t.Errorf("Drain before Connect = %v", err)
	}

	c.SetupBucket("b", "test")
	opts := HeartbeatOptions{Pulsetime: time.Second, Queued: true}
	c.Heartbeat(ctx, "b", beat(0, "a"), opts)
	c.Heartbeat(ctx, "b", beat(10*time.Second, "b"), opts)

	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Drain(dctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	// Drain commits the pending heartbeat, so both arrive.
	if n := len(srv.Events("b")); n != 2 {
		t.Errorf("server has %d events, want 2", n)
	}
}

func TestDrain_Deadline(t *testing.T) {
	srv := newServer(t)
	srv.SetDown(true)
	c := newClient(t, srv)
	ctx := context.Background()

	c.Heartbeat(ctx, "b", beat(0, "a"), HeartbeatOptions{Queued: true})
	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	dctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := c.Drain(dctx)
	if !errors.Is(err, errors.ErrCodeTimeout) {
		t.Errorf("Drain = %v, want timeout", err)
	}
	if n, _ := c.QueueSize(); n != 1 {
		t.Errorf("queue size = %d, want 1", n)
	}
}
