package awtest

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vinayprograms/awclient/event"
	"github.com/vinayprograms/awclient/heartbeat"
)

// Request is one request received by the fake.
type Request struct {
	Method string
	Path   string // relative to /api/0/, e.g. "buckets/b/heartbeat"
	Query  url.Values
	Body   []byte
}

// QueryRequest is the decoded body of a query call.
type QueryRequest struct {
	TimePeriods []string `json:"timeperiods"`
	Query       []string `json:"query"`
}

// QueryHandler answers query calls. It returns the response body and status.
type QueryHandler func(q QueryRequest, params url.Values) (interface{}, int)

type failure struct {
	remaining int
	status    int
	match     string
}

type bucket struct {
	meta   event.Bucket
	events []event.Event
}

// Server is a fake event server.
type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	buckets  map[string]*bucket
	nextID   int64
	requests []Request
	failures []*failure
	query    QueryHandler

	down atomic.Bool
}

// NewServer starts a fake server on a random local port.
func NewServer() *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		buckets: make(map[string]*bucket),
		nextID:  1,
	}
	s.srv = httptest.NewServer(s.router())
	return s
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.Close()
}

// URL returns the server root, e.g. http://127.0.0.1:34567.
func (s *Server) URL() string {
	return s.srv.URL
}

// Host returns the listening host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.srv.Listener.Addr().String())
	return host
}

// Port returns the listening port.
func (s *Server) Port() int {
	return s.srv.Listener.Addr().(*net.TCPAddr).Port
}

// SetDown makes the server drop every connection without answering.
func (s *Server) SetDown(down bool) {
	s.down.Store(down)
}

// FailNext makes the next n requests whose path contains match (any path
// if empty) fail with status.
func (s *Server) FailNext(n, status int, match string) {
	s.mu.Lock()
	s.failures = append(s.failures, &failure{remaining: n, status: status, match: match})
	s.mu.Unlock()
}

// SetQueryHandler replaces the default query answer (one empty list per
// period).
func (s *Server) SetQueryHandler(h QueryHandler) {
	s.mu.Lock()
	s.query = h
	s.mu.Unlock()
}

// Requests returns every request received so far, oldest first.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsTo returns the received requests whose path starts with prefix.
func (s *Server) RequestsTo(method, prefix string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

// Bucket returns a bucket's metadata.
func (s *Server) Bucket(id string) (event.Bucket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[id]
	if !ok {
		return event.Bucket{}, false
	}
	return b.meta, true
}

// Events returns a bucket's events, oldest first.
func (s *Server) Events(id string) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[id]
	if !ok {
		return nil
	}
	out := make([]event.Event, len(b.events))
	for i, e := range b.events {
		out[i] = e.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// AddBucket creates a bucket directly, bypassing HTTP.
func (s *Server) AddBucket(id, typ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[id]; !ok {
		now := time.Now().UTC()
		s.buckets[id] = &bucket{meta: event.Bucket{ID: id, Name: id, Type: typ, Created: &now}}
	}
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.record, s.inject)

	api := r.Group("/api/0")
	api.GET("/info", s.getInfo)
	api.GET("/export", s.exportAll)
	api.POST("/import", s.importBuckets)
	api.POST("/query/", s.postQuery)

	api.GET("/buckets/", s.listBuckets)
	api.GET("/buckets/:id", s.getBucket)
	api.POST("/buckets/:id", s.createBucket)
	api.DELETE("/buckets/:id", s.deleteBucket)
	api.GET("/buckets/:id/export", s.exportBucket)
	api.GET("/buckets/:id/events", s.getEvents)
	api.POST("/buckets/:id/events", s.insertEvents)
	api.GET("/buckets/:id/events/count", s.countEvents)
	api.GET("/buckets/:id/events/:eid", s.getEvent)
	api.DELETE("/buckets/:id/events/:eid", s.deleteEvent)
	api.POST("/buckets/:id/heartbeat", s.postHeartbeat)
	return r
}

// --- Middleware ---

func (s *Server) record(c *gin.Context) {
	if s.down.Load() {
		if conn, _, err := c.Writer.Hijack(); err == nil {
			conn.Close()
		}
		c.Abort()
		return
	}
	body, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method: c.Request.Method,
		Path:   strings.TrimPrefix(c.Request.URL.Path, "/api/0/"),
		Query:  c.Request.URL.Query(),
		Body:   body,
	})
	s.mu.Unlock()
	c.Next()
}

func (s *Server) inject(c *gin.Context) {
	s.mu.Lock()
	status := 0
	for _, f := range s.failures {
		if f.remaining > 0 && strings.Contains(c.Request.URL.Path, f.match) {
			f.remaining--
			status = f.status
			break
		}
	}
	s.mu.Unlock()

	if status != 0 {
		c.AbortWithStatusJSON(status, gin.H{"message": "injected failure"})
		return
	}
	c.Next()
}

// --- Handlers ---

func (s *Server) getInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"hostname":  "awtest",
		"version":   "v0.0.0-awtest",
		"testing":   true,
		"device_id": "awtest",
	})
}

func (s *Server) listBuckets(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]event.Bucket, len(s.buckets))
	for id, b := range s.buckets {
		out[id] = b.meta
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getBucket(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[c.Param("id")]
	if !ok {
		notFound(c, "bucket")
		return
	}
	c.JSON(http.StatusOK, b.meta)
}

func (s *Server) createBucket(c *gin.Context) {
	var req event.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON payload")
		return
	}

	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[id]; ok {
		c.Status(http.StatusNotModified)
		return
	}
	now := time.Now().UTC()
	s.buckets[id] = &bucket{meta: event.Bucket{
		ID:       id,
		Name:     id,
		Type:     req.Type,
		Client:   req.Client,
		Hostname: req.Hostname,
		Created:  &now,
	}}
	c.Status(http.StatusOK)
}

func (s *Server) deleteBucket(c *gin.Context) {
	if c.Query("force") != "1" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "deleting buckets requires force=1"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if _, ok := s.buckets[id]; !ok {
		notFound(c, "bucket")
		return
	}
	delete(s.buckets, id)
	c.Status(http.StatusOK)
}

func (s *Server) getEvents(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[c.Param("id")]
	if !ok {
		notFound(c, "bucket")
		return
	}

	start, end, err := parseRange(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	limit := -1
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			badRequest(c, "invalid limit")
			return
		}
	}

	out := filterEvents(b.events, start, end)
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) countEvents(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[c.Param("id")]
	if !ok {
		notFound(c, "bucket")
		return
	}
	start, end, err := parseRange(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, len(filterEvents(b.events, start, end)))
}

func (s *Server) getEvent(c *gin.Context) {
	eid, err := strconv.ParseInt(c.Param("eid"), 10, 64)
	if err != nil {
		badRequest(c, "invalid event id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[c.Param("id")]
	if !ok {
		notFound(c, "bucket")
		return
	}
	for _, e := range b.events {
		if *e.ID == eid {
			c.JSON(http.StatusOK, e)
			return
		}
	}
	notFound(c, "event")
}

func (s *Server) deleteEvent(c *gin.Context) {
	eid, err := strconv.ParseInt(c.Param("eid"), 10, 64)
	if err != nil {
		badRequest(c, "invalid event id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[c.Param("id")]
	if !ok {
		notFound(c, "bucket")
		return
	}
	for i, e := range b.events {
		if *e.ID == eid {
			b.events = append(b.events[:i], b.events[i+1:]...)
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}
	}
	notFound(c, "event")
}

func (s *Server) insertEvents(c *gin.Context) {
	events, err := decodeEvents(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[c.Param("id")]
	if !ok {
		notFound(c, "bucket")
		return
	}

	var last *event.Event
	for _, e := range events {
		stored := s.store(b, e)
		last = &stored
	}
	if last == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, last)
}

func (s *Server) postHeartbeat(c *gin.Context) {
	pulsetime, err := strconv.ParseFloat(c.Query("pulsetime"), 64)
	if err != nil {
		badRequest(c, "pulsetime is required")
		return
	}
	var hb event.Event
	if err := c.ShouldBindJSON(&hb); err != nil {
		badRequest(c, "invalid event: "+err.Error())
		return
	}
	if err := hb.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[c.Param("id")]
	if !ok {
		notFound(c, "bucket")
		return
	}

	if i := latest(b.events); i >= 0 && heartbeat.Mergeable(b.events[i], hb, event.Seconds(pulsetime)) {
		b.events[i] = heartbeat.Merge(b.events[i], hb)
		c.JSON(http.StatusOK, b.events[i])
		return
	}
	c.JSON(http.StatusOK, s.store(b, hb))
}

func (s *Server) exportBucket(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[c.Param("id")]
	if !ok {
		notFound(c, "bucket")
		return
	}
	c.JSON(http.StatusOK, event.Export{Buckets: map[string]event.Bucket{b.meta.ID: exported(b)}})
}

func (s *Server) exportAll(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := event.Export{Buckets: make(map[string]event.Bucket, len(s.buckets))}
	for id, b := range s.buckets {
		out.Buckets[id] = exported(b)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) importBuckets(c *gin.Context) {
	var doc event.Export
	if err := c.ShouldBindJSON(&doc); err != nil {
		badRequest(c, "invalid export document")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range doc.Buckets {
		if _, ok := s.buckets[id]; ok {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "bucket already exists: " + id})
			return
		}
	}
	for id, meta := range doc.Buckets {
		events := meta.Events
		meta.Events = nil
		if meta.ID == "" {
			meta.ID = id
		}
		b := &bucket{meta: meta}
		s.buckets[id] = b
		for _, e := range events {
			e.ID = nil
			s.store(b, e)
		}
	}
	c.Status(http.StatusOK)
}

func (s *Server) postQuery(c *gin.Context) {
	var q QueryRequest
	if err := c.ShouldBindJSON(&q); err != nil {
		badRequest(c, "invalid query")
		return
	}
	if c.Query("cache") != "" && c.Query("name") == "" {
		badRequest(c, "cached queries need a name")
		return
	}

	s.mu.Lock()
	h := s.query
	s.mu.Unlock()

	if h != nil {
		body, status := h(q, c.Request.URL.Query())
		c.JSON(status, body)
		return
	}
	out := make([][]interface{}, len(q.TimePeriods))
	for i := range out {
		out[i] = []interface{}{}
	}
	c.JSON(http.StatusOK, out)
}

// --- Helpers ---

// store assigns an ID and appends. Caller holds s.mu.
func (s *Server) store(b *bucket, e event.Event) event.Event {
	e = e.Clone()
	id := s.nextID
	s.nextID++
	e.ID = &id
	b.events = append(b.events, e)
	now := time.Now().UTC()
	b.meta.LastUpdated = &now
	return e
}

// latest returns the index of the most recent event, or -1.
func latest(events []event.Event) int {
	idx := -1
	for i, e := range events {
		if idx < 0 || !e.Timestamp.Before(events[idx].Timestamp) {
			idx = i
		}
	}
	return idx
}

func exported(b *bucket) event.Bucket {
	meta := b.meta
	meta.Events = filterEvents(b.events, time.Time{}, time.Time{})
	return meta
}

// filterEvents returns events overlapping [start, end), newest first.
func filterEvents(events []event.Event, start, end time.Time) []event.Event {
	out := make([]event.Event, 0, len(events))
	for _, e := range events {
		if !start.IsZero() && e.End().Before(start) {
			continue
		}
		if !end.IsZero() && !e.Timestamp.Before(end) {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func parseRange(c *gin.Context) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if v := c.Query("start"); v != "" {
		if start, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return start, end, err
		}
	}
	if v := c.Query("end"); v != "" {
		if end, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return start, end, err
		}
	}
	return start, end, nil
}

// decodeEvents accepts a single event or a list.
func decodeEvents(c *gin.Context) ([]event.Event, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var events []event.Event
		err := json.Unmarshal(body, &events)
		return events, err
	}
	var e event.Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, err
	}
	return []event.Event{e}, nil
}

func notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, gin.H{"message": what + " not found"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": msg})
}
