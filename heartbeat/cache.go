package heartbeat

import (
	"sort"
	"sync"

	"github.com/vinayprograms/awclient/event"
)

// Cache holds the pending heartbeat of each bucket.
type Cache struct {
	mu     sync.Mutex
	events map[string]event.Event
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{events: make(map[string]event.Event)}
}

// Set replaces the pending event for a bucket.
func (c *Cache) Set(bucket string, e event.Event) {
	c.mu.Lock()
	c.events[bucket] = e
	c.mu.Unlock()
}

// Delete forgets the pending event for a bucket.
func (c *Cache) Delete(bucket string) {
	c.mu.Lock()
	delete(c.events, bucket)
	c.mu.Unlock()
}

// Update merges candidate into the bucket's pending event. When the result
// has an event to send, commit is called with it first; if commit fails the
// pending event is left as it was and the error is returned. commit may be
// nil.
func (c *Cache) Update(bucket string, candidate event.Event, cfg Config, commit func(event.Event) error) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var last *event.Event
	if e, ok := c.events[bucket]; ok {
		last = &e
	}
	res := cfg.Apply(last, candidate)
	if res.ToSend != nil && commit != nil {
		if err := commit(*res.ToSend); err != nil {
			return res, err
		}
	}
	c.events[bucket] = res.NewLast
	return res, nil
}

// Buckets returns the buckets with a pending event, sorted.
func (c *Cache) Buckets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for b := range c.events {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Flush removes and returns every pending event.
func (c *Cache) Flush() map[string]event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = make(map[string]event.Event)
	return out
}
