package client

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/vinayprograms/awclient/errors"
	"github.com/vinayprograms/awclient/event"
	"github.com/vinayprograms/awclient/heartbeat"
	"github.com/vinayprograms/awclient/queue"
)

// HeartbeatOptions controls Heartbeat.
type HeartbeatOptions struct {
	// Pulsetime is how far after the end of the previous event a heartbeat
	// may start and still extend it.
	Pulsetime time.Duration

	// Queued merges locally and commits through the durable queue instead
	// of posting right away.
	Queued bool

	// CommitInterval overrides the configured commit interval for queued
	// heartbeats.
	CommitInterval time.Duration
}

// Heartbeat reports that the state described by e is still ongoing.
//
// Without Queued the heartbeat is posted and the server's resulting event
// is returned. With Queued nothing is sent: the heartbeat is merged into
// the bucket's pending event, and the pending event is committed to the
// queue once it can no longer be extended or has reached the commit
// interval. Queued calls return a nil event, and an error only for invalid
// input or a queue failure.
func (c *Client) Heartbeat(ctx context.Context, bucketID string, e event.Event, opts HeartbeatOptions) (*event.Event, error) {
	if err := e.Validate(); err != nil {
		return nil, errors.InvalidInput(err.Error(), errors.WithCause(err))
	}
	merge := heartbeat.Config{Pulsetime: opts.Pulsetime, CommitInterval: opts.CommitInterval}
	if err := merge.Validate(); err != nil {
		return nil, errors.InvalidInput("pulsetime and commit interval must not be negative", errors.WithCause(err))
	}
	endpoint := bucketPath(bucketID, "heartbeat") + "?pulsetime=" + formatSeconds(opts.Pulsetime)

	if !opts.Queued {
		resp, err := c.tr.Post(ctx, endpoint, e)
		if err != nil {
			return nil, err
		}
		return decodeEvent(resp)
	}

	if merge.CommitInterval == 0 {
		merge.CommitInterval = c.cfg.CommitInterval
	}

	c.hbMu.Lock()
	defer c.hbMu.Unlock()

	// The pending event goes to the endpoint it was cached with.
	prev, ok := c.endpoints[bucketID]
	if !ok {
		prev = endpoint
	}
	res, err := c.cache.Update(bucketID, e, merge, func(send event.Event) error {
		return c.enqueue(prev, send)
	})
	if err != nil {
		return nil, err
	}
	c.endpoints[bucketID] = endpoint
	c.logger.Debug("heartbeat", map[string]interface{}{"bucket": bucketID, "result": res.Kind.String()})
	return nil, nil
}

// Flush commits every pending queued heartbeat to the queue. Heartbeats
// that could not be committed stay pending.
func (c *Client) Flush() error {
	c.hbMu.Lock()
	defer c.hbMu.Unlock()

	pending := c.cache.Flush()
	buckets := make([]string, 0, len(pending))
	for id := range pending {
		buckets = append(buckets, id)
	}
	sort.Strings(buckets)

	var errs []error
	for _, id := range buckets {
		if err := c.enqueue(c.endpoints[id], pending[id]); err != nil {
			c.cache.Set(id, pending[id])
			errs = append(errs, err)
			continue
		}
		delete(c.endpoints, id)
	}
	return errors.Join(errs...)
}

func (c *Client) enqueue(endpoint string, e event.Event) error {
	req, err := queue.NewRequest(endpoint, e)
	if err != nil {
		return err
	}
	if err := c.store.Enqueue(req); err != nil {
		return errors.Wrap(err, "enqueue heartbeat", errors.WithEndpoint(endpoint))
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
