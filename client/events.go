package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vinayprograms/awclient/errors"
	"github.com/vinayprograms/awclient/event"
)

// EventsFilter narrows GetEvents and GetEventCount.
type EventsFilter struct {
	// Limit caps the number of events returned, newest first. Zero or
	// negative means no limit.
	Limit int

	// Start and End bound the events by time. Zero means unbounded.
	Start time.Time
	End   time.Time
}

func (f EventsFilter) values(withLimit bool) url.Values {
	v := url.Values{}
	if withLimit && f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	if !f.Start.IsZero() {
		v.Set("start", f.Start.Format(time.RFC3339Nano))
	}
	if !f.End.IsZero() {
		v.Set("end", f.End.Format(time.RFC3339Nano))
	}
	return v
}

// GetEvent returns one event, or nil if the server does not have it.
func (c *Client) GetEvent(ctx context.Context, bucketID string, id int64) (*event.Event, error) {
	resp, err := c.tr.Get(ctx, bucketPath(bucketID, "events", strconv.FormatInt(id, 10)), nil)
	if err != nil {
		if errors.StatusCode(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return decodeEvent(resp)
}

// GetEvents returns a bucket's events, newest first.
func (c *Client) GetEvents(ctx context.Context, bucketID string, filter EventsFilter) ([]event.Event, error) {
	resp, err := c.tr.Get(ctx, bucketPath(bucketID, "events"), filter.values(true))
	if err != nil {
		return nil, err
	}
	var events []event.Event
	if err := resp.JSON(&events); err != nil {
		return nil, errors.Wrap(err, "decode events")
	}
	return events, nil
}

// GetEventCount returns how many events fall within the filter's range.
// Limit is ignored.
func (c *Client) GetEventCount(ctx context.Context, bucketID string, filter EventsFilter) (int, error) {
	resp, err := c.tr.Get(ctx, bucketPath(bucketID, "events", "count"), filter.values(false))
	if err != nil {
		return 0, err
	}
	var n int
	if err := resp.JSON(&n); err != nil {
		return 0, errors.Wrap(err, "decode event count")
	}
	return n, nil
}

// InsertEvent stores one event as is. Use Heartbeat for events that should
// be merged with their predecessor.
func (c *Client) InsertEvent(ctx context.Context, bucketID string, e event.Event) error {
	return c.InsertEvents(ctx, bucketID, []event.Event{e})
}

// InsertEvents stores events as is, in one request.
func (c *Client) InsertEvents(ctx context.Context, bucketID string, events []event.Event) error {
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return errors.InvalidInput("event "+strconv.Itoa(i)+": "+err.Error(), errors.WithCause(err))
		}
	}
	_, err := c.tr.Post(ctx, bucketPath(bucketID, "events"), events)
	return err
}

// DeleteEvent removes one event.
func (c *Client) DeleteEvent(ctx context.Context, bucketID string, id int64) error {
	_, err := c.tr.Delete(ctx, bucketPath(bucketID, "events", strconv.FormatInt(id, 10)), nil)
	return err
}
