package client

import (
	"context"

	"github.com/vinayprograms/awclient/dispatcher"
	"github.com/vinayprograms/awclient/errors"
	"github.com/vinayprograms/awclient/event"
)

// CreateBucket makes sure a bucket exists.
//
// With queued set the bucket is registered with the dispatcher, which
// creates it on every (re)connect before delivering queued requests; no
// network I/O happens here. Otherwise the bucket is created right away and
// transport errors are returned. An existing bucket is not an error.
func (c *Client) CreateBucket(ctx context.Context, id, bucketType string, queued bool) error {
	if id == "" {
		return errors.InvalidInput("bucket id is required")
	}
	b := dispatcher.Bucket{
		ID:       id,
		Type:     bucketType,
		Client:   c.name,
		Hostname: c.hostname,
	}

	if queued {
		c.mu.Lock()
		c.buckets[id] = b
		d := c.disp
		c.mu.Unlock()
		if d != nil {
			d.RegisterBucket(b)
		}
		return nil
	}

	_, err := c.tr.Post(ctx, bucketPath(id), event.CreateRequest{
		Client:   b.Client,
		Hostname: b.Hostname,
		Type:     b.Type,
	})
	return err
}

// SetupBucket registers a bucket for queued creation.
func (c *Client) SetupBucket(id, bucketType string) error {
	return c.CreateBucket(context.Background(), id, bucketType, true)
}

// GetBuckets returns every bucket on the server, keyed by ID.
func (c *Client) GetBuckets(ctx context.Context) (map[string]event.Bucket, error) {
	resp, err := c.tr.Get(ctx, "buckets/", nil)
	if err != nil {
		return nil, err
	}
	var out map[string]event.Bucket
	if err := resp.JSON(&out); err != nil {
		return nil, errors.Wrap(err, "decode buckets")
	}
	return out, nil
}

// DeleteBucket removes a bucket and its events. The server refuses unless
// force is set. The bucket is also forgotten for queued creation.
func (c *Client) DeleteBucket(ctx context.Context, id string, force bool) error {
	path := bucketPath(id)
	if force {
		path += "?force=1"
	}
	if _, err := c.tr.Delete(ctx, path, nil); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.buckets, id)
	d := c.disp
	c.mu.Unlock()
	if d != nil {
		d.UnregisterBucket(id)
	}

	c.hbMu.Lock()
	c.cache.Delete(id)
	delete(c.endpoints, id)
	c.hbMu.Unlock()
	return nil
}
