package client

import (
	"context"

	"github.com/vinayprograms/awclient/errors"
	"github.com/vinayprograms/awclient/event"
)

// ExportAll returns every bucket with its events.
func (c *Client) ExportAll(ctx context.Context) (*event.Export, error) {
	resp, err := c.tr.Get(ctx, "export", nil)
	if err != nil {
		return nil, err
	}
	var out event.Export
	if err := resp.JSON(&out); err != nil {
		return nil, errors.Wrap(err, "decode export")
	}
	return &out, nil
}

// ExportBucket returns one bucket with its events.
func (c *Client) ExportBucket(ctx context.Context, id string) (*event.Bucket, error) {
	resp, err := c.tr.Get(ctx, bucketPath(id, "export"), nil)
	if err != nil {
		return nil, err
	}
	var out event.Export
	if err := resp.JSON(&out); err != nil {
		return nil, errors.Wrap(err, "decode export")
	}
	b, ok := out.Buckets[id]
	if !ok {
		return nil, errors.NotFound("bucket missing from export: " + id)
	}
	return &b, nil
}

// ImportBucket uploads a bucket and its events, as produced by ExportBucket.
func (c *Client) ImportBucket(ctx context.Context, b event.Bucket) error {
	if b.ID == "" {
		return errors.InvalidInput("bucket id is required")
	}
	_, err := c.tr.Post(ctx, "import", event.Export{Buckets: map[string]event.Bucket{b.ID: b}})
	return err
}
