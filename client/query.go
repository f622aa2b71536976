package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vinayprograms/awclient/errors"
)

// Period is a half-open time range a query runs over.
type Period struct {
	Start time.Time
	End   time.Time
}

// String encodes the period the way the server expects: start/end.
func (p Period) String() string {
	return p.Start.Format(time.RFC3339Nano) + "/" + p.End.Format(time.RFC3339Nano)
}

func (p Period) validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("%w: start and end must be set", ErrInvalidPeriod)
	}
	if p.End.Before(p.Start) {
		return fmt.Errorf("%w: %s ends before it starts", ErrInvalidPeriod, p)
	}
	return nil
}

// QueryOptions controls Query.
type QueryOptions struct {
	// Name identifies the query for server-side caching.
	Name string

	// Cache lets the server reuse results for past periods. Requires Name.
	Cache bool
}

type queryBody struct {
	TimePeriods []string `json:"timeperiods"`
	Query       []string `json:"query"`
}

// Query runs a query script over each period and returns one raw result
// per period.
func (c *Client) Query(ctx context.Context, script string, periods []Period, opts QueryOptions) ([]json.RawMessage, error) {
	if len(periods) == 0 {
		return nil, fmt.Errorf("%w: at least one period is required", ErrInvalidPeriod)
	}
	if opts.Cache && opts.Name == "" {
		return nil, ErrNameRequired
	}

	body := queryBody{Query: strings.Split(script, "\n")}
	for _, p := range periods {
		if err := p.validate(); err != nil {
			return nil, err
		}
		body.TimePeriods = append(body.TimePeriods, p.String())
	}

	path := "query/"
	params := url.Values{}
	if opts.Name != "" {
		params.Set("name", opts.Name)
	}
	if opts.Cache {
		params.Set("cache", "1")
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	resp, err := c.tr.Post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	var results []json.RawMessage
	if err := resp.JSON(&results); err != nil {
		return nil, errors.Wrap(err, "decode query result")
	}
	return results, nil
}
