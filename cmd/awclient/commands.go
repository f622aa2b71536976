package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/awclient/client"
	"github.com/vinayprograms/awclient/event"
)

func newHeartbeatCmd(o *globalOptions) *cobra.Command {
	var (
		pulsetime  float64
		queued     bool
		bucketType string
		wait       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "heartbeat BUCKET_ID DATA",
		Short: "Send a heartbeat with JSON DATA to a bucket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data map[string]interface{}
			if err := json.Unmarshal([]byte(args[1]), &data); err != nil {
				return fmt.Errorf("DATA must be a JSON object: %w", err)
			}

			c, err := o.client(queued)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			bucket := args[0]
			e := event.New(time.Now().UTC(), 0, data)
			hbOpts := client.HeartbeatOptions{Pulsetime: event.Seconds(pulsetime), Queued: queued}

			if bucketType != "" {
				if err := c.CreateBucket(ctx, bucket, bucketType, queued); err != nil {
					return err
				}
			}

			if !queued {
				got, err := c.Heartbeat(ctx, bucket, e, hbOpts)
				if err != nil {
					return err
				}
				if got != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", formatTime(got.Timestamp), formatDuration(got.Duration), formatData(got.Data))
				}
				return nil
			}

			if _, err := c.Heartbeat(ctx, bucket, e, hbOpts); err != nil {
				return err
			}
			if err := c.Connect(ctx); err != nil {
				return err
			}
			dctx, cancel := context.WithTimeout(ctx, wait)
			defer cancel()
			if err := c.Drain(dctx); err != nil {
				n, _ := c.QueueSize()
				fmt.Fprintf(cmd.ErrOrStderr(), "server unreachable, %d requests stay queued\n", n)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "delivered")
			return nil
		},
	}
	cmd.Flags().Float64Var(&pulsetime, "pulsetime", 60, "seconds within which heartbeats with equal data merge")
	cmd.Flags().BoolVar(&queued, "queued", false, "go through the durable queue; undelivered heartbeats are kept for later")
	cmd.Flags().StringVar(&bucketType, "create", "", "create the bucket with this type first")
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "with --queued, how long to wait for delivery")
	return cmd
}

func newBucketsCmd(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "buckets",
		Short: "List all buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client(false)
			if err != nil {
				return err
			}
			buckets, err := c.GetBuckets(cmd.Context())
			if err != nil {
				return err
			}

			ids := make([]string, 0, len(buckets))
			for id := range buckets {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			t := newTable(cmd.OutOrStdout(), "ID", "Type", "Client", "Hostname", "Last updated")
			for _, id := range ids {
				b := buckets[id]
				updated := ""
				if b.LastUpdated != nil {
					updated = formatTime(*b.LastUpdated)
				}
				t.Append([]string{id, b.Type, b.Client, b.Hostname, updated})
			}
			t.Render()
			return nil
		},
	}
}

func newEventsCmd(o *globalOptions) *cobra.Command {
	var (
		limit       int
		start, stop string
	)
	cmd := &cobra.Command{
		Use:   "events BUCKET_ID",
		Short: "List events in a bucket, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := client.EventsFilter{Limit: limit}
			var err error
			if start != "" {
				if filter.Start, err = parseTime(start); err != nil {
					return err
				}
			}
			if stop != "" {
				if filter.End, err = parseTime(stop); err != nil {
					return err
				}
			}

			c, err := o.client(false)
			if err != nil {
				return err
			}
			events, err := c.GetEvents(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}

			t := newTable(cmd.OutOrStdout(), "Timestamp", "Duration", "Data")
			for _, e := range events {
				t.Append([]string{formatTime(e.Timestamp), formatDuration(e.Duration), shorten(formatData(e.Data), 100)})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events (0 for all)")
	cmd.Flags().StringVar(&start, "start", "", "only events ending after this time")
	cmd.Flags().StringVar(&stop, "stop", "", "only events starting before this time")
	return cmd
}
