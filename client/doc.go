// Package client is the public API of awclient.
//
// A Client talks to one event server. Synchronous calls (GetEvents,
// InsertEvent, Query, ...) go straight through the transport and return its
// errors unchanged. Queued calls (Heartbeat with Queued set, CreateBucket
// with queued=true) never touch the network: heartbeats are merged in
// memory and committed to a durable queue that a background dispatcher
// drains once Connect has been called.
//
// Basic usage:
//
//	c, err := client.New(client.Options{Name: "aw-watcher-example"})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	c.CreateBucket(ctx, "example_"+c.Hostname(), "currentwindow", true)
//	c.Connect(ctx)
//
//	hb := event.New(time.Now(), 0, map[string]interface{}{"app": "vim"})
//	c.Heartbeat(ctx, "example_"+c.Hostname(), hb, client.HeartbeatOptions{
//		Pulsetime: 2 * time.Second,
//		Queued:    true,
//	})
package client
