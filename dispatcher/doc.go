// Package dispatcher drains the request queue to the server in the
// background.
//
// # State machine
//
//	Disconnected ──start/failure──> Connecting ──buckets ok──> Connected
//	      ^                            │  ^                         │
//	      │                            └──┘ wait ReconnectInterval  │
//	      └──────────── delivery failed, wait ErrorBackoff ─────────┘
//
//	any state ──Stop()/ctx done──> Stopping ──> Stopped
//
// While Connected the dispatcher peeks the oldest request and posts it.
// Success acknowledges it. A connectivity failure, 5xx, 408 or 429 keeps
// it queued and drops back to Disconnected. Any other 4xx means the server
// will never accept it: it is acknowledged and logged as dropped.
//
// Registered buckets are created every time a connection is established,
// before anything is delivered. Buckets registered while connected are
// created before the next delivery.
//
// # Usage
//
//	d, _ := dispatcher.New(dispatcher.Config{
//	    Transport: t,
//	    Store:     store,
//	})
//	d.RegisterBucket(dispatcher.Bucket{ID: "b", Type: "currentwindow"})
//	d.Start(ctx)
//	defer d.Stop()
//
// A stopped dispatcher cannot be started again; build a new one.
package dispatcher
