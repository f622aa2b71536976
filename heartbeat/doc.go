// Package heartbeat merges consecutive heartbeats into longer events.
//
// # Overview
//
// A watcher reports "still in state X" every few seconds. Sending each of
// those to the server would store thousands of tiny events, so heartbeats
// with equal data that arrive within the pulse window are folded into the
// previous one. Only when the state changes, or when the accumulated event
// has grown past the commit interval, is anything handed on for delivery.
//
//	last                     candidate
//	|---- 4s ----|  gap <= pulsetime  |-- 0s --|
//	|----------- merged: 5s -------------------|
//
// # Usage
//
//	cache := heartbeat.NewCache()
//	cfg := heartbeat.Config{Pulsetime: 5 * time.Second, CommitInterval: 10 * time.Second}
//	_, err := cache.Update("aw-watcher-window_host", e, cfg, func(send event.Event) error {
//	    return store.Enqueue(...)
//	})
//
// Cache holds one pending event per bucket and lives only in memory. Flush
// returns every pending event so that a shutting-down client can hand them
// to the queue before exiting.
package heartbeat
