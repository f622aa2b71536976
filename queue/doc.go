// Package queue is the durable, FIFO store of requests waiting to reach the
// server.
//
// # Overview
//
// A producer enqueues; a single consumer peeks the oldest request, tries to
// deliver it, and acknowledges it once it no longer needs to be kept. An
// enqueued request survives process restarts until it is acknowledged:
//
//	store, _ := queue.Open(queue.Options{Dir: dir, Name: "aw-watcher-window-at-localhost-on-5600"})
//	req, _ := queue.NewRequest("buckets/b/heartbeat?pulsetime=5", e)
//	store.Enqueue(req)
//
//	head, _ := store.Peek()   // same item until acknowledged
//	// deliver head ...
//	store.Acknowledge()
//
// # Backends
//
//   - bolt: a single bbolt file. The default. bbolt holds an exclusive file
//     lock, so only one process can use a queue at a time.
//   - pebble: a pebble directory, every write synced.
//   - memory: not durable; for tests.
//
// Records are msgpack encoded and the file name carries FormatVersion, so a
// format change starts a new file instead of misreading an old one. A
// record that cannot be decoded is logged, removed, and skipped.
package queue
