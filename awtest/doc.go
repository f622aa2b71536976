// Package awtest runs an in-process fake event server for tests.
//
// The fake implements the subset of the REST API the client uses, keeps
// buckets and events in memory, merges heartbeats the way the real server
// does, and records every request it receives. Failures can be injected:
//
//	srv := awtest.NewServer()
//	defer srv.Close()
//
//	srv.SetDown(true)              // connections are dropped
//	srv.FailNext(1, 500, "heartbeat") // next heartbeat gets a 500
//
//	c, _ := client.New(client.Options{Host: srv.Host(), Port: srv.Port()})
package awtest
