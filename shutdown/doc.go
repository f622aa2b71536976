// Package shutdown runs ordered, phased shutdown for programs built on
// awclient.
//
// A watcher process has a natural order to stop in: stop producing
// heartbeats, give the dispatcher a moment to deliver the backlog, commit
// pending heartbeats and close the queue, then flush telemetry. Handlers
// are grouped by phase; lower phases run first and handlers within a
// phase run concurrently.
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	coord.Register("watcher", shutdown.PhaseWatchers, shutdown.Func(w.Stop))
//	coord.Register("drain", shutdown.PhaseDrain, shutdown.Func(c.Drain))
//	coord.Register("client", shutdown.PhaseClients, c)
//
//	ctx := coord.HandleSignals(context.Background())
//	<-ctx.Done()
//	<-coord.Done()
package shutdown
