// Command awclient talks to an event server from the shell: send
// heartbeats, list buckets and events, run queries and inspect the local
// request queue.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vinayprograms/awclient/shutdown"
)

func main() {
	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
	ctx := coord.HandleSignals(context.Background())

	root := newRootCmd(coord)
	err := root.ExecuteContext(ctx)

	if serr := coord.ShutdownWithTimeout(); serr != nil && serr != shutdown.ErrAlreadyShutdown {
		fmt.Fprintln(os.Stderr, "shutdown:", serr)
	}
	if err != nil {
		os.Exit(1)
	}
}
