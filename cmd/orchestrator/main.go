// Command orchestrator is the drone orchestrator's host process: it wires
// the ready queue, per-drone dispatch, domain limiter, lifecycle tracker,
// intervention manager and websocket transport into a running server, and
// exposes a small CLI for starting it and validating a config file.
// Grounded on the teacher's cmd/maestro (a single binary dispatching on
// os.Args) generalized to cobra subcommands per the rest of the example
// pack's CLI convention.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
