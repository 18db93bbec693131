package main

import (
	"github.com/spf13/cobra"
)

const appVersion = "0.1.0"

// newRootCmd creates the root orchestrator command with all subcommands
// attached, styled on the pack's newRootCmd aggregator convention (one
// newXCmd() per subcommand, attached in one place).
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "orchestrator",
		Short:         "Drone fleet orchestrator",
		Long:          "orchestrator dispatches browser-automation tasks to a fleet of drones\nover a persistent message bus, enforcing per-domain fairness and\nmanaging human-operator interventions.",
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newServeCmd(),
		newConfigCmd(),
	)
	return cmd
}
