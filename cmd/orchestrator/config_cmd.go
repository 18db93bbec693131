package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dronefleet/orchestrator/internal/config"
)

// newConfigCmd creates the "orchestrator config" command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate the orchestrator configuration",
	}
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Load a config file and report whether it is valid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config %s is valid\n", args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "  ready_queue.capacity=%d per_drone_queue.capacity=%d ack_timeout_sec=%d\n",
				cfg.Scheduling.ReadyQueue.Capacity, cfg.Scheduling.PerDroneQueue.Capacity, cfg.Scheduling.AckTimeoutSec)
			fmt.Fprintf(cmd.OutOrStdout(), "  global.max_concurrent_sessions=%d per_domain.qps_per_drone=%.1f\n",
				cfg.Limits.Global.MaxConcurrentSessions, cfg.Limits.PerDomain.QpsPerDrone)
			return nil
		},
	}
}
