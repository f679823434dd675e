package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"meltwatch/internal/monitorrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var once bool
	var logLevel string
	var pollInterval int
	var maxRuntime int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch for new time directories and process them",
		Long: `Poll the watched directory and run reconstruction then analysis for every
time directory not yet listed in processed_files.log. Stops when the runtime
budget is used up, after one pass with --once, or on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("poll-interval") {
				cfg.Workflow.PollInterval = pollInterval
			}
			if cmd.Flags().Changed("max-runtime") {
				cfg.Workflow.MaxRuntime = maxRuntime
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			stats, err := monitorrun.Run(signalCtx, cfg, monitorrun.Options{
				LogLevel: logLevel,
				Once:     once,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped (%s): %d processed, %d failed attempts in %s\n",
				stats.Reason, stats.Processed, stats.Failed, stats.Elapsed.Round(time.Second))
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single pass and exit")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().IntVar(&pollInterval, "poll-interval", 0, "Seconds between scans")
	cmd.Flags().IntVar(&maxRuntime, "max-runtime", 0, "Total runtime budget in seconds")
	return cmd
}
