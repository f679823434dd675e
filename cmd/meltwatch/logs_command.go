package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"meltwatch/internal/config"
	"meltwatch/internal/history"
	"meltwatch/internal/logs"
)

const followInterval = 500 * time.Millisecond

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var unitID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the monitoring log, or the latest stage log for a unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if lines <= 0 {
				return fmt.Errorf("--lines must be positive")
			}
			out := cmd.OutOrStdout()

			path := cfg.MonitoringLogPath()
			if unit := strings.TrimSpace(unitID); unit != "" {
				path, err = latestStageLog(cmd, cfg, unit)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "==> %s <==\n", path)
			}

			tail, offset, err := logs.LastLines(path, lines)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			if len(tail) == 0 && !follow {
				fmt.Fprintf(out, "No log output yet at %s\n", path)
				return nil
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return logs.Follow(signalCtx, path, offset, followInterval, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&unitID, "unit", "", "Show the most recent stage log of this unit instead")
	return cmd
}

func latestStageLog(cmd *cobra.Command, cfg *config.Config, unitID string) (string, error) {
	if !cfg.History.Enabled {
		return "", fmt.Errorf("--unit needs [history] enabled")
	}
	if _, err := os.Stat(cfg.History.Path); err != nil {
		return "", fmt.Errorf("no attempt history at %s", cfg.History.Path)
	}
	ledger, err := history.Open(cmd.Context(), cfg.History.Path)
	if err != nil {
		return "", err
	}
	defer ledger.Close()
	attempts, err := ledger.ForUnit(cmd.Context(), unitID)
	if err != nil {
		return "", err
	}
	for i := len(attempts) - 1; i >= 0; i-- {
		if attempts[i].LogPath != "" {
			return attempts[i].LogPath, nil
		}
	}
	return "", fmt.Errorf("no stage attempts recorded for %s", unitID)
}
