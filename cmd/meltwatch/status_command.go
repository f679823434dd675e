package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"meltwatch/internal/config"
	"meltwatch/internal/history"
	"meltwatch/internal/processed"
	"meltwatch/internal/workunit"
)

type unitRow struct {
	unit     workunit.Unit
	done     bool
	summary  *history.UnitSummary
	orphaned bool
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show monitor state and per-unit progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Monitor", colorize) {
				fmt.Fprintln(out, line)
			}
			running, pid := monitorState(cfg)
			if running {
				message := "Running"
				if pid != "" {
					message += " (pid " + pid + ")"
				}
				fmt.Fprintln(out, renderStatusLine("meltwatch", statusOK, message, colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("meltwatch", statusInfo, "Not running", colorize))
			}

			store, err := processed.Load(cfg.ProcessedLogPath())
			if err != nil {
				return fmt.Errorf("load processed log: %w", err)
			}
			summaries, err := loadSummaries(cmd.Context(), cfg)
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("History", statusWarn, err.Error(), colorize))
			}

			units, listErr := workunit.List(cfg.Paths.WatchDir, cfg.Workflow.ExcludedDirs)
			switch {
			case errors.Is(listErr, workunit.ErrDirectoryNotFound):
				fmt.Fprintln(out, renderStatusLine("Watch directory", statusError, "not found: "+cfg.Paths.WatchDir, colorize))
			case listErr != nil:
				fmt.Fprintln(out, renderStatusLine("Watch directory", statusError, listErr.Error(), colorize))
			default:
				fmt.Fprintln(out, renderStatusLine("Watch directory", statusOK, cfg.Paths.WatchDir, colorize))
			}

			rows := buildUnitRows(units, store, summaries)
			pending := 0
			for _, row := range rows {
				if !row.done && !row.orphaned {
					pending++
				}
			}
			fmt.Fprintln(out, renderStatusLine("Processed", statusInfo, strconv.Itoa(store.Len()), colorize))
			kind := statusOK
			if pending > 0 {
				kind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Pending", kind, strconv.Itoa(pending), colorize))
			fmt.Fprintln(out)

			if len(rows) == 0 {
				fmt.Fprintln(out, "No time directories found")
				return nil
			}
			writeUnitTable(out, rows)
			return nil
		},
	}
}

// monitorState tries the run lock without holding it.
func monitorState(cfg *config.Config) (bool, string) {
	if _, err := os.Stat(cfg.Paths.ResultsDir); err != nil {
		return false, ""
	}
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return false, ""
	}
	if locked {
		_ = lock.Unlock()
		return false, ""
	}
	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		return true, ""
	}
	return true, strings.TrimSpace(string(data))
}

func loadSummaries(ctx context.Context, cfg *config.Config) (map[string]history.UnitSummary, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	if _, err := os.Stat(cfg.History.Path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ledger, err := history.Open(ctx, cfg.History.Path)
	if err != nil {
		return nil, err
	}
	defer ledger.Close()
	list, err := ledger.Summaries(ctx)
	if err != nil {
		return nil, err
	}
	byUnit := make(map[string]history.UnitSummary, len(list))
	for _, summary := range list {
		byUnit[summary.UnitID] = summary
	}
	return byUnit, nil
}

// buildUnitRows lists units on disk in processing order, followed by any
// processed IDs whose directory has since been removed.
func buildUnitRows(units []workunit.Unit, store *processed.Store, summaries map[string]history.UnitSummary) []unitRow {
	rows := make([]unitRow, 0, len(units))
	seen := make(map[string]struct{}, len(units))
	for _, unit := range units {
		row := unitRow{unit: unit, done: store.Contains(unit.ID)}
		if summary, ok := summaries[unit.ID]; ok {
			row.summary = &summary
		}
		rows = append(rows, row)
		seen[unit.ID] = struct{}{}
	}
	for _, id := range store.IDs() {
		if _, ok := seen[id]; ok {
			continue
		}
		t, numeric := workunit.ParseTime(id)
		row := unitRow{unit: workunit.Unit{ID: id, Time: t, Numeric: numeric}, done: true, orphaned: true}
		if summary, ok := summaries[id]; ok {
			row.summary = &summary
		}
		rows = append(rows, row)
	}
	return rows
}

func writeUnitTable(out io.Writer, rows []unitRow) {
	headers := []string{"Unit", "State", "Attempts", "Failures", "Last Stage", "Last Outcome", "Last Activity"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft}
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		state := "pending"
		switch {
		case row.orphaned:
			state = "processed (removed)"
		case row.done:
			state = "processed"
		case row.summary != nil && row.summary.Failures > 0:
			state = "retrying"
		}
		if !row.unit.Numeric && !row.orphaned {
			state += " *"
		}
		attempts, failures, stage, outcome, at := "-", "-", "-", "-", "-"
		if s := row.summary; s != nil {
			attempts = strconv.Itoa(s.Attempts)
			failures = strconv.Itoa(s.Failures)
			stage = s.LastStage
			outcome = s.LastOutcome
			if outcome == "failed" {
				outcome = fmt.Sprintf("failed(%d)", s.LastExit)
			}
			if !s.LastAt.IsZero() {
				at = s.LastAt.Local().Format(time.DateTime) + " (" + humanize.Time(s.LastAt) + ")"
			}
		}
		table = append(table, []string{row.unit.ID, state, attempts, failures, stage, outcome, at})
	}
	fmt.Fprintln(out, renderTable(headers, table, aligns))
	for _, row := range rows {
		if !row.unit.Numeric && !row.orphaned {
			fmt.Fprintln(out, "* name is not a number; ordered as time 0")
			break
		}
	}
}
