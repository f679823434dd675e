package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"meltwatch/internal/report"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var write bool
	var dir string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize melt-pool analysis results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			target := strings.TrimSpace(dir)
			if target == "" {
				target = cfg.Analysis.OutputDir
			}
			summary, err := report.Collect(target)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(summary.Entries) == 0 {
				fmt.Fprintf(out, "No analysis results found in %s\n", target)
				return nil
			}

			fmt.Fprintf(out, "%d analyses in %s\n", len(summary.Entries), target)
			if len(summary.Skipped) > 0 {
				fmt.Fprintf(out, "Skipped unreadable files: %s\n", strings.Join(summary.Skipped, ", "))
			}
			fmt.Fprintln(out, report.EntriesTable(summary.Entries, table.StyleRounded))

			statsRows := make([][]string, 0, 4)
			for _, row := range []struct {
				label string
				stats report.Stats
			}{
				{"Width (mm)", summary.Width},
				{"Depth (mm)", summary.Depth},
				{"Height (mm)", summary.Height},
				{"Area (mm²)", summary.Area},
			} {
				if row.stats.Count == 0 {
					continue
				}
				statsRows = append(statsRows, []string{
					row.label,
					fmt.Sprintf("%d", row.stats.Count),
					fmt.Sprintf("%.3f", row.stats.Mean),
					fmt.Sprintf("%.3f", row.stats.Std),
					fmt.Sprintf("%.3f", row.stats.Min),
					fmt.Sprintf("%.3f", row.stats.Max),
				})
			}
			if len(statsRows) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Measure", "N", "Mean", "Std", "Min", "Max"},
					statsRows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
				))
			}

			if write {
				path, err := report.Write(summary, target, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Summary written to %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&write, "write", false, "Also write analysis_summary_<timestamp>.txt into the results directory")
	cmd.Flags().StringVar(&dir, "dir", "", "Results directory (defaults to analysis.output_dir)")
	return cmd
}
