package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Format renders the summary as plain text: a header, one table row per
// result and a statistics block per measurement.
func Format(summary Summary, now time.Time) string {
	var b strings.Builder
	b.WriteString("MELT POOL ANALYSIS SUMMARY\n")
	b.WriteString(strings.Repeat("=", 60))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Total analyses: %d\n", len(summary.Entries))
	fmt.Fprintf(&b, "Report generated: %s\n", now.Format(time.RFC3339))
	if len(summary.Skipped) > 0 {
		fmt.Fprintf(&b, "Skipped files: %s\n", strings.Join(summary.Skipped, ", "))
	}
	b.WriteString("\n")

	if len(summary.Entries) > 0 {
		b.WriteString(EntriesTable(summary.Entries, table.StyleDefault))
		b.WriteString("\n\n")
	}

	for _, block := range []struct {
		label string
		stats Stats
	}{
		{"Width statistics (mm)", summary.Width},
		{"Depth statistics (mm)", summary.Depth},
		{"Height statistics (mm)", summary.Height},
		{"Area statistics (mm²)", summary.Area},
	} {
		if block.stats.Count == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", block.label)
		fmt.Fprintf(&b, "  Mean: %.3f\n", block.stats.Mean)
		fmt.Fprintf(&b, "  Std:  %.3f\n", block.stats.Std)
		fmt.Fprintf(&b, "  Min:  %.3f\n", block.stats.Min)
		fmt.Fprintf(&b, "  Max:  %.3f\n\n", block.stats.Max)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// EntriesTable renders one row per result using style.
func EntriesTable(entries []Entry, style table.Style) string {
	tw := table.NewWriter()
	tw.SetStyle(style)
	tw.AppendHeader(table.Row{"Timestamp", "VTK File", "Width(mm)", "Depth(mm)", "Height(mm)", "Area(mm²)"})
	for _, entry := range entries {
		tw.AppendRow(table.Row{
			shortTimestamp(entry.Timestamp),
			entry.VTKFile,
			fmt.Sprintf("%.3f", entry.WidthMM),
			fmt.Sprintf("%.3f", entry.DepthMM),
			fmt.Sprintf("%.3f", entry.HeightMM),
			fmt.Sprintf("%.3f", entry.AreaMM2),
		})
	}
	configs := []table.ColumnConfig{{Number: 1, AlignHeader: text.AlignLeft}, {Number: 2, AlignHeader: text.AlignLeft}}
	for col := 3; col <= 6; col++ {
		configs = append(configs, table.ColumnConfig{Number: col, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func shortTimestamp(ts string) string {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return "N/A"
	}
	if len(ts) > 19 {
		return ts[:19]
	}
	return ts
}
