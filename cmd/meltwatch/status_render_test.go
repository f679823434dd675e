package main

import (
	"fmt"
	"strings"
	"testing"

	"meltwatch/internal/history"
	"meltwatch/internal/processed"
	"meltwatch/internal/workunit"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("meltwatch", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "meltwatch:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("meltwatch", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestBuildUnitRowsAppendsRemovedUnits(t *testing.T) {
	store, err := processed.Load(t.TempDir() + "/processed_files.log")
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"1e-05", "2e-05"} {
		if err := store.Append(id); err != nil {
			t.Fatal(err)
		}
	}
	units := []workunit.Unit{
		{ID: "2e-05", Time: 2e-05, Numeric: true},
		{ID: "3e-05", Time: 3e-05, Numeric: true},
	}
	summaries := map[string]history.UnitSummary{"3e-05": {UnitID: "3e-05", Attempts: 2, Failures: 1}}

	rows := buildUnitRows(units, store, summaries)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if !rows[0].done || rows[1].done || rows[1].summary == nil {
		t.Fatalf("unexpected on-disk rows: %+v", rows[:2])
	}
	if rows[2].unit.ID != "1e-05" || !rows[2].orphaned {
		t.Fatalf("expected removed processed unit last, got %+v", rows[2])
	}
}
