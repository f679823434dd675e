package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ResultsPattern matches the files written by the analysis stage.
const ResultsPattern = "*_results.json"

// Entry is one analysis result converted to display units.
type Entry struct {
	File       string
	Timestamp  string
	VTKFile    string
	WidthMM    float64
	DepthMM    float64
	HeightMM   float64
	AreaMM2    float64
	FileSizeMB float64
}

// Stats describes a series of positive measurements.
type Stats struct {
	Count int
	Mean  float64
	Std   float64
	Min   float64
	Max   float64
}

// Summary aggregates every readable result file in a directory.
type Summary struct {
	Dir     string
	Entries []Entry
	// Skipped lists result files that could not be read or decoded.
	Skipped []string
	Width   Stats
	Depth   Stats
	Height  Stats
	Area    Stats
}

type rawResult struct {
	AnalysisTimestamp string  `json:"analysis_timestamp"`
	VTKFile           string  `json:"vtk_file"`
	Width             float64 `json:"width"`
	Depth             float64 `json:"depth"`
	Height            float64 `json:"height"`
	Area              float64 `json:"area"`
	FileSizeMB        float64 `json:"file_size_mb"`
}

// Collect reads every result file in dir in name order. A missing directory
// yields an empty summary.
func Collect(dir string) (Summary, error) {
	summary := Summary{Dir: dir}
	matches, err := filepath.Glob(filepath.Join(dir, ResultsPattern))
	if err != nil {
		return summary, fmt.Errorf("list results in %s: %w", dir, err)
	}
	if len(matches) == 0 {
		if _, statErr := os.Stat(dir); statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
			return summary, fmt.Errorf("stat results dir: %w", statErr)
		}
		return summary, nil
	}
	sort.Strings(matches)

	for _, path := range matches {
		entry, err := readEntry(path)
		if err != nil {
			summary.Skipped = append(summary.Skipped, filepath.Base(path))
			continue
		}
		summary.Entries = append(summary.Entries, entry)
	}

	summary.Width = computeStats(summary.Entries, func(e Entry) float64 { return e.WidthMM })
	summary.Depth = computeStats(summary.Entries, func(e Entry) float64 { return e.DepthMM })
	summary.Height = computeStats(summary.Entries, func(e Entry) float64 { return e.HeightMM })
	summary.Area = computeStats(summary.Entries, func(e Entry) float64 { return e.AreaMM2 })
	return summary, nil
}

func readEntry(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	var raw rawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return Entry{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return Entry{
		File:       filepath.Base(path),
		Timestamp:  raw.AnalysisTimestamp,
		VTKFile:    raw.VTKFile,
		WidthMM:    raw.Width * 1e3,
		DepthMM:    raw.Depth * 1e3,
		HeightMM:   raw.Height * 1e3,
		AreaMM2:    raw.Area * 1e6,
		FileSizeMB: raw.FileSizeMB,
	}, nil
}

// computeStats uses the population standard deviation over values > 0.
func computeStats(entries []Entry, value func(Entry) float64) Stats {
	var values []float64
	for _, entry := range entries {
		if v := value(entry); v > 0 {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return Stats{}
	}
	stats := Stats{Count: len(values), Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		sum += v
		stats.Min = math.Min(stats.Min, v)
		stats.Max = math.Max(stats.Max, v)
	}
	stats.Mean = sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - stats.Mean
		sq += d * d
	}
	stats.Std = math.Sqrt(sq / float64(len(values)))
	return stats
}

// FileName returns the summary file name for a report generated at now.
func FileName(now time.Time) string {
	return "analysis_summary_" + now.Format("20060102_150405") + ".txt"
}

// Write renders summary into dir and returns the file path.
func Write(summary Summary, dir string, now time.Time) (string, error) {
	if len(summary.Entries) == 0 {
		return "", errors.New("no analysis results to summarize")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, FileName(now))
	content := Format(summary, now)
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
