// Package logging assembles structured slog loggers and formatting helpers used
// across meltwatch.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and tees every record into the timestamped monitoring log that
// operators read after a long run. Context-aware helpers tag log lines with
// work unit IDs, stage names and attempt IDs. The package also provides a
// no-op logger for tests and retention pruning for per-invocation stage logs.
package logging
