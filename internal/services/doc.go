// Package services defines shared utilities consumed by the pipeline, the
// watch loop and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp work unit IDs, stage names, and attempt
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap and Details helpers that let the
//     monitor tell fatal setup failures apart from per-unit stage failures.
//
// Use these helpers when wiring new stage logic so failure handling stays
// uniform across the monitor.
package services
