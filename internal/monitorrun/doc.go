// Package monitorrun assembles a monitor process: logging, preflight checks,
// the single-instance lock, the processed-state store, the attempt ledger,
// the stage pipeline and the watch loop. The `meltwatch run` command is a thin
// wrapper around Run.
package monitorrun
