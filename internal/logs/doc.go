// Package logs reads stage and monitoring logs for diagnostics.
//
// LastLines extracts the tail of a captured stage log so a failure report can
// carry the output that explains it. ReadFrom and Follow back `meltwatch logs
// --follow`, which streams the monitoring log while a run is in progress.
package logs
