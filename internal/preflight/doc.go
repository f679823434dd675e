// Package preflight checks the filesystem and tools a monitor run needs.
//
// These checks run in two contexts:
//   - `meltwatch run` calls RunAll before the watch loop starts and aborts
//     with a setup error when a required check fails.
//   - `meltwatch check` prints every result, required or not, so an operator
//     can fix a case directory before submitting a long job.
package preflight
