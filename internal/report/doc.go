// Package report summarizes the per-file analysis results the analysis stage
// leaves in its output directory.
//
// Each `*_results.json` file holds one melt-pool measurement in SI units.
// Collect gathers them, converts lengths to millimetres and areas to square
// millimetres, and computes statistics over the positive values. Format
// renders the summary as text and Write stores it next to the results as
// analysis_summary_<timestamp>.txt.
package report
