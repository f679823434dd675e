// Package pipeline drives one work unit through reconstruction and analysis.
//
// Per unit the stages run strictly in order:
//
//	PENDING --reconstruction--> RECON_OK | RECON_FAILED | RECON_TIMEOUT
//	RECON_OK --settle delay--> analysis --> DONE | ANALYSIS_FAILED | ANALYSIS_TIMEOUT
//
// Only DONE appends the unit to the processed store. Every other ending
// leaves it absent, and the next pass starts again from reconstruction;
// nothing about a half-finished unit is persisted. Each invocation is logged
// to its own file under the results directory, recorded in the attempt
// ledger, and failures carry the tail of that log into the monitoring log.
package pipeline
