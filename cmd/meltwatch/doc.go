// Command meltwatch watches a decomposed simulation output tree and runs the
// reconstruction and melt-pool analysis stages once for every new time
// directory.
//
// `meltwatch run` is the long-running monitor. The remaining commands inspect
// what it has done (`status`, `logs`, `report`), check a case directory before
// a run (`check`), and manage configuration (`config init|validate`,
// `test-notify`).
package main
