package config

const (
	defaultWatchDir              = "processor0"
	defaultResultsDir            = "monitoring_results"
	defaultReconstructionDir     = "."
	defaultReconstructionExec    = "reconstruct.sh"
	defaultReconstructionTimeout = 1800
	defaultAnalysisCommand       = "python3"
	defaultAnalysisScript        = "enhanced_vtk_analyzer.py"
	defaultAnalysisTimeout       = 600
	defaultAnalysisOutputSubdir  = "melt_pool_results"
	defaultVTKSubdir             = "VTK"
	defaultZSlice                = 0.3e-3
	defaultYReference            = -0.3e-3
	defaultThreshold             = 1000
	defaultPollInterval          = 30
	defaultMaxRuntime            = 24 * 60 * 60
	defaultSettleDelay           = 5
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultNotifyRequestTimeout  = 10
	defaultHistoryFile           = "history.db"
)

// Default returns a Config populated with repository defaults. Paths left
// empty here are derived from other paths during normalization.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir:   defaultWatchDir,
			ResultsDir: defaultResultsDir,
		},
		Reconstruction: Reconstruction{
			Dir:        defaultReconstructionDir,
			Executable: defaultReconstructionExec,
			Timeout:    defaultReconstructionTimeout,
		},
		Analysis: Analysis{
			Command:    defaultAnalysisCommand,
			Args:       []string{defaultAnalysisScript},
			ZSlice:     defaultZSlice,
			YReference: defaultYReference,
			Threshold:  defaultThreshold,
			Quiet:      true,
			Timeout:    defaultAnalysisTimeout,
		},
		Workflow: Workflow{
			PollInterval: defaultPollInterval,
			MaxRuntime:   defaultMaxRuntime,
			SettleDelay:  defaultSettleDelay,
			ExcludedDirs: []string{"0", "constant"},
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			UnitFailed:     true,
			UnitCompleted:  false,
			RunCompleted:   true,
		},
		History: History{
			Enabled: true,
		},
	}
}
