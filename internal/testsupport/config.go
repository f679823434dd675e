package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"meltwatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config over a throwaway case directory:
//
//	<base>/case                 reconstruction dir, reconstruct.sh
//	<base>/case/processor0      watched root
//	<base>/results              results dir
//	<base>/bin/analyze.sh       analysis command
//
// Both stage stubs succeed and append "<stage> <unit>" to TracePath(cfg).
// Timing is scaled for tests: one second polls, no settle delay.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	caseDir := filepath.Join(base, "case")
	resultsDir := filepath.Join(base, "results")

	cfgVal := config.Default()
	cfgVal.Paths.WatchDir = filepath.Join(caseDir, "processor0")
	cfgVal.Paths.ResultsDir = resultsDir
	cfgVal.Reconstruction.Dir = caseDir
	cfgVal.Reconstruction.Executable = filepath.Join(caseDir, "reconstruct.sh")
	cfgVal.Reconstruction.Timeout = 10
	cfgVal.Analysis.Command = filepath.Join(base, "bin", "analyze.sh")
	cfgVal.Analysis.Args = nil
	cfgVal.Analysis.WorkingDir = caseDir
	cfgVal.Analysis.VTKDir = filepath.Join(caseDir, "VTK")
	cfgVal.Analysis.OutputDir = filepath.Join(resultsDir, "melt_pool_results")
	cfgVal.Analysis.Timeout = 10
	cfgVal.Workflow.PollInterval = 1
	cfgVal.Workflow.MaxRuntime = 5
	cfgVal.Workflow.SettleDelay = 0
	cfgVal.Logging.RetentionDays = 0
	cfgVal.History.Path = filepath.Join(resultsDir, "history.db")

	for _, dir := range []string{cfgVal.Paths.WatchDir, filepath.Dir(cfgVal.Analysis.Command)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	trace := TracePath(&cfgVal)
	WriteScript(t, cfgVal.Reconstruction.Executable, `echo "reconstruction $MELTWATCH_UNIT_ID" >> "`+trace+`"`)
	WriteScript(t, cfgVal.Analysis.Command, `echo "analysis $MELTWATCH_UNIT_ID $*" >> "`+trace+`"`)

	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithReconstructionScript replaces the reconstruction stub body.
func WithReconstructionScript(body string) ConfigOption {
	return func(b *configBuilder) {
		WriteScript(b.t, b.cfg.Reconstruction.Executable, body)
	}
}

// WithAnalysisScript replaces the analysis stub body.
func WithAnalysisScript(body string) ConfigOption {
	return func(b *configBuilder) {
		WriteScript(b.t, b.cfg.Analysis.Command, body)
	}
}

// WithUnits creates unit directories under the watched root.
func WithUnits(ids ...string) ConfigOption {
	return func(b *configBuilder) {
		MakeUnits(b.t, b.cfg.Paths.WatchDir, ids...)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteScript(b.t, filepath.Join(binDir, name), "exit 0")
		}
		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ResultsDir)
}

// TracePath is the file the default stage stubs append to.
func TracePath(cfg *config.Config) string {
	return filepath.Join(BaseDir(cfg), "trace.log")
}
