package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeReconstruction(); err != nil {
		return err
	}
	if err := c.normalizeAnalysis(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeLogging()
	c.normalizeNotifications()
	return c.normalizeHistory()
}

// applyEnv overlays MELTWATCH_* environment variables onto file values.
func (c *Config) applyEnv() error {
	stringVars := []struct {
		name   string
		target *string
	}{
		{"MELTWATCH_WATCH_DIR", &c.Paths.WatchDir},
		{"MELTWATCH_RESULTS_DIR", &c.Paths.ResultsDir},
		{"MELTWATCH_RECON_DIR", &c.Reconstruction.Dir},
		{"MELTWATCH_RECON_EXECUTABLE", &c.Reconstruction.Executable},
		{"MELTWATCH_ANALYSIS_COMMAND", &c.Analysis.Command},
		{"MELTWATCH_LOG_LEVEL", &c.Logging.Level},
		{"MELTWATCH_LOG_FORMAT", &c.Logging.Format},
		{"MELTWATCH_NTFY_TOPIC", &c.Notifications.NtfyTopic},
	}
	for _, v := range stringVars {
		if value, ok := os.LookupEnv(v.name); ok && strings.TrimSpace(value) != "" {
			*v.target = strings.TrimSpace(value)
		}
	}

	intVars := []struct {
		name   string
		target *int
	}{
		{"MELTWATCH_POLL_INTERVAL", &c.Workflow.PollInterval},
		{"MELTWATCH_MAX_RUNTIME", &c.Workflow.MaxRuntime},
		{"MELTWATCH_SETTLE_DELAY", &c.Workflow.SettleDelay},
		{"MELTWATCH_RECON_TIMEOUT", &c.Reconstruction.Timeout},
		{"MELTWATCH_ANALYSIS_TIMEOUT", &c.Analysis.Timeout},
	}
	for _, v := range intVars {
		value, ok := os.LookupEnv(v.name)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: expected whole seconds, got %q", v.name, value)
		}
		*v.target = parsed
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WatchDir, err = expandPath(strings.TrimSpace(c.Paths.WatchDir)); err != nil {
		return fmt.Errorf("paths.watch_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ResultsDir) == "" {
		c.Paths.ResultsDir = defaultResultsDir
	}
	if c.Paths.ResultsDir, err = expandPath(strings.TrimSpace(c.Paths.ResultsDir)); err != nil {
		return fmt.Errorf("paths.results_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeReconstruction() error {
	var err error
	if strings.TrimSpace(c.Reconstruction.Dir) == "" {
		c.Reconstruction.Dir = defaultReconstructionDir
	}
	if c.Reconstruction.Dir, err = expandPath(strings.TrimSpace(c.Reconstruction.Dir)); err != nil {
		return fmt.Errorf("reconstruction.dir: %w", err)
	}
	executable := strings.TrimSpace(c.Reconstruction.Executable)
	if executable != "" && !filepath.IsAbs(executable) && !strings.HasPrefix(executable, "~") {
		// Relative executables are resolved against the reconstruction directory,
		// which is where they run.
		executable = filepath.Join(c.Reconstruction.Dir, executable)
	}
	if c.Reconstruction.Executable, err = expandPath(executable); err != nil {
		return fmt.Errorf("reconstruction.executable: %w", err)
	}
	return nil
}

func (c *Config) normalizeAnalysis() error {
	var err error
	c.Analysis.Command = strings.TrimSpace(c.Analysis.Command)
	args := c.Analysis.Args[:0:0]
	for _, arg := range c.Analysis.Args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	c.Analysis.Args = args

	if strings.TrimSpace(c.Analysis.WorkingDir) == "" {
		c.Analysis.WorkingDir = c.Reconstruction.Dir
	}
	if c.Analysis.WorkingDir, err = expandPath(strings.TrimSpace(c.Analysis.WorkingDir)); err != nil {
		return fmt.Errorf("analysis.working_dir: %w", err)
	}
	if strings.TrimSpace(c.Analysis.VTKDir) == "" {
		c.Analysis.VTKDir = filepath.Join(c.Reconstruction.Dir, defaultVTKSubdir)
	}
	if c.Analysis.VTKDir, err = expandPath(strings.TrimSpace(c.Analysis.VTKDir)); err != nil {
		return fmt.Errorf("analysis.vtk_dir: %w", err)
	}
	if strings.TrimSpace(c.Analysis.OutputDir) == "" {
		c.Analysis.OutputDir = filepath.Join(c.Paths.ResultsDir, defaultAnalysisOutputSubdir)
	}
	if c.Analysis.OutputDir, err = expandPath(strings.TrimSpace(c.Analysis.OutputDir)); err != nil {
		return fmt.Errorf("analysis.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	seen := make(map[string]struct{}, len(c.Workflow.ExcludedDirs))
	excluded := make([]string, 0, len(c.Workflow.ExcludedDirs))
	for _, name := range c.Workflow.ExcludedDirs {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		excluded = append(excluded, name)
	}
	c.Workflow.ExcludedDirs = excluded
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "text":
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	switch level {
	case "":
		level = defaultLogLevel
	case "warning":
		level = "warn"
	}
	c.Logging.Level = level
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeHistory() error {
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = filepath.Join(c.Paths.ResultsDir, defaultHistoryFile)
	}
	var err error
	if c.History.Path, err = expandPath(strings.TrimSpace(c.History.Path)); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}
