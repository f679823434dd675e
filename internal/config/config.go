package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the watched simulation tree and the monitor output directory.
type Paths struct {
	WatchDir   string `toml:"watch_dir"`
	ResultsDir string `toml:"results_dir"`
}

// Reconstruction describes the stage that merges per-partition output.
type Reconstruction struct {
	Dir        string `toml:"dir"`
	Executable string `toml:"executable"`
	Timeout    int    `toml:"timeout"`
}

// Analysis describes the stage that extracts melt-pool geometry.
type Analysis struct {
	Command    string   `toml:"command"`
	Args       []string `toml:"args"`
	WorkingDir string   `toml:"working_dir"`
	VTKDir     string   `toml:"vtk_dir"`
	OutputDir  string   `toml:"output_dir"`
	ZSlice     float64  `toml:"z_slice"`
	YReference float64  `toml:"y_reference"`
	Threshold  float64  `toml:"threshold"`
	Quiet      bool     `toml:"quiet"`
	Timeout    int      `toml:"timeout"`
}

// Workflow contains watch loop timing. All values are seconds.
type Workflow struct {
	PollInterval int      `toml:"poll_interval"`
	MaxRuntime   int      `toml:"max_runtime"`
	SettleDelay  int      `toml:"settle_delay"`
	ExcludedDirs []string `toml:"excluded_dirs"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	UnitFailed     bool   `toml:"unit_failed"`
	UnitCompleted  bool   `toml:"unit_completed"`
	RunCompleted   bool   `toml:"run_completed"`
}

// History controls the sqlite ledger of stage attempts.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config encapsulates all configuration values for meltwatch.
//
// Configuration sections by subsystem:
//   - Paths: watched simulation root and results directory
//   - Reconstruction: reconstruction working directory, executable, timeout
//   - Analysis: analysis command and the named parameters passed to it
//   - Workflow: poll interval, runtime budget, settle delay, sentinel dirs
//   - Logging: log format, level, and stage-log retention
//   - Notifications: ntfy push notification settings
//   - History: stage attempt ledger
type Config struct {
	Paths          Paths          `toml:"paths"`
	Reconstruction Reconstruction `toml:"reconstruction"`
	Analysis       Analysis       `toml:"analysis"`
	Workflow       Workflow       `toml:"workflow"`
	Logging        Logging        `toml:"logging"`
	Notifications  Notifications  `toml:"notifications"`
	History        History        `toml:"history"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/meltwatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("meltwatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories meltwatch writes to. The watched
// root and reconstruction directory belong to the simulation and are never
// created here; their absence is a setup error reported by preflight.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ResultsDir, c.Analysis.OutputDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.History.Enabled && strings.TrimSpace(c.History.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(c.History.Path), 0o755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}
	return nil
}

// ProcessedLogPath is the append-only record of fully processed work units.
func (c *Config) ProcessedLogPath() string {
	return filepath.Join(c.Paths.ResultsDir, "processed_files.log")
}

// MonitoringLogPath is the timestamped operator event log.
func (c *Config) MonitoringLogPath() string {
	return filepath.Join(c.Paths.ResultsDir, "monitoring.log")
}

// LockPath guards against two monitors sharing one results directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.ResultsDir, "meltwatch.lock")
}

// PIDPath records the running monitor's process ID.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.ResultsDir, "meltwatch.pid")
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

func (c *Config) MaxRuntime() time.Duration {
	return time.Duration(c.Workflow.MaxRuntime) * time.Second
}

func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Workflow.SettleDelay) * time.Second
}

func (c *Config) ReconstructionTimeout() time.Duration {
	return time.Duration(c.Reconstruction.Timeout) * time.Second
}

func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.Analysis.Timeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
