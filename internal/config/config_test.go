package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"meltwatch/internal/config"
)

func TestLoadDefaultConfigResolvesPathsAgainstWorkingDirectory(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	caseDir := t.TempDir()
	t.Chdir(caseDir)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".config", "meltwatch", "config.toml"); resolved != want {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, want)
	}

	caseDir, err = os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	checks := map[string]string{
		"watch_dir":     filepath.Join(caseDir, "processor0"),
		"results_dir":   filepath.Join(caseDir, "monitoring_results"),
		"recon dir":     caseDir,
		"recon exec":    filepath.Join(caseDir, "reconstruct.sh"),
		"vtk_dir":       filepath.Join(caseDir, "VTK"),
		"output_dir":    filepath.Join(caseDir, "monitoring_results", "melt_pool_results"),
		"history path":  filepath.Join(caseDir, "monitoring_results", "history.db"),
		"analysis wdir": caseDir,
	}
	got := map[string]string{
		"watch_dir":     cfg.Paths.WatchDir,
		"results_dir":   cfg.Paths.ResultsDir,
		"recon dir":     cfg.Reconstruction.Dir,
		"recon exec":    cfg.Reconstruction.Executable,
		"vtk_dir":       cfg.Analysis.VTKDir,
		"output_dir":    cfg.Analysis.OutputDir,
		"history path":  cfg.History.Path,
		"analysis wdir": cfg.Analysis.WorkingDir,
	}
	for key, want := range checks {
		if got[key] != want {
			t.Errorf("%s: got %q want %q", key, got[key], want)
		}
	}

	if cfg.PollInterval() != 30*time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
	if cfg.MaxRuntime() != 24*time.Hour {
		t.Fatalf("unexpected max runtime: %s", cfg.MaxRuntime())
	}
	if cfg.ReconstructionTimeout() != 1800*time.Second {
		t.Fatalf("unexpected reconstruction timeout: %s", cfg.ReconstructionTimeout())
	}
	if cfg.AnalysisTimeout() != 600*time.Second {
		t.Fatalf("unexpected analysis timeout: %s", cfg.AnalysisTimeout())
	}
	if cfg.SettleDelay() != 5*time.Second {
		t.Fatalf("unexpected settle delay: %s", cfg.SettleDelay())
	}
	if strings.Join(cfg.Workflow.ExcludedDirs, ",") != "0,constant" {
		t.Fatalf("unexpected excluded dirs: %v", cfg.Workflow.ExcludedDirs)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.ResultsDir, cfg.Analysis.OutputDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
	if _, err := os.Stat(cfg.Paths.WatchDir); !os.IsNotExist(err) {
		t.Fatalf("watch dir must not be created, stat err=%v", err)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "meltwatch.toml")

	type payload struct {
		Paths struct {
			WatchDir   string `toml:"watch_dir"`
			ResultsDir string `toml:"results_dir"`
		} `toml:"paths"`
		Reconstruction struct {
			Dir        string `toml:"dir"`
			Executable string `toml:"executable"`
		} `toml:"reconstruction"`
		Workflow struct {
			PollInterval int `toml:"poll_interval"`
			MaxRuntime   int `toml:"max_runtime"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Paths.WatchDir = filepath.Join(tempDir, "case", "processor0")
	custom.Paths.ResultsDir = filepath.Join(tempDir, "results")
	custom.Reconstruction.Dir = filepath.Join(tempDir, "case")
	custom.Reconstruction.Executable = "Allreconstruct"
	custom.Workflow.PollInterval = 5
	custom.Workflow.MaxRuntime = 60
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Reconstruction.Executable != filepath.Join(tempDir, "case", "Allreconstruct") {
		t.Fatalf("expected executable relative to reconstruction dir, got %q", cfg.Reconstruction.Executable)
	}
	if cfg.Analysis.VTKDir != filepath.Join(tempDir, "case", "VTK") {
		t.Fatalf("expected vtk dir under reconstruction dir, got %q", cfg.Analysis.VTKDir)
	}
	if cfg.PollInterval() != 5*time.Second || cfg.MaxRuntime() != time.Minute {
		t.Fatalf("unexpected workflow timing: poll=%s max=%s", cfg.PollInterval(), cfg.MaxRuntime())
	}
	if cfg.ProcessedLogPath() != filepath.Join(tempDir, "results", "processed_files.log") {
		t.Fatalf("unexpected processed log path: %q", cfg.ProcessedLogPath())
	}
	if cfg.MonitoringLogPath() != filepath.Join(tempDir, "results", "monitoring.log") {
		t.Fatalf("unexpected monitoring log path: %q", cfg.MonitoringLogPath())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "meltwatch.toml")
	if err := os.WriteFile(configPath, []byte("[workflow]\npoll_intervall = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestEnvVarsOverrideConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "meltwatch.toml")
	contents := "[paths]\nwatch_dir = \"/data/file-watch\"\n[workflow]\npoll_interval = 45\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MELTWATCH_WATCH_DIR", "/data/env-watch")
	t.Setenv("MELTWATCH_POLL_INTERVAL", "7")
	t.Setenv("MELTWATCH_NTFY_TOPIC", "https://ntfy.example/melt")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.WatchDir != "/data/env-watch" {
		t.Errorf("expected watch dir from env, got %q", cfg.Paths.WatchDir)
	}
	if cfg.Workflow.PollInterval != 7 {
		t.Errorf("expected poll interval from env, got %d", cfg.Workflow.PollInterval)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/melt" {
		t.Errorf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestEnvVarRejectsNonNumericSeconds(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("MELTWATCH_MAX_RUNTIME", "24h")
	if _, _, _, err := config.Load(""); err == nil {
		t.Fatal("expected error for non-numeric MELTWATCH_MAX_RUNTIME")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[reconstruction]") {
		t.Fatalf("sample config missing reconstruction section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	defaults := config.Default()
	if cfg.Workflow.PollInterval != defaults.Workflow.PollInterval {
		t.Fatalf("sample poll interval %d differs from default %d", cfg.Workflow.PollInterval, defaults.Workflow.PollInterval)
	}
	if cfg.Reconstruction.Timeout != defaults.Reconstruction.Timeout {
		t.Fatalf("sample reconstruction timeout %d differs from default %d", cfg.Reconstruction.Timeout, defaults.Reconstruction.Timeout)
	}
	if cfg.Analysis.ZSlice != defaults.Analysis.ZSlice {
		t.Fatalf("sample z_slice %g differs from default %g", cfg.Analysis.ZSlice, defaults.Analysis.ZSlice)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero poll interval", func(c *config.Config) { c.Workflow.PollInterval = 0 }},
		{"zero max runtime", func(c *config.Config) { c.Workflow.MaxRuntime = 0 }},
		{"negative settle", func(c *config.Config) { c.Workflow.SettleDelay = -1 }},
		{"zero recon timeout", func(c *config.Config) { c.Reconstruction.Timeout = 0 }},
		{"zero analysis timeout", func(c *config.Config) { c.Analysis.Timeout = 0 }},
		{"missing executable", func(c *config.Config) { c.Reconstruction.Executable = "" }},
		{"missing analysis command", func(c *config.Config) { c.Analysis.Command = "" }},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }},
		{"nested excluded dir", func(c *config.Config) { c.Workflow.ExcludedDirs = []string{"a/b"} }},
		{"ntfy topic without scheme", func(c *config.Config) { c.Notifications.NtfyTopic = "melt-runs" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
