package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meltwatch/internal/config"
	"meltwatch/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "meltwatch.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
watch_dir = %q
results_dir = %q

[reconstruction]
dir = %q
executable = %q
timeout = %d

[analysis]
command = %q
args = []
vtk_dir = %q
output_dir = %q
timeout = %d

[workflow]
poll_interval = %d
max_runtime = %d
settle_delay = 0

[logging]
retention_days = 0

[notifications]
ntfy_topic = %q

[history]
path = %q
`,
		cfg.Paths.WatchDir,
		cfg.Paths.ResultsDir,
		cfg.Reconstruction.Dir,
		cfg.Reconstruction.Executable,
		cfg.Reconstruction.Timeout,
		cfg.Analysis.Command,
		cfg.Analysis.VTKDir,
		cfg.Analysis.OutputDir,
		cfg.Analysis.Timeout,
		cfg.Workflow.PollInterval,
		cfg.Workflow.MaxRuntime,
		cfg.Notifications.NtfyTopic,
		cfg.History.Path,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
