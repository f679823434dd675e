package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"meltwatch/internal/services"
	"meltwatch/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryExists_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckDirectoryExists("test", f).Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckExecutable(t *testing.T) {
	dir := t.TempDir()
	script := testsupport.WriteScript(t, filepath.Join(dir, "reconstruct.sh"), "exit 0")
	if result := CheckExecutable("recon", script); !result.Passed {
		t.Fatalf("expected executable to pass: %s", result.Detail)
	}

	plain := filepath.Join(dir, "plain.sh")
	if err := os.WriteFile(plain, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if os.Geteuid() != 0 {
		if CheckExecutable("recon", plain).Passed {
			t.Fatal("expected failure without execute bit")
		}
	}
	if CheckExecutable("recon", dir).Passed {
		t.Fatal("expected failure for directory")
	}
	if CheckExecutable("recon", filepath.Join(dir, "missing")).Passed {
		t.Fatal("expected failure for missing file")
	}
}

func TestRunAllPassesForPreparedCase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	results := RunAll(context.Background(), cfg)
	if err := Err(results); err != nil {
		t.Fatalf("expected required checks to pass: %v", err)
	}
	var sawAnalysis bool
	for _, result := range results {
		if result.Name == "Analysis command" {
			sawAnalysis = true
			if !result.Passed {
				t.Fatalf("analysis stub should resolve: %s", result.Detail)
			}
		}
	}
	if !sawAnalysis {
		t.Fatal("analysis command not checked")
	}
}

func TestRunAllReportsSetupErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(dir string) (watch, recon, exec string)
	}{
		{"missing watch dir", func(dir string) (string, string, string) {
			return filepath.Join(dir, "nope"), "", ""
		}},
		{"missing reconstruction dir", func(dir string) (string, string, string) {
			return "", filepath.Join(dir, "nope"), ""
		}},
		{"missing reconstruction executable", func(dir string) (string, string, string) {
			return "", "", filepath.Join(dir, "nope.sh")
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			if err := cfg.EnsureDirectories(); err != nil {
				t.Fatalf("EnsureDirectories: %v", err)
			}
			watch, recon, exec := tc.mutate(t.TempDir())
			if watch != "" {
				cfg.Paths.WatchDir = watch
			}
			if recon != "" {
				cfg.Reconstruction.Dir = recon
			}
			if exec != "" {
				cfg.Reconstruction.Executable = exec
			}
			err := Err(RunAll(context.Background(), cfg))
			if !errors.Is(err, services.ErrSetup) {
				t.Fatalf("expected setup error, got %v", err)
			}
		})
	}
}

func TestMissingAnalysisCommandOnlyWarns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	cfg.Analysis.Command = "definitely-not-an-analyzer"
	results := RunAll(context.Background(), cfg)
	if err := Err(results); err != nil {
		t.Fatalf("analysis command must not be fatal: %v", err)
	}
}
