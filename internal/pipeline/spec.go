package pipeline

import (
	"strconv"
	"time"

	"meltwatch/internal/config"
)

const (
	StageReconstruction = "reconstruction"
	StageAnalysis       = "analysis"
)

// StageSpec is the fixed part of a stage invocation, shared by every unit.
type StageSpec struct {
	Name       string
	Program    string
	Args       []string
	WorkingDir string
	Timeout    time.Duration
	// LogPrefix names the per-invocation log: <results>/<prefix>_<epoch>.log.
	LogPrefix string
}

// ReconstructionSpec runs the configured executable with no arguments from
// the reconstruction directory.
func ReconstructionSpec(cfg *config.Config) StageSpec {
	return StageSpec{
		Name:       StageReconstruction,
		Program:    cfg.Reconstruction.Executable,
		WorkingDir: cfg.Reconstruction.Dir,
		Timeout:    cfg.ReconstructionTimeout(),
		LogPrefix:  "recon_output",
	}
}

// AnalysisSpec runs the configured command followed by its fixed arguments and
// the named analysis parameters.
func AnalysisSpec(cfg *config.Config) StageSpec {
	args := append([]string(nil), cfg.Analysis.Args...)
	args = append(args,
		"--vtk_dir", cfg.Analysis.VTKDir,
		"--output_dir", cfg.Analysis.OutputDir,
		"--z_slice", formatFloat(cfg.Analysis.ZSlice),
		"--y_reference", formatFloat(cfg.Analysis.YReference),
		"--threshold", formatFloat(cfg.Analysis.Threshold),
	)
	if cfg.Analysis.Quiet {
		args = append(args, "--quiet")
	}
	return StageSpec{
		Name:       StageAnalysis,
		Program:    cfg.Analysis.Command,
		Args:       args,
		WorkingDir: cfg.Analysis.WorkingDir,
		Timeout:    cfg.AnalysisTimeout(),
		LogPrefix:  "analysis_output",
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
