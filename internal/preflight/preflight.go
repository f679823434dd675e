package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"meltwatch/internal/config"
	"meltwatch/internal/deps"
	"meltwatch/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Required checks abort a run when they fail; the rest are warnings.
	Required bool
}

// RunAll executes every check for cfg. The watched root, reconstruction
// directory, reconstruction executable, and results directory are required.
// The analysis command and optional helper tools only warn, since their
// absence shows up as failed stages rather than preventing a run.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		required(CheckDirectoryExists("Watch directory", cfg.Paths.WatchDir)),
		required(CheckDirectoryExists("Reconstruction directory", cfg.Reconstruction.Dir)),
		required(CheckExecutable("Reconstruction executable", cfg.Reconstruction.Executable)),
		required(CheckDirectoryAccess("Results directory", cfg.Paths.ResultsDir)),
	}
	for _, status := range CheckToolDeps(ctx, cfg) {
		result := Result{Name: status.Name, Passed: status.Available}
		switch {
		case status.Available:
			result.Detail = status.Path
		case status.Optional:
			result.Detail = fmt.Sprintf("%s (optional: %s)", status.Detail, status.Description)
		default:
			result.Detail = fmt.Sprintf("%s (%s)", status.Detail, status.Description)
		}
		results = append(results, result)
	}
	return results
}

// CheckToolDeps evaluates the programs the stages call.
func CheckToolDeps(_ context.Context, cfg *config.Config) []deps.Status {
	return deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "Analysis command",
			Command:     cfg.Analysis.Command,
			Description: "runs the melt-pool analysis stage",
		},
		{
			Name:        "reconstructPar",
			Command:     "reconstructPar",
			Description: "usually called by the reconstruction script",
			Optional:    true,
		},
		{
			Name:        "foamToVTK",
			Command:     "foamToVTK",
			Description: "usually called by the reconstruction script to populate VTK/",
			Optional:    true,
		},
	})
}

// Err folds failed required checks into one setup error, or nil.
func Err(results []Result) error {
	var failures []string
	for _, result := range results {
		if result.Required && !result.Passed {
			failures = append(failures, fmt.Sprintf("%s: %s", result.Name, result.Detail))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return services.Wrap(services.ErrSetup, "preflight", "startup checks",
		strings.Join(failures, "; "), errors.New("required paths unavailable"))
}

func required(result Result) Result {
	result.Required = true
	return result
}
