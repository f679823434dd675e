package monitorrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"meltwatch/internal/config"
	"meltwatch/internal/history"
	"meltwatch/internal/logging"
	"meltwatch/internal/notifications"
	"meltwatch/internal/pipeline"
	"meltwatch/internal/preflight"
	"meltwatch/internal/processed"
	"meltwatch/internal/services"
	"meltwatch/internal/stageexec"
	"meltwatch/internal/workflow"
)

// Options configures one monitor process.
type Options struct {
	// LogLevel overrides cfg.Logging.Level when set.
	LogLevel    string
	Development bool
	// Once runs a single iteration instead of polling until the budget ends.
	Once bool
	// OutputPaths are the console sinks; defaults to stdout. The monitoring
	// log under the results directory is always written.
	OutputPaths []string
	// Notifier overrides the service built from cfg.
	Notifier notifications.Service
}

// Run starts the monitor and blocks until the runtime budget is used up, the
// single pass finishes, or ctx is canceled. Only setup problems are returned
// as errors; stage failures are logged and retried on later passes.
func Run(ctx context.Context, cfg *config.Config, opts Options) (workflow.RunStats, error) {
	if cfg == nil {
		return workflow.RunStats{}, errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return workflow.RunStats{}, services.Wrap(services.ErrSetup, "monitor", "prepare directories", "", err)
	}

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:        level,
		Format:       cfg.Logging.Format,
		OutputPaths:  opts.OutputPaths,
		EventLogPath: cfg.MonitoringLogPath(),
		Development:  opts.Development,
	})
	if err != nil {
		return workflow.RunStats{}, fmt.Errorf("init logger: %w", err)
	}
	logger = logging.NewComponentLogger(logger, "monitor")

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	if err := runPreflight(ctx, logger, cfg); err != nil {
		abort(ctx, logger, notifier, err)
		return workflow.RunStats{}, err
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		err = services.Wrap(services.ErrSetup, "monitor", "acquire lock", cfg.LockPath(), err)
		abort(ctx, logger, notifier, err)
		return workflow.RunStats{}, err
	}
	if !locked {
		err = services.Wrap(services.ErrSetup, "monitor", "acquire lock",
			"another meltwatch instance is monitoring "+cfg.Paths.ResultsDir, nil)
		abort(ctx, logger, notifier, err)
		return workflow.RunStats{}, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release monitor lock", logging.Error(err))
		}
	}()

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return workflow.RunStats{}, fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.ResultsDir, Pattern: "recon_output_*.log"},
		logging.RetentionTarget{Dir: cfg.Paths.ResultsDir, Pattern: "analysis_output_*.log"},
	)

	store, err := processed.Load(cfg.ProcessedLogPath())
	if err != nil {
		err = services.Wrap(services.ErrSetup, "monitor", "load processed log", cfg.ProcessedLogPath(), err)
		abort(ctx, logger, notifier, err)
		return workflow.RunStats{}, err
	}
	logger.Info("processed log loaded",
		logging.String(logging.FieldEventType, "processed_loaded"),
		logging.String("path", store.Path()),
		logging.Int("units", store.Len()))

	pipelineOpts := pipeline.Options{
		ResultsDir:     cfg.Paths.ResultsDir,
		Reconstruction: pipeline.ReconstructionSpec(cfg),
		Analysis:       pipeline.AnalysisSpec(cfg),
		SettleDelay:    cfg.SettleDelay(),
		Runner:         stageexec.NewRunner(),
		Store:          store,
		Notifier:       notifier,
		Logger:         logger,
	}
	if ledger := openHistory(ctx, logger, cfg); ledger != nil {
		defer ledger.Close()
		pipelineOpts.History = ledger
	}
	orchestrator, err := pipeline.New(pipelineOpts)
	if err != nil {
		return workflow.RunStats{}, fmt.Errorf("create pipeline: %w", err)
	}

	loop, err := workflow.New(workflow.Options{
		WatchDir:     cfg.Paths.WatchDir,
		Excluded:     cfg.Workflow.ExcludedDirs,
		PollInterval: cfg.PollInterval(),
		MaxRuntime:   cfg.MaxRuntime(),
		Store:        store,
		Processor:    orchestrator,
		Logger:       logger,
	})
	if err != nil {
		return workflow.RunStats{}, fmt.Errorf("create watch loop: %w", err)
	}

	if opts.Once {
		loop.RunOnce(ctx)
	} else if err := loop.Run(ctx); err != nil {
		return loop.Stats(), err
	}
	stats := loop.Stats()

	publish(ctx, logger, notifier, notifications.EventRunCompleted, notifications.Payload{
		"processed": stats.Processed,
		"failed":    stats.Failed,
		"reason":    string(stats.Reason),
		"duration":  stats.Elapsed,
	})
	logger.Info("meltwatch monitor finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("reason", string(stats.Reason)),
		logging.Int("processed_total", store.Len()))
	return stats, nil
}

func runPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	results := preflight.RunAll(ctx, cfg)
	for _, result := range results {
		attrs := []logging.Attr{
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.Bool("required", result.Required),
		}
		switch {
		case result.Passed:
			logger.Debug("preflight check passed", logging.Args(attrs...)...)
		case result.Required:
			logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
				append(attrs, logging.String(logging.FieldErrorHint, "fix the path in the config file"))...)
		default:
			logging.WarnWithContext(logger, "preflight check failed", "preflight_warning",
				append(attrs, logging.String(logging.FieldImpact, "stages using this tool will fail and be retried"))...)
		}
	}
	return preflight.Err(results)
}

func openHistory(ctx context.Context, logger *slog.Logger, cfg *config.Config) *history.Store {
	if !cfg.History.Enabled {
		return nil
	}
	ledger, err := history.Open(ctx, cfg.History.Path)
	if err != nil {
		logging.WarnWithContext(logger, "attempt history unavailable", "history_unavailable",
			logging.Error(err),
			logging.String("path", cfg.History.Path),
			logging.String(logging.FieldImpact, "stage attempts will not be recorded for `meltwatch status`"))
		return nil
	}
	return ledger
}

func abort(ctx context.Context, logger *slog.Logger, notifier notifications.Service, err error) {
	details := services.Details(err)
	logging.ErrorWithContext(logger, "monitor cannot start", "run_aborted",
		logging.Error(err),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorHint, details.Hint))
	publish(ctx, logger, notifier, notifications.EventRunAborted, notifications.Payload{"error": err.Error()})
}

func publish(ctx context.Context, logger *slog.Logger, notifier notifications.Service, event notifications.Event, payload notifications.Payload) {
	if notifier == nil {
		return
	}
	if err := notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logger.Warn("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"))
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
