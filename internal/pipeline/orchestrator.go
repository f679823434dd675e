package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"meltwatch/internal/history"
	"meltwatch/internal/logging"
	"meltwatch/internal/logs"
	"meltwatch/internal/notifications"
	"meltwatch/internal/services"
	"meltwatch/internal/stageexec"
	"meltwatch/internal/workunit"
)

// State is where a unit ended up after one pass.
type State string

const (
	StatePending         State = "PENDING"
	StateReconFailed     State = "RECON_FAILED"
	StateReconTimeout    State = "RECON_TIMEOUT"
	StateAnalysisFailed  State = "ANALYSIS_FAILED"
	StateAnalysisTimeout State = "ANALYSIS_TIMEOUT"
	StateCanceled        State = "CANCELED"
	// StateUnrecorded means both stages succeeded but the processed log could
	// not be written, so the unit will run again.
	StateUnrecorded State = "UNRECORDED"
	StateDone       State = "DONE"
)

const defaultTailLines = 20

// StageRunner executes one stage invocation.
type StageRunner interface {
	Run(ctx context.Context, inv stageexec.Invocation) (stageexec.Result, error)
}

// ProcessedStore is the durable record the orchestrator appends to.
type ProcessedStore interface {
	Contains(id string) bool
	Append(id string) error
}

// AttemptRecorder receives one row per stage invocation.
type AttemptRecorder interface {
	Record(ctx context.Context, attempt history.Attempt) error
}

// Options wires an Orchestrator.
type Options struct {
	ResultsDir     string
	Reconstruction StageSpec
	Analysis       StageSpec
	SettleDelay    time.Duration
	Runner         StageRunner
	Store          ProcessedStore
	History        AttemptRecorder
	Notifier       notifications.Service
	Logger         *slog.Logger
	// TailLines is how much of a failed stage's log is copied into the
	// monitoring log.
	TailLines int
}

// Report describes one pass over one unit.
type Report struct {
	UnitID    string
	AttemptID string
	State     State
	Stages    []stageexec.Result
	Duration  time.Duration
}

// Processed reports whether the unit is now recorded as processed.
func (r Report) Processed() bool {
	return r.State == StateDone
}

// Orchestrator runs reconstruction then analysis for one unit at a time.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New builds an Orchestrator. Runner and Store are required.
func New(opts Options) (*Orchestrator, error) {
	if opts.Runner == nil {
		return nil, errors.New("pipeline: stage runner is required")
	}
	if opts.Store == nil {
		return nil, errors.New("pipeline: processed store is required")
	}
	if strings.TrimSpace(opts.ResultsDir) == "" {
		return nil, errors.New("pipeline: results directory is required")
	}
	if opts.Notifier == nil {
		opts.Notifier = notifications.NewService(nil)
	}
	if opts.TailLines <= 0 {
		opts.TailLines = defaultTailLines
	}
	return &Orchestrator{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "pipeline"),
		now:    time.Now,
	}, nil
}

// Process runs the full pipeline for unit and reports whether it is now
// processed.
func (o *Orchestrator) Process(ctx context.Context, unit workunit.Unit) bool {
	return o.ProcessUnit(ctx, unit).Processed()
}

// ProcessUnit runs reconstruction, waits the settle delay, runs analysis, and
// appends the unit to the processed store only when both stages succeeded.
// Any failure leaves the unit unrecorded so the next pass starts over from
// reconstruction.
func (o *Orchestrator) ProcessUnit(ctx context.Context, unit workunit.Unit) Report {
	started := o.now()
	report := Report{UnitID: unit.ID, AttemptID: uuid.NewString(), State: StatePending}
	ctx = services.WithUnitID(ctx, unit.ID)
	ctx = services.WithAttemptID(ctx, report.AttemptID)
	logger := logging.WithContext(ctx, o.logger)

	finish := func(state State) Report {
		report.State = state
		report.Duration = o.now().Sub(started)
		return report
	}

	if o.opts.Store.Contains(unit.ID) {
		return finish(StateDone)
	}
	if !unit.Numeric {
		logger.Warn("unit name is not a number; ordered as time 0",
			logging.String(logging.FieldEventType, "unit_unparsable_time"))
	}
	logger.Info("processing unit",
		logging.String(logging.FieldEventType, "unit_start"),
		logging.String("unit_dir", unit.Path))

	recon, ok := o.runStage(ctx, unit, o.opts.Reconstruction)
	report.Stages = append(report.Stages, recon)
	if !ok {
		return finish(failureState(StageReconstruction, recon))
	}

	if err := o.settle(ctx); err != nil {
		logger.Info("settle delay interrupted", logging.String(logging.FieldEventType, "unit_canceled"))
		return finish(StateCanceled)
	}

	analysis, ok := o.runStage(ctx, unit, o.opts.Analysis)
	report.Stages = append(report.Stages, analysis)
	if !ok {
		return finish(failureState(StageAnalysis, analysis))
	}

	if err := o.opts.Store.Append(unit.ID); err != nil {
		logging.ErrorWithContext(logger, "failed to record processed unit", "processed_append_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions on the results directory"),
			logging.String("processed_log", o.processedPathHint()))
		return finish(StateUnrecorded)
	}

	report = finish(StateDone)
	logger.Info("unit processed",
		logging.String(logging.FieldEventType, "unit_complete"),
		logging.Duration("duration", report.Duration.Round(time.Millisecond)))
	o.notify(ctx, logger, notifications.EventUnitCompleted, notifications.Payload{
		"unitID":   unit.ID,
		"duration": report.Duration.Round(time.Second),
	})
	return report
}

func (o *Orchestrator) runStage(ctx context.Context, unit workunit.Unit, spec StageSpec) (stageexec.Result, bool) {
	ctx = services.WithStage(ctx, spec.Name)
	logger := logging.WithContext(ctx, o.logger)

	logPath, err := o.nextLogPath(spec.LogPrefix)
	if err != nil {
		logging.ErrorWithContext(logger, "cannot allocate stage log", "stage_log_failed", logging.Error(err))
		return stageexec.Result{Outcome: stageexec.OutcomeFailed, ExitCode: -1}, false
	}

	inv := stageexec.Invocation{
		Stage:      spec.Name,
		Program:    spec.Program,
		Args:       spec.Args,
		WorkingDir: spec.WorkingDir,
		Timeout:    spec.Timeout,
		LogPath:    logPath,
		Env: map[string]string{
			"MELTWATCH_UNIT_ID":  unit.ID,
			"MELTWATCH_UNIT_DIR": unit.Path,
		},
	}
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("program", spec.Program),
		logging.Duration("timeout", spec.Timeout),
		logging.String("log_path", logPath))

	result, err := o.opts.Runner.Run(ctx, inv)
	if err != nil {
		logging.ErrorWithContext(logger, "stage could not run", "stage_setup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the results directory is writable"))
		if result.Outcome == "" {
			result.Outcome = stageexec.OutcomeFailed
			result.ExitCode = -1
		}
		result.LogPath = logPath
		o.record(ctx, logger, unit, spec, result, err.Error())
		return result, false
	}

	o.record(ctx, logger, unit, spec, result, "")
	switch result.Outcome {
	case stageexec.OutcomeSucceeded:
		logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("duration", result.Duration.Round(time.Millisecond)),
			logging.String("log_path", result.LogPath))
		return result, true
	case stageexec.OutcomeCanceled:
		logger.Info("stage canceled",
			logging.String(logging.FieldEventType, "stage_canceled"),
			logging.String("log_path", result.LogPath))
		return result, false
	}

	o.reportFailure(ctx, logger, unit, spec, result)
	return result, false
}

func (o *Orchestrator) reportFailure(ctx context.Context, logger *slog.Logger, unit workunit.Unit, spec StageSpec, result stageexec.Result) {
	marker := services.ErrExternalTool
	message := fmt.Sprintf("%s exited with code %d", spec.Name, result.ExitCode)
	if result.Outcome == stageexec.OutcomeTimedOut {
		marker = services.ErrTimeout
		message = fmt.Sprintf("%s exceeded %s", spec.Name, spec.Timeout)
	}
	if result.StartErr != nil {
		message = fmt.Sprintf("%s could not be started", spec.Name)
	}
	details := services.Details(services.Wrap(marker, "pipeline", spec.Name, message, result.StartErr))

	attrs := []logging.Attr{
		logging.String("outcome", string(result.Outcome)),
		logging.Int("exit_code", result.ExitCode),
		logging.String("log_path", result.LogPath),
		logging.Duration("duration", result.Duration.Round(time.Millisecond)),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.String(logging.FieldImpact, "unit left unprocessed; retried from reconstruction next poll"),
	}
	if tail, _, err := logs.LastLines(result.LogPath, o.opts.TailLines); err == nil && len(tail) > 0 {
		attrs = append(attrs, logging.String("log_tail", strings.Join(tail, "\n")))
	}
	logging.ErrorWithContext(logger, message, "stage_failed", attrs...)

	o.notify(ctx, logger, notifications.EventUnitFailed, notifications.Payload{
		"unitID":   unit.ID,
		"stage":    spec.Name,
		"outcome":  string(result.Outcome),
		"exitCode": result.ExitCode,
		"logPath":  result.LogPath,
	})
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, unit workunit.Unit, spec StageSpec, result stageexec.Result, message string) {
	if o.opts.History == nil {
		return
	}
	if message == "" && result.StartErr != nil {
		message = result.StartErr.Error()
	}
	started := result.Started
	if started.IsZero() {
		started = o.now()
	}
	attempt := history.Attempt{
		ID:         uuid.NewString(),
		UnitID:     unit.ID,
		Stage:      spec.Name,
		Outcome:    string(result.Outcome),
		ExitCode:   result.ExitCode,
		LogPath:    result.LogPath,
		Message:    message,
		StartedAt:  started,
		FinishedAt: started.Add(result.Duration),
	}
	// The ledger is informational; a write failure must not affect the unit.
	if err := o.opts.History.Record(context.WithoutCancel(ctx), attempt); err != nil {
		logging.WarnWithContext(logger, "failed to record stage attempt", "history_record_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "attempt missing from status output"))
	}
}

func (o *Orchestrator) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := o.opts.Notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "operator not notified"))
	}
}

func (o *Orchestrator) settle(ctx context.Context) error {
	if o.opts.SettleDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(o.opts.SettleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// nextLogPath returns <results>/<prefix>_<epoch>.log, adding -1, -2, ... when
// an earlier invocation in the same second already claimed the name.
func (o *Orchestrator) nextLogPath(prefix string) (string, error) {
	if err := os.MkdirAll(o.opts.ResultsDir, 0o755); err != nil {
		return "", fmt.Errorf("create results directory: %w", err)
	}
	base := fmt.Sprintf("%s_%d", prefix, o.now().Unix())
	candidate := filepath.Join(o.opts.ResultsDir, base+".log")
	for n := 1; ; n++ {
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("stat stage log: %w", err)
		}
		candidate = filepath.Join(o.opts.ResultsDir, fmt.Sprintf("%s-%d.log", base, n))
	}
}

func (o *Orchestrator) processedPathHint() string {
	if pather, ok := o.opts.Store.(interface{ Path() string }); ok {
		return pather.Path()
	}
	return ""
}

func failureState(stage string, result stageexec.Result) State {
	if result.Outcome == stageexec.OutcomeCanceled {
		return StateCanceled
	}
	timedOut := result.Outcome == stageexec.OutcomeTimedOut
	switch {
	case stage == StageReconstruction && timedOut:
		return StateReconTimeout
	case stage == StageReconstruction:
		return StateReconFailed
	case timedOut:
		return StateAnalysisTimeout
	default:
		return StateAnalysisFailed
	}
}
