package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"meltwatch/internal/logging"
	"meltwatch/internal/services"
	"meltwatch/internal/workunit"
)

// StopReason explains why Run returned.
type StopReason string

const (
	StopBudgetExhausted StopReason = "budget exhausted"
	StopCanceled        StopReason = "canceled"
	StopOnce            StopReason = "single pass"
)

// Processor runs the pipeline for one unit.
type Processor interface {
	Process(ctx context.Context, unit workunit.Unit) bool
}

// Membership answers whether a unit already completed.
type Membership interface {
	Contains(id string) bool
}

// ListFunc lists the units under root.
type ListFunc func(root string, excluded []string) ([]workunit.Unit, error)

// Options wires a Loop.
type Options struct {
	WatchDir     string
	Excluded     []string
	PollInterval time.Duration
	MaxRuntime   time.Duration
	Store        Membership
	Processor    Processor
	Logger       *slog.Logger
	// List defaults to workunit.List.
	List ListFunc
}

// IterationStats summarizes one pass.
type IterationStats struct {
	Iteration int
	Listed    int
	Pending   int
	Processed int
	Failed    int
	ListErr   error
}

// RunStats summarizes a whole run.
type RunStats struct {
	Iterations int
	Processed  int
	Failed     int
	Reason     StopReason
	Elapsed    time.Duration
}

// Loop is the top-level watch loop. It is driven by a single goroutine.
type Loop struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
	stats  RunStats
	// budget is set only while Run is active.
	budget *Budget
}

// New validates opts and builds a Loop.
func New(opts Options) (*Loop, error) {
	if opts.Store == nil {
		return nil, errors.New("workflow: processed store is required")
	}
	if opts.Processor == nil {
		return nil, errors.New("workflow: processor is required")
	}
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("workflow: poll interval must be positive, got %s", opts.PollInterval)
	}
	if opts.MaxRuntime <= 0 {
		return nil, fmt.Errorf("workflow: max runtime must be positive, got %s", opts.MaxRuntime)
	}
	if opts.List == nil {
		opts.List = workunit.List
	}
	return &Loop{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "workflow"),
		now:    time.Now,
	}, nil
}

// Run polls until the runtime budget is used up or ctx is canceled. Both are
// clean exits and return nil. The budget is checked between iterations and
// before each unit; a stage already running when it runs out is allowed to
// finish under its own timeout.
func (l *Loop) Run(ctx context.Context) error {
	budget := NewBudget(l.opts.MaxRuntime, l.now)
	l.budget = &budget
	defer func() { l.budget = nil }()
	l.stats = RunStats{}
	l.logger.Info("watch loop started",
		logging.String(logging.FieldEventType, "loop_start"),
		logging.String("watch_dir", l.opts.WatchDir),
		logging.Duration("poll_interval", l.opts.PollInterval),
		logging.Duration("max_runtime", l.opts.MaxRuntime))

	defer func() {
		l.stats.Elapsed = budget.Elapsed()
		l.logger.Info("watch loop stopped",
			logging.String(logging.FieldEventType, "loop_stop"),
			logging.String("reason", string(l.stats.Reason)),
			logging.Int("iterations", l.stats.Iterations),
			logging.Int("processed", l.stats.Processed),
			logging.Int("failed", l.stats.Failed),
			logging.Duration("elapsed", l.stats.Elapsed.Round(time.Second)))
	}()

	for {
		if ctx.Err() != nil {
			l.stats.Reason = StopCanceled
			return nil
		}
		if budget.Exhausted() {
			l.stats.Reason = StopBudgetExhausted
			return nil
		}

		l.iterate(ctx)

		if ctx.Err() != nil {
			l.stats.Reason = StopCanceled
			return nil
		}
		if budget.Exhausted() {
			l.stats.Reason = StopBudgetExhausted
			return nil
		}

		wait := min(l.opts.PollInterval, budget.Remaining())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.stats.Reason = StopCanceled
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce performs a single iteration.
func (l *Loop) RunOnce(ctx context.Context) IterationStats {
	start := l.now()
	l.stats = RunStats{}
	stats := l.iterate(ctx)
	l.stats.Reason = StopOnce
	if ctx.Err() != nil {
		l.stats.Reason = StopCanceled
	}
	l.stats.Elapsed = l.now().Sub(start)
	return stats
}

// Stats returns the totals of the most recent Run or RunOnce.
func (l *Loop) Stats() RunStats {
	return l.stats
}

func (l *Loop) iterate(ctx context.Context) IterationStats {
	l.stats.Iterations++
	stats := IterationStats{Iteration: l.stats.Iterations}

	units, err := l.opts.List(l.opts.WatchDir, l.opts.Excluded)
	if err != nil {
		stats.ListErr = services.Wrap(services.ErrListing, "workflow", "list units", l.opts.WatchDir, err)
		details := services.Details(stats.ListErr)
		impact := "no units processed this poll; retrying next poll"
		if errors.Is(err, workunit.ErrDirectoryNotFound) {
			impact = "watched directory vanished; retrying next poll"
		}
		logging.ErrorWithContext(l.logger, "failed to list work units", "listing_failed",
			logging.Error(stats.ListErr),
			logging.String(logging.FieldErrorKind, string(details.Kind)),
			logging.String(logging.FieldErrorHint, details.Hint),
			logging.String(logging.FieldImpact, impact),
			logging.Int("iteration", stats.Iteration))
		return stats
	}
	stats.Listed = len(units)

	pending := make([]workunit.Unit, 0, len(units))
	for _, unit := range units {
		if !l.opts.Store.Contains(unit.ID) {
			pending = append(pending, unit)
		}
	}
	stats.Pending = len(pending)
	if len(pending) == 0 {
		l.logger.Debug("no unprocessed units",
			logging.Int("iteration", stats.Iteration),
			logging.Int("listed", stats.Listed))
		return stats
	}

	l.logger.Info("unprocessed units found",
		logging.String(logging.FieldEventType, "units_pending"),
		logging.Int("iteration", stats.Iteration),
		logging.Int("listed", stats.Listed),
		logging.Int("pending", stats.Pending),
		logging.Any("units", workunit.IDs(pending)))

	for i, unit := range pending {
		if ctx.Err() != nil {
			break
		}
		if l.budget != nil && l.budget.Exhausted() {
			l.logger.Info("runtime budget reached; leaving remaining units for the next run",
				logging.String(logging.FieldEventType, "budget_exhausted"),
				logging.Int("deferred", len(pending)-i),
				logging.Any("units", workunit.IDs(pending[i:])))
			break
		}
		if l.opts.Processor.Process(ctx, unit) {
			stats.Processed++
		} else if ctx.Err() == nil {
			stats.Failed++
		}
	}
	l.stats.Processed += stats.Processed
	l.stats.Failed += stats.Failed
	return stats
}
