package workflow_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"meltwatch/internal/logging"
	"meltwatch/internal/processed"
	"meltwatch/internal/services"
	"meltwatch/internal/testsupport"
	"meltwatch/internal/workflow"
	"meltwatch/internal/workunit"
)

// scriptedProcessor fails a unit for as many calls as failures[id] says, then
// succeeds and appends it to the store.
type scriptedProcessor struct {
	mu       sync.Mutex
	store    *processed.Store
	failures map[string]int
	calls    []string
}

func (p *scriptedProcessor) Process(_ context.Context, unit workunit.Unit) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, unit.ID)
	if p.failures[unit.ID] > 0 {
		p.failures[unit.ID]--
		return false
	}
	return p.store.Append(unit.ID) == nil
}

func (p *scriptedProcessor) callList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func newStore(t *testing.T) *processed.Store {
	t.Helper()
	store, err := processed.Load(filepath.Join(t.TempDir(), "processed_files.log"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return store
}

func newLoop(t *testing.T, opts workflow.Options) *workflow.Loop {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Second
	}
	if opts.MaxRuntime == 0 {
		opts.MaxRuntime = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	loop, err := workflow.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return loop
}

func TestRunStopsWhenBudgetExhausted(t *testing.T) {
	var mu sync.Mutex
	listings := 0
	store := newStore(t)
	loop := newLoop(t, workflow.Options{
		PollInterval: 100 * time.Millisecond,
		MaxRuntime:   300 * time.Millisecond,
		Store:        store,
		Processor:    &scriptedProcessor{store: store},
		List: func(string, []string) ([]workunit.Unit, error) {
			mu.Lock()
			listings++
			mu.Unlock()
			return nil, nil
		},
	})

	start := time.Now()
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("loop ran too long: %s", elapsed)
	}
	stats := loop.Stats()
	if stats.Reason != workflow.StopBudgetExhausted {
		t.Fatalf("unexpected stop reason %q", stats.Reason)
	}
	if stats.Iterations < 3 || stats.Iterations > 4 {
		t.Fatalf("expected 3-4 iterations, got %d", stats.Iterations)
	}
	if listings != stats.Iterations {
		t.Fatalf("expected a fresh listing every iteration: %d listings, %d iterations", listings, stats.Iterations)
	}
}

func TestRunOneSecondPollThreeSecondBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("takes three seconds")
	}
	store := newStore(t)
	loop := newLoop(t, workflow.Options{
		PollInterval: time.Second,
		MaxRuntime:   3 * time.Second,
		Store:        store,
		Processor:    &scriptedProcessor{store: store},
		List:         func(string, []string) ([]workunit.Unit, error) { return nil, nil },
	})
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := loop.Stats().Iterations; n < 3 || n > 4 {
		t.Fatalf("expected 3-4 iterations, got %d", n)
	}
}

func TestRunOnceFailedUnitRetriedNextIteration(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUnits("0", "constant", "5e-05", "0.0001"))
	store := testsupport.MustLoadStore(t, cfg)
	processor := &scriptedProcessor{store: store, failures: map[string]int{"5e-05": 1}}
	loop := newLoop(t, workflow.Options{
		WatchDir:  cfg.Paths.WatchDir,
		Excluded:  cfg.Workflow.ExcludedDirs,
		Store:     store,
		Processor: processor,
	})

	first := loop.RunOnce(context.Background())
	if first.Listed != 2 || first.Pending != 2 || first.Processed != 1 || first.Failed != 1 {
		t.Fatalf("unexpected first iteration: %+v", first)
	}
	if store.Contains("5e-05") {
		t.Fatal("failed unit recorded")
	}

	second := loop.RunOnce(context.Background())
	if second.Pending != 1 || second.Processed != 1 {
		t.Fatalf("unexpected second iteration: %+v", second)
	}

	third := loop.RunOnce(context.Background())
	if third.Pending != 0 {
		t.Fatalf("processed units offered again: %+v", third)
	}

	want := []string{"5e-05", "0.0001", "5e-05"}
	if got := processor.callList(); !slices.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestRetryOrderIsRederivedEachIteration(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUnits("0.0002"))
	store := testsupport.MustLoadStore(t, cfg)
	processor := &scriptedProcessor{store: store, failures: map[string]int{"0.0002": 1}}
	loop := newLoop(t, workflow.Options{
		WatchDir:  cfg.Paths.WatchDir,
		Excluded:  cfg.Workflow.ExcludedDirs,
		Store:     store,
		Processor: processor,
	})

	loop.RunOnce(context.Background())
	// A numerically smaller unit appears before the retry.
	testsupport.MakeUnits(t, cfg.Paths.WatchDir, "5e-05")
	loop.RunOnce(context.Background())

	want := []string{"0.0002", "5e-05", "0.0002"}
	if got := processor.callList(); !slices.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestListingErrorIsLoggedAndLoopContinues(t *testing.T) {
	store := newStore(t)
	processor := &scriptedProcessor{store: store}
	var mu sync.Mutex
	calls := 0
	loop := newLoop(t, workflow.Options{
		PollInterval: 50 * time.Millisecond,
		MaxRuntime:   400 * time.Millisecond,
		Store:        store,
		Processor:    processor,
		List: func(string, []string) ([]workunit.Unit, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return nil, errors.New("stale NFS handle")
			}
			return []workunit.Unit{{ID: "5e-05", Time: 5e-05, Numeric: true}}, nil
		},
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !store.Contains("5e-05") {
		t.Fatal("loop did not recover after listing error")
	}
	if got := processor.callList(); !slices.Equal(got, []string{"5e-05"}) {
		t.Fatalf("unexpected calls: %v", got)
	}
}

func TestMissingWatchDirIsListingError(t *testing.T) {
	store := newStore(t)
	loop := newLoop(t, workflow.Options{
		WatchDir:  filepath.Join(t.TempDir(), "missing"),
		Store:     store,
		Processor: &scriptedProcessor{store: store},
	})
	stats := loop.RunOnce(context.Background())
	if !errors.Is(stats.ListErr, services.ErrListing) {
		t.Fatalf("expected listing error, got %v", stats.ListErr)
	}
	if !errors.Is(stats.ListErr, workunit.ErrDirectoryNotFound) {
		t.Fatalf("expected directory-not-found cause, got %v", stats.ListErr)
	}
}

func TestRunCancelInterruptsPollWait(t *testing.T) {
	store := newStore(t)
	loop := newLoop(t, workflow.Options{
		PollInterval: time.Hour,
		MaxRuntime:   24 * time.Hour,
		Store:        store,
		Processor:    &scriptedProcessor{store: store},
		List:         func(string, []string) ([]workunit.Unit, error) { return nil, nil },
	})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("cancellation did not interrupt the poll wait")
	}
	if loop.Stats().Reason != workflow.StopCanceled {
		t.Fatalf("unexpected stop reason %q", loop.Stats().Reason)
	}
}

func TestCancelStopsBeforeNextUnit(t *testing.T) {
	store := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	var calls []string
	processor := processorFunc(func(_ context.Context, unit workunit.Unit) bool {
		calls = append(calls, unit.ID)
		cancel()
		return false
	})
	loop := newLoop(t, workflow.Options{
		Store:     store,
		Processor: processor,
		List: func(string, []string) ([]workunit.Unit, error) {
			return []workunit.Unit{{ID: "1"}, {ID: "2"}, {ID: "3"}}, nil
		},
	})
	stats := loop.RunOnce(ctx)
	if !slices.Equal(calls, []string{"1"}) {
		t.Fatalf("units processed after cancellation: %v", calls)
	}
	if stats.Failed != 0 {
		t.Fatalf("canceled unit counted as failure: %+v", stats)
	}
}

func TestBudgetCheckedBeforeEachUnit(t *testing.T) {
	store := newStore(t)
	var mu sync.Mutex
	var calls []string
	processor := processorFunc(func(_ context.Context, unit workunit.Unit) bool {
		mu.Lock()
		calls = append(calls, unit.ID)
		mu.Unlock()
		time.Sleep(250 * time.Millisecond)
		return store.Append(unit.ID) == nil
	})
	loop := newLoop(t, workflow.Options{
		PollInterval: 50 * time.Millisecond,
		MaxRuntime:   400 * time.Millisecond,
		Store:        store,
		Processor:    processor,
		List: func(string, []string) ([]workunit.Unit, error) {
			return []workunit.Unit{{ID: "1"}, {ID: "2"}, {ID: "3"}}, nil
		},
	})
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(calls, []string{"1", "2"}) {
		t.Fatalf("expected the third unit to wait for the next run, got %v", calls)
	}
	if store.Contains("3") {
		t.Fatal("deferred unit recorded as processed")
	}
	if stats := loop.Stats(); stats.Reason != workflow.StopBudgetExhausted || stats.Processed != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestUnitNameWithSurroundingSpaceProcessedOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithUnits(" 1e-05"))
	store := testsupport.MustLoadStore(t, cfg)
	processor := &scriptedProcessor{store: store, failures: map[string]int{}}
	loop := newLoop(t, workflow.Options{
		WatchDir:  cfg.Paths.WatchDir,
		Excluded:  cfg.Workflow.ExcludedDirs,
		Store:     store,
		Processor: processor,
	})

	for range 3 {
		loop.RunOnce(context.Background())
	}
	if got := processor.callList(); !slices.Equal(got, []string{" 1e-05"}) {
		t.Fatalf("expected a single pass over the unit, got %q", got)
	}
	reloaded := testsupport.MustLoadStore(t, cfg)
	if !reloaded.Contains(" 1e-05") {
		t.Fatalf("unit not found after reload: %q", reloaded.IDs())
	}
}

func TestBudget(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	budget := workflow.NewBudget(3*time.Second, clock)
	if budget.Exhausted() || budget.Remaining() != 3*time.Second {
		t.Fatalf("fresh budget: remaining %s", budget.Remaining())
	}
	now = now.Add(2 * time.Second)
	if budget.Remaining() != time.Second {
		t.Fatalf("expected 1s remaining, got %s", budget.Remaining())
	}
	now = now.Add(5 * time.Second)
	if !budget.Exhausted() || budget.Remaining() != 0 {
		t.Fatalf("expected exhausted budget, remaining %s", budget.Remaining())
	}
}

func TestNewValidatesOptions(t *testing.T) {
	store := newStore(t)
	if _, err := workflow.New(workflow.Options{Processor: &scriptedProcessor{store: store}, PollInterval: time.Second, MaxRuntime: time.Second}); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := workflow.New(workflow.Options{Store: store, Processor: &scriptedProcessor{store: store}, MaxRuntime: time.Second}); err == nil {
		t.Fatal("expected error for zero poll interval")
	}
}

type processorFunc func(context.Context, workunit.Unit) bool

func (f processorFunc) Process(ctx context.Context, unit workunit.Unit) bool {
	return f(ctx, unit)
}
