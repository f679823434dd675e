// Package stageexec runs one external post-processing program against one
// work unit and classifies how it ended.
//
// Every invocation gets its own log file, created (or truncated) before the
// program starts so it exists afterwards no matter the outcome. Standard output
// and standard error both go to that file. The child runs in its own process
// group; on timeout or cancellation the whole group is killed so helpers the
// program forked (mpirun ranks, python subprocesses) do not outlive it.
//
// The child's working directory is set on the exec.Cmd. The monitor's own
// working directory is never touched.
package stageexec

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Outcome classifies a finished invocation.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeFailed    Outcome = "failed"
	OutcomeCanceled  Outcome = "canceled"
)

// ExitCodeNotStarted is reported when the program could not be launched,
// matching the shell's "command not found" status.
const ExitCodeNotStarted = 127

// DefaultKillGrace bounds how long Run waits for a killed group to be reaped.
const DefaultKillGrace = 5 * time.Second

// Invocation describes one run of an external stage.
type Invocation struct {
	Stage      string
	Program    string
	Args       []string
	Env        map[string]string
	WorkingDir string
	// Timeout of zero or less disables the deadline.
	Timeout time.Duration
	LogPath string
}

// Result reports how an invocation ended.
type Result struct {
	Outcome  Outcome
	ExitCode int
	LogPath  string
	Started  time.Time
	Duration time.Duration
	// StartErr is set when the program could not be launched.
	StartErr error
}

// Succeeded reports whether the program exited with status 0.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}

// String renders the outcome with its exit code where one applies.
func (r Result) String() string {
	if r.Outcome == OutcomeFailed {
		return fmt.Sprintf("failed(%d)", r.ExitCode)
	}
	return string(r.Outcome)
}

// Runner launches stage programs.
type Runner struct {
	KillGrace time.Duration
	now       func() time.Time
}

// NewRunner returns a Runner with default settings.
func NewRunner() *Runner {
	return &Runner{KillGrace: DefaultKillGrace, now: time.Now}
}

// Run executes inv and blocks until the program exits, times out, or ctx is
// canceled. The returned error is reserved for problems preparing the log
// file; everything that happens to the program is reported in Result.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Result, error) {
	now := r.now
	if now == nil {
		now = time.Now
	}
	grace := r.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}

	result := Result{LogPath: inv.LogPath, Started: now()}
	logFile, err := createLog(inv.LogPath)
	if err != nil {
		return result, err
	}
	defer logFile.Close()

	if err := ctx.Err(); err != nil {
		result.Outcome = OutcomeCanceled
		result.ExitCode = -1
		return result, nil
	}

	cmd := exec.Command(inv.Program, inv.Args...) //nolint:gosec
	cmd.Dir = inv.WorkingDir
	cmd.Env = mergeEnv(os.Environ(), inv.Env)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = grace

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(logFile, "meltwatch: start %s: %v\n", inv.Program, err)
		result.Outcome = OutcomeFailed
		result.ExitCode = ExitCodeNotStarted
		result.StartErr = err
		result.Duration = now().Sub(result.Started)
		return result, nil
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var deadline <-chan time.Time
	if inv.Timeout > 0 {
		timer := time.NewTimer(inv.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case waitErr := <-done:
		result.Outcome, result.ExitCode = classifyExit(waitErr)
	case <-deadline:
		killGroup(cmd)
		awaitExit(done, grace)
		result.Outcome = OutcomeTimedOut
		result.ExitCode = -1
		fmt.Fprintf(logFile, "meltwatch: killed after %s timeout\n", inv.Timeout)
	case <-ctx.Done():
		killGroup(cmd)
		awaitExit(done, grace)
		result.Outcome = OutcomeCanceled
		result.ExitCode = -1
		fmt.Fprintf(logFile, "meltwatch: killed on cancellation: %v\n", context.Cause(ctx))
	}
	result.Duration = now().Sub(result.Started)
	return result, nil
}

func createLog(path string) (*os.File, error) {
	if path == "" {
		return nil, errors.New("stage log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create stage log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create stage log: %w", err)
	}
	return file, nil
}

func classifyExit(err error) (Outcome, int) {
	if err == nil {
		return OutcomeSucceeded, 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return OutcomeFailed, 128 + int(status.Signal())
		}
		return OutcomeFailed, exitErr.ExitCode()
	}
	return OutcomeFailed, -1
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}

func awaitExit(done <-chan error, grace time.Duration) {
	select {
	case <-done:
	case <-time.After(grace):
	}
}

// mergeEnv overlays extra onto base. Keys from extra replace existing entries.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	env := make([]string, 0, len(base)+len(extra))
	for _, entry := range base {
		key, _, _ := strings.Cut(entry, "=")
		if _, ok := extra[key]; ok {
			continue
		}
		env = append(env, entry)
	}
	for _, key := range slices.Sorted(maps.Keys(extra)) {
		env = append(env, key+"="+extra[key])
	}
	return env
}
