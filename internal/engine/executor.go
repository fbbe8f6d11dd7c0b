package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// InvocationState tracks an invocation through its lifecycle. Terminal
// states are StateSucceeded, StateCleaned, and StateFailed.
type InvocationState int

const (
	StatePending InvocationState = iota
	StateRendering
	StateExecuting
	StateSucceeded
	StateFailed
	StateCleaned
)

func (s InvocationState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRendering:
		return "rendering"
	case StateExecuting:
		return "executing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCleaned:
		return "cleaned"
	default:
		return "unknown"
	}
}

// ExecResult is the executor's report for one invocation that ran to
// successful completion. Cleanup holds per-file deletion failures; they do
// not affect the invocation's success.
type ExecResult struct {
	State   InvocationState
	OutFile string
	Cleanup *CleanupError // nil when cleanup succeeded or was disabled
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithCleanup enables deletion of consumed inputs after success.
func WithCleanup(enabled bool) ExecutorOption {
	return func(e *Executor) { e.cleanup = enabled }
}

// WithExecDryRun makes Execute log the resolved chain without spawning
// processes or deleting files.
func WithExecDryRun(enabled bool) ExecutorOption {
	return func(e *Executor) { e.dryRun = enabled }
}

// WithExecLogger sets the executor's logger.
func WithExecLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// Executor runs resolved command chains as external processes. Invocations
// for the same (environment, hot folder) key are serialized so they cannot
// race on a shared out_file path; invocations for different keys run
// concurrently.
type Executor struct {
	cleanup bool
	dryRun  bool
	log     *slog.Logger

	mu    sync.Mutex
	locks map[batchKey]*sync.Mutex
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		log:   slog.Default(),
		locks: make(map[batchKey]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) keyLock(k batchKey) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[k]
	if !ok {
		l = &sync.Mutex{}
		e.locks[k] = l
	}
	return l
}

// Execute runs the invocation's chain strictly in order. The first step that
// fails to spawn or exits non-zero aborts the remaining chain; the returned
// error identifies the failed step and inputs are left in place. On success
// with cleanup enabled, consumed inputs are deleted; deletion failures are
// reported in the result without demoting the success.
//
// A process already started is not cancelled mid-step by shutdown; ctx
// cancellation takes effect between steps and kills the chain via
// exec.CommandContext on overall process teardown only.
func (e *Executor) Execute(ctx context.Context, inv *Invocation) (*ExecResult, error) {
	lock := e.keyLock(batchKey{env: inv.Env.Name(), hotFolder: inv.HotFolder})
	lock.Lock()
	defer lock.Unlock()

	if e.dryRun {
		for i, rendered := range inv.Rendered {
			e.log.Info("dry run: would execute",
				"env", inv.Env.Name(), "step", i+1, "cmd", rendered)
		}
		return &ExecResult{State: StateSucceeded, OutFile: inv.OutFile}, nil
	}

	for i, argv := range inv.Commands {
		if err := ctx.Err(); err != nil {
			return nil, &SpawnError{Step: i + 1, Cmd: inv.Rendered[i], Err: err}
		}
		e.log.Debug("executing step",
			"env", inv.Env.Name(), "step", i+1, "of", len(inv.Commands), "cmd", inv.Rendered[i])

		if err := runStep(ctx, i+1, inv.Rendered[i], argv); err != nil {
			return nil, err
		}
	}

	res := &ExecResult{State: StateSucceeded, OutFile: inv.OutFile}
	if e.cleanup {
		if cerr := removeInputs(inv.Inputs); cerr != nil {
			res.Cleanup = cerr
		} else {
			res.State = StateCleaned
		}
	}
	return res, nil
}

// runStep spawns one chain step and waits for it, surfacing spawn failures
// and non-zero exits as typed errors with the step index.
func runStep(ctx context.Context, step int, rendered string, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &SpawnError{Step: step, Cmd: rendered, Err: err}
	}
	if err := cmd.Wait(); err != nil {
		var xe *exec.ExitError
		code := -1
		if errors.As(err, &xe) {
			code = xe.ExitCode()
		}
		return &ExitError{
			Step:   step,
			Cmd:    rendered,
			Code:   code,
			Stderr: strings.TrimSpace(stderr.String()),
		}
	}
	return nil
}

func removeInputs(paths []string) *CleanupError {
	var ce CleanupError
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			ce.Paths = append(ce.Paths, p)
			ce.Errs = append(ce.Errs, err)
		}
	}
	if len(ce.Paths) > 0 {
		return &ce
	}
	return nil
}
