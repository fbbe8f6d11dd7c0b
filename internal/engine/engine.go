package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/CfKu/Hotify/internal/events"
	"github.com/CfKu/Hotify/internal/watcher"
)

// DefaultSettleDelay is the quiet period after the last arrival before a
// batch is considered complete.
const DefaultSettleDelay = 5 * time.Second

// Option configures an Engine.
type Option func(*Engine)

// WithSettleDelay sets the batch settle delay (process-wide, not
// per environment).
func WithSettleDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.settleDelay = d
		}
	}
}

// WithOutputDir sets the directory derived out_file paths point into.
func WithOutputDir(dir string) Option {
	return func(e *Engine) { e.outputDir = dir }
}

// WithCleanupInputs enables deletion of consumed inputs after success.
func WithCleanupInputs(enabled bool) Option {
	return func(e *Engine) { e.cleanupInputs = enabled }
}

// WithDryRun renders and reports invocations without executing them.
func WithDryRun(enabled bool) Option {
	return func(e *Engine) { e.dryRun = enabled }
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithBus sets the event bus diagnostics are published to.
func WithBus(bus *events.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// Engine is the environment engine: it consumes complete-file events,
// routes them to environments, debounces batch-mode bursts, renders command
// templates, and executes the resulting chains.
//
// Errors are local to one invocation or one file; no failure in one
// environment halts processing of others.
type Engine struct {
	reg    *Registry
	router *Router
	deb    *Debouncer
	exec   *Executor

	settleDelay   time.Duration
	outputDir     string
	cleanupInputs bool
	dryRun        bool
	log           *slog.Logger
	bus           *events.EventBus
	emitter       *events.EventEmitter

	ctx    context.Context
	cancel context.CancelFunc

	stopMu  sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New creates an engine over the given registry.
func New(reg *Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:         reg,
		settleDelay: DefaultSettleDelay,
		log:         slog.Default(),
		bus:         events.DefaultBus,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.router = NewRouter(reg)
	e.deb = NewDebouncer(e.settleDelay, e.onBatch)
	e.exec = NewExecutor(
		WithCleanup(e.cleanupInputs),
		WithExecDryRun(e.dryRun),
		WithExecLogger(e.log),
	)
	e.emitter = events.NewEventEmitter(e.bus, 256)
	return e
}

// Start makes the engine ready to accept events. ctx cancellation stops new
// work; invocations already executing run their current step to completion.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.emitter.Start()
}

// Stop drops pending batches, waits for in-flight invocations, and leaves
// the engine unusable. Dropped batch files stay on disk for the next run's
// sweep. Once Stop has set the closed flag no new invocation is admitted,
// even from a debouncer timer that fires concurrently.
func (e *Engine) Stop() {
	e.stopMu.Lock()
	e.stopped = true
	e.stopMu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	e.deb.Stop()
	e.wg.Wait()
}

// HandleEvents is the watcher handler: it routes each complete-file event
// to its owning environment. Single-mode environments trigger immediately
// on a worker goroutine; batch-mode environments feed the debouncer.
func (e *Engine) HandleEvents(evs []watcher.Event) {
	for _, ev := range evs {
		env := e.router.Route(ev.Path)
		if env == nil {
			e.log.Info("no environment matches file, leaving in place", "path", ev.Path)
			e.emitter.Emit(events.NewFileUnmatched(ev.Path))
			continue
		}
		e.log.Debug("file routed", "path", ev.Path, "env", env.Name(), "mode", env.Mode().String())
		e.emitter.Emit(events.NewFileRouted(env.Name(), ev.Path))

		if env.Mode() == ModeBatch {
			e.deb.Add(env, ev.HotFolder, ev.Path)
			continue
		}
		e.spawn(e.ctx, env, ev.HotFolder, Context{InFile: ev.Path})
	}
}

// Flush forces all pending batches out of the debouncer and runs them.
// Flushed invocations execute on a context detached from the run context,
// so a shutdown flush still completes after the run context was cancelled;
// the subsequent Stop waits for them.
func (e *Engine) Flush() {
	if e.ctx == nil {
		return
	}
	ctx := context.WithoutCancel(e.ctx)
	for _, b := range e.deb.Drain() {
		e.emitter.Emit(events.NewBatchFlushed(b.Env.Name(), b.Files))
		e.spawn(ctx, b.Env, b.HotFolder, Context{InFiles: b.Files})
	}
}

// onBatch is the debouncer's flush callback.
func (e *Engine) onBatch(b Batch) {
	e.emitter.Emit(events.NewBatchFlushed(b.Env.Name(), b.Files))
	e.spawn(e.ctx, b.Env, b.HotFolder, Context{InFiles: b.Files})
}

// spawn renders and executes one invocation on its own goroutine.
// Per-key serialization happens inside the executor, so spawning per event
// keeps distinct environments and instances concurrent. Admission and the
// waitgroup increment happen under stopMu so Stop cannot observe a zero
// counter while a racing timer is about to add work.
func (e *Engine) spawn(ctx context.Context, env *Environment, hotFolder string, rctx Context) {
	if ctx == nil || ctx.Err() != nil {
		return
	}
	e.stopMu.Lock()
	if e.stopped {
		e.stopMu.Unlock()
		return
	}
	e.wg.Add(1)
	e.stopMu.Unlock()

	go func() {
		defer e.wg.Done()
		e.runInvocation(ctx, env, hotFolder, rctx)
	}()
}

func (e *Engine) runInvocation(ctx context.Context, env *Environment, hotFolder string, rctx Context) {
	inv, err := Render(env, hotFolder, e.outputDir, rctx)
	if err != nil {
		files := rctx.InFiles
		if files == nil && rctx.InFile != "" {
			files = []string{rctx.InFile}
		}
		e.log.Error("render failed, invocation aborted", "env", env.Name(), "error", err)
		e.emitter.Emit(events.NewInvocationFailed(env.Name(), files, 0, err.Error()))
		return
	}

	e.emitter.Emit(events.NewInvocationStarted(env.Name(), inv.Inputs, inv.OutFile))
	res, err := e.exec.Execute(ctx, inv)
	if err != nil {
		e.log.Error("invocation failed, inputs retained",
			"env", env.Name(), "step", FailedStep(err), "error", err)
		e.emitter.Emit(events.NewInvocationFailed(env.Name(), inv.Inputs, FailedStep(err), err.Error()))
		return
	}

	e.log.Info("invocation completed",
		"env", env.Name(), "files", len(inv.Inputs), "state", res.State.String())
	e.emitter.Emit(events.NewInvocationCompleted(env.Name(), inv.Inputs, inv.OutFile))

	if res.Cleanup != nil {
		e.log.Warn("cleanup failed for consumed inputs", "env", env.Name(), "error", res.Cleanup)
		e.emitter.Emit(events.NewCleanupFailed(env.Name(), res.Cleanup.Paths, res.Cleanup.Error()))
	}
}
