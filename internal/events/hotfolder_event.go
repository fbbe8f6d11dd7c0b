package events

import "time"

// Hot-folder event types published by the engine.
const (
	FileRouted          = "file.routed"
	FileUnmatched       = "file.unmatched"
	BatchFlushed        = "batch.flushed"
	InvocationStarted   = "invocation.started"
	InvocationCompleted = "invocation.completed"
	InvocationFailed    = "invocation.failed"
	CleanupFailed       = "cleanup.failed"
)

// BaseEvent carries the fields shared by all hot-folder events.
type BaseEvent struct {
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Environment string    `json:"environment,omitempty"`
}

// EventType implements BusEvent.
func (b BaseEvent) EventType() string { return b.Type }

// HotFolderEvent is the engine's diagnostic record for one file, batch, or
// invocation. Fields beyond BaseEvent are populated per event type.
type HotFolderEvent struct {
	BaseEvent

	Path    string   `json:"path,omitempty"`    // single file events
	Files   []string `json:"files,omitempty"`   // batch and invocation events
	OutFile string   `json:"outfile,omitempty"` // invocation events
	Step    int      `json:"step,omitempty"`    // failed chain step, 1-based
	Message string   `json:"message,omitempty"` // failure diagnostics
}

func newEvent(eventType, env string) HotFolderEvent {
	return HotFolderEvent{BaseEvent: BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		Environment: env,
	}}
}

// NewFileRouted records a file matched to its owning environment.
func NewFileRouted(env, path string) HotFolderEvent {
	ev := newEvent(FileRouted, env)
	ev.Path = path
	return ev
}

// NewFileUnmatched records a file no environment pattern matched.
func NewFileUnmatched(path string) HotFolderEvent {
	ev := newEvent(FileUnmatched, "")
	ev.Path = path
	return ev
}

// NewBatchFlushed records a settled batch leaving the debouncer.
func NewBatchFlushed(env string, files []string) HotFolderEvent {
	ev := newEvent(BatchFlushed, env)
	ev.Files = files
	return ev
}

// NewInvocationStarted records a rendered invocation entering execution.
func NewInvocationStarted(env string, files []string, outFile string) HotFolderEvent {
	ev := newEvent(InvocationStarted, env)
	ev.Files = files
	ev.OutFile = outFile
	return ev
}

// NewInvocationCompleted records a chain that ran to completion.
func NewInvocationCompleted(env string, files []string, outFile string) HotFolderEvent {
	ev := newEvent(InvocationCompleted, env)
	ev.Files = files
	ev.OutFile = outFile
	return ev
}

// NewInvocationFailed records a render error or a failed chain step.
// step is 0 for render-time failures.
func NewInvocationFailed(env string, files []string, step int, message string) HotFolderEvent {
	ev := newEvent(InvocationFailed, env)
	ev.Files = files
	ev.Step = step
	ev.Message = message
	return ev
}

// NewCleanupFailed records input files that survived a post-success cleanup.
func NewCleanupFailed(env string, files []string, message string) HotFolderEvent {
	ev := newEvent(CleanupFailed, env)
	ev.Files = files
	ev.Message = message
	return ev
}
