package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError reports a configuration-level problem with one invocation:
// an unresolved placeholder, ambiguous variable cardinality, or a command
// that cannot be tokenized. It aborts only the affected invocation.
type ConfigError struct {
	Env         string
	Step        int    // 1-based chain step, 0 if not step-specific
	Placeholder string // offending placeholder, "" if not applicable
	Message     string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config error")
	if e.Env != "" {
		fmt.Fprintf(&b, " in environment %q", e.Env)
	}
	if e.Step > 0 {
		fmt.Fprintf(&b, " (step %d)", e.Step)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// SpawnError reports that a chain step's process could not be started.
// The remaining chain is skipped and inputs are retained.
type SpawnError struct {
	Step int // 1-based index of the failed step
	Cmd  string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("step %d: spawning %q: %v", e.Step, e.Cmd, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError reports a chain step that ran and exited non-zero. The remaining
// chain is skipped and inputs are retained.
type ExitError struct {
	Step   int // 1-based index of the failed step
	Cmd    string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("step %d: %q exited with code %d", e.Step, e.Cmd, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// CleanupError reports input files that could not be deleted after a
// successful invocation. It never demotes the invocation's success; callers
// log it and move on.
type CleanupError struct {
	Paths []string
	Errs  []error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup failed for %d input(s): %v", len(e.Paths), errors.Join(e.Errs...))
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// FailedStep returns the 1-based chain step an execution error occurred at,
// or 0 if err carries no step information.
func FailedStep(err error) int {
	var se *SpawnError
	if errors.As(err, &se) {
		return se.Step
	}
	var xe *ExitError
	if errors.As(err, &xe) {
		return xe.Step
	}
	return 0
}
