// Package engine implements the hot-folder environment engine: routing of
// file-arrival events to environments, batch debouncing, command template
// rendering, and chained command execution.
package engine

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Mode describes how an environment consumes arriving files.
type Mode int

const (
	// ModeSingle fires one invocation per arriving file.
	ModeSingle Mode = iota
	// ModeBatch accumulates arriving files and fires one invocation per
	// settled burst. An environment is batch-mode iff any template in its
	// chain references {in_files}.
	ModeBatch
)

func (m Mode) String() string {
	if m == ModeBatch {
		return "batch"
	}
	return "single"
}

// Environment is a named rule set mapping input glob patterns to a trigger
// command chain. Environments are immutable once constructed; the name also
// serves as the hot-folder subdirectory name.
type Environment struct {
	name     string
	patterns []string
	chain    []string
	mode     Mode
}

// NewEnvironment validates and constructs an environment.
// It requires a non-empty name usable as a directory name, at least one
// valid glob pattern, and at least one command template.
func NewEnvironment(name string, patterns, chain []string) (*Environment, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("environment name must not be empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return nil, fmt.Errorf("environment name %q must be usable as a directory name", name)
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("environment %q: at least one pattern required", name)
	}
	for _, p := range patterns {
		if p == "" {
			return nil, fmt.Errorf("environment %q: empty pattern", name)
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("environment %q: invalid pattern %q", name, p)
		}
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("environment %q: at least one trigger command required", name)
	}
	for i, tmpl := range chain {
		if strings.TrimSpace(tmpl) == "" {
			return nil, fmt.Errorf("environment %q: trigger step %d is empty", name, i+1)
		}
	}

	env := &Environment{
		name:     name,
		patterns: append([]string(nil), patterns...),
		chain:    append([]string(nil), chain...),
		mode:     ModeSingle,
	}
	for _, tmpl := range chain {
		if referencesVar(tmpl, VarInFiles) {
			env.mode = ModeBatch
			break
		}
	}
	return env, nil
}

// Name returns the environment name.
func (e *Environment) Name() string { return e.name }

// Patterns returns the glob pattern set in declaration order.
func (e *Environment) Patterns() []string {
	return append([]string(nil), e.patterns...)
}

// Chain returns the ordered command templates.
func (e *Environment) Chain() []string {
	return append([]string(nil), e.chain...)
}

// Mode reports whether the environment triggers per file or per batch.
func (e *Environment) Mode() Mode { return e.mode }

// MixesCardinality reports whether the chain references both {in_file} and
// {in_files}. Such a chain is treated as batch mode, and its {in_file}
// references fail at render time; config validation uses this to warn early.
func (e *Environment) MixesCardinality() bool {
	if e.mode != ModeBatch {
		return false
	}
	for _, tmpl := range e.chain {
		if referencesVar(tmpl, VarInFile) {
			return true
		}
	}
	return false
}

// Registry is an ordered, read-only collection of environments. Declaration
// order is significant: the router breaks pattern-match ties in favor of the
// first listed environment.
type Registry struct {
	envs   []*Environment
	byName map[string]*Environment
}

// NewRegistry builds a registry, rejecting duplicate environment names.
func NewRegistry(envs ...*Environment) (*Registry, error) {
	r := &Registry{
		envs:   append([]*Environment(nil), envs...),
		byName: make(map[string]*Environment, len(envs)),
	}
	for _, env := range envs {
		if _, dup := r.byName[env.name]; dup {
			return nil, fmt.Errorf("duplicate environment name %q", env.name)
		}
		r.byName[env.name] = env
	}
	return r, nil
}

// Lookup returns the environment with the given name.
func (r *Registry) Lookup(name string) (*Environment, bool) {
	env, ok := r.byName[name]
	return env, ok
}

// Environments returns the environments in declaration order.
func (r *Registry) Environments() []*Environment {
	return append([]*Environment(nil), r.envs...)
}

// Len returns the number of registered environments.
func (r *Registry) Len() int { return len(r.envs) }
