package engine

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Router maps file paths to their owning environment by matching the file's
// base name against each environment's pattern set in registry order.
type Router struct {
	reg *Registry
}

// NewRouter creates a router over the given registry.
func NewRouter(reg *Registry) *Router {
	return &Router{reg: reg}
}

// Route returns the first environment (in declaration order) whose pattern
// set matches the file's base name, or nil if no environment matches.
// Matching is case-insensitive. Route assumes it only receives paths of
// files considered complete; directory and temp-file filtering happens
// upstream in the watcher.
func (r *Router) Route(path string) *Environment {
	name := strings.ToLower(filepath.Base(path))
	for _, env := range r.reg.envs {
		for _, pat := range env.patterns {
			if ok, err := doublestar.Match(strings.ToLower(pat), name); err == nil && ok {
				return env
			}
		}
	}
	return nil
}
