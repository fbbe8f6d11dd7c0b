// Package scaffold creates and tears down the on-disk hot-folder layout:
// one subdirectory per environment under the hot-folder root, plus the
// shared output directory.
package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout describes the directory tree for one hotify instance.
type Layout struct {
	HotDir    string   // <base>/<hot_folder_name>
	OutputDir string   // <base>/<output_folder_name>
	EnvDirs   []string // <HotDir>/<env name>, declaration order
}

// Plan computes the layout for the given base path and environment names
// without touching the filesystem.
func Plan(base, hotFolderName, outputFolderName string, envNames []string) Layout {
	l := Layout{
		HotDir:    filepath.Join(base, hotFolderName),
		OutputDir: filepath.Join(base, outputFolderName),
	}
	for _, name := range envNames {
		l.EnvDirs = append(l.EnvDirs, filepath.Join(l.HotDir, name))
	}
	return l
}

// Setup creates every directory of the layout. Existing directories are
// left as they are.
func (l Layout) Setup() error {
	dirs := append([]string{l.HotDir, l.OutputDir}, l.EnvDirs...)
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// Teardown removes the hot-folder tree, including any files still inside.
// The output directory is never removed; produced results outlive the
// process.
func (l Layout) Teardown() error {
	if err := os.RemoveAll(l.HotDir); err != nil {
		return fmt.Errorf("removing %s: %w", l.HotDir, err)
	}
	return nil
}
