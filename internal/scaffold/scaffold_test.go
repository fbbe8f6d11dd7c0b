package scaffold

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPlan(t *testing.T) {
	l := Plan("/base", "_HOTIFY", "_OUTPUT", []string{"pdf-ocr-deu", "merge"})

	if l.HotDir != filepath.Join("/base", "_HOTIFY") {
		t.Errorf("HotDir = %q", l.HotDir)
	}
	if l.OutputDir != filepath.Join("/base", "_OUTPUT") {
		t.Errorf("OutputDir = %q", l.OutputDir)
	}
	want := []string{
		filepath.Join("/base", "_HOTIFY", "pdf-ocr-deu"),
		filepath.Join("/base", "_HOTIFY", "merge"),
	}
	if len(l.EnvDirs) != len(want) {
		t.Fatalf("EnvDirs = %v, want %v", l.EnvDirs, want)
	}
	for i := range want {
		if l.EnvDirs[i] != want[i] {
			t.Errorf("EnvDirs[%d] = %q, want %q", i, l.EnvDirs[i], want[i])
		}
	}
}

func TestSetupAndTeardown(t *testing.T) {
	base := t.TempDir()
	l := Plan(base, "_HOTIFY", "_OUTPUT", []string{"a", "b"})

	if err := l.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	for _, dir := range append([]string{l.HotDir, l.OutputDir}, l.EnvDirs...) {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("missing directory %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}

	// Setup is repeatable over an existing tree.
	if err := l.Setup(); err != nil {
		t.Fatalf("second Setup() error = %v", err)
	}

	// A produced result and a leftover input to tell apart on teardown.
	leftover := filepath.Join(l.EnvDirs[0], "stuck.pdf")
	if err := os.WriteFile(leftover, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := filepath.Join(l.OutputDir, "done.pdf")
	if err := os.WriteFile(result, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := l.Teardown(); err != nil {
		t.Fatalf("Teardown() error = %v", err)
	}
	if _, err := os.Stat(l.HotDir); !os.IsNotExist(err) {
		t.Error("hot folder tree survived Teardown")
	}
	if _, err := os.Stat(result); err != nil {
		t.Errorf("output result removed by Teardown: %v", err)
	}
}

func TestTeardown_MissingTree(t *testing.T) {
	l := Plan(t.TempDir(), "_HOTIFY", "_OUTPUT", nil)
	if err := l.Teardown(); err != nil {
		t.Errorf("Teardown() of a never-created tree should be a no-op, got %v", err)
	}
}
