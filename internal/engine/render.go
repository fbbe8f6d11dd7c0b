package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Recognized placeholder variables. Any other {...} token in a template is
// passed through unchanged.
const (
	VarInFile  = "in_file"
	VarInFiles = "in_files"
	VarOutFile = "out_file"
)

var placeholderRE = regexp.MustCompile(`\{(in_file|in_files|out_file)\}`)

// referencesVar reports whether the template contains the exact placeholder
// token {name}.
func referencesVar(tmpl, name string) bool {
	for _, m := range placeholderRE.FindAllStringSubmatch(tmpl, -1) {
		if m[1] == name {
			return true
		}
	}
	return false
}

// Context carries the variable bindings for one render. InFile is set in
// single mode, InFiles in batch mode. OutFile may be pre-supplied; when
// empty it is derived from the inputs and the output directory.
type Context struct {
	InFile  string
	InFiles []string
	OutFile string
}

// Invocation is an immutable record produced by Render and consumed exactly
// once by the executor: the fully resolved command chain plus the inputs it
// consumes and the output path it may produce.
type Invocation struct {
	Env       *Environment
	HotFolder string
	Rendered  []string   // resolved command strings, one per chain step
	Commands  [][]string // argv form of Rendered
	Inputs    []string   // consumed input files, arrival order
	OutFile   string     // derived or supplied output path, "" if unused
}

// Render substitutes the context bindings into every template of the
// environment's chain. All steps share the same resolved bindings; out_file
// in particular is computed once and passed verbatim into every step.
//
// A referenced placeholder with no binding is a configuration error and
// aborts the invocation before anything executes. Rendering the same
// environment and context twice yields identical commands.
func Render(env *Environment, hotFolder, outputDir string, ctx Context) (*Invocation, error) {
	vars := make(map[string]string, 3)
	var inputs []string

	switch env.Mode() {
	case ModeBatch:
		if len(ctx.InFiles) == 0 {
			return nil, &ConfigError{Env: env.Name(), Message: "batch render without input files"}
		}
		inputs = append([]string(nil), ctx.InFiles...)
		vars[VarInFiles] = quoteJoin(inputs)
	default:
		if ctx.InFile == "" {
			return nil, &ConfigError{Env: env.Name(), Message: "single render without input file"}
		}
		inputs = []string{ctx.InFile}
		vars[VarInFile] = ctx.InFile
	}

	outFile := ctx.OutFile
	if outFile == "" && chainReferences(env, VarOutFile) {
		outFile = deriveOutFile(env.Mode(), outputDir, inputs[0])
	}
	if outFile != "" {
		vars[VarOutFile] = outFile
	}

	inv := &Invocation{
		Env:       env,
		HotFolder: hotFolder,
		Inputs:    inputs,
		OutFile:   outFile,
	}
	for i, tmpl := range env.Chain() {
		rendered, err := substitute(tmpl, vars)
		if err != nil {
			var ce *ConfigError
			if errors.As(err, &ce) {
				ce.Env = env.Name()
				ce.Step = i + 1
				return nil, ce
			}
			return nil, err
		}
		argv, err := splitCommand(rendered)
		if err != nil {
			return nil, &ConfigError{Env: env.Name(), Step: i + 1, Message: err.Error()}
		}
		if len(argv) == 0 {
			return nil, &ConfigError{Env: env.Name(), Step: i + 1, Message: "command renders to nothing"}
		}
		inv.Rendered = append(inv.Rendered, rendered)
		inv.Commands = append(inv.Commands, argv)
	}
	return inv, nil
}

// substitute replaces recognized placeholders with their bindings. Unknown
// {...} tokens are left untouched; a recognized placeholder without a
// binding is a configuration error.
func substitute(tmpl string, vars map[string]string) (string, error) {
	var missing string
	out := placeholderRE.ReplaceAllStringFunc(tmpl, func(tok string) string {
		name := tok[1 : len(tok)-1]
		v, ok := vars[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return tok
		}
		return v
	})
	if missing != "" {
		return "", &ConfigError{
			Placeholder: missing,
			Message:     fmt.Sprintf("placeholder {%s} has no value in this context", missing),
		}
	}
	return out, nil
}

func chainReferences(env *Environment, name string) bool {
	for _, tmpl := range env.Chain() {
		if referencesVar(tmpl, name) {
			return true
		}
	}
	return false
}

// deriveOutFile computes the default output path: output directory plus the
// base name of the (first) input. Batch outputs carry a "multiple--" prefix
// so a burst result is distinguishable from a single-file result.
func deriveOutFile(mode Mode, outputDir, firstInput string) string {
	base := filepath.Base(firstInput)
	if mode == ModeBatch {
		base = "multiple--" + base
	}
	return filepath.Join(outputDir, base)
}

// quoteJoin renders an ordered file list as space-separated double-quoted
// paths, the wire form consumers of {in_files} expect. Double quotes and
// backslashes inside a path are backslash-escaped so the quoted form always
// tokenizes back to the original path.
func quoteJoin(paths []string) string {
	var b strings.Builder
	for i, p := range paths {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('"')
		for _, r := range p {
			if r == '"' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteByte('"')
	}
	return b.String()
}
