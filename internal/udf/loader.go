// Package udf loads user-defined formula functions from Starlark
// scripts. Each .star file becomes a namespace named after the file,
// and its exported functions are callable from formulas as
// namespace.name(...).
package udf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"
)

// Loader scans a directory for .star files and loads them as Starlark
// modules.
type Loader struct {
	dir string
}

// NewLoader creates a loader for the specified script directory.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// LoadedModule is one executed .star file.
type LoadedModule struct {
	// Namespace is derived from the filename (e.g. "stats" from
	// "stats.star")
	Namespace string

	// Path is the path to the .star file
	Path string

	// Exports contains the exported globals (names not starting with _)
	Exports starlark.StringDict

	// Functions is the statically parsed function metadata, used by the
	// functions listing. Parsing never executes the script.
	Functions []*ScriptFunc
}

// Load scans the script directory and loads all .star files. A missing
// directory is not an error; servers run fine without any UDFs.
func (l *Loader) Load() ([]*LoadedModule, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to access scripts directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scripts path is not a directory: %s", l.dir)
	}

	files, err := filepath.Glob(filepath.Join(l.dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan scripts directory: %w", err)
	}

	var modules []*LoadedModule
	for _, file := range files {
		module, err := l.loadFile(file)
		if err != nil {
			return nil, err
		}
		modules = append(modules, module)
	}
	return modules, nil
}

// loadFile executes a single .star file and extracts its exports.
func (l *Loader) loadFile(path string) (*LoadedModule, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a glob over the scripts directory
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	namespace := strings.TrimSuffix(filepath.Base(path), ".star")
	if err := validateNamespace(namespace); err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	funcs, err := ParseScript(path, content)
	if err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	thread := &starlark.Thread{
		Name: fmt.Sprintf("load:%s", namespace),
		Print: func(_ *starlark.Thread, _ string) {
			// Ignore prints during loading
		},
	}
	globals, err := starlark.ExecFile(thread, path, content, nil) //nolint:staticcheck // SA1019: will migrate to ExecFileOptions later
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("Starlark execution error: %v", err)}
	}

	exports := make(starlark.StringDict)
	for name, value := range globals {
		if !strings.HasPrefix(name, "_") {
			exports[name] = value
		}
	}

	return &LoadedModule{
		Namespace: namespace,
		Path:      path,
		Exports:   exports,
		Functions: funcs,
	}, nil
}

// validateNamespace checks that a namespace is a valid identifier, so
// that every loaded function is reachable from formula syntax.
func validateNamespace(name string) error {
	if name == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	for i, r := range name {
		if i == 0 {
			if !isLetter(r) && r != '_' {
				return fmt.Errorf("namespace must start with letter or underscore: %s", name)
			}
		} else {
			if !isLetter(r) && !isDigit(r) && r != '_' {
				return fmt.Errorf("namespace contains invalid character: %s", name)
			}
		}
	}
	return nil
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// LoadError is an error loading one script file.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("scripts/%s: %s", filepath.Base(e.File), e.Message)
}
