// Package config loads CLI configuration from file, environment
// variables, and flags, and carries the logger through command
// contexts.
package config

import "fmt"

// Config holds all CLI configuration options.
type Config struct {
	// DataPath is the storage location: a SQLite file path, ":memory:",
	// or a postgres:// DSN.
	DataPath string `koanf:"data_path"`

	// ScriptsDir holds Starlark UDF modules. A missing directory is
	// fine; the formula engine runs with builtins only.
	ScriptsDir string `koanf:"scripts_dir"`

	// Port is the HTTP API port for the serve command.
	Port int `koanf:"port"`

	// Watch reloads UDF scripts when files under ScriptsDir change.
	Watch bool `koanf:"watch"`

	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`

	// ProjectRoot is the directory the config file was found in, or
	// the working directory. Relative paths resolve against it.
	ProjectRoot string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultDataPath   = ".leapgrid/grid.db"
	DefaultScriptsDir = "scripts"
	DefaultPort       = 8787
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DataPath == "" {
		return fmt.Errorf("data_path is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range (1-65535)", c.Port)
	}
	switch c.OutputFormat {
	case "", "auto", "text", "markdown", "json":
	default:
		return fmt.Errorf("unknown output mode %q (valid: auto, text, markdown, json)", c.OutputFormat)
	}
	return nil
}
