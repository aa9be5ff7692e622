package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store the logger in context. Shared between
// the cli and commands packages via LoggerKey().
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search
// for a config file.
const maxUpwardSearchLevels = 10

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

var configFileNames = []string{"leapgrid.yaml", "leapgrid.yml"}

// configFileIn returns the config file path in dir, if one exists.
func configFileIn(dir string) string {
	for _, name := range configFileNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findConfigFile finds the config file to use. An explicit path wins;
// otherwise the working directory and its ancestors are searched.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if found := configFileIn(dir); found != "" {
			return found
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and
// flags. Precedence (highest to lowest): flags > env vars > config
// file > defaults.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	// Paths given as flags are relative to the working directory, not
	// the project root. Pin them before root-relative resolution.
	var flagData, flagScripts string
	if flags != nil {
		if flags.Changed("data") {
			if v, _ := flags.GetString("data"); v != "" {
				if isFilePath(v) {
					flagData, _ = filepath.Abs(v)
				} else {
					flagData = v
				}
			}
		}
		if flags.Changed("scripts-dir") {
			if v, _ := flags.GetString("scripts-dir"); v != "" {
				flagScripts, _ = filepath.Abs(v)
			}
		}
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"data_path":   DefaultDataPath,
		"scripts_dir": DefaultScriptsDir,
		"port":        DefaultPort,
		"watch":       false,
		"verbose":     false,
		"output":      DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	configFileUsed = findConfigFile(cfgFile)
	projectRoot := ""
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
		if abs, err := filepath.Abs(configFileUsed); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	}
	if projectRoot == "" {
		cwd, _ := os.Getwd()
		if cwd == "" {
			cwd = "."
		}
		projectRoot = cwd
	}

	// 3. Load environment variables (LEAPGRID_ prefix)
	// Transform: LEAPGRID_SCRIPTS_DIR -> scripts_dir
	if err := k.Load(env.Provider("LEAPGRID_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "LEAPGRID_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			// Transform kebab-case to snake_case for config keys
			key := strings.ReplaceAll(f.Name, "-", "_")

			// The CLI uses --data for brevity; the config key is
			// data_path.
			if key == "data" {
				return "data_path", posflag.FlagVal(flags, f)
			}

			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Expand env vars and resolve relative paths against the
	// project root. DSNs and :memory: pass through untouched.
	cfg.ProjectRoot = projectRoot
	cfg.DataPath = expandEnvVars(cfg.DataPath)
	cfg.ScriptsDir = expandEnvVars(cfg.ScriptsDir)

	switch {
	case flagData != "":
		cfg.DataPath = flagData
	case isFilePath(cfg.DataPath):
		cfg.DataPath = resolvePathRelativeTo(cfg.DataPath, projectRoot)
	}
	if flagScripts != "" {
		cfg.ScriptsDir = flagScripts
	} else {
		cfg.ScriptsDir = resolvePathRelativeTo(cfg.ScriptsDir, projectRoot)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

// isFilePath reports whether a data path is a filesystem path rather
// than a DSN or the in-memory store.
func isFilePath(s string) bool {
	if s == ":memory:" {
		return false
	}
	return !strings.Contains(s, "://")
}

// resolvePathRelativeTo resolves a path relative to baseDir if it is
// not absolute. Empty and absolute paths pass through.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration. It is
// available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger. It
// lets the commands package retrieve the logger from context without
// importing the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns with environment variable
// values. Unset variables are left as-is.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}
