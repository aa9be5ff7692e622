// Package commands implements the leapgrid CLI commands.
package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgrid/internal/cli/config"
	"github.com/leapstack-labs/leapgrid/internal/cli/output"
	"github.com/leapstack-labs/leapgrid/internal/engine"
	"github.com/leapstack-labs/leapgrid/internal/state"
	"github.com/leapstack-labs/leapgrid/internal/udf"
	"github.com/leapstack-labs/leapgrid/pkg/formula"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Store    *state.Store
	Engine   *engine.Engine
	UDFs     *udf.Registry
	Renderer *output.Renderer
}

// NewCommandContext opens the configured store, applies migrations,
// loads UDF scripts, and builds the formula engine. Returns the
// context and a cleanup function that must be called (typically via
// defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}

	udfs, funcs, err := loadScripts(cfg)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	eng, err := engine.New(engine.Config{
		Store:  st,
		Funcs:  funcs,
		Logger: logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	cleanup := func() {
		_ = st.Close()
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Store:    st,
		Engine:   eng,
		UDFs:     udfs,
		Renderer: newRenderer(cmd, cfg),
	}, cleanup, nil
}

// NewCommandContextWithoutStore creates a CommandContext without
// storage. Useful for commands that evaluate formulas against
// literals only.
func NewCommandContextWithoutStore(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: newRenderer(cmd, cfg),
	}
}

// Helper functions shared across commands

func newRenderer(cmd *cobra.Command, cfg *config.Config) *output.Renderer {
	mode := output.Mode(cfg.OutputFormat)
	return output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)
}

// getConfig returns the current configuration. It uses
// config.GetCurrentConfig() if available, otherwise falls back to
// environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	port := config.DefaultPort
	if v := os.Getenv("LEAPGRID_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}

	return &config.Config{
		DataPath:     getEnvOrDefault("LEAPGRID_DATA_PATH", config.DefaultDataPath),
		ScriptsDir:   getEnvOrDefault("LEAPGRID_SCRIPTS_DIR", config.DefaultScriptsDir),
		Port:         port,
		Watch:        os.Getenv("LEAPGRID_WATCH") == "true",
		Verbose:      os.Getenv("LEAPGRID_VERBOSE") == "true",
		OutputFormat: getEnvOrDefault("LEAPGRID_OUTPUT", config.DefaultOutput),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// openStore opens the configured store and applies pending
// migrations.
func openStore(ctx context.Context, cfg *config.Config) (*state.Store, error) {
	st, err := openStoreRaw(cfg)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// openStoreRaw opens the store without touching the schema. The
// migrate commands drive migrations themselves.
func openStoreRaw(cfg *config.Config) (*state.Store, error) {
	if dir := dataDir(cfg.DataPath); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, err
		}
	}

	st := state.NewStore()
	if err := st.Open(cfg.DataPath); err != nil {
		return nil, err
	}
	return st, nil
}

// dataDir returns the directory to create for a file-backed store.
// DSNs and the in-memory store need none.
func dataDir(path string) string {
	if path == ":memory:" || strings.Contains(path, "://") {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return ""
	}
	return dir
}

// loadScripts loads UDF modules from the scripts directory and wraps
// them in a function registry. A missing directory yields an empty
// registry, so the engine runs with builtins only.
func loadScripts(cfg *config.Config) (*udf.Registry, *formula.Registry, error) {
	udfs, err := udf.LoadAndRegister(cfg.ScriptsDir)
	if err != nil {
		return nil, nil, err
	}
	return udfs, formula.NewRegistry(udfs), nil
}
