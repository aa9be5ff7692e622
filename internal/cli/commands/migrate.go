package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgrid/internal/cli/output"
)

// NewMigrateCommand creates the migrate command group.
func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the storage schema",
		Long: `Apply or inspect schema migrations for the configured store.

Migrations are embedded in the binary; up applies everything pending
for the active dialect (SQLite or PostgreSQL).`,
	}

	cmd.AddCommand(newMigrateUpCommand())
	cmd.AddCommand(newMigrateStatusCommand())

	return cmd
}

func newMigrateUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig()
			r := newRenderer(cmd, cfg)

			st, err := openStoreRaw(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if err := st.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			version, err := st.MigrationVersion(cmd.Context())
			if err != nil {
				return err
			}

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(output.MigrateOutput{Path: cfg.DataPath, Version: version})
			}
			r.Success(fmt.Sprintf("Schema is at version %d", version))
			return nil
		},
	}
}

func newMigrateStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig()
			r := newRenderer(cmd, cfg)

			st, err := openStoreRaw(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			version, err := st.MigrationVersion(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}

			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(output.MigrateOutput{Path: cfg.DataPath, Version: version})
			case output.ModeMarkdown:
				r.Println(output.FormatKeyValue("Store", cfg.DataPath))
				r.Println(output.FormatKeyValue("Schema version", strconv.FormatInt(version, 10)))
			default:
				styles := r.Styles()
				r.Printf("%s %s\n", styles.Bold.Render("Store:"), cfg.DataPath)
				r.Printf("%s %d\n", styles.Bold.Render("Schema version:"), version)
			}
			return nil
		},
	}
}
