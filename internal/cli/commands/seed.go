package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapgrid/internal/cli/output"
	"github.com/leapstack-labs/leapgrid/pkg/core"
)

// defaultSeedFile is used when no file argument is given.
const defaultSeedFile = "seed.yaml"

// seedFile is the on-disk shape of a seed file: one workspace with its
// tables, columns (literal or computed), and initial rows.
type seedFile struct {
	Workspace string      `yaml:"workspace"`
	Tables    []seedTable `yaml:"tables"`
}

type seedTable struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Columns     []seedColumn     `yaml:"columns"`
	Rows        []map[string]any `yaml:"rows"`
}

type seedColumn struct {
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"`
	Formula   string   `yaml:"formula"`
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
	MaxLength *int     `yaml:"max_length"`
	Pattern   string   `yaml:"pattern"`
	Options   []string `yaml:"options"`
}

// columnType applies the text default for columns that omit a type.
func (c seedColumn) columnType() core.ColumnType {
	if c.Type == "" {
		return core.ColumnTypeText
	}
	return core.ColumnType(c.Type)
}

// config collects the validation rules, or nil when none are set.
func (c seedColumn) config() *core.ColumnConfig {
	if c.Min == nil && c.Max == nil && c.MaxLength == nil && c.Pattern == "" && len(c.Options) == 0 {
		return nil
	}
	return &core.ColumnConfig{
		Min:       c.Min,
		Max:       c.Max,
		MaxLength: c.MaxLength,
		Pattern:   c.Pattern,
		Options:   c.Options,
	}
}

// NewSeedCommand creates the seed command.
func NewSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed [file]",
		Short: "Load a workspace from a YAML seed file",
		Long: `Load a workspace, its tables, columns, and rows from a YAML seed file.

Literal cell values are written through the same validation and
propagation path as the API, so computed columns are filled in as the
rows load. A minimal seed file looks like:

  workspace: demo
  tables:
    - name: orders
      columns:
        - name: qty
          type: number
        - name: price
          type: number
        - name: total
          type: number
          formula: "[qty] * [price]"
      rows:
        - {qty: 2, price: 9.5}

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # Load seed.yaml from the current directory
  leapgrid seed

  # Load a specific file
  leapgrid seed fixtures/demo.yaml

  # Load seeds as JSON
  leapgrid seed --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args)
		},
	}

	return cmd
}

func runSeed(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cc.Renderer
	effectiveMode := r.EffectiveMode()

	path := defaultSeedFile
	explicit := len(args) > 0
	if explicit {
		path = args[0]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			switch effectiveMode {
			case output.ModeJSON:
				return r.JSON(output.SeedOutput{Tables: []output.SeedTableInfo{}})
			case output.ModeMarkdown:
				r.Println(output.FormatHeader(1, "Seed"))
				r.Println("")
				r.Println("No seed file found at " + path)
			default:
				r.Header(1, "Seed")
				r.Muted("No seed file found at " + path)
			}
			return nil
		}
		return fmt.Errorf("read seed file: %w", err)
	}

	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if err := validateSeed(&sf); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var spinner *output.Spinner
	if effectiveMode == output.ModeText {
		spinner = r.NewSpinner("Loading " + path + "...")
		spinner.Start()
	}

	tables, summary, err := loadSeed(cmd.Context(), cc, &sf)
	if err != nil {
		if spinner != nil {
			spinner.Fail("Seed load failed")
		}
		return err
	}

	if spinner != nil {
		spinner.Success(fmt.Sprintf("Seeded workspace %q", sf.Workspace))
	}

	switch effectiveMode {
	case output.ModeJSON:
		return r.JSON(output.SeedOutput{
			Workspace: sf.Workspace,
			Tables:    tables,
			Summary:   summary,
		})
	case output.ModeMarkdown:
		return seedMarkdown(r, path, sf.Workspace, tables, summary)
	default:
		return seedText(r, path, sf.Workspace, tables, summary)
	}
}

// validateSeed checks the seed file shape before anything is written,
// so a bad file never leaves a half-created workspace behind. Literal
// values themselves are validated later by the write path.
func validateSeed(sf *seedFile) error {
	if strings.TrimSpace(sf.Workspace) == "" {
		return fmt.Errorf("workspace name is required")
	}

	for ti, t := range sf.Tables {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("table %d: name is required", ti+1)
		}
		if len(t.Columns) == 0 {
			return fmt.Errorf("table %q: at least one column is required", t.Name)
		}

		computed := make(map[string]bool, len(t.Columns))
		seen := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			if strings.TrimSpace(c.Name) == "" {
				return fmt.Errorf("table %q: column name is required", t.Name)
			}
			if seen[c.Name] {
				return fmt.Errorf("table %q: duplicate column %q", t.Name, c.Name)
			}
			seen[c.Name] = true
			if !c.columnType().Valid() {
				return fmt.Errorf("table %q: column %q: unknown type %q", t.Name, c.Name, c.Type)
			}
			if c.Formula != "" {
				computed[c.Name] = true
			}
		}

		for ri, row := range t.Rows {
			for name := range row {
				if !seen[name] {
					return fmt.Errorf("table %q: row %d references unknown column %q", t.Name, ri+1, name)
				}
				if computed[name] {
					return fmt.Errorf("table %q: row %d: column %q is computed and cannot be seeded directly", t.Name, ri+1, name)
				}
			}
		}
	}
	return nil
}

// loadSeed creates the workspace and streams every table through the
// store and the engine. Literal rows go through UpdateCells so computed
// columns are recalculated by the same propagation pass the API uses.
func loadSeed(ctx context.Context, cc *CommandContext, sf *seedFile) ([]output.SeedTableInfo, output.SeedSummary, error) {
	var (
		tables  []output.SeedTableInfo
		summary output.SeedSummary
	)

	ws, err := cc.Store.CreateWorkspace(ctx, sf.Workspace)
	if err != nil {
		return nil, summary, fmt.Errorf("create workspace %q: %w", sf.Workspace, err)
	}

	for _, t := range sf.Tables {
		tbl, err := cc.Store.CreateTable(ctx, ws.ID, t.Name, t.Description)
		if err != nil {
			return nil, summary, fmt.Errorf("create table %q: %w", t.Name, err)
		}

		// Two passes over the columns: create them all first, then
		// define formulas, so a formula may reference a column declared
		// later in the file.
		colIDs := make(map[string]string, len(t.Columns))
		for _, c := range t.Columns {
			col := &core.Column{
				TableID: tbl.ID,
				Name:    c.Name,
				Type:    c.columnType(),
				Config:  c.config(),
			}
			if err := cc.Store.CreateColumn(ctx, col); err != nil {
				return nil, summary, fmt.Errorf("table %q: create column %q: %w", t.Name, c.Name, err)
			}
			colIDs[c.Name] = col.ID
		}
		for _, c := range t.Columns {
			if c.Formula == "" {
				continue
			}
			if err := cc.Engine.DefineComputedColumn(ctx, tbl.ID, colIDs[c.Name], c.Formula); err != nil {
				return nil, summary, fmt.Errorf("table %q: column %q: %w", t.Name, c.Name, err)
			}
		}

		writes, labels, err := seedRows(ctx, cc, tbl.ID, t, colIDs)
		if err != nil {
			return nil, summary, err
		}

		cells := 0
		if len(writes) > 0 {
			res, err := cc.Engine.UpdateCells(ctx, tbl.ID, writes)
			if err != nil {
				return nil, summary, fmt.Errorf("table %q: write cells: %w", t.Name, err)
			}
			for i, o := range res.Outcomes {
				if o.Reject != nil {
					return nil, summary, fmt.Errorf("table %q: %s: %w", t.Name, labels[i], o.Reject)
				}
				cells++
			}
			if res.Propagation != nil {
				summary.Recalculated += res.Propagation.RecalculatedCells
			}
		}

		tables = append(tables, output.SeedTableInfo{
			Name:    t.Name,
			Columns: len(t.Columns),
			Rows:    len(t.Rows),
		})
		summary.Tables++
		summary.Columns += len(t.Columns)
		summary.Rows += len(t.Rows)
		summary.Cells += cells
	}

	return tables, summary, nil
}

// seedRows creates the table's rows and builds the literal write batch.
// Labels parallel the writes for error reporting.
func seedRows(ctx context.Context, cc *CommandContext, tableID string, t seedTable, colIDs map[string]string) ([]core.CellWrite, []string, error) {
	var (
		writes []core.CellWrite
		labels []string
	)
	for ri, rowValues := range t.Rows {
		row, err := cc.Store.CreateRow(ctx, tableID)
		if err != nil {
			return nil, nil, fmt.Errorf("table %q: create row %d: %w", t.Name, ri+1, err)
		}

		names := make([]string, 0, len(rowValues))
		for name := range rowValues {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			writes = append(writes, core.CellWrite{
				RowID:    row.ID,
				ColumnID: colIDs[name],
				RawValue: rowValues[name],
			})
			labels = append(labels, fmt.Sprintf("row %d, column %q", ri+1, name))
		}
	}
	return writes, labels, nil
}

// seedText outputs seed results in styled text format.
func seedText(r *output.Renderer, path, workspace string, tables []output.SeedTableInfo, summary output.SeedSummary) error {
	r.Println("")
	r.Header(2, "Seeded Tables")

	for _, t := range tables {
		r.StatusLine(t.Name, "created", fmt.Sprintf("%d columns, %d rows", t.Columns, t.Rows))
	}

	r.Println("")
	r.Muted("Workspace: " + workspace)
	r.Muted("Source: " + path)
	if summary.Recalculated > 0 {
		r.Muted(fmt.Sprintf("Recalculated %d computed cell(s)", summary.Recalculated))
	}
	return nil
}

// seedMarkdown outputs seed results in markdown format.
func seedMarkdown(r *output.Renderer, path, workspace string, tables []output.SeedTableInfo, summary output.SeedSummary) error {
	r.Println(output.FormatHeader(1, "Seed Loaded"))
	r.Println("")
	r.Println(output.FormatKeyValue("Workspace", workspace))
	r.Println(output.FormatKeyValue("Source", path))
	r.Println("")

	for _, t := range tables {
		r.Printf("- **%s**: %d columns, %d rows\n", t.Name, t.Columns, t.Rows)
	}

	r.Println("")
	r.Printf("**Cells written:** %d\n", summary.Cells)
	r.Printf("**Cells recalculated:** %d\n", summary.Recalculated)
	return nil
}
