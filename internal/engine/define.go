package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapgrid/internal/depgraph"
	"github.com/leapstack-labs/leapgrid/pkg/core"
	"github.com/leapstack-labs/leapgrid/pkg/formula"
)

// DefineComputedColumn installs or replaces a column's formula. The
// formula must parse, reference only existing columns by name, and keep
// the table's dependency graph acyclic; violations return a
// *core.DefinitionError and leave both the stored definition and the
// graph unchanged.
//
// Definition does not recompute existing rows. Callers follow up with
// Propagate seeded with the column itself, which is how the HTTP layer
// composes the two.
func (e *Engine) DefineComputedColumn(ctx context.Context, tableID, columnID, formulaText string) error {
	schema, err := e.loadSchema(ctx, tableID)
	if err != nil {
		return err
	}
	col := schema.byID[columnID]
	if col == nil {
		return fmt.Errorf("column %s: %w", columnID, core.ErrNotFound)
	}

	text := strings.TrimSpace(formulaText)
	if text == "" {
		return &core.DefinitionError{ColumnID: columnID, Message: "formula is empty"}
	}
	expr, perr := formula.Parse(text)
	if perr != nil {
		return &core.DefinitionError{ColumnID: columnID, Message: perr.Error()}
	}
	refIDs, derr := resolveRefs(schema, columnID, formula.ExtractRefs(expr))
	if derr != nil {
		return derr
	}

	edges := make([]core.DependencyEdge, 0, len(refIDs))
	for _, src := range refIDs {
		edges = append(edges, core.DependencyEdge{TableID: tableID, SourceID: src, DependentID: columnID})
	}

	err = e.graphs.Update(ctx, tableID, func(g *depgraph.Graph) error {
		ensureColumns(g, schema)
		if g.WouldCreateCycle(columnID, refIDs) {
			return &core.DefinitionError{ColumnID: columnID, Message: "formula would create a dependency cycle"}
		}
		if err := e.store.SetColumnFormula(ctx, columnID, text, edges); err != nil {
			return core.NewStorageError("persist column formula", err)
		}
		return g.AddOrReplaceFormula(columnID, refIDs)
	})
	if err != nil {
		return err
	}

	e.logger.Info("column formula defined", "table", tableID, "column", col.Name, "refs", len(refIDs))
	return nil
}

// RemoveComputedColumn converts a computed column back to a literal
// one. The formula and every dependency edge go away, per-cell
// overrides included; last computed values stay readable.
func (e *Engine) RemoveComputedColumn(ctx context.Context, tableID, columnID string) error {
	schema, err := e.loadSchema(ctx, tableID)
	if err != nil {
		return err
	}
	col := schema.byID[columnID]
	if col == nil {
		return fmt.Errorf("column %s: %w", columnID, core.ErrNotFound)
	}

	err = e.graphs.Update(ctx, tableID, func(g *depgraph.Graph) error {
		if err := e.store.ClearColumnFormula(ctx, columnID); err != nil {
			return core.NewStorageError("clear column formula", err)
		}
		ensureColumns(g, schema)
		g.RemoveFormula(columnID)
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("column formula removed", "table", tableID, "column", col.Name)
	return nil
}

// resolveRefs maps referenced column names to column IDs. References
// resolve against the owning table only; self-references are rejected
// here with a direct message instead of falling through to the generic
// cycle error.
func resolveRefs(schema *tableSchema, columnID string, names []string) ([]string, error) {
	refIDs := make([]string, 0, len(names))
	for _, name := range names {
		ref := schema.byName[name]
		if ref == nil {
			return nil, &core.DefinitionError{ColumnID: columnID, Message: fmt.Sprintf("unknown column %q", name)}
		}
		if ref.ID == columnID {
			return nil, &core.DefinitionError{ColumnID: columnID, Message: "formula references its own column"}
		}
		refIDs = append(refIDs, ref.ID)
	}
	return refIDs, nil
}
