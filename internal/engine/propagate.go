package engine

import (
	"context"
	"sort"

	"github.com/leapstack-labs/leapgrid/pkg/core"
	"github.com/leapstack-labs/leapgrid/pkg/formula"
	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// CellError records one cell's recomputation failure during
// propagation. Failures never halt sibling cells or columns.
type CellError struct {
	RowID    string          `json:"row_id"`
	ColumnID string          `json:"column_id"`
	Code     value.ErrorCode `json:"code"`
	Message  string          `json:"message,omitempty"`
}

// PropagationResult reports one propagation run.
type PropagationResult struct {
	// AffectedColumns lists the recomputed columns in the order they
	// were processed.
	AffectedColumns   []string    `json:"affected_columns"`
	RecalculatedCells int         `json:"recalculated_cells"`
	Errors            []CellError `json:"errors,omitempty"`

	// Cells lists every recalculated cell. UpdateCells folds them into
	// its affected set.
	Cells []core.CellRef `json:"-"`
}

// Propagate recomputes everything downstream of one changed column for
// the given rows. It is the per-column surface the CRUD layer calls
// after row creation or column redefinition; batch writes go through
// UpdateCells, which seeds a single run with every written column
// instead of looping per column.
func (e *Engine) Propagate(ctx context.Context, tableID, changedColumnID string, rowIDs []string) (*PropagationResult, error) {
	rows := make(map[string]struct{}, len(rowIDs))
	for _, id := range rowIDs {
		rows[id] = struct{}{}
	}
	return e.propagate(ctx, tableID, map[string]map[string]struct{}{changedColumnID: rows})
}

// propagate runs one propagation pass. Seeds map changed columns to the
// rows that changed. The pass walks the dependency graph breadth-first
// from the seeds, carrying row sets along (a dependent recomputes for
// every row any of its sources changed in), topologically orders the
// affected computed columns, and recomputes each at most once against
// current committed values, including values recomputed earlier in the
// same pass. Seed columns themselves recompute only when computed, so
// seeding a literal write never evaluates anything for the literal
// column itself.
func (e *Engine) propagate(ctx context.Context, tableID string, seeds map[string]map[string]struct{}) (*PropagationResult, error) {
	result := &PropagationResult{}
	if len(seeds) == 0 {
		return result, nil
	}

	schema, err := e.loadSchema(ctx, tableID)
	if err != nil {
		return nil, err
	}
	graph, err := e.graphs.Snapshot(ctx, tableID)
	if err != nil {
		return nil, core.NewStorageError("load dependency graph", err)
	}
	ensureColumns(graph, schema)

	live, err := e.liveRowSet(ctx, tableID)
	if err != nil {
		return nil, err
	}

	// Accumulate per-column row sets to a fixpoint: rows(dep) grows by
	// rows(src) for every edge, and a column re-enters the worklist
	// whenever its set grew. Unknown seed columns and dead rows are
	// dropped up front.
	rowsByColumn := make(map[string]map[string]struct{})
	var queue []string
	for colID, rows := range seeds {
		if schema.byID[colID] == nil {
			continue
		}
		set := make(map[string]struct{}, len(rows))
		for rowID := range rows {
			if live[rowID] {
				set[rowID] = struct{}{}
			}
		}
		rowsByColumn[colID] = set
		queue = append(queue, colID)
	}
	for len(queue) > 0 {
		src := queue[0]
		queue = queue[1:]
		for _, dep := range graph.DependentsOf(src) {
			if unionRows(rowsByColumn, dep, rowsByColumn[src]) {
				queue = append(queue, dep)
			}
		}
	}

	// Only computed columns recompute. Literal seeds stay in the row-set
	// union so their dependents pick up the changed rows.
	var affected []string
	for colID := range rowsByColumn {
		if col := schema.byID[colID]; col != nil && col.IsComputed() && len(rowsByColumn[colID]) > 0 {
			affected = append(affected, colID)
		}
	}
	order, cyclic := graph.TopologicalOrder(affected)

	// Row caches carry same-run recomputes forward so downstream columns
	// see them without re-reading storage.
	rowCache := make(map[string]map[string]*core.Cell)
	loadRow := func(rowID string) (map[string]*core.Cell, error) {
		if cells, ok := rowCache[rowID]; ok {
			return cells, nil
		}
		cells, err := e.store.GetRowCells(ctx, rowID)
		if err != nil {
			return nil, core.NewStorageError("read row cells", err)
		}
		rowCache[rowID] = cells
		return cells, nil
	}

	recompute := func(colID string, evalCell func(col *core.Column, overrideText string, view *rowView) value.Value) error {
		col := schema.byID[colID]
		rowIDs := sortedRowIDs(rowsByColumn[colID])

		// Existing cells carry any per-cell override formulas, which take
		// precedence over the column formula for their rows.
		existing, err := e.store.GetColumnCells(ctx, colID, rowIDs)
		if err != nil {
			return core.NewStorageError("read column cells", err)
		}

		for _, rowID := range rowIDs {
			cells, err := loadRow(rowID)
			if err != nil {
				return err
			}

			overrideText := ""
			if c := existing[rowID]; c != nil {
				overrideText = c.Formula
			}
			out := evalCell(col, overrideText, &rowView{schema: schema, cells: cells})

			cell := outcomeCell(rowID, col, out, overrideText)
			if err := e.store.UpsertCell(ctx, cell); err != nil {
				return core.NewStorageError("write cell", err)
			}
			cells[colID] = cell

			result.RecalculatedCells++
			result.Cells = append(result.Cells, core.CellRef{RowID: rowID, ColumnID: colID})
			if cell.Value.IsError() {
				ev := cell.Value.Err()
				result.Errors = append(result.Errors, CellError{RowID: rowID, ColumnID: colID, Code: ev.Code, Message: ev.Message})
			}
		}
		result.AffectedColumns = append(result.AffectedColumns, colID)
		return nil
	}

	for _, colID := range order {
		err := recompute(colID, func(col *core.Column, overrideText string, view *rowView) value.Value {
			if overrideText != "" {
				expr, perr := formula.Parse(overrideText)
				if perr != nil {
					return value.Errorf(value.ErrCodeValue, "stored formula does not parse: %v", perr)
				}
				return e.eval.Eval(expr, view)
			}
			return e.evalColumnFormula(col, view)
		})
		if err != nil {
			return nil, err
		}
	}

	// Columns that could not be ordered sit on a dependency cycle that
	// raced past the definition-time check. Their cells are marked
	// rather than recomputed; everything already ordered above ran
	// normally.
	for _, colID := range cyclic {
		err := recompute(colID, func(col *core.Column, _ string, _ *rowView) value.Value {
			return value.Errorf(value.ErrCodeCycle, "column %q is part of a dependency cycle", col.Name)
		})
		if err != nil {
			return nil, err
		}
	}

	e.logger.Debug("propagation complete",
		"table", tableID,
		"columns", len(result.AffectedColumns),
		"cells", result.RecalculatedCells,
		"errors", len(result.Errors))
	return result, nil
}

// liveRowSet returns the IDs of the table's non-deleted rows.
func (e *Engine) liveRowSet(ctx context.Context, tableID string) (map[string]bool, error) {
	rows, err := e.store.ListRows(ctx, tableID)
	if err != nil {
		return nil, core.NewStorageError("list rows", err)
	}
	live := make(map[string]bool, len(rows))
	for _, r := range rows {
		live[r.ID] = true
	}
	return live, nil
}

// unionRows merges src into the row set of col, reporting growth.
func unionRows(rowsByColumn map[string]map[string]struct{}, col string, src map[string]struct{}) bool {
	dst, ok := rowsByColumn[col]
	if !ok {
		dst = make(map[string]struct{}, len(src))
		rowsByColumn[col] = dst
	}
	grew := false
	for rowID := range src {
		if _, ok := dst[rowID]; !ok {
			dst[rowID] = struct{}{}
			grew = true
		}
	}
	return grew
}

func sortedRowIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
