package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/leapstack-labs/leapgrid/internal/depgraph"
	"github.com/leapstack-labs/leapgrid/pkg/core"
	"github.com/leapstack-labs/leapgrid/pkg/formula"
	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// WriteOutcome is the per-write result of UpdateCells. Accepted writes
// carry the persisted value, which may itself be an error-kind value
// when a formula evaluated to one. Rejected writes carry the rejection
// (*core.ValidationError or *core.DefinitionError) and persisted
// nothing.
type WriteOutcome struct {
	RowID    string
	ColumnID string
	Value    value.Value
	Reject   error
}

// CellUpdateResult aggregates a write batch and the propagation pass it
// triggered. AffectedCells is duplicate-free and covers both the cells
// written directly and the cells recalculated downstream.
type CellUpdateResult struct {
	Outcomes      []WriteOutcome
	AffectedCells []core.CellRef
	Propagation   *PropagationResult
}

type writeAction int

const (
	actionLiteral writeAction = iota
	actionOverride
	actionRevert
)

// preparedWrite holds one write that passed validation and is ready to
// execute.
type preparedWrite struct {
	index  int
	column *core.Column
	action writeAction

	literal value.Value // actionLiteral

	text   string       // actionOverride: formula source
	expr   formula.Expr // actionOverride
	refIDs []string     // actionOverride
}

// UpdateCells applies a batch of cell writes to one table using a
// two-phase approach: validate and prepare every write first, then
// execute the survivors and run a single propagation pass seeded with
// every written column.
//
// Rejections are per-write outcomes and never abort siblings. Formula
// writes evaluate against the pre-batch row snapshot, so batch
// semantics are order-independent: writes in one batch never see each
// other's results directly, and chaining between columns lands in the
// propagation pass. The Go error return is reserved for storage
// failures, which abort the batch without rolling back cells already
// written.
func (e *Engine) UpdateCells(ctx context.Context, tableID string, writes []core.CellWrite) (*CellUpdateResult, error) {
	e.logger.Debug("updating cells", "table", tableID, "writes", len(writes))

	schema, err := e.loadSchema(ctx, tableID)
	if err != nil {
		return nil, err
	}
	graph, err := e.graphs.Snapshot(ctx, tableID)
	if err != nil {
		return nil, core.NewStorageError("load dependency graph", err)
	}
	ensureColumns(graph, schema)

	result := &CellUpdateResult{Outcomes: make([]WriteOutcome, len(writes))}

	// Pre-batch row snapshots, one read per distinct row. Every formula
	// in the batch evaluates against this same state.
	liveRows := make(map[string]bool)
	snapshots := make(map[string]map[string]*core.Cell)
	for _, w := range writes {
		if _, seen := liveRows[w.RowID]; seen {
			continue
		}
		liveRows[w.RowID] = false
		row, err := e.store.GetRow(ctx, w.RowID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			return nil, core.NewStorageError("read row", err)
		}
		if row.TableID != tableID || row.DeletedAt != nil {
			continue
		}
		cells, err := e.store.GetRowCells(ctx, w.RowID)
		if err != nil {
			return nil, core.NewStorageError("read row cells", err)
		}
		liveRows[w.RowID] = true
		snapshots[w.RowID] = cells
	}

	// Phase 1: validate and prepare all writes.
	prepared := make([]*preparedWrite, 0, len(writes))
	for i, w := range writes {
		result.Outcomes[i] = WriteOutcome{RowID: w.RowID, ColumnID: w.ColumnID, Value: value.Null()}
		reject := func(err error) {
			result.Outcomes[i].Reject = err
		}

		col := schema.byID[w.ColumnID]
		if col == nil {
			reject(&core.ValidationError{RowID: w.RowID, ColumnID: w.ColumnID, Message: "unknown column"})
			continue
		}
		if !liveRows[w.RowID] {
			reject(&core.ValidationError{RowID: w.RowID, ColumnID: w.ColumnID, Message: "unknown row"})
			continue
		}

		p := &preparedWrite{index: i, column: col}
		if col.IsComputed() {
			if w.Formula == nil {
				reject(&core.ValidationError{RowID: w.RowID, ColumnID: w.ColumnID, Message: "computed column accepts only formula writes"})
				continue
			}
			text := strings.TrimSpace(*w.Formula)
			if text == col.Formula {
				// Writing the column's own formula reverts the cell to it.
				p.action = actionRevert
			} else {
				expr, perr := formula.Parse(text)
				if perr != nil {
					reject(&core.DefinitionError{ColumnID: col.ID, Message: perr.Error()})
					continue
				}
				refIDs, derr := resolveRefs(schema, col.ID, formula.ExtractRefs(expr))
				if derr != nil {
					reject(derr)
					continue
				}
				if graph.WouldCreateCycle(col.ID, refIDs) {
					reject(&core.DefinitionError{ColumnID: col.ID, Message: "formula would create a dependency cycle"})
					continue
				}
				p.action = actionOverride
				p.text = text
				p.expr = expr
				p.refIDs = refIDs
			}
		} else {
			if w.Formula != nil {
				reject(&core.ValidationError{RowID: w.RowID, ColumnID: w.ColumnID, Message: "literal column does not accept formulas"})
				continue
			}
			v, verr := core.ParseLiteral(w.RawValue, col.Type, col.Config)
			if verr != nil {
				reject(&core.ValidationError{RowID: w.RowID, ColumnID: w.ColumnID, Message: verr.Error()})
				continue
			}
			p.action = actionLiteral
			p.literal = v
		}
		prepared = append(prepared, p)
	}

	// Phase 2: execute the prepared writes and collect propagation seeds.
	seeds := make(map[string]map[string]struct{})
	for _, p := range prepared {
		w := writes[p.index]
		view := &rowView{schema: schema, cells: snapshots[w.RowID]}

		var cell *core.Cell
		switch p.action {
		case actionLiteral:
			cell = &core.Cell{RowID: w.RowID, ColumnID: p.column.ID, Value: p.literal, State: core.CellStateValid}

		case actionOverride:
			// Persist the override formula with its edges, then record
			// the graph change, all under the registry's write lock. The
			// lock-time cycle check can still fail if a definition raced
			// in after the snapshot above.
			err := e.graphs.Update(ctx, tableID, func(g *depgraph.Graph) error {
				ensureColumns(g, schema)
				if g.WouldCreateCycle(p.column.ID, p.refIDs) {
					return &core.DefinitionError{ColumnID: p.column.ID, Message: "formula would create a dependency cycle"}
				}
				edges := make([]core.DependencyEdge, 0, len(p.refIDs))
				for _, src := range p.refIDs {
					edges = append(edges, core.DependencyEdge{TableID: tableID, SourceID: src, DependentID: p.column.ID, RowID: w.RowID})
				}
				if err := e.store.SetCellOverride(ctx, w.RowID, p.column.ID, p.text, edges); err != nil {
					return core.NewStorageError("persist cell override", err)
				}
				return g.SetOverride(p.column.ID, w.RowID, p.refIDs)
			})
			if err != nil {
				var defErr *core.DefinitionError
				if errors.As(err, &defErr) {
					result.Outcomes[p.index].Reject = defErr
					continue
				}
				return nil, err
			}
			cell = outcomeCell(w.RowID, p.column, e.eval.Eval(p.expr, view), p.text)

		case actionRevert:
			err := e.graphs.Update(ctx, tableID, func(g *depgraph.Graph) error {
				if err := e.store.ClearCellOverride(ctx, w.RowID, p.column.ID); err != nil {
					return core.NewStorageError("clear cell override", err)
				}
				g.ClearOverride(p.column.ID, w.RowID)
				return nil
			})
			if err != nil {
				return nil, err
			}
			cell = outcomeCell(w.RowID, p.column, e.evalColumnFormula(p.column, view), "")
		}

		if err := e.store.UpsertCell(ctx, cell); err != nil {
			return nil, core.NewStorageError("write cell", err)
		}
		result.Outcomes[p.index].Value = cell.Value

		if seeds[p.column.ID] == nil {
			seeds[p.column.ID] = make(map[string]struct{})
		}
		seeds[p.column.ID][w.RowID] = struct{}{}
	}

	// One propagation pass for the whole batch, seeded with every
	// successfully written column.
	prop, err := e.propagate(ctx, tableID, seeds)
	if err != nil {
		return nil, err
	}
	result.Propagation = prop

	seen := make(map[core.CellRef]bool)
	addRef := func(ref core.CellRef) {
		if !seen[ref] {
			seen[ref] = true
			result.AffectedCells = append(result.AffectedCells, ref)
		}
	}
	for _, o := range result.Outcomes {
		if o.Reject == nil {
			addRef(core.CellRef{RowID: o.RowID, ColumnID: o.ColumnID})
		}
	}
	for _, ref := range prop.Cells {
		addRef(ref)
	}

	accepted := 0
	for _, o := range result.Outcomes {
		if o.Reject == nil {
			accepted++
		}
	}
	e.logger.Info("cell batch complete",
		"table", tableID,
		"accepted", accepted,
		"rejected", len(writes)-accepted,
		"recalculated", prop.RecalculatedCells)
	return result, nil
}
