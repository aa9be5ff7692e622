package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/leapstack-labs/leapgrid/internal/state"
	"github.com/leapstack-labs/leapgrid/pkg/core"
	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// testGrid wires a store and engine over in-memory SQLite around one
// table, with columns and rows addressable by name and index.
type testGrid struct {
	store   *state.Store
	engine  *Engine
	table   *core.Table
	columns map[string]*core.Column
	rows    []*core.Row
}

func setupTestGrid(t *testing.T, columns []*core.Column, rowCount int) *testGrid {
	t.Helper()
	ctx := context.Background()

	store := state.NewStore()
	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	ws, err := store.CreateWorkspace(ctx, "test")
	if err != nil {
		t.Fatalf("failed to create workspace: %v", err)
	}
	table, err := store.CreateTable(ctx, ws.ID, "grid", "")
	if err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	g := &testGrid{store: store, table: table, columns: make(map[string]*core.Column)}
	for _, col := range columns {
		col.TableID = table.ID
		if err := store.CreateColumn(ctx, col); err != nil {
			t.Fatalf("failed to create column %s: %v", col.Name, err)
		}
		g.columns[col.Name] = col
	}
	for i := 0; i < rowCount; i++ {
		row, err := store.CreateRow(ctx, table.ID)
		if err != nil {
			t.Fatalf("failed to create row: %v", err)
		}
		g.rows = append(g.rows, row)
	}

	eng, err := New(Config{Store: store})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	g.engine = eng
	return g
}

func numberColumns(names ...string) []*core.Column {
	cols := make([]*core.Column, 0, len(names))
	for _, name := range names {
		cols = append(cols, &core.Column{Name: name, Type: core.ColumnTypeNumber})
	}
	return cols
}

func strptr(s string) *string { return &s }

// define installs a column formula, failing the test on rejection.
func (g *testGrid) define(t *testing.T, column, formulaText string) {
	t.Helper()
	err := g.engine.DefineComputedColumn(context.Background(), g.table.ID, g.columns[column].ID, formulaText)
	if err != nil {
		t.Fatalf("failed to define %s = %s: %v", column, formulaText, err)
	}
	// Column metadata is cached per test; keep it in sync with storage.
	g.columns[column].Formula = formulaText
}

// write applies one literal write and its propagation, failing the test
// on rejection.
func (g *testGrid) write(t *testing.T, row int, column string, raw any) *CellUpdateResult {
	t.Helper()
	res, err := g.engine.UpdateCells(context.Background(), g.table.ID, []core.CellWrite{
		{RowID: g.rows[row].ID, ColumnID: g.columns[column].ID, RawValue: raw},
	})
	if err != nil {
		t.Fatalf("UpdateCells failed: %v", err)
	}
	if rej := res.Outcomes[0].Reject; rej != nil {
		t.Fatalf("write to %s rejected: %v", column, rej)
	}
	return res
}

// cell reads the stored cell, nil when never written.
func (g *testGrid) cell(t *testing.T, row int, column string) *core.Cell {
	t.Helper()
	cell, err := g.store.GetCell(context.Background(), g.rows[row].ID, g.columns[column].ID)
	if err != nil {
		t.Fatalf("GetCell(%s) failed: %v", column, err)
	}
	return cell
}

// number reads a stored cell value that must be a valid number.
func (g *testGrid) number(t *testing.T, row int, column string) float64 {
	t.Helper()
	cell := g.cell(t, row, column)
	if cell == nil {
		t.Fatalf("cell %s has never been written", column)
	}
	if cell.State != core.CellStateValid {
		t.Fatalf("cell %s state = %s, value = %v", column, cell.State, cell.Value)
	}
	n, ok := value.ToNumber(cell.Value)
	if !ok {
		t.Fatalf("cell %s holds %v, not a number", column, cell.Value)
	}
	return n
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing store")
	}
}

func TestUpdateCells_LiteralWrite(t *testing.T) {
	g := setupTestGrid(t, numberColumns("a", "b"), 1)

	res := g.write(t, 0, "a", 5.0)

	if got := g.number(t, 0, "a"); got != 5 {
		t.Errorf("a = %v, want 5", got)
	}
	if v := g.cell(t, 0, "a").CalcVersion; v != 1 {
		t.Errorf("calc version = %d, want 1", v)
	}
	if len(res.AffectedCells) != 1 {
		t.Errorf("affected cells = %v, want the written cell only", res.AffectedCells)
	}
	if !res.Outcomes[0].Value.Equal(value.Number(5)) {
		t.Errorf("outcome value = %v, want 5", res.Outcomes[0].Value)
	}
}

func TestUpdateCells_LiteralValidation(t *testing.T) {
	g := setupTestGrid(t, numberColumns("a", "b"), 1)
	g.write(t, 0, "a", 1.0)

	// A bad literal is a per-write outcome: the sibling write proceeds,
	// nothing is persisted for the rejected one.
	res, err := g.engine.UpdateCells(context.Background(), g.table.ID, []core.CellWrite{
		{RowID: g.rows[0].ID, ColumnID: g.columns["a"].ID, RawValue: "oops"},
		{RowID: g.rows[0].ID, ColumnID: g.columns["b"].ID, RawValue: 2.0},
	})
	if err != nil {
		t.Fatalf("UpdateCells failed: %v", err)
	}

	var verr *core.ValidationError
	if !errors.As(res.Outcomes[0].Reject, &verr) {
		t.Fatalf("expected ValidationError, got %v", res.Outcomes[0].Reject)
	}
	if res.Outcomes[1].Reject != nil {
		t.Errorf("sibling write rejected: %v", res.Outcomes[1].Reject)
	}

	// The rejected write left the cell and its version untouched
	cell := g.cell(t, 0, "a")
	if !cell.Value.Equal(value.Number(1)) {
		t.Errorf("a = %v, want 1", cell.Value)
	}
	if cell.CalcVersion != 1 {
		t.Errorf("calc version = %d, want 1", cell.CalcVersion)
	}
}

func TestUpdateCells_ComputedRejectsRawValue(t *testing.T) {
	g := setupTestGrid(t, numberColumns("a", "b"), 1)
	g.define(t, "b", "[a] * 2")

	res, err := g.engine.UpdateCells(context.Background(), g.table.ID, []core.CellWrite{
		{RowID: g.rows[0].ID, ColumnID: g.columns["b"].ID, RawValue: 7.0},
	})
	if err != nil {
		t.Fatalf("UpdateCells failed: %v", err)
	}
	var verr *core.ValidationError
	if !errors.As(res.Outcomes[0].Reject, &verr) {
		t.Fatalf("expected ValidationError, got %v", res.Outcomes[0].Reject)
	}
	if g.cell(t, 0, "b") != nil {
		t.Error("rejected write must not create a cell")
	}
}

func TestUpdateCells_LiteralRejectsFormula(t *testing.T) {
	g := setupTestGrid(t, numberColumns("a"), 1)

	res, err := g.engine.UpdateCells(context.Background(), g.table.ID, []core.CellWrite{
		{RowID: g.rows[0].ID, ColumnID: g.columns["a"].ID, Formula: strptr("1 + 1")},
	})
	if err != nil {
		t.Fatalf("UpdateCells failed: %v", err)
	}
	var verr *core.ValidationError
	if !errors.As(res.Outcomes[0].Reject, &verr) {
		t.Fatalf("expected ValidationError, got %v", res.Outcomes[0].Reject)
	}
}

func TestUpdateCells_UnknownTargets(t *testing.T) {
	g := setupTestGrid(t, numberColumns("a"), 1)

	res, err := g.engine.UpdateCells(context.Background(), g.table.ID, []core.CellWrite{
		{RowID: g.rows[0].ID, ColumnID: "nope", RawValue: 1.0},
		{RowID: "nope", ColumnID: g.columns["a"].ID, RawValue: 1.0},
	})
	if err != nil {
		t.Fatalf("UpdateCells failed: %v", err)
	}
	for i, o := range res.Outcomes {
		var verr *core.ValidationError
		if !errors.As(o.Reject, &verr) {
			t.Errorf("outcome %d: expected ValidationError, got %v", i, o.Reject)
		}
	}
	if len(res.AffectedCells) != 0 {
		t.Errorf("affected cells = %v, want none", res.AffectedCells)
	}
}

func TestUpdateCells_DeletedRowRejected(t *testing.T) {
	g := setupTestGrid(t, numberColumns("a"), 2)
	if err := g.store.DeleteRow(context.Background(), g.rows[0].ID); err != nil {
		t.Fatalf("failed to delete row: %v", err)
	}

	res, err := g.engine.UpdateCells(context.Background(), g.table.ID, []core.CellWrite{
		{RowID: g.rows[0].ID, ColumnID: g.columns["a"].ID, RawValue: 1.0},
	})
	if err != nil {
		t.Fatalf("UpdateCells failed: %v", err)
	}
	var verr *core.ValidationError
	if !errors.As(res.Outcomes[0].Reject, &verr) {
		t.Fatalf("expected ValidationError for deleted row, got %v", res.Outcomes[0].Reject)
	}
}

func TestUpdateCells_Override(t *testing.T) {
	g := setupTestGrid(t, numberColumns("a", "b"), 1)
	g.define(t, "b", "[a] * 2")
	g.write(t, 0, "a", 3.0)

	if got := g.number(t, 0, "b"); got != 6 {
		t.Fatalf("b = %v, want 6", got)
	}

	// A different formula becomes a per-cell override
	res, err := g.engine.UpdateCells(context.Background(), g.table.ID, []core.CellWrite{
		{RowID: g.rows[0].ID, ColumnID: g.columns["b"].ID, Formula: strptr("[a] * 10")},
	})
	if err != nil {
		t.Fatalf("UpdateCells failed: %v", err)
	}
	if res.Outcomes[0].Reject != nil {
		t.Fatalf("override rejected: %v", res.Outcomes[0].Reject)
	}
	cell := g.cell(t, 0, "b")
	if cell.Formula != "[a] * 10" {
		t.Errorf("override formula = %q", cell.Formula)
	}
	if got := g.number(t, 0, "b"); got != 30 {
		t.Errorf("b = %v, want 30", got)
	}

	// The override survives upstream propagation
	g.write(t, 0, "a", 4.0)
	if got := g.number(t, 0, "b"); got != 40 {
		t.Errorf("b = %v, want 40", got)
	}

	// Writing the column's own formula reverts the override
	res, err = g.engine.UpdateCells(context.Background(), g.table.ID, []core.CellWrite{
		{RowID: g.rows[0].ID, ColumnID: g.columns["b"].ID, Formula: strptr("[a] * 2")},
	})
	if err != nil {
		t.Fatalf("UpdateCells failed: %v", err)
	}
	if res.Outcomes[0].Reject != nil {
		t.Fatalf("revert rejected: %v", res.Outcomes[0].Reject)
	}
	cell = g.cell(t, 0, "b")
	if cell.Formula != "" {
		t.Errorf("override formula should be cleared, got %q", cell.Formula)
	}
	if got := g.number(t, 0, "b"); got != 8 {
		t.Errorf("b = %v, want 8", got)
	}
}

func TestUpdateCells_OverrideCycleRejected(t *testing.T) {
	g := setupTestGrid(t, numberColumns("a", "b", "c"), 1)
	g.define(t, "b", "[a] * 2")
	g.define(t, "c", "[b]")

	// An override on b referencing c would close b -> c -> b
	res, err := g.engine.UpdateCells(context.Background(), g.table.ID, []core.CellWrite{
		{RowID: g.rows[0].ID, ColumnID: g.columns["b"].ID, Formula: strptr("[c] + 1")},
	})
	if err != nil {
		t.Fatalf("UpdateCells failed: %v", err)
	}
	var derr *core.DefinitionError
	if !errors.As(res.Outcomes[0].Reject, &derr) {
		t.Fatalf("expected DefinitionError, got %v", res.Outcomes[0].Reject)
	}
	if g.cell(t, 0, "b") != nil {
		t.Error("rejected override must not create a cell")
	}
}

func TestUpdateCells_BatchSeesPreBatchSnapshot(t *testing.T) {
	g := setupTestGrid(t, numberColumns("a", "b"), 1)
	g.define(t, "b", "[a] * 2")
	g.write(t, 0, "a", 1.0)

	// Same batch: new literal for a, new override for b. The override's
	// immediate outcome sees the pre-batch a; the propagation pass then
	// recomputes it against the committed batch.
	res, err := g.engine.UpdateCells(context.Background(), g.table.ID, []core.CellWrite{
		{RowID: g.rows[0].ID, ColumnID: g.columns["a"].ID, RawValue: 5.0},
		{RowID: g.rows[0].ID, ColumnID: g.columns["b"].ID, Formula: strptr("[a] * 3")},
	})
	if err != nil {
		t.Fatalf("UpdateCells failed: %v", err)
	}
	if !res.Outcomes[1].Value.Equal(value.Number(3)) {
		t.Errorf("immediate outcome = %v, want 3 (pre-batch a)", res.Outcomes[1].Value)
	}
	if got := g.number(t, 0, "b"); got != 15 {
		t.Errorf("b after propagation = %v, want 15", got)
	}
}

func TestDefineComputedColumn_CycleRejected(t *testing.T) {
	g := setupTestGrid(t, numberColumns("x", "y"), 1)
	g.define(t, "x", "[y]")

	err := g.engine.DefineComputedColumn(context.Background(), g.table.ID, g.columns["y"].ID, "[x]")
	var derr *core.DefinitionError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DefinitionError, got %v", err)
	}

	// Only the first definition's edge remains
	edges, err := g.store.ListTableEdges(context.Background(), g.table.ID)
	if err != nil {
		t.Fatalf("failed to list edges: %v", err)
	}
	if len(edges) != 1 || edges[0].DependentID != g.columns["x"].ID {
		t.Errorf("edges = %v, want only y -> x", edges)
	}
	col, err := g.store.GetColumn(context.Background(), g.columns["y"].ID)
	if err != nil {
		t.Fatalf("failed to get column: %v", err)
	}
	if col.Formula != "" {
		t.Errorf("rejected definition persisted formula %q", col.Formula)
	}
}

func TestDefineComputedColumn_Errors(t *testing.T) {
	g := setupTestGrid(t, numberColumns("a", "b"), 1)

	tests := []struct {
		name    string
		formula string
	}{
		{"parse error", "1 +"},
		{"unknown reference", "[nope] * 2"},
		{"self reference", "[b] + 1"},
		{"empty", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.engine.DefineComputedColumn(context.Background(), g.table.ID, g.columns["b"].ID, tt.formula)
			var derr *core.DefinitionError
			if !errors.As(err, &derr) {
				t.Errorf("expected DefinitionError, got %v", err)
			}
		})
	}

	err := g.engine.DefineComputedColumn(context.Background(), g.table.ID, "nope", "[a]")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown column, got %v", err)
	}
}

func TestDefineComputedColumn_DoesNotRecalculate(t *testing.T) {
	g := setupTestGrid(t, numberColumns("a", "b"), 1)
	g.write(t, 0, "a", 5.0)
	g.define(t, "b", "[a] * 2")

	// Definition alone computes nothing; recalculation is an explicit
	// propagation seeded with the column.
	if g.cell(t, 0, "b") != nil {
		t.Fatal("definition must not write cells")
	}

	prop, err := g.engine.Propagate(context.Background(), g.table.ID, g.columns["b"].ID, []string{g.rows[0].ID})
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	if prop.RecalculatedCells != 1 {
		t.Errorf("recalculated = %d, want 1", prop.RecalculatedCells)
	}
	if got := g.number(t, 0, "b"); got != 10 {
		t.Errorf("b = %v, want 10", got)
	}
}

func TestRemoveComputedColumn(t *testing.T) {
	g := setupTestGrid(t, numberColumns("a", "b"), 1)
	g.define(t, "b", "[a] * 2")
	g.write(t, 0, "a", 4.0)

	if got := g.number(t, 0, "b"); got != 8 {
		t.Fatalf("b = %v, want 8", got)
	}

	if err := g.engine.RemoveComputedColumn(context.Background(), g.table.ID, g.columns["b"].ID); err != nil {
		t.Fatalf("RemoveComputedColumn failed: %v", err)
	}
	g.columns["b"].Formula = ""

	col, err := g.store.GetColumn(context.Background(), g.columns["b"].ID)
	if err != nil {
		t.Fatalf("failed to get column: %v", err)
	}
	if col.Formula != "" {
		t.Errorf("formula = %q, want cleared", col.Formula)
	}
	edges, err := g.store.ListTableEdges(context.Background(), g.table.ID)
	if err != nil {
		t.Fatalf("failed to list edges: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("edges = %v, want none", edges)
	}

	// The last computed value stays, and stops following a
	if got := g.number(t, 0, "b"); got != 8 {
		t.Errorf("b = %v, want 8", got)
	}
	g.write(t, 0, "a", 100.0)
	if got := g.number(t, 0, "b"); got != 8 {
		t.Errorf("b = %v, want 8 after upstream write", got)
	}
}

func TestEvalFormula(t *testing.T) {
	g := setupTestGrid(t, numberColumns("a"), 1)
	g.write(t, 0, "a", 2.0)
	ctx := context.Background()

	got, err := g.engine.EvalFormula(ctx, g.table.ID, g.rows[0].ID, "[a] + 1")
	if err != nil {
		t.Fatalf("EvalFormula failed: %v", err)
	}
	if !got.Equal(value.Number(3)) {
		t.Errorf("result = %v, want 3", got)
	}

	// Without a row every column reads as its zero value
	got, err = g.engine.EvalFormula(ctx, g.table.ID, "", "[a] + 1")
	if err != nil {
		t.Fatalf("EvalFormula failed: %v", err)
	}
	if !got.Equal(value.Number(1)) {
		t.Errorf("result = %v, want 1", got)
	}

	// Unknown references are evaluation outcomes, not Go errors
	got, err = g.engine.EvalFormula(ctx, g.table.ID, "", "[nope]")
	if err != nil {
		t.Fatalf("EvalFormula failed: %v", err)
	}
	if !got.IsError() || got.Err().Code != value.ErrCodeRef {
		t.Errorf("result = %v, want #REF", got)
	}

	if _, err := g.engine.EvalFormula(ctx, g.table.ID, "", "1 +"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := g.engine.EvalFormula(ctx, g.table.ID, "nope", "1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown row, got %v", err)
	}
}
