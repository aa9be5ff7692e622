package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgrid/internal/engine"
	"github.com/leapstack-labs/leapgrid/internal/state"
	"github.com/leapstack-labs/leapgrid/internal/testutil"
	"github.com/leapstack-labs/leapgrid/internal/udf"
	"github.com/leapstack-labs/leapgrid/pkg/core"
	"github.com/leapstack-labs/leapgrid/pkg/formula"
)

// apiFixture drives requests through the routed handler the way a
// client would, against an in-memory store seeded with one workspace
// and one table.
type apiFixture struct {
	t     *testing.T
	mux   http.Handler
	store *state.Store
	ws    *core.Workspace
	table *core.Table
}

func setupAPI(t *testing.T) *apiFixture {
	return setupAPIWithScripts(t, "")
}

func setupAPIWithScripts(t *testing.T, scriptsDir string) *apiFixture {
	t.Helper()
	ctx := context.Background()

	store := state.NewStore()
	require.NoError(t, store.Open(":memory:"))
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	ws, err := store.CreateWorkspace(ctx, "acme")
	require.NoError(t, err)
	table, err := store.CreateTable(ctx, ws.ID, "inventory", "")
	require.NoError(t, err)

	var udfs *udf.Registry
	var funcs *formula.Registry
	if scriptsDir != "" {
		var err error
		udfs, err = udf.LoadAndRegister(scriptsDir)
		require.NoError(t, err)
		funcs = formula.NewRegistry(udfs)
	}

	eng, err := engine.New(engine.Config{Store: store, Funcs: funcs, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)

	srv := New(Config{
		Store:  store,
		Engine: eng,
		UDFs:   udfs,
		Logger: testutil.NewTestLogger(t),
	})
	return &apiFixture{t: t, mux: srv.Handler(), store: store, ws: ws, table: table}
}

func (f *apiFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) doRaw(method, path, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) decode(rec *httptest.ResponseRecorder, dst any) {
	f.t.Helper()
	require.NoError(f.t, json.NewDecoder(rec.Body).Decode(dst))
}

func (f *apiFixture) createColumn(name, typ, formulaText string) *core.Column {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/tables/"+f.table.ID+"/columns", map[string]any{
		"name":    name,
		"type":    typ,
		"formula": formulaText,
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	var col core.Column
	f.decode(rec, &col)
	return &col
}

func (f *apiFixture) createRow() *core.Row {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/tables/"+f.table.ID+"/rows", nil)
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	var row core.Row
	f.decode(rec, &row)
	return &row
}

func (f *apiFixture) writeCells(writes ...map[string]any) wireCellsResult {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/tables/"+f.table.ID+"/cells", map[string]any{"writes": writes})
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())
	var body wireCellsResult
	f.decode(rec, &body)
	return body
}

func (f *apiFixture) snapshot(rowID string) wireSnapshot {
	f.t.Helper()
	rec := f.do(http.MethodGet, "/api/rows/"+rowID, nil)
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())
	var snap wireSnapshot
	f.decode(rec, &snap)
	return snap
}

func literal(rowID, columnID string, v any) map[string]any {
	return map[string]any{"row_id": rowID, "column_id": columnID, "value": v}
}

// Response mirrors with loose value typing. Cell values decode as
// whatever JSON scalar the server emitted.
type wireCell struct {
	RowID       string `json:"row_id"`
	ColumnID    string `json:"column_id"`
	Value       any    `json:"value"`
	State       string `json:"state"`
	Formula     string `json:"formula"`
	CalcVersion int64  `json:"calc_version"`
}

type wireSnapshot struct {
	Row   *core.Row           `json:"row"`
	Cells map[string]wireCell `json:"cells"`
}

type wireOutcome struct {
	RowID    string      `json:"row_id"`
	ColumnID string      `json:"column_id"`
	Value    any         `json:"value"`
	Rejected *rejectBody `json:"rejected"`
}

type wireCellsResult struct {
	Outcomes      []wireOutcome             `json:"outcomes"`
	AffectedCells []core.CellRef            `json:"affected_cells"`
	Propagation   *engine.PropagationResult `json:"propagation"`
}

type wireEval struct {
	Result any `json:"result"`
}

func TestHealthz(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	f.decode(rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestWorkspaceLifecycle(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(http.MethodPost, "/api/workspaces", map[string]any{"name": "beta"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var ws core.Workspace
	f.decode(rec, &ws)
	assert.NotEmpty(t, ws.ID)
	assert.Equal(t, "beta", ws.Name)

	rec = f.do(http.MethodGet, "/api/workspaces", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []*core.Workspace
	f.decode(rec, &list)
	assert.Len(t, list, 2) // fixture workspace plus beta

	rec = f.do(http.MethodGet, "/api/workspaces/"+ws.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodDelete, "/api/workspaces/"+ws.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/api/workspaces/"+ws.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkspaceValidation(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(http.MethodPost, "/api/workspaces", map[string]any{"name": "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.doRaw(http.MethodPost, "/api/workspaces", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTableLifecycle(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(http.MethodPost, "/api/workspaces/"+f.ws.ID+"/tables", map[string]any{
		"name":        "orders",
		"description": "incoming orders",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var table core.Table
	f.decode(rec, &table)
	assert.Equal(t, f.ws.ID, table.WorkspaceID)
	assert.Equal(t, "orders", table.Name)
	assert.Equal(t, "incoming orders", table.Description)

	rec = f.do(http.MethodGet, "/api/workspaces/"+f.ws.ID+"/tables", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tables []*core.Table
	f.decode(rec, &tables)
	assert.Len(t, tables, 2)

	rec = f.do(http.MethodGet, "/api/tables/"+table.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodDelete, "/api/tables/"+table.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/api/tables/"+table.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/api/workspaces/nope/tables", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestColumnCreate(t *testing.T) {
	f := setupAPI(t)

	qty := f.createColumn("qty", "number", "")
	price := f.createColumn("price", "number", "")
	assert.Equal(t, 0, qty.Position)
	assert.Equal(t, 1, price.Position)

	total := f.createColumn("total", "number", "[qty] * [price]")
	assert.Equal(t, "[qty] * [price]", total.Formula)

	rec := f.do(http.MethodGet, "/api/tables/"+f.table.ID+"/columns", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cols []*core.Column
	f.decode(rec, &cols)
	assert.Len(t, cols, 3)

	rec = f.do(http.MethodPost, "/api/tables/"+f.table.ID+"/columns", map[string]any{
		"name": "flag", "type": "banana",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodPost, "/api/tables/nope/columns", map[string]any{
		"name": "x", "type": "number",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestColumnCreateRollsBackOnBadFormula(t *testing.T) {
	f := setupAPI(t)
	f.createColumn("qty", "number", "")

	rec := f.do(http.MethodPost, "/api/tables/"+f.table.ID+"/columns", map[string]any{
		"name":    "total",
		"type":    "number",
		"formula": "[missing] * 2",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body errorBody
	f.decode(rec, &body)
	assert.Equal(t, "definition", body.Kind)

	// The half-created column must not survive the rejected definition
	rec = f.do(http.MethodGet, "/api/tables/"+f.table.ID+"/columns", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cols []*core.Column
	f.decode(rec, &cols)
	assert.Len(t, cols, 1)
}

func TestCellWriteAndPropagate(t *testing.T) {
	f := setupAPI(t)
	qty := f.createColumn("qty", "number", "")
	doubled := f.createColumn("doubled", "number", "[qty] * 2")
	row := f.createRow()

	res := f.writeCells(literal(row.ID, qty.ID, 5))
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, float64(5), res.Outcomes[0].Value)
	assert.Nil(t, res.Outcomes[0].Rejected)
	assert.ElementsMatch(t, []core.CellRef{
		{RowID: row.ID, ColumnID: qty.ID},
		{RowID: row.ID, ColumnID: doubled.ID},
	}, res.AffectedCells)
	require.NotNil(t, res.Propagation)
	assert.Equal(t, []string{doubled.ID}, res.Propagation.AffectedColumns)
	assert.Equal(t, 1, res.Propagation.RecalculatedCells)

	snap := f.snapshot(row.ID)
	require.Contains(t, snap.Cells, qty.ID)
	require.Contains(t, snap.Cells, doubled.ID)
	assert.Equal(t, float64(5), snap.Cells[qty.ID].Value)
	assert.Equal(t, "valid", snap.Cells[qty.ID].State)
	assert.Equal(t, float64(10), snap.Cells[doubled.ID].Value)
}

func TestCellWriteMixedBatch(t *testing.T) {
	f := setupAPI(t)
	qty := f.createColumn("qty", "number", "")
	bad := f.createRow()
	good := f.createRow()

	res := f.writeCells(
		literal(bad.ID, qty.ID, "not a number"),
		literal(good.ID, qty.ID, 7),
	)
	require.Len(t, res.Outcomes, 2)

	require.NotNil(t, res.Outcomes[0].Rejected)
	assert.Equal(t, "validation", res.Outcomes[0].Rejected.Kind)
	assert.NotEmpty(t, res.Outcomes[0].Rejected.Message)

	assert.Nil(t, res.Outcomes[1].Rejected)
	assert.Equal(t, float64(7), res.Outcomes[1].Value)
	assert.Len(t, res.AffectedCells, 1)

	snap := f.snapshot(good.ID)
	assert.Equal(t, float64(7), snap.Cells[qty.ID].Value)
}

func TestCellWriteValidation(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(http.MethodPost, "/api/tables/"+f.table.ID+"/cells", map[string]any{"writes": []any{}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodPost, "/api/tables/nope/cells", map[string]any{
		"writes": []map[string]any{{"row_id": "r", "column_id": "c", "value": 1}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCellOverride(t *testing.T) {
	f := setupAPI(t)
	qty := f.createColumn("qty", "number", "")
	doubled := f.createColumn("doubled", "number", "[qty] * 2")
	row := f.createRow()
	f.writeCells(literal(row.ID, qty.ID, 3))

	res := f.writeCells(map[string]any{
		"row_id":    row.ID,
		"column_id": doubled.ID,
		"formula":   "[qty] * 10",
	})
	require.Len(t, res.Outcomes, 1)
	assert.Nil(t, res.Outcomes[0].Rejected)
	assert.Equal(t, float64(30), res.Outcomes[0].Value)

	snap := f.snapshot(row.ID)
	assert.Equal(t, float64(30), snap.Cells[doubled.ID].Value)
	assert.Equal(t, "[qty] * 10", snap.Cells[doubled.ID].Formula)

	// Writing the column's own formula reverts the cell to column rule
	f.writeCells(map[string]any{
		"row_id":    row.ID,
		"column_id": doubled.ID,
		"formula":   "[qty] * 2",
	})
	snap = f.snapshot(row.ID)
	assert.Equal(t, float64(6), snap.Cells[doubled.ID].Value)
	assert.Empty(t, snap.Cells[doubled.ID].Formula)
}

func TestColumnFormulaUpdate(t *testing.T) {
	f := setupAPI(t)
	qty := f.createColumn("qty", "number", "")
	total := f.createColumn("total", "number", "[qty] * 2")
	r1 := f.createRow()
	r2 := f.createRow()
	f.writeCells(literal(r1.ID, qty.ID, 5), literal(r2.ID, qty.ID, 7))

	rec := f.do(http.MethodPatch, "/api/columns/"+total.ID+"/formula", map[string]any{
		"formula": "[qty] + 1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body formulaResponse
	f.decode(rec, &body)
	require.NotNil(t, body.Column)
	assert.Equal(t, "[qty] + 1", body.Column.Formula)
	require.NotNil(t, body.Propagation)
	assert.Equal(t, 2, body.Propagation.RecalculatedCells)

	assert.Equal(t, float64(6), f.snapshot(r1.ID).Cells[total.ID].Value)
	assert.Equal(t, float64(8), f.snapshot(r2.ID).Cells[total.ID].Value)

	rec = f.do(http.MethodPatch, "/api/columns/nope/formula", map[string]any{"formula": "1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestColumnFormulaCycleRejected(t *testing.T) {
	f := setupAPI(t)
	a := f.createColumn("a", "number", "")
	b := f.createColumn("b", "number", "[a] + 1")
	f.createColumn("c", "number", "[b] + 1")

	rec := f.do(http.MethodPatch, "/api/columns/"+a.ID+"/formula", map[string]any{
		"formula": "[c] * 2",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body errorBody
	f.decode(rec, &body)
	assert.Equal(t, "definition", body.Kind)

	// b's chain is untouched
	row := f.createRow()
	f.writeCells(literal(row.ID, a.ID, 1))
	assert.Equal(t, float64(2), f.snapshot(row.ID).Cells[b.ID].Value)
}

func TestColumnFormulaClear(t *testing.T) {
	f := setupAPI(t)
	qty := f.createColumn("qty", "number", "")
	total := f.createColumn("total", "number", "[qty] * 2")
	row := f.createRow()
	f.writeCells(literal(row.ID, qty.ID, 4))
	require.Equal(t, float64(8), f.snapshot(row.ID).Cells[total.ID].Value)

	rec := f.do(http.MethodDelete, "/api/columns/"+total.ID+"/formula", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	var cols []*core.Column
	recList := f.do(http.MethodGet, "/api/tables/"+f.table.ID+"/columns", nil)
	f.decode(recList, &cols)
	for _, col := range cols {
		assert.Empty(t, col.Formula)
	}

	// Values freeze once the formula is gone
	f.writeCells(literal(row.ID, qty.ID, 100))
	assert.Equal(t, float64(8), f.snapshot(row.ID).Cells[total.ID].Value)
}

func TestColumnDeleteBreaksReferences(t *testing.T) {
	f := setupAPI(t)
	qty := f.createColumn("qty", "number", "")
	doubled := f.createColumn("doubled", "number", "[qty] * 2")
	row := f.createRow()
	f.writeCells(literal(row.ID, qty.ID, 5))

	rec := f.do(http.MethodDelete, "/api/columns/"+qty.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Recomputing the dependent now hits a dangling reference
	rec = f.do(http.MethodPost, "/api/tables/"+f.table.ID+"/propagate", map[string]any{
		"column_id": doubled.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snap := f.snapshot(row.ID)
	require.Contains(t, snap.Cells, doubled.ID)
	assert.Equal(t, "error", snap.Cells[doubled.ID].State)
	errVal, ok := snap.Cells[doubled.ID].Value.(map[string]any)
	require.True(t, ok, "error cells serialize as objects")
	assert.Equal(t, "#REF", errVal["code"])

	rec = f.do(http.MethodDelete, "/api/columns/"+qty.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPropagateEndpoint(t *testing.T) {
	f := setupAPI(t)
	qty := f.createColumn("qty", "number", "")
	doubled := f.createColumn("doubled", "number", "[qty] * 2")
	r1 := f.createRow()
	r2 := f.createRow()
	f.writeCells(literal(r1.ID, qty.ID, 1), literal(r2.ID, qty.ID, 2))

	// Explicit row scope
	rec := f.do(http.MethodPost, "/api/tables/"+f.table.ID+"/propagate", map[string]any{
		"column_id": qty.ID,
		"row_ids":   []string{r1.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var prop engine.PropagationResult
	f.decode(rec, &prop)
	assert.Equal(t, []string{doubled.ID}, prop.AffectedColumns)
	assert.Equal(t, 1, prop.RecalculatedCells)

	// No row_ids means every live row
	rec = f.do(http.MethodPost, "/api/tables/"+f.table.ID+"/propagate", map[string]any{
		"column_id": qty.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	f.decode(rec, &prop)
	assert.Equal(t, 2, prop.RecalculatedCells)

	rec = f.do(http.MethodPost, "/api/tables/"+f.table.ID+"/propagate", map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodPost, "/api/tables/nope/propagate", map[string]any{"column_id": qty.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvalEndpoint(t *testing.T) {
	f := setupAPI(t)
	qty := f.createColumn("qty", "number", "")
	row := f.createRow()
	f.writeCells(literal(row.ID, qty.ID, 5))

	evalPath := "/api/tables/" + f.table.ID + "/eval"

	rec := f.do(http.MethodPost, evalPath, map[string]any{"formula": "1 + 2"})
	require.Equal(t, http.StatusOK, rec.Code)
	var res wireEval
	f.decode(rec, &res)
	assert.Equal(t, float64(3), res.Result)

	rec = f.do(http.MethodPost, evalPath, map[string]any{"formula": "[qty] * 2", "row_id": row.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	f.decode(rec, &res)
	assert.Equal(t, float64(10), res.Result)

	// Unknown reference is an error value, not a failed request
	rec = f.do(http.MethodPost, evalPath, map[string]any{"formula": "[missing]", "row_id": row.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	f.decode(rec, &res)
	errVal, ok := res.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "#REF", errVal["code"])

	rec = f.do(http.MethodPost, evalPath, map[string]any{"formula": "1 +"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body errorBody
	f.decode(rec, &body)
	assert.Equal(t, "parse", body.Kind)

	rec = f.do(http.MethodPost, evalPath, map[string]any{"formula": "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodPost, evalPath, map[string]any{"formula": "1", "row_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRowLifecycle(t *testing.T) {
	f := setupAPI(t)
	f.createColumn("qty", "number", "")
	r1 := f.createRow()
	r2 := f.createRow()
	assert.Equal(t, 0, r1.Position)
	assert.Equal(t, 1, r2.Position)

	rec := f.do(http.MethodGet, "/api/tables/"+f.table.ID+"/rows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []*core.Row
	f.decode(rec, &rows)
	assert.Len(t, rows, 2)

	snap := f.snapshot(r1.ID)
	assert.Equal(t, r1.ID, snap.Row.ID)
	assert.Empty(t, snap.Cells)

	rec = f.do(http.MethodDelete, "/api/rows/"+r1.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/api/rows/"+r1.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/tables/"+f.table.ID+"/rows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	f.decode(rec, &rows)
	assert.Len(t, rows, 1)

	rec = f.do(http.MethodPost, "/api/tables/nope/rows", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFunctionsListing(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(http.MethodGet, "/api/functions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body functionsResponse
	f.decode(rec, &body)

	require.NotEmpty(t, body.Builtins)
	names := make(map[string]string, len(body.Builtins))
	for _, fn := range body.Builtins {
		names[fn.Name] = fn.Doc
	}
	assert.Contains(t, names, "SUM")
	assert.NotEmpty(t, names["SUM"])
	assert.Empty(t, body.Scripts)
}

func TestFunctionsListingWithScripts(t *testing.T) {
	dir := t.TempDir()
	script := `def zscore(x, mean, sd=1):
    """Standard score of x."""
    return (x - mean) / sd
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stats.star"), []byte(script), 0o644))

	f := setupAPIWithScripts(t, dir)

	rec := f.do(http.MethodGet, "/api/functions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body functionsResponse
	f.decode(rec, &body)

	require.Contains(t, body.Scripts, "stats")
	require.Len(t, body.Scripts["stats"], 1)
	assert.Equal(t, "zscore", body.Scripts["stats"][0].Name)
	assert.Equal(t, "Standard score of x.", body.Scripts["stats"][0].Docstring)

	// Script functions resolve through the evaluator
	rec = f.do(http.MethodPost, "/api/tables/"+f.table.ID+"/eval", map[string]any{
		"formula": "stats.zscore(13, 10, 2)",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res wireEval
	f.decode(rec, &res)
	assert.Equal(t, float64(1.5), res.Result)
}
