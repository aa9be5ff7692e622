package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leapgrid/internal/engine"
	"github.com/leapstack-labs/leapgrid/internal/udf"
	"github.com/leapstack-labs/leapgrid/pkg/core"
	"github.com/leapstack-labs/leapgrid/pkg/formula"
	"github.com/leapstack-labs/leapgrid/pkg/value"
)

type handlers struct {
	store  core.Store
	engine *engine.Engine
	udfs   *udf.Registry
	logger *slog.Logger
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func respondBadRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// respondError maps domain errors onto HTTP statuses: missing entities
// are 404, rejected definitions and validations are 422, everything
// else is a 500 with the detail kept out of the response.
func (h *handlers) respondError(w http.ResponseWriter, err error) {
	var verr *core.ValidationError
	var derr *core.DefinitionError
	switch {
	case errors.Is(err, core.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.As(err, &verr):
		respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: verr.Error(), Kind: "validation"})
	case errors.As(err, &derr):
		respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: derr.Error(), Kind: "definition"})
	default:
		h.logger.Error("request failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- workspaces ---

type createWorkspaceRequest struct {
	Name string `json:"name"`
}

func (h *handlers) createWorkspace(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "name is required"})
		return
	}
	ws, err := h.store.CreateWorkspace(r.Context(), req.Name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ws)
}

func (h *handlers) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := h.store.ListWorkspaces(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, workspaces)
}

func (h *handlers) getWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := h.store.GetWorkspace(r.Context(), chi.URLParam(r, "workspaceID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ws)
}

func (h *handlers) deleteWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteWorkspace(r.Context(), chi.URLParam(r, "workspaceID")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- tables ---

type createTableRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *handlers) createTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "name is required"})
		return
	}
	workspaceID := chi.URLParam(r, "workspaceID")
	if _, err := h.store.GetWorkspace(r.Context(), workspaceID); err != nil {
		h.respondError(w, err)
		return
	}
	table, err := h.store.CreateTable(r.Context(), workspaceID, req.Name, req.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, table)
}

func (h *handlers) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.store.ListTables(r.Context(), chi.URLParam(r, "workspaceID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tables)
}

func (h *handlers) getTable(w http.ResponseWriter, r *http.Request) {
	table, err := h.store.GetTable(r.Context(), chi.URLParam(r, "tableID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, table)
}

func (h *handlers) deleteTable(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")
	if err := h.store.DeleteTable(r.Context(), tableID); err != nil {
		h.respondError(w, err)
		return
	}
	h.engine.Graphs().Invalidate(tableID)
	w.WriteHeader(http.StatusNoContent)
}

// --- columns ---

type createColumnRequest struct {
	Name     string             `json:"name"`
	Type     string             `json:"type"`
	Formula  string             `json:"formula"`
	Config   *core.ColumnConfig `json:"config"`
	Position int                `json:"position"`
}

func (h *handlers) createColumn(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")

	var req createColumnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "name is required"})
		return
	}
	typ := core.ColumnType(req.Type)
	if req.Type == "" {
		typ = core.ColumnTypeText // same default the seed loader applies
	}
	if !typ.Valid() {
		respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "unknown column type: " + req.Type})
		return
	}
	if _, err := h.store.GetTable(r.Context(), tableID); err != nil {
		h.respondError(w, err)
		return
	}

	col := &core.Column{
		TableID:  tableID,
		Name:     req.Name,
		Type:     typ,
		Config:   req.Config,
		Position: req.Position,
	}
	if err := h.store.CreateColumn(r.Context(), col); err != nil {
		h.respondError(w, err)
		return
	}

	// A formula makes the column computed. The definition validates and
	// persists edges; on rejection the half-created column is removed so
	// creation stays all-or-nothing.
	if strings.TrimSpace(req.Formula) != "" {
		if err := h.engine.DefineComputedColumn(r.Context(), tableID, col.ID, req.Formula); err != nil {
			_ = h.store.DeleteColumn(r.Context(), col.ID)
			h.respondError(w, err)
			return
		}
		col.Formula = strings.TrimSpace(req.Formula)
	}

	respondJSON(w, http.StatusCreated, col)
}

func (h *handlers) listColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := h.store.ListColumns(r.Context(), chi.URLParam(r, "tableID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cols)
}

func (h *handlers) deleteColumn(w http.ResponseWriter, r *http.Request) {
	col, err := h.store.GetColumn(r.Context(), chi.URLParam(r, "columnID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.store.DeleteColumn(r.Context(), col.ID); err != nil {
		h.respondError(w, err)
		return
	}
	// Cells and edges cascade in storage; drop the cached graph
	h.engine.Graphs().Invalidate(col.TableID)
	w.WriteHeader(http.StatusNoContent)
}

// --- column formulas ---

type formulaRequest struct {
	Formula string `json:"formula"`
}

type formulaResponse struct {
	Column      *core.Column              `json:"column"`
	Propagation *engine.PropagationResult `json:"propagation"`
}

func (h *handlers) setColumnFormula(w http.ResponseWriter, r *http.Request) {
	columnID := chi.URLParam(r, "columnID")

	var req formulaRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}
	col, err := h.store.GetColumn(r.Context(), columnID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	if err := h.engine.DefineComputedColumn(r.Context(), col.TableID, columnID, req.Formula); err != nil {
		h.respondError(w, err)
		return
	}

	// Recalculate the column for every live row, and everything
	// downstream of it
	rowIDs, err := h.liveRowIDs(r, col.TableID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	prop, err := h.engine.Propagate(r.Context(), col.TableID, columnID, rowIDs)
	if err != nil {
		h.respondError(w, err)
		return
	}

	col, err = h.store.GetColumn(r.Context(), columnID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, formulaResponse{Column: col, Propagation: prop})
}

func (h *handlers) clearColumnFormula(w http.ResponseWriter, r *http.Request) {
	columnID := chi.URLParam(r, "columnID")
	col, err := h.store.GetColumn(r.Context(), columnID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.engine.RemoveComputedColumn(r.Context(), col.TableID, columnID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- rows ---

func (h *handlers) createRow(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")
	if _, err := h.store.GetTable(r.Context(), tableID); err != nil {
		h.respondError(w, err)
		return
	}
	row, err := h.store.CreateRow(r.Context(), tableID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, row)
}

func (h *handlers) listRows(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListRows(r.Context(), chi.URLParam(r, "tableID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

type rowSnapshot struct {
	Row   *core.Row             `json:"row"`
	Cells map[string]*core.Cell `json:"cells"`
}

func (h *handlers) getRowSnapshot(w http.ResponseWriter, r *http.Request) {
	rowID := chi.URLParam(r, "rowID")
	row, err := h.store.GetRow(r.Context(), rowID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if row.DeletedAt != nil {
		respondJSON(w, http.StatusNotFound, errorBody{Error: "row not found"})
		return
	}
	cells, err := h.store.GetRowCells(r.Context(), rowID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rowSnapshot{Row: row, Cells: cells})
}

func (h *handlers) deleteRow(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteRow(r.Context(), chi.URLParam(r, "rowID")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- cells ---

type cellWriteRequest struct {
	RowID    string  `json:"row_id"`
	ColumnID string  `json:"column_id"`
	Value    any     `json:"value"`
	Formula  *string `json:"formula"`
}

type updateCellsRequest struct {
	Writes []cellWriteRequest `json:"writes"`
}

type rejectBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type writeOutcomeBody struct {
	RowID    string      `json:"row_id"`
	ColumnID string      `json:"column_id"`
	Value    value.Value `json:"value"`
	Rejected *rejectBody `json:"rejected,omitempty"`
}

type updateCellsResponse struct {
	Outcomes      []writeOutcomeBody        `json:"outcomes"`
	AffectedCells []core.CellRef            `json:"affected_cells"`
	Propagation   *engine.PropagationResult `json:"propagation"`
}

func (h *handlers) updateCells(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")

	var req updateCellsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}
	if len(req.Writes) == 0 {
		respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "writes is empty"})
		return
	}

	writes := make([]core.CellWrite, len(req.Writes))
	for i, cw := range req.Writes {
		writes[i] = core.CellWrite{
			RowID:    cw.RowID,
			ColumnID: cw.ColumnID,
			RawValue: cw.Value,
			Formula:  cw.Formula,
		}
	}

	res, err := h.engine.UpdateCells(r.Context(), tableID, writes)
	if err != nil {
		h.respondError(w, err)
		return
	}

	body := updateCellsResponse{
		Outcomes:      make([]writeOutcomeBody, len(res.Outcomes)),
		AffectedCells: res.AffectedCells,
		Propagation:   res.Propagation,
	}
	for i, o := range res.Outcomes {
		out := writeOutcomeBody{RowID: o.RowID, ColumnID: o.ColumnID, Value: o.Value}
		if o.Reject != nil {
			out.Rejected = &rejectBody{Kind: rejectKind(o.Reject), Message: o.Reject.Error()}
		}
		body.Outcomes[i] = out
	}
	respondJSON(w, http.StatusOK, body)
}

func rejectKind(err error) string {
	var verr *core.ValidationError
	var derr *core.DefinitionError
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.As(err, &derr):
		return "definition"
	default:
		return "error"
	}
}

// --- propagation ---

type propagateRequest struct {
	ColumnID string   `json:"column_id"`
	RowIDs   []string `json:"row_ids"`
}

func (h *handlers) propagate(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")

	var req propagateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}
	if req.ColumnID == "" {
		respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "column_id is required"})
		return
	}

	rowIDs := req.RowIDs
	if len(rowIDs) == 0 {
		var err error
		rowIDs, err = h.liveRowIDs(r, tableID)
		if err != nil {
			h.respondError(w, err)
			return
		}
	}

	prop, err := h.engine.Propagate(r.Context(), tableID, req.ColumnID, rowIDs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, prop)
}

func (h *handlers) liveRowIDs(r *http.Request, tableID string) ([]string, error) {
	rows, err := h.store.ListRows(r.Context(), tableID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

// --- ad-hoc evaluation ---

type evalRequest struct {
	Formula string `json:"formula"`
	RowID   string `json:"row_id"`
}

type evalResponse struct {
	Result value.Value `json:"result"`
}

func (h *handlers) evalFormula(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "tableID")

	var req evalRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Formula) == "" {
		respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "formula is required"})
		return
	}

	result, err := h.engine.EvalFormula(r.Context(), tableID, req.RowID, req.Formula)
	if err != nil {
		var perr *formula.ParseError
		var lerr *formula.LexError
		if errors.As(err, &perr) || errors.As(err, &lerr) {
			respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Kind: "parse"})
			return
		}
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, evalResponse{Result: result})
}

// --- functions ---

type builtinInfo struct {
	Name string `json:"name"`
	Doc  string `json:"doc,omitempty"`
}

type functionsResponse struct {
	Builtins []builtinInfo                `json:"builtins"`
	Scripts  map[string][]*udf.ScriptFunc `json:"scripts,omitempty"`
}

func (h *handlers) listFunctions(w http.ResponseWriter, _ *http.Request) {
	body := functionsResponse{}
	for _, fn := range formula.DefaultRegistry().Builtins() {
		body.Builtins = append(body.Builtins, builtinInfo{Name: fn.Name, Doc: fn.Doc})
	}
	if h.udfs != nil {
		body.Scripts = make(map[string][]*udf.ScriptFunc)
		for _, m := range h.udfs.Modules() {
			body.Scripts[m.Namespace] = m.Functions
		}
	}
	respondJSON(w, http.StatusOK, body)
}
