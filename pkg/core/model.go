package core

import (
	"time"

	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// ColumnType represents the declared type of a column.
type ColumnType string

// Column type constants.
const (
	ColumnTypeText    ColumnType = "text"
	ColumnTypeNumber  ColumnType = "number"
	ColumnTypeBoolean ColumnType = "boolean"
	ColumnTypeDate    ColumnType = "date"
	ColumnTypeChoice  ColumnType = "choice"
)

// Valid reports whether t is a known column type.
func (t ColumnType) Valid() bool {
	switch t {
	case ColumnTypeText, ColumnTypeNumber, ColumnTypeBoolean, ColumnTypeDate, ColumnTypeChoice:
		return true
	}
	return false
}

// Kind returns the value kind cells of this column type hold. Choice
// columns hold text restricted by their option list.
func (t ColumnType) Kind() value.Kind {
	switch t {
	case ColumnTypeNumber:
		return value.KindNumber
	case ColumnTypeBoolean:
		return value.KindBool
	case ColumnTypeDate:
		return value.KindDate
	default:
		return value.KindText
	}
}

// Workspace is a tenant boundary. Formulas never reference columns in
// another workspace's tables.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Table is a named grid of typed columns within a workspace.
type Table struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Column describes one column of a table.
// This contains schema-level fields only; per-cell state lives in Cell.
type Column struct {
	ID      string     `json:"id"`
	TableID string     `json:"table_id"`
	Name    string     `json:"name"`
	Type    ColumnType `json:"type"`
	// Formula is the column-level formula. Non-empty means the column
	// is computed: its cells reject raw writes and recalculate when
	// referenced columns change.
	Formula string `json:"formula,omitempty"`
	// Config holds optional validation rules applied to literal writes.
	Config *ColumnConfig `json:"config,omitempty"`
	// Position orders columns for display.
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsComputed reports whether the column derives its cells from a formula.
func (c *Column) IsComputed() bool { return c.Formula != "" }

// Row is one record of a table. Deleted rows are kept with DeletedAt
// set and are excluded from evaluation and propagation.
type Row struct {
	ID        string     `json:"id"`
	TableID   string     `json:"table_id"`
	Position  int        `json:"position"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// CellState tracks the evaluation lifecycle of a computed cell.
type CellState string

// Cell state constants. Literal cells are always valid; computed cells
// start unevaluated and move between valid and error on every touch.
const (
	CellStateUnevaluated CellState = "unevaluated"
	CellStateValid       CellState = "valid"
	CellStateError       CellState = "error"
)

// Cell is the stored state of one (row, column) position.
type Cell struct {
	RowID    string `json:"row_id"`
	ColumnID string `json:"column_id"`
	// Value is the committed value. For cells in error state it is the
	// error value recorded by the last evaluation.
	Value value.Value `json:"value"`
	State CellState   `json:"state"`
	// Formula is a per-cell override on a computed column, empty
	// otherwise.
	Formula string `json:"formula,omitempty"`
	// CalcVersion increments on every persisted outcome, value or
	// recorded error, and never on a rejected write.
	CalcVersion int64     `json:"calc_version"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CellRef identifies a single cell.
type CellRef struct {
	RowID    string `json:"row_id"`
	ColumnID string `json:"column_id"`
}

// CellWrite is one requested mutation in an update batch. Literal
// columns take RawValue; computed columns take Formula.
type CellWrite struct {
	RowID    string `json:"row_id"`
	ColumnID string `json:"column_id"`
	// RawValue is the literal to store for a plain column. It accepts
	// decoded JSON scalars: string, float64, bool, or nil to clear.
	RawValue any `json:"raw_value,omitempty"`
	// Formula, when non-nil, sets a per-cell override formula on a
	// computed column. Supplying the column's own formula clears the
	// override.
	Formula *string `json:"formula,omitempty"`
}

// DependencyEdge is one persisted edge of a table's dependency graph:
// the dependent column recalculates when the source column changes.
type DependencyEdge struct {
	TableID     string `json:"table_id"`
	SourceID    string `json:"source_id"`
	DependentID string `json:"dependent_id"`
	// RowID scopes edges contributed by per-cell override formulas.
	// Empty for column-level formula edges.
	RowID string `json:"row_id,omitempty"`
}
