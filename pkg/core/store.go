package core

import "context"

// Store defines the persistence interface for workspaces, tables,
// columns, rows, cells and dependency edges. Implementations live in
// internal/state.
type Store interface {
	Close() error
	Migrate(ctx context.Context) error

	// Workspace operations
	CreateWorkspace(ctx context.Context, name string) (*Workspace, error)
	GetWorkspace(ctx context.Context, id string) (*Workspace, error)
	ListWorkspaces(ctx context.Context) ([]*Workspace, error)
	DeleteWorkspace(ctx context.Context, id string) error

	// Table operations
	CreateTable(ctx context.Context, workspaceID, name, description string) (*Table, error)
	GetTable(ctx context.Context, id string) (*Table, error)
	ListTables(ctx context.Context, workspaceID string) ([]*Table, error)
	DeleteTable(ctx context.Context, id string) error

	// Column operations
	CreateColumn(ctx context.Context, col *Column) error
	GetColumn(ctx context.Context, id string) (*Column, error)
	GetColumnByName(ctx context.Context, tableID, name string) (*Column, error)
	ListColumns(ctx context.Context, tableID string) ([]*Column, error)
	DeleteColumn(ctx context.Context, id string) error

	// Formula operations. SetColumnFormula persists the formula text and
	// replaces the column's column-level edges in one transaction.
	// ClearColumnFormula also drops per-cell overrides and their edges.
	SetColumnFormula(ctx context.Context, columnID, formula string, edges []DependencyEdge) error
	ClearColumnFormula(ctx context.Context, columnID string) error
	SetCellOverride(ctx context.Context, rowID, columnID, formula string, edges []DependencyEdge) error
	ClearCellOverride(ctx context.Context, rowID, columnID string) error

	// Row operations. Deletes are soft: rows keep their cells but drop
	// out of listings and propagation.
	CreateRow(ctx context.Context, tableID string) (*Row, error)
	GetRow(ctx context.Context, id string) (*Row, error)
	ListRows(ctx context.Context, tableID string) ([]*Row, error)
	DeleteRow(ctx context.Context, id string) error

	// Cell operations. UpsertCell bumps the cell's calc version on
	// every call. GetRowCells keys by column ID; GetColumnCells keys by
	// row ID and returns only cells for the requested rows.
	GetCell(ctx context.Context, rowID, columnID string) (*Cell, error)
	GetRowCells(ctx context.Context, rowID string) (map[string]*Cell, error)
	GetColumnCells(ctx context.Context, columnID string, rowIDs []string) (map[string]*Cell, error)
	UpsertCell(ctx context.Context, cell *Cell) error

	// Dependency operations
	ListTableEdges(ctx context.Context, tableID string) ([]DependencyEdge, error)
}
