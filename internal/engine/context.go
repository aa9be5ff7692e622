package engine

import (
	"context"
	"errors"

	"github.com/leapstack-labs/leapgrid/internal/depgraph"
	"github.com/leapstack-labs/leapgrid/pkg/core"
	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// tableSchema is one table's column metadata, indexed for the lookups
// evaluation needs. Loaded fresh per engine operation; the store is the
// source of truth and the engine holds no schema cache.
type tableSchema struct {
	tableID string
	byID    map[string]*core.Column
	byName  map[string]*core.Column
	ordered []*core.Column
}

// loadSchema reads a table's columns. A missing table reports
// core.ErrNotFound rather than an empty schema.
func (e *Engine) loadSchema(ctx context.Context, tableID string) (*tableSchema, error) {
	if _, err := e.store.GetTable(ctx, tableID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		return nil, core.NewStorageError("read table", err)
	}
	columns, err := e.store.ListColumns(ctx, tableID)
	if err != nil {
		return nil, core.NewStorageError("list columns", err)
	}

	s := &tableSchema{
		tableID: tableID,
		byID:    make(map[string]*core.Column, len(columns)),
		byName:  make(map[string]*core.Column, len(columns)),
		ordered: columns,
	}
	for _, col := range columns {
		s.byID[col.ID] = col
		s.byName[col.Name] = col
	}
	return s, nil
}

// ensureColumns registers schema columns the cached graph has not seen
// yet, such as columns created after the graph was first loaded.
func ensureColumns(g *depgraph.Graph, schema *tableSchema) {
	for _, col := range schema.ordered {
		g.AddColumn(col.ID)
	}
}

// rowView adapts one row's cell snapshot to formula.RowContext. Lookup
// resolves by column name: unknown names report false (the evaluator
// turns that into #REF), known columns with no stored value read as the
// declared type's zero value, and cells in error state surface their
// error value so it propagates into dependents.
type rowView struct {
	schema *tableSchema
	cells  map[string]*core.Cell // keyed by column ID
}

func (v *rowView) Lookup(name string) (value.Value, bool) {
	col, ok := v.schema.byName[name]
	if !ok {
		return value.Null(), false
	}
	cell := v.cells[col.ID]
	if cell == nil || cell.Value.IsNull() {
		return value.Zero(col.Type.Kind()), true
	}
	return cell.Value, true
}
