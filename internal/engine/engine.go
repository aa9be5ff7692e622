// Package engine coordinates cell writes, formula definition, and
// dependency propagation for grid tables. Every mutation of cell or
// formula state flows through an Engine; the HTTP and CLI layers add
// transport concerns only.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/leapstack-labs/leapgrid/internal/depgraph"
	"github.com/leapstack-labs/leapgrid/pkg/core"
	"github.com/leapstack-labs/leapgrid/pkg/formula"
	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// Engine orchestrates formula evaluation and propagation over a store.
type Engine struct {
	store  core.Store
	graphs *depgraph.Registry
	eval   *formula.Evaluator
	logger *slog.Logger
}

// Config holds engine configuration.
type Config struct {
	// Store is the storage backend. Required.
	Store core.Store
	// Graphs caches per-table dependency graphs. A fresh registry over
	// Store is created when nil; components serving the same store must
	// share one registry.
	Graphs *depgraph.Registry
	// Funcs is the formula function registry, builtins plus any loaded
	// UDFs. Defaults to the built-in set.
	Funcs *formula.Registry
	// Clock supplies TODAY and NOW. Defaults to the system clock.
	Clock formula.Clock
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates an engine from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	graphs := cfg.Graphs
	if graphs == nil {
		graphs = depgraph.NewRegistry(cfg.Store)
	}
	return &Engine{
		store:  cfg.Store,
		graphs: graphs,
		eval:   formula.NewEvaluator(formula.Config{Funcs: cfg.Funcs, Clock: cfg.Clock}),
		logger: logger,
	}, nil
}

// Graphs returns the dependency graph registry, shared with callers
// that mutate schema behind the engine's back (column deletion
// invalidates the cached graph).
func (e *Engine) Graphs() *depgraph.Registry { return e.graphs }

// EvalFormula evaluates formulaText against a live row without
// persisting anything. rowID may be empty, in which case every column
// reads as its declared zero value. Evaluation failures come back as
// error-kind values, not Go errors; the error return covers parse
// failures and storage access only.
func (e *Engine) EvalFormula(ctx context.Context, tableID, rowID, formulaText string) (value.Value, error) {
	schema, err := e.loadSchema(ctx, tableID)
	if err != nil {
		return value.Null(), err
	}
	expr, err := formula.Parse(formulaText)
	if err != nil {
		return value.Null(), err
	}

	cells := make(map[string]*core.Cell)
	if rowID != "" {
		row, err := e.store.GetRow(ctx, rowID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return value.Null(), err
			}
			return value.Null(), core.NewStorageError("read row", err)
		}
		if row.TableID != tableID || row.DeletedAt != nil {
			return value.Null(), fmt.Errorf("row %s: %w", rowID, core.ErrNotFound)
		}
		cells, err = e.store.GetRowCells(ctx, rowID)
		if err != nil {
			return value.Null(), core.NewStorageError("read row cells", err)
		}
	}

	return e.eval.Eval(expr, &rowView{schema: schema, cells: cells}), nil
}

// evalColumnFormula evaluates a column's stored formula for one row.
// A stored formula that no longer parses surfaces as an evaluation
// outcome rather than a panic; definitions are validated on the way in,
// so this only happens when storage was edited out of band.
func (e *Engine) evalColumnFormula(col *core.Column, row formula.RowContext) value.Value {
	expr, err := formula.Parse(col.Formula)
	if err != nil {
		return value.Errorf(value.ErrCodeValue, "stored formula does not parse: %v", err)
	}
	return e.eval.Eval(expr, row)
}

// outcomeCell builds the cell persisted for an evaluation outcome. The
// result is coerced to the column's declared type, an uncoercible
// result becoming a #TYPE error. Error outcomes clear the value so that
// exactly one of value and error code is authoritative.
func outcomeCell(rowID string, col *core.Column, out value.Value, overrideFormula string) *core.Cell {
	if !out.IsError() {
		coerced, ok := value.Convert(out, col.Type.Kind())
		if !ok {
			out = value.Errorf(value.ErrCodeType, "cannot store %s result in %s column", out.Kind(), col.Type)
		} else {
			out = coerced
		}
	}
	state := core.CellStateValid
	if out.IsError() {
		state = core.CellStateError
	}
	return &core.Cell{
		RowID:    rowID,
		ColumnID: col.ID,
		Value:    out,
		State:    state,
		Formula:  overrideFormula,
	}
}
