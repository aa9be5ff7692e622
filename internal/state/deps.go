package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapgrid/pkg/core"
)

// SetColumnFormula persists a column's formula text and replaces its
// column-level dependency edges in one transaction. Override edges are
// untouched.
func (s *Store) SetColumnFormula(ctx context.Context, columnID, formula string, edges []core.DependencyEdge) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		s.rebind(`UPDATE columns SET formula = ?, updated_at = ? WHERE id = ?`),
		formula, time.Now().UTC(), columnID,
	)
	if err != nil {
		return fmt.Errorf("failed to set column formula: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("column %s: %w", columnID, core.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		s.rebind(`DELETE FROM column_deps WHERE dependent_id = ? AND row_id = ''`),
		columnID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete column edges: %w", err)
	}

	if err := insertEdges(ctx, tx, s, edges, ""); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ClearColumnFormula converts a computed column back to a literal one:
// the formula, every edge the column depends through (column-level and
// override), and all per-cell override formulas are removed. Last
// computed values stay in place.
func (s *Store) ClearColumnFormula(ctx context.Context, columnID string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		s.rebind(`UPDATE columns SET formula = '', updated_at = ? WHERE id = ?`),
		time.Now().UTC(), columnID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear column formula: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("column %s: %w", columnID, core.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		s.rebind(`DELETE FROM column_deps WHERE dependent_id = ?`),
		columnID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete column edges: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		s.rebind(`UPDATE cells SET formula = '' WHERE column_id = ? AND formula != ''`),
		columnID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear cell overrides: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// SetCellOverride persists one cell's override formula and replaces the
// row-scoped edges it contributes. The cell is created if needed; the
// calc version is not bumped here, the evaluation outcome that follows
// bumps it.
func (s *Store) SetCellOverride(ctx context.Context, rowID, columnID, formula string, edges []core.DependencyEdge) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		s.rebind(`INSERT INTO cells (row_id, column_id, formula, state, calc_version, updated_at)
		          VALUES (?, ?, ?, ?, 0, ?)
		          ON CONFLICT (row_id, column_id) DO UPDATE SET
		              formula = excluded.formula,
		              updated_at = excluded.updated_at`),
		rowID, columnID, formula, core.CellStateUnevaluated, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set cell override: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		s.rebind(`DELETE FROM column_deps WHERE dependent_id = ? AND row_id = ?`),
		columnID, rowID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete override edges: %w", err)
	}

	if err := insertEdges(ctx, tx, s, edges, rowID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ClearCellOverride removes one cell's override formula and its
// row-scoped edges. The cell's last value stays in place.
func (s *Store) ClearCellOverride(ctx context.Context, rowID, columnID string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		s.rebind(`UPDATE cells SET formula = '' WHERE row_id = ? AND column_id = ?`),
		rowID, columnID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear cell override: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		s.rebind(`DELETE FROM column_deps WHERE dependent_id = ? AND row_id = ?`),
		columnID, rowID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete override edges: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListTableEdges retrieves all persisted dependency edges of a table in
// a stable order.
func (s *Store) ListTableEdges(ctx context.Context, tableID string) ([]core.DependencyEdge, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT table_id, source_id, dependent_id, row_id FROM column_deps
		          WHERE table_id = ? ORDER BY dependent_id, source_id, row_id`),
		tableID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()

	var edges []core.DependencyEdge
	for rows.Next() {
		var e core.DependencyEdge
		if err := rows.Scan(&e.TableID, &e.SourceID, &e.DependentID, &e.RowID); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}

	return edges, rows.Err()
}

// insertEdges writes edges scoped to the given row ID, empty for
// column-level edges.
func insertEdges(ctx context.Context, tx *sql.Tx, s *Store, edges []core.DependencyEdge, rowID string) error {
	for _, e := range edges {
		_, err := tx.ExecContext(ctx,
			s.rebind(`INSERT INTO column_deps (table_id, source_id, dependent_id, row_id) VALUES (?, ?, ?, ?)`),
			e.TableID, e.SourceID, e.DependentID, rowID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert edge: %w", err)
		}
	}
	return nil
}
