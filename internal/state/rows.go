package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapgrid/pkg/core"
)

// CreateRow appends a new row to a table.
func (s *Store) CreateRow(ctx context.Context, tableID string) (*core.Row, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := &core.Row{
		ID:        generateID(),
		TableID:   tableID,
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COALESCE(MAX(position) + 1, 0) FROM grid_rows WHERE table_id = ?`),
		tableID,
	).Scan(&row.Position)
	if err != nil {
		return nil, fmt.Errorf("failed to assign row position: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO grid_rows (id, table_id, position, created_at) VALUES (?, ?, ?, ?)`),
		row.ID, row.TableID, row.Position, row.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create row: %w", err)
	}

	return row, nil
}

// GetRow retrieves a row by ID, including soft-deleted rows; callers
// check DeletedAt.
func (s *Store) GetRow(ctx context.Context, id string) (*core.Row, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := &core.Row{}
	var deletedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, table_id, position, created_at, deleted_at FROM grid_rows WHERE id = ?`),
		id,
	).Scan(&row.ID, &row.TableID, &row.Position, &row.CreatedAt, &deletedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("row %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get row: %w", err)
	}

	if deletedAt.Valid {
		row.DeletedAt = &deletedAt.Time
	}

	return row, nil
}

// ListRows retrieves the live rows of a table in position order.
// Soft-deleted rows are excluded.
func (s *Store) ListRows(ctx context.Context, tableID string) ([]*core.Row, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, table_id, position, created_at FROM grid_rows
		          WHERE table_id = ? AND deleted_at IS NULL ORDER BY position`),
		tableID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	defer rows.Close()

	var result []*core.Row
	for rows.Next() {
		row := &core.Row{}
		if err := rows.Scan(&row.ID, &row.TableID, &row.Position, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

// DeleteRow soft-deletes a row. Its cells stay in place; the row drops
// out of listings and propagation. Deleting an already-deleted row
// reports not found.
func (s *Store) DeleteRow(ctx context.Context, id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	result, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE grid_rows SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`),
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete row: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("row %s: %w", id, core.ErrNotFound)
	}

	return nil
}
