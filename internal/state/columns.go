package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapgrid/pkg/core"
)

const columnFields = `id, table_id, name, type, formula, config, position, created_at, updated_at`

// CreateColumn inserts a new column. A zero Position is assigned the
// next free slot in the table.
func (s *Store) CreateColumn(ctx context.Context, col *core.Column) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if col.ID == "" {
		col.ID = generateID()
	}
	now := time.Now().UTC()
	col.CreatedAt = now
	col.UpdatedAt = now

	if col.Position == 0 {
		err := s.db.QueryRowContext(ctx,
			s.rebind(`SELECT COALESCE(MAX(position) + 1, 0) FROM columns WHERE table_id = ?`),
			col.TableID,
		).Scan(&col.Position)
		if err != nil {
			return fmt.Errorf("failed to assign column position: %w", err)
		}
	}

	config, err := encodeConfig(col.Config)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO columns (id, table_id, name, type, formula, config, position, created_at, updated_at)
		          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		col.ID, col.TableID, col.Name, col.Type, col.Formula, config, col.Position, col.CreatedAt, col.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create column: %w", err)
	}

	return nil
}

// GetColumn retrieves a column by ID.
func (s *Store) GetColumn(ctx context.Context, id string) (*core.Column, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	col, err := scanColumn(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+columnFields+` FROM columns WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("column %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get column: %w", err)
	}

	return col, nil
}

// GetColumnByName retrieves a column by its table-scoped name. Returns
// nil without error when no such column exists; formula reference
// resolution treats absence as a definition problem, not a storage one.
func (s *Store) GetColumnByName(ctx context.Context, tableID, name string) (*core.Column, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	col, err := scanColumn(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+columnFields+` FROM columns WHERE table_id = ? AND name = ?`),
		tableID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get column by name: %w", err)
	}

	return col, nil
}

// ListColumns retrieves all columns of a table in display order.
func (s *Store) ListColumns(ctx context.Context, tableID string) ([]*core.Column, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+columnFields+` FROM columns WHERE table_id = ? ORDER BY position, name`),
		tableID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	var columns []*core.Column
	for rows.Next() {
		col, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// DeleteColumn deletes a column. Cascades remove its cells and any
// dependency edges it participates in.
func (s *Store) DeleteColumn(ctx context.Context, id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM columns WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete column: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("column %s: %w", id, core.ErrNotFound)
	}

	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanColumn(row scanner) (*core.Column, error) {
	col := &core.Column{}
	var config sql.NullString

	err := row.Scan(&col.ID, &col.TableID, &col.Name, &col.Type, &col.Formula, &config, &col.Position, &col.CreatedAt, &col.UpdatedAt)
	if err != nil {
		return nil, err
	}

	col.Config, err = decodeConfig(config)
	if err != nil {
		return nil, err
	}

	return col, nil
}
