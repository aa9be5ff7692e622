package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapgrid/pkg/core"
)

// CreateTable creates a new table in a workspace.
func (s *Store) CreateTable(ctx context.Context, workspaceID, name, description string) (*core.Table, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	table := &core.Table{
		ID:          generateID(),
		WorkspaceID: workspaceID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO grid_tables (id, workspace_id, name, description, created_at, updated_at)
		          VALUES (?, ?, ?, ?, ?, ?)`),
		table.ID, table.WorkspaceID, table.Name, table.Description, table.CreatedAt, table.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return table, nil
}

// GetTable retrieves a table by ID.
func (s *Store) GetTable(ctx context.Context, id string) (*core.Table, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	table := &core.Table{}
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, workspace_id, name, description, created_at, updated_at
		          FROM grid_tables WHERE id = ?`),
		id,
	).Scan(&table.ID, &table.WorkspaceID, &table.Name, &table.Description, &table.CreatedAt, &table.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}

	return table, nil
}

// ListTables retrieves all tables in a workspace ordered by name.
func (s *Store) ListTables(ctx context.Context, workspaceID string) ([]*core.Table, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, workspace_id, name, description, created_at, updated_at
		          FROM grid_tables WHERE workspace_id = ? ORDER BY name`),
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []*core.Table
	for rows.Next() {
		table := &core.Table{}
		if err := rows.Scan(&table.ID, &table.WorkspaceID, &table.Name, &table.Description, &table.CreatedAt, &table.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, table)
	}

	return tables, rows.Err()
}

// DeleteTable deletes a table and, through cascades, its columns, rows,
// cells and dependency edges.
func (s *Store) DeleteTable(ctx context.Context, id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM grid_tables WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("table %s: %w", id, core.ErrNotFound)
	}

	return nil
}
