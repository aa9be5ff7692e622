package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapgrid/pkg/core"
)

// CreateWorkspace creates a new workspace.
func (s *Store) CreateWorkspace(ctx context.Context, name string) (*core.Workspace, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	ws := &core.Workspace{
		ID:        generateID(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO workspaces (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`),
		ws.ID, ws.Name, ws.CreatedAt, ws.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	return ws, nil
}

// GetWorkspace retrieves a workspace by ID.
func (s *Store) GetWorkspace(ctx context.Context, id string) (*core.Workspace, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	ws := &core.Workspace{}
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, name, created_at, updated_at FROM workspaces WHERE id = ?`),
		id,
	).Scan(&ws.ID, &ws.Name, &ws.CreatedAt, &ws.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workspace %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}

	return ws, nil
}

// ListWorkspaces retrieves all workspaces ordered by name.
func (s *Store) ListWorkspaces(ctx context.Context) ([]*core.Workspace, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM workspaces ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []*core.Workspace
	for rows.Next() {
		ws := &core.Workspace{}
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		workspaces = append(workspaces, ws)
	}

	return workspaces, rows.Err()
}

// DeleteWorkspace deletes a workspace and, through cascades, its tables,
// columns, rows and cells.
func (s *Store) DeleteWorkspace(ctx context.Context, id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM workspaces WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("workspace %s: %w", id, core.ErrNotFound)
	}

	return nil
}
