package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/leapgrid/pkg/core"
)

// cellFields joins cells against columns so the stored payload can be
// decoded with the column's declared type.
const cellFields = `c.row_id, c.column_id, col.type, c.value, c.state, c.error_code, c.error_message, c.formula, c.calc_version, c.updated_at`

// GetCell retrieves one cell. Cells are created lazily on first write,
// so a missing cell is normal and returns nil without error.
func (s *Store) GetCell(ctx context.Context, rowID, columnID string) (*core.Cell, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	cell, err := scanCell(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+cellFields+` FROM cells c
		          JOIN columns col ON col.id = c.column_id
		          WHERE c.row_id = ? AND c.column_id = ?`),
		rowID, columnID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cell: %w", err)
	}

	return cell, nil
}

// GetRowCells retrieves all stored cells of a row, keyed by column ID.
// Columns the row has never written are absent from the map.
func (s *Store) GetRowCells(ctx context.Context, rowID string) (map[string]*core.Cell, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+cellFields+` FROM cells c
		          JOIN columns col ON col.id = c.column_id
		          WHERE c.row_id = ?`),
		rowID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get row cells: %w", err)
	}
	defer rows.Close()

	cells := make(map[string]*core.Cell)
	for rows.Next() {
		cell, err := scanCell(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cell: %w", err)
		}
		cells[cell.ColumnID] = cell
	}

	return cells, rows.Err()
}

// GetColumnCells retrieves the stored cells of one column for the given
// rows, keyed by row ID. Rows without a stored cell are absent.
func (s *Store) GetColumnCells(ctx context.Context, columnID string, rowIDs []string) (map[string]*core.Cell, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	cells := make(map[string]*core.Cell)
	if len(rowIDs) == 0 {
		return cells, nil
	}

	placeholders := strings.Repeat("?, ", len(rowIDs)-1) + "?"
	args := make([]any, 0, len(rowIDs)+1)
	args = append(args, columnID)
	for _, id := range rowIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+cellFields+` FROM cells c
		          JOIN columns col ON col.id = c.column_id
		          WHERE c.column_id = ? AND c.row_id IN (`+placeholders+`)`),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get column cells: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		cell, err := scanCell(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cell: %w", err)
		}
		cells[cell.RowID] = cell
	}

	return cells, rows.Err()
}

// UpsertCell persists a cell outcome, creating the cell on first write.
// Every call bumps the calc version; the new version is written back to
// cell.CalcVersion.
func (s *Store) UpsertCell(ctx context.Context, cell *core.Cell) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if cell.State == "" {
		if cell.Value.IsError() {
			cell.State = core.CellStateError
		} else {
			cell.State = core.CellStateValid
		}
	}
	cell.UpdatedAt = time.Now().UTC()

	payload, code, msg := encodeCellValue(cell.Value)

	err := s.db.QueryRowContext(ctx,
		s.rebind(`INSERT INTO cells (row_id, column_id, value, state, error_code, error_message, formula, calc_version, updated_at)
		          VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
		          ON CONFLICT (row_id, column_id) DO UPDATE SET
		              value = excluded.value,
		              state = excluded.state,
		              error_code = excluded.error_code,
		              error_message = excluded.error_message,
		              formula = excluded.formula,
		              calc_version = cells.calc_version + 1,
		              updated_at = excluded.updated_at
		          RETURNING calc_version`),
		cell.RowID, cell.ColumnID, payload, cell.State, code, msg, cell.Formula, cell.UpdatedAt,
	).Scan(&cell.CalcVersion)
	if err != nil {
		return fmt.Errorf("failed to upsert cell: %w", err)
	}

	return nil
}

func scanCell(row scanner) (*core.Cell, error) {
	cell := &core.Cell{}
	var (
		colType            core.ColumnType
		payload, code, msg sql.NullString
	)

	err := row.Scan(&cell.RowID, &cell.ColumnID, &colType, &payload, &cell.State, &code, &msg, &cell.Formula, &cell.CalcVersion, &cell.UpdatedAt)
	if err != nil {
		return nil, err
	}

	cell.Value, err = decodeCellValue(colType, payload, code, msg)
	if err != nil {
		return nil, err
	}

	return cell, nil
}
