package core

import (
	"errors"
	"fmt"
)

// ErrNotFound marks lookups for entities that do not exist. Storage
// implementations wrap it; the API layer maps it to 404.
var ErrNotFound = errors.New("not found")

// ValidationError reports a rejected literal write. It is a per-write
// outcome: sibling writes in the same batch continue, and nothing is
// persisted for the rejected write.
type ValidationError struct {
	RowID    string
	ColumnID string
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for cell (%s, %s): %s", e.RowID, e.ColumnID, e.Message)
}

// DefinitionError reports a rejected formula definition: a parse
// failure, an unknown column reference, a self-reference or a cycle.
// The previous definition stays in effect.
type DefinitionError struct {
	ColumnID string
	Message  string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid formula for column %s: %s", e.ColumnID, e.Message)
}

// StorageError wraps a failed persistence operation. Unlike per-write
// outcomes it aborts the whole batch.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err with the failed operation name. Returns nil
// when err is nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
