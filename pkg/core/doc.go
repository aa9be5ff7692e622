// Package core defines the shared language of the LeapGrid system.
//
// This package contains:
//   - Domain entities (Workspace, Table, Column, Row, Cell)
//   - The persistence interface (Store)
//   - Column validation rules (ColumnConfig, ParseLiteral)
//   - Engine error types (ValidationError, DefinitionError, StorageError)
//
// The Golden Rule: pkg/core imports ONLY pkg/value and stdlib.
// All other packages depend on core, not the reverse.
package core
