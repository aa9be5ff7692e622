// Package state implements core.Store over SQLite or PostgreSQL.
// SQLite is the default for single-node deployments; a postgres:// DSN
// switches to pgx. All queries are written with ? placeholders and
// rebound for the active dialect.
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/leapstack-labs/leapgrid/pkg/core"
	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// Dialect names, matching goose's.
const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// Store implements core.Store using database/sql.
type Store struct {
	db      *sql.DB
	dialect string
	dsn     string
}

// NewStore creates a new store instance. Call Open before use.
func NewStore() *Store {
	return &Store{}
}

// Open opens the database connection. Use ":memory:" for an in-memory
// SQLite database; postgres:// and postgresql:// URLs connect via pgx.
func (s *Store) Open(dsn string) error {
	driver, dialect, connStr := resolveDSN(dsn)

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	if dialect == dialectSQLite && isMemoryDSN(dsn) {
		// The pool would otherwise hand each connection its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping %s database: %w", dialect, err)
	}

	s.db = db
	s.dialect = dialect
	s.dsn = dsn
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// resolveDSN picks the driver and dialect for a DSN and attaches the
// SQLite pragmas the engine relies on (enforced foreign keys, WAL for
// file-backed databases).
func resolveDSN(dsn string) (driver, dialect, connStr string) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx", dialectPostgres, dsn
	}
	if isMemoryDSN(dsn) {
		return "sqlite", dialectSQLite, "file::memory:?_pragma=foreign_keys(1)"
	}
	return "sqlite", dialectSQLite, dsn + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// rebind rewrites ? placeholders to the dialect's native form.
func (s *Store) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// encodeConfig serializes a column config to its stored JSON form.
func encodeConfig(cfg *core.ColumnConfig) (sql.NullString, error) {
	if cfg == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode column config: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// decodeConfig parses a stored column config. NULL and empty mean no
// config.
func decodeConfig(raw sql.NullString) (*core.ColumnConfig, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	cfg := &core.ColumnConfig{}
	if err := json.Unmarshal([]byte(raw.String), cfg); err != nil {
		return nil, fmt.Errorf("failed to decode column config: %w", err)
	}
	return cfg, nil
}

// encodeCellValue splits a cell value into its stored payload and error
// columns. Exactly one of payload and code is set; null values set
// neither.
func encodeCellValue(v value.Value) (payload, code, msg sql.NullString) {
	switch {
	case v.IsError():
		e := v.Err()
		code = sql.NullString{String: string(e.Code), Valid: true}
		msg = sql.NullString{String: e.Message, Valid: true}
	case v.IsNull():
	default:
		payload = sql.NullString{String: v.Encode(), Valid: true}
	}
	return payload, code, msg
}

// decodeCellValue rebuilds a cell value from its stored columns, using
// the column type to pick the decode kind.
func decodeCellValue(typ core.ColumnType, payload, code, msg sql.NullString) (value.Value, error) {
	if code.Valid {
		return value.NewError(value.ErrorCode(code.String), msg.String), nil
	}
	if !payload.Valid {
		return value.Null(), nil
	}
	return value.Decode(typ.Kind(), payload.String)
}

// Ensure Store implements the core.Store interface
var _ core.Store = (*Store)(nil)
