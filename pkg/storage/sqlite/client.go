// Package sqlite provides the SQLite backend of the brain store.
//
// SQLite is a file-based database suited to local development and single
// node deployments. All tables live in one file; ":memory:" is accepted for
// throwaway stores.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/odiumxp/ai-brain/pkg/storage/sqlstore"
)

// Config contains configuration for opening a SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// NodeID seeds the snowflake id generator.
	NodeID int64
}

// Dialect is the SQLite flavour of the shared SQL.
type Dialect struct{}

// Name implements sqlstore.Dialect.
func (Dialect) Name() string { return "sqlite3" }

// Rebind implements sqlstore.Dialect. SQLite understands '?' natively.
func (Dialect) Rebind(query string) string { return query }

// Types implements sqlstore.Dialect.
func (Dialect) Types() sqlstore.Types {
	return sqlstore.Types{
		ID:       "INTEGER",
		Key:      "TEXT",
		Text:     "TEXT",
		LongText: "TEXT",
		Float:    "REAL",
		Int:      "INTEGER",
		Bool:     "BOOLEAN",
		Time:     "DATETIME",
	}
}

// InlineIndexes implements sqlstore.Dialect.
func (Dialect) InlineIndexes() bool { return false }

// LockClause implements sqlstore.Dialect. SQLite locks the whole database
// for a writing transaction and has no row locks.
func (Dialect) LockClause() string { return "" }

// IsConflict implements sqlstore.Dialect.
func (Dialect) IsConflict(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	switch {
	case se.Code == sqlite3.ErrBusy, se.Code == sqlite3.ErrLocked:
		return true
	case se.ExtendedCode == sqlite3.ErrConstraintUnique, se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return true
	}
	return false
}

// NewClient opens (creating if needed) the database file and migrates it.
func NewClient(ctx context.Context, cfg *Config) (*sqlstore.Store, error) {
	dsn := cfg.DBPath
	if dsn != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
			}
		}
		dsn += "?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}
	// One writer at a time; an in-memory database also must not be split
	// across pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	store, err := sqlstore.New(ctx, db, Dialect{}, cfg.NodeID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}
	return store, nil
}
