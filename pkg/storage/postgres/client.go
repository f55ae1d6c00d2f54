// Package postgres provides the PostgreSQL backend of the brain store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/odiumxp/ai-brain/pkg/storage/sqlstore"
)

// Config contains PostgreSQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	NodeID   int64
}

// DSN renders the lib/pq connection string.
func (c *Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
}

// Dialect is the PostgreSQL flavour of the shared SQL.
type Dialect struct{}

// Name implements sqlstore.Dialect.
func (Dialect) Name() string { return "postgres" }

// Rebind rewrites '?' placeholders to $1, $2, ...
func (Dialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// Types implements sqlstore.Dialect.
func (Dialect) Types() sqlstore.Types {
	return sqlstore.Types{
		ID:       "BIGINT",
		Key:      "VARCHAR(255)",
		Text:     "TEXT",
		LongText: "TEXT",
		Float:    "DOUBLE PRECISION",
		Int:      "BIGINT",
		Bool:     "BOOLEAN",
		Time:     "TIMESTAMPTZ",
	}
}

// InlineIndexes implements sqlstore.Dialect.
func (Dialect) InlineIndexes() bool { return false }

// LockClause implements sqlstore.Dialect.
func (Dialect) LockClause() string { return " FOR UPDATE" }

// IsConflict implements sqlstore.Dialect. It matches unique violations,
// serialization failures and detected deadlocks.
func (Dialect) IsConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "23505", "40001", "40P01":
		return true
	}
	return false
}

// NewClient connects to PostgreSQL and migrates the schema.
func NewClient(ctx context.Context, cfg *Config) (*sqlstore.Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	store, err := sqlstore.New(ctx, db, Dialect{}, cfg.NodeID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}
	return store, nil
}
