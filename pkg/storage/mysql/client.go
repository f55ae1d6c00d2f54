// Package mysql provides the MySQL backend of the brain store. It also
// serves MySQL compatible engines such as OceanBase and TiDB.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/odiumxp/ai-brain/pkg/storage/sqlstore"
)

// Config contains MySQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	NodeID   int64
}

// DSN renders the go-sql-driver connection string. clientFoundRows makes
// UPDATE report matched rather than changed rows, which the store relies on
// to tell a missing row from an unchanged one.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC&clientFoundRows=true&charset=utf8mb4",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Dialect is the MySQL flavour of the shared SQL.
type Dialect struct{}

// Name implements sqlstore.Dialect.
func (Dialect) Name() string { return "mysql" }

// Rebind implements sqlstore.Dialect. MySQL understands '?' natively.
func (Dialect) Rebind(query string) string { return query }

// Types implements sqlstore.Dialect.
func (Dialect) Types() sqlstore.Types {
	return sqlstore.Types{
		ID:       "BIGINT",
		Key:      "VARCHAR(255)",
		Text:     "TEXT",
		LongText: "LONGTEXT",
		Float:    "DOUBLE",
		Int:      "BIGINT",
		Bool:     "BOOLEAN",
		Time:     "DATETIME(6)",
	}
}

// InlineIndexes implements sqlstore.Dialect.
func (Dialect) InlineIndexes() bool { return true }

// LockClause implements sqlstore.Dialect.
func (Dialect) LockClause() string { return " FOR UPDATE" }

// MySQL server error numbers that abort a transaction because of a
// concurrent writer.
const (
	errDuplicateEntry  = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// IsConflict implements sqlstore.Dialect.
func (Dialect) IsConflict(err error) bool {
	var me *mysqldriver.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	switch me.Number {
	case errDuplicateEntry, errLockWaitTimeout, errDeadlock:
		return true
	}
	return false
}

// NewClient connects to MySQL and migrates the schema.
func NewClient(ctx context.Context, cfg *Config) (*sqlstore.Store, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	store, err := sqlstore.New(ctx, db, Dialect{}, cfg.NodeID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}
	return store, nil
}
