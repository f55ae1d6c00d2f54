// Package sqlstore implements storage.Store on top of database/sql.
//
// The SQL is written once with '?' placeholders; a Dialect rebinds them and
// supplies the column types for the target engine. Embeddings, emotion maps,
// id sequences and other composite values are stored as JSON text, and vector
// similarity is computed in Go by the callers.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/odiumxp/ai-brain/pkg/storage"
)

// Types names the column types of one SQL engine.
type Types struct {
	ID       string
	Key      string
	Text     string
	LongText string
	Float    string
	Int      string
	Bool     string
	Time     string
}

// Dialect adapts the shared SQL to one engine.
type Dialect interface {
	// Name is the driver-facing name, used in error messages.
	Name() string

	// Rebind converts '?' placeholders to the engine's syntax.
	Rebind(query string) string

	Types() Types

	// InlineIndexes reports whether indexes must be declared inside
	// CREATE TABLE because the engine lacks CREATE INDEX IF NOT EXISTS.
	InlineIndexes() bool

	// LockClause is appended to a SELECT that reads a row about to be
	// rewritten in the same transaction, e.g. " FOR UPDATE".
	LockClause() string

	// IsConflict reports whether err aborted a transaction because of a
	// concurrent writer: a unique violation, a deadlock or a busy database.
	// Such transactions are retried.
	IsConflict(err error) bool
}

// maxTxAttempts bounds the retries of a conflicting transaction.
const maxTxAttempts = 5

// Store implements storage.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	ids     *snowflake.Node
}

var _ storage.Store = (*Store)(nil)

// New wraps an open database, creates the schema and prepares the snowflake
// node used to assign ids.
func New(ctx context.Context, db *sql.DB, dialect Dialect, nodeID int64) (*Store, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: snowflake node: %w", err)
	}

	s := &Store{
		db:      db,
		dialect: dialect,
		ids:     node,
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) nextID() int64 {
	return s.ids.Generate().Int64()
}

func (s *Store) rebind(query string) string {
	return s.dialect.Rebind(query)
}

func (s *Store) exec(ctx context.Context, op, query string, args ...interface{}) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (s *Store) execAffected(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	res, err := s.exec(ctx, op, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// execOne runs an UPDATE or DELETE that must hit exactly one row.
func (s *Store) execOne(ctx context.Context, op, entity string, id interface{}, query string, args ...interface{}) error {
	n, err := s.execAffected(ctx, op, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return &storage.NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
	}
	return nil
}

// inTx runs fn in a transaction and commits it. Transactions aborted by a
// concurrent writer are retried from the start with a short backoff.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !s.dialect.IsConflict(err) {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(time.Duration(attempt) * 5 * time.Millisecond):
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// skipped reports whether a callback asked to leave its row untouched.
func skipped(err error) bool {
	return errors.Is(err, storage.ErrSkipWrite)
}

type table struct {
	name    string
	columns []string
	primary string
	indexes [][2]string
	unique  [][2]string
}

func (s *Store) schema() []table {
	t := s.dialect.Types()
	return []table{
		{
			name: "memories",
			columns: []string{
				"id " + t.ID + " NOT NULL",
				"user_id " + t.Key + " NOT NULL",
				"persona_id " + t.Key + " NOT NULL DEFAULT ''",
				"user_text " + t.Text + " NOT NULL",
				"ai_text " + t.Text + " NOT NULL",
				"embedding " + t.LongText,
				"emotional_context " + t.Text,
				"importance_score " + t.Float + " NOT NULL",
				"base_importance " + t.Float + " NOT NULL",
				"access_count " + t.Int + " NOT NULL DEFAULT 0",
				"last_accessed " + t.Time + " NULL",
				"pinned " + t.Bool + " NOT NULL DEFAULT FALSE",
				"created_at " + t.Time + " NOT NULL",
			},
			primary: "id",
			indexes: [][2]string{{"idx_memories_user_created", "user_id, created_at"}},
		},
		{
			name: "memory_chains",
			columns: []string{
				"id " + t.ID + " NOT NULL",
				"user_id " + t.Key + " NOT NULL",
				"chain_name " + t.Text + " NOT NULL",
				"chain_type " + t.Key + " NOT NULL",
				"memory_sequence " + t.Text + " NOT NULL",
				"start_memory_id " + t.ID + " NOT NULL",
				"end_memory_id " + t.ID + " NOT NULL",
				"chain_strength " + t.Float + " NOT NULL",
				"chain_summary " + t.Text + " NOT NULL",
				"topics_covered " + t.Text + " NOT NULL",
				"emotional_arc " + t.Text + " NOT NULL",
				"access_count " + t.Int + " NOT NULL DEFAULT 0",
				"created_at " + t.Time + " NOT NULL",
				"last_updated " + t.Time + " NOT NULL",
			},
			primary: "id",
			indexes: [][2]string{{"idx_chains_user_strength", "user_id, chain_strength"}},
		},
		{
			name: "personality_state",
			columns: []string{
				"user_id " + t.Key + " NOT NULL",
				"trait_name " + t.Key + " NOT NULL",
				"current_value " + t.Float + " NOT NULL",
				"historical_values " + t.Text + " NOT NULL",
				"consolidation_count " + t.Int + " NOT NULL DEFAULT 0",
				"last_consolidated " + t.Time + " NULL",
				"created_at " + t.Time + " NOT NULL",
				"last_modified " + t.Time + " NOT NULL",
			},
			primary: "user_id, trait_name",
		},
		{
			name: "user_beliefs",
			columns: []string{
				"id " + t.ID + " NOT NULL",
				"user_id " + t.Key + " NOT NULL",
				"belief_statement " + t.Text + " NOT NULL",
				"belief_key " + t.Key + " NOT NULL",
				"belief_category " + t.Key + " NOT NULL",
				"belief_strength " + t.Float + " NOT NULL",
				"confidence_level " + t.Float + " NOT NULL",
				"evidence_sources " + t.Text + " NOT NULL",
				"is_active " + t.Bool + " NOT NULL DEFAULT TRUE",
				"first_expressed " + t.Time + " NOT NULL",
				"last_reinforced " + t.Time + " NOT NULL",
			},
			primary: "id",
			unique:  [][2]string{{"uq_beliefs_user_key", "user_id, belief_key"}},
		},
		{
			name: "user_goals",
			columns: []string{
				"id " + t.ID + " NOT NULL",
				"user_id " + t.Key + " NOT NULL",
				"goal_description " + t.Text + " NOT NULL",
				"goal_key " + t.Key + " NOT NULL",
				"goal_category " + t.Key + " NOT NULL",
				"priority_level " + t.Int + " NOT NULL",
				"progress_percentage " + t.Int + " NOT NULL DEFAULT 0",
				"status " + t.Key + " NOT NULL",
				"success_criteria " + t.Text + " NOT NULL",
				"first_mentioned " + t.Time + " NOT NULL",
				"last_updated " + t.Time + " NOT NULL",
			},
			primary: "id",
			indexes: [][2]string{{"idx_goals_user_status", "user_id, status"}},
			unique:  [][2]string{{"uq_goals_user_key", "user_id, goal_key"}},
		},
		{
			name: "mental_states",
			columns: []string{
				"id " + t.ID + " NOT NULL",
				"user_id " + t.Key + " NOT NULL",
				"dominant_emotion " + t.Key + " NOT NULL",
				"emotional_intensity " + t.Float + " NOT NULL",
				"cognitive_load " + t.Key + " NOT NULL",
				"attention_focus " + t.Text + " NOT NULL",
				"decision_making_style " + t.Key + " NOT NULL",
				"communication_style " + t.Key + " NOT NULL",
				"stress_indicators " + t.Text + " NOT NULL",
				"motivation_level " + t.Key + " NOT NULL",
				"inferred_needs " + t.Text + " NOT NULL",
				"confidence_score " + t.Float + " NOT NULL",
				"created_at " + t.Time + " NOT NULL",
			},
			primary: "id",
			indexes: [][2]string{{"idx_mental_states_user_created", "user_id, created_at"}},
		},
		{
			name: "emotional_timeline",
			columns: []string{
				"id " + t.ID + " NOT NULL",
				"user_id " + t.Key + " NOT NULL",
				"context_memory_id " + t.ID + " NULL",
				"emotion_type " + t.Key + " NOT NULL",
				"intensity " + t.Float + " NOT NULL",
				"confidence " + t.Float + " NOT NULL",
				"trigger_text " + t.Text + " NOT NULL",
				"emotional_triggers " + t.Text + " NOT NULL",
				"duration_minutes " + t.Int + " NOT NULL",
				"empathy_response " + t.Text + " NOT NULL",
				"created_at " + t.Time + " NOT NULL",
			},
			primary: "id",
			indexes: [][2]string{{"idx_emotions_user_created", "user_id, created_at"}},
		},
		{
			name: "emotional_patterns",
			columns: []string{
				"user_id " + t.Key + " NOT NULL",
				"emotion_type " + t.Key + " NOT NULL",
				"frequency_count " + t.Int + " NOT NULL",
				"avg_intensity " + t.Float + " NOT NULL",
				"trigger_patterns " + t.Text + " NOT NULL",
				"empathy_strategies " + t.Text + " NOT NULL",
				"confidence_score " + t.Float + " NOT NULL",
				"last_observed " + t.Time + " NOT NULL",
			},
			primary: "user_id, emotion_type",
		},
		{
			name: "reflections",
			columns: []string{
				"id " + t.ID + " NOT NULL",
				"user_id " + t.Key + " NOT NULL",
				"period " + t.Key + " NOT NULL",
				"insight " + t.Text + " NOT NULL",
				"analysis " + t.LongText + " NOT NULL",
				"created_at " + t.Time + " NOT NULL",
			},
			primary: "id",
			indexes: [][2]string{{"idx_reflections_user_created", "user_id, created_at"}},
		},
	}
}

// migrate creates all tables and indexes if they do not exist yet.
func (s *Store) migrate(ctx context.Context) error {
	inline := s.dialect.InlineIndexes()
	for _, tbl := range s.schema() {
		defs := append([]string{}, tbl.columns...)
		defs = append(defs, "PRIMARY KEY ("+tbl.primary+")")
		if inline {
			for _, idx := range tbl.indexes {
				defs = append(defs, fmt.Sprintf("INDEX %s (%s)", idx[0], idx[1]))
			}
			for _, idx := range tbl.unique {
				defs = append(defs, fmt.Sprintf("UNIQUE KEY %s (%s)", idx[0], idx[1]))
			}
		}

		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", tbl.name, strings.Join(defs, ",\n\t"))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s (%s): %w", tbl.name, s.dialect.Name(), err)
		}

		if inline {
			continue
		}
		for _, idx := range tbl.indexes {
			stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", idx[0], tbl.name, idx[1])
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate index %s: %w", idx[0], err)
			}
		}
		for _, idx := range tbl.unique {
			stmt := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s(%s)", idx[0], tbl.name, idx[1])
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate index %s: %w", idx[0], err)
			}
		}
	}
	return nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func marshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// nullJSON encodes v, storing NULL for nil values.
func nullJSON(v interface{}, isNil bool) (sql.NullString, error) {
	if isNil {
		return sql.NullString{}, nil
	}
	s, err := marshalJSON(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func unmarshalJSON(data string, v interface{}) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
