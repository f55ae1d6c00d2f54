package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odiumxp/ai-brain/pkg/storage"
)

const chainColumns = `id, user_id, chain_name, chain_type, memory_sequence, start_memory_id, end_memory_id,
	chain_strength, chain_summary, topics_covered, emotional_arc, access_count, created_at, last_updated`

// InsertChain stores a new chain.
func (s *Store) InsertChain(ctx context.Context, c *storage.Chain) error {
	if c.ID == 0 {
		c.ID = s.nextID()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}

	sequence, topics, arc, err := encodeChain(c)
	if err != nil {
		return fmt.Errorf("InsertChain: %w", err)
	}

	_, err = s.exec(ctx, "InsertChain", `
		INSERT INTO memory_chains (`+chainColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.Type, sequence, c.StartMemoryID, c.EndMemoryID,
		c.Strength, c.Summary, topics, arc, c.AccessCount, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// GetChain returns one chain of a user.
func (s *Store) GetChain(ctx context.Context, userID string, id int64) (*storage.Chain, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+chainColumns+` FROM memory_chains WHERE user_id = ? AND id = ?`), userID, id)
	c, err := scanChain(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.NotFoundError{Entity: "chain", ID: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("GetChain: %w", err)
	}
	return c, nil
}

// UpdateChain rewrites the mutable fields of a chain.
func (s *Store) UpdateChain(ctx context.Context, c *storage.Chain) error {
	sequence, topics, arc, err := encodeChain(c)
	if err != nil {
		return fmt.Errorf("UpdateChain: %w", err)
	}
	return s.execOne(ctx, "UpdateChain", "chain", c.ID, `
		UPDATE memory_chains
		SET chain_name = ?, memory_sequence = ?, start_memory_id = ?, end_memory_id = ?,
			chain_strength = ?, chain_summary = ?, topics_covered = ?, emotional_arc = ?,
			access_count = ?, last_updated = ?
		WHERE user_id = ? AND id = ?`,
		c.Name, sequence, c.StartMemoryID, c.EndMemoryID,
		c.Strength, c.Summary, topics, arc,
		c.AccessCount, c.UpdatedAt, c.UserID, c.ID)
}

// ListChains returns a user's chains, strongest and most used first.
func (s *Store) ListChains(ctx context.Context, q storage.ChainQuery) ([]*storage.Chain, error) {
	if q.UserID == "" {
		return nil, fmt.Errorf("ListChains: user id is required")
	}

	conditions := []string{"user_id = ?"}
	args := []interface{}{q.UserID}
	if q.Text != "" {
		needle := strings.ToLower(q.Text)
		conditions = append(conditions, "(LOWER(chain_summary) LIKE ? OR LOWER(topics_covered) LIKE ?)")
		args = append(args, "%"+needle+"%", `%"`+needle+`"%`)
	}
	if !q.UpdatedBefore.IsZero() {
		conditions = append(conditions, "last_updated < ?")
		args = append(args, q.UpdatedBefore)
	}

	query := `SELECT ` + chainColumns + ` FROM memory_chains WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY chain_strength DESC, access_count DESC, id ASC`
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	return s.queryChains(ctx, "ListChains", query, args...)
}

// ListStaleChains returns chains of all users not updated since the cutoff.
func (s *Store) ListStaleChains(ctx context.Context, updatedBefore time.Time, limit int) ([]*storage.Chain, error) {
	query := `SELECT ` + chainColumns + ` FROM memory_chains WHERE last_updated < ? ORDER BY id ASC`
	args := []interface{}{updatedBefore}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryChains(ctx, "ListStaleChains", query, args...)
}

// TouchChain records one read of the chain.
func (s *Store) TouchChain(ctx context.Context, userID string, id int64, at time.Time) error {
	return s.execOne(ctx, "TouchChain", "chain", id, `
		UPDATE memory_chains SET access_count = access_count + 1, last_updated = ?
		WHERE user_id = ? AND id = ?`, at, userID, id)
}

// UpdateChainStrength sets the strength without touching last_updated.
func (s *Store) UpdateChainStrength(ctx context.Context, id int64, strength float64) error {
	return s.execOne(ctx, "UpdateChainStrength", "chain", id,
		`UPDATE memory_chains SET chain_strength = ? WHERE id = ?`, strength, id)
}

// DeleteChains removes never accessed chains created before the cutoff.
func (s *Store) DeleteChains(ctx context.Context, maxStrength float64, createdBefore time.Time) (int64, error) {
	query := `DELETE FROM memory_chains WHERE access_count = 0 AND created_at < ?`
	args := []interface{}{createdBefore}
	if maxStrength > 0 {
		query += " AND chain_strength < ?"
		args = append(args, maxStrength)
	}
	return s.execAffected(ctx, "DeleteChains", query, args...)
}

func (s *Store) queryChains(ctx context.Context, op, query string, args ...interface{}) ([]*storage.Chain, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var chains []*storage.Chain
	for rows.Next() {
		c, err := scanChain(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		chains = append(chains, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return chains, nil
}

func encodeChain(c *storage.Chain) (sequence, topics, arc string, err error) {
	if sequence, err = marshalJSON(c.MemoryIDs); err != nil {
		return
	}
	t := c.Topics
	if t == nil {
		t = []string{}
	}
	if topics, err = marshalJSON(t); err != nil {
		return
	}
	arc, err = marshalJSON(c.Arc)
	return
}

func scanChain(row rowScanner) (*storage.Chain, error) {
	var (
		c                      storage.Chain
		sequence, topics, arc string
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Type, &sequence, &c.StartMemoryID, &c.EndMemoryID,
		&c.Strength, &c.Summary, &topics, &arc, &c.AccessCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(sequence, &c.MemoryIDs); err != nil {
		return nil, fmt.Errorf("decode memory sequence: %w", err)
	}
	if err := unmarshalJSON(topics, &c.Topics); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	if err := unmarshalJSON(arc, &c.Arc); err != nil {
		return nil, fmt.Errorf("decode emotional arc: %w", err)
	}
	return &c, nil
}
