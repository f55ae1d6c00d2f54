package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odiumxp/ai-brain/pkg/storage"
)

const memoryColumns = `id, user_id, persona_id, user_text, ai_text, embedding, emotional_context,
	importance_score, base_importance, access_count, last_accessed, pinned, created_at`

// InsertMemory stores a memory, assigning an id when none is set.
func (s *Store) InsertMemory(ctx context.Context, m *storage.Memory) error {
	if m.ID == 0 {
		m.ID = s.nextID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	embedding, err := nullJSON(m.Embedding, m.Embedding == nil)
	if err != nil {
		return fmt.Errorf("InsertMemory: %w", err)
	}
	emotions, err := nullJSON(m.Emotions, m.Emotions == nil)
	if err != nil {
		return fmt.Errorf("InsertMemory: %w", err)
	}

	var lastAccessed sql.NullTime
	if m.LastAccessed != nil {
		lastAccessed = sql.NullTime{Time: *m.LastAccessed, Valid: true}
	}

	_, err = s.exec(ctx, "InsertMemory", `
		INSERT INTO memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.PersonaID, m.UserText, m.AIText, embedding, emotions,
		m.Importance, m.BaseImportance, m.AccessCount, lastAccessed, m.Pinned, m.CreatedAt,
	)
	return err
}

// GetMemory returns one memory of a user.
func (s *Store) GetMemory(ctx context.Context, userID string, id int64) (*storage.Memory, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+memoryColumns+` FROM memories WHERE user_id = ? AND id = ?`), userID, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.NotFoundError{Entity: "memory", ID: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("GetMemory: %w", err)
	}
	return m, nil
}

// ListMemories returns the memories matching q.
func (s *Store) ListMemories(ctx context.Context, q storage.MemoryQuery) ([]*storage.Memory, error) {
	if q.UserID == "" {
		return nil, fmt.Errorf("ListMemories: user id is required")
	}
	if q.IDs != nil && len(q.IDs) == 0 {
		return nil, nil
	}
	where, args := buildMemoryWhere(q)

	order := "DESC"
	if q.Ascending {
		order = "ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM memories %s ORDER BY created_at %s, id %s`, memoryColumns, where, order, order)
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("ListMemories: %w", err)
	}
	defer rows.Close()

	var memories []*storage.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("ListMemories: %w", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListMemories: %w", err)
	}
	return memories, nil
}

// TouchMemories bumps access statistics of exactly the given ids.
func (s *Store) TouchMemories(ctx context.Context, userID string, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append([]interface{}{at, userID}, int64Args(ids)...)
	return s.execAffected(ctx, "TouchMemories", `
		UPDATE memories
		SET access_count = access_count + 1, last_accessed = ?
		WHERE user_id = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
}

// UpdateImportance sets the current importance of a memory.
func (s *Store) UpdateImportance(ctx context.Context, userID string, id int64, importance float64) error {
	return s.execOne(ctx, "UpdateImportance", "memory", id,
		`UPDATE memories SET importance_score = ? WHERE user_id = ? AND id = ?`, importance, userID, id)
}

// SetPinned pins or unpins a memory.
func (s *Store) SetPinned(ctx context.Context, userID string, id int64, pinned bool) error {
	return s.execOne(ctx, "SetPinned", "memory", id,
		`UPDATE memories SET pinned = ? WHERE user_id = ? AND id = ?`, pinned, userID, id)
}

// DeleteMemory removes a memory on explicit request.
func (s *Store) DeleteMemory(ctx context.Context, userID string, id int64) error {
	return s.execOne(ctx, "DeleteMemory", "memory", id,
		`DELETE FROM memories WHERE user_id = ? AND id = ?`, userID, id)
}

// DeleteForgettable removes unpinned memories that decayed away.
func (s *Store) DeleteForgettable(ctx context.Context, userID string, maxImportance float64, createdBefore time.Time) (int64, error) {
	return s.execAffected(ctx, "DeleteForgettable", `
		DELETE FROM memories
		WHERE user_id = ? AND pinned = ? AND access_count = 0
		AND importance_score < ? AND created_at < ?`,
		userID, false, maxImportance, createdBefore)
}

// MemoryStats aggregates a user's memories.
func (s *Store) MemoryStats(ctx context.Context, userID string) (*storage.MemoryStats, error) {
	var (
		stats    storage.MemoryStats
		avg      sql.NullFloat64
		accesses sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*), AVG(importance_score), SUM(access_count)
		FROM memories WHERE user_id = ?`), userID).Scan(&stats.TotalMemories, &avg, &accesses)
	if err != nil {
		return nil, fmt.Errorf("MemoryStats: %w", err)
	}
	stats.AvgImportance = avg.Float64
	stats.TotalAccesses = accesses.Int64

	if stats.TotalMemories == 0 {
		return &stats, nil
	}

	// MAX over a time column comes back as text from some drivers, so the
	// newest row is read through the typed column instead.
	var last time.Time
	err = s.db.QueryRowContext(ctx, s.rebind(`
		SELECT created_at FROM memories WHERE user_id = ?
		ORDER BY created_at DESC LIMIT 1`), userID).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("MemoryStats: %w", err)
	}
	stats.LastMemory = &last

	err = s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM memories WHERE user_id = ? AND pinned = ?`), userID, true).Scan(&stats.PinnedCount)
	if err != nil {
		return nil, fmt.Errorf("MemoryStats: %w", err)
	}
	return &stats, nil
}

// ListUsers returns every known user id, sorted.
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM memories
		UNION
		SELECT DISTINCT user_id FROM personality_state`)
	if err != nil {
		return nil, fmt.Errorf("ListUsers: %w", err)
	}
	return scanUserIDs(rows)
}

// ListActiveUsers returns users with at least one memory since the cutoff.
func (s *Store) ListActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT DISTINCT user_id FROM memories WHERE created_at >= ?`), since)
	if err != nil {
		return nil, fmt.Errorf("ListActiveUsers: %w", err)
	}
	return scanUserIDs(rows)
}

func scanUserIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(users)
	return users, nil
}

// buildMemoryWhere builds the WHERE clause for a memory query.
func buildMemoryWhere(q storage.MemoryQuery) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}

	if q.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, q.UserID)
	}
	if q.PersonaID != "" {
		conditions = append(conditions, "persona_id = ?")
		args = append(args, q.PersonaID)
	}
	if q.MinImportance > 0 {
		conditions = append(conditions, "importance_score > ?")
		args = append(args, q.MinImportance)
	}
	if !q.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, q.Since)
	}
	if !q.Before.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, q.Before)
	}
	if q.ExcludeID != 0 {
		conditions = append(conditions, "id <> ?")
		args = append(args, q.ExcludeID)
	}
	if len(q.IDs) > 0 {
		conditions = append(conditions, "id IN ("+placeholders(len(q.IDs))+")")
		args = append(args, int64Args(q.IDs)...)
	}
	if q.UnpinnedOnly {
		conditions = append(conditions, "pinned = ?")
		args = append(args, false)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func scanMemory(row rowScanner) (*storage.Memory, error) {
	var (
		m            storage.Memory
		embedding    sql.NullString
		emotions     sql.NullString
		lastAccessed sql.NullTime
	)
	err := row.Scan(&m.ID, &m.UserID, &m.PersonaID, &m.UserText, &m.AIText, &embedding, &emotions,
		&m.Importance, &m.BaseImportance, &m.AccessCount, &lastAccessed, &m.Pinned, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	if embedding.Valid {
		if err := unmarshalJSON(embedding.String, &m.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
	}
	if emotions.Valid {
		if err := unmarshalJSON(emotions.String, &m.Emotions); err != nil {
			return nil, fmt.Errorf("decode emotional context: %w", err)
		}
	}
	if lastAccessed.Valid {
		t := lastAccessed.Time
		m.LastAccessed = &t
	}
	return &m, nil
}
