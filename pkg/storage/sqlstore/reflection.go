package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/odiumxp/ai-brain/pkg/storage"
)

const reflectionColumns = `id, user_id, period, insight, analysis, created_at`

// InsertReflection stores one reflection.
func (s *Store) InsertReflection(ctx context.Context, r *storage.Reflection) error {
	if r.ID == 0 {
		r.ID = s.nextID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	analysis := string(r.Analysis)
	if analysis == "" {
		analysis = "{}"
	}
	_, err := s.exec(ctx, "InsertReflection", `
		INSERT INTO reflections (`+reflectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Period, r.Insight, analysis, r.CreatedAt)
	return err
}

// ListReflections returns the newest reflections of a user.
func (s *Store) ListReflections(ctx context.Context, userID string, limit int) ([]*storage.Reflection, error) {
	query := `SELECT ` + reflectionColumns + ` FROM reflections WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), userID)
	if err != nil {
		return nil, fmt.Errorf("ListReflections: %w", err)
	}
	defer rows.Close()

	var out []*storage.Reflection
	for rows.Next() {
		var (
			r        storage.Reflection
			analysis string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Period, &r.Insight, &analysis, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListReflections: %w", err)
		}
		r.Analysis = json.RawMessage(analysis)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListReflections: %w", err)
	}
	return out, nil
}
