package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/odiumxp/ai-brain/pkg/storage"
)

const emotionColumns = `id, user_id, context_memory_id, emotion_type, intensity, confidence,
	trigger_text, emotional_triggers, duration_minutes, empathy_response, created_at`

const patternColumns = `user_id, emotion_type, frequency_count, avg_intensity, trigger_patterns,
	empathy_strategies, confidence_score, last_observed`

// InsertEmotionEvents stores the events in one transaction.
func (s *Store) InsertEmotionEvents(ctx context.Context, events []*storage.EmotionEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, ev := range events {
		if ev.ID == 0 {
			ev.ID = s.nextID()
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = time.Now().UTC()
		}
	}
	return s.inTx(ctx, "InsertEmotionEvents", func(tx *sql.Tx) error {
		for _, ev := range events {
			triggers, err := marshalJSON(nonNilStrings(ev.Triggers))
			if err != nil {
				return err
			}
			var memoryID sql.NullInt64
			if ev.MemoryID != 0 {
				memoryID = sql.NullInt64{Int64: ev.MemoryID, Valid: true}
			}
			if _, err := tx.ExecContext(ctx, s.rebind(`
				INSERT INTO emotional_timeline (`+emotionColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				ev.ID, ev.UserID, memoryID, ev.Type, ev.Intensity, ev.Confidence,
				ev.TriggerText, triggers, ev.DurationMinutes, ev.EmpathyResponse, ev.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListEmotionEvents returns the timeline of a user, newest first.
func (s *Store) ListEmotionEvents(ctx context.Context, q storage.EmotionQuery) ([]*storage.EmotionEvent, error) {
	query := `SELECT ` + emotionColumns + ` FROM emotional_timeline WHERE user_id = ?`
	args := []interface{}{q.UserID}
	if !q.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, q.Since)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("ListEmotionEvents: %w", err)
	}
	defer rows.Close()

	var events []*storage.EmotionEvent
	for rows.Next() {
		var (
			ev       storage.EmotionEvent
			memoryID sql.NullInt64
			triggers string
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &memoryID, &ev.Type, &ev.Intensity, &ev.Confidence,
			&ev.TriggerText, &triggers, &ev.DurationMinutes, &ev.EmpathyResponse, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListEmotionEvents: %w", err)
		}
		ev.MemoryID = memoryID.Int64
		if err := unmarshalJSON(triggers, &ev.Triggers); err != nil {
			return nil, fmt.Errorf("ListEmotionEvents: decode triggers: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListEmotionEvents: %w", err)
	}
	return events, nil
}

// EmotionTrends aggregates in Go; MAX over a time column does not scan
// back into time.Time on every driver.
func (s *Store) EmotionTrends(ctx context.Context, userID string, since time.Time) ([]*storage.EmotionTrend, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT emotion_type, intensity, created_at FROM emotional_timeline
		WHERE user_id = ? AND created_at >= ?`), userID, since)
	if err != nil {
		return nil, fmt.Errorf("EmotionTrends: %w", err)
	}
	defer rows.Close()

	byType := map[string]*storage.EmotionTrend{}
	var out []*storage.EmotionTrend
	for rows.Next() {
		var (
			kind      string
			intensity float64
			at        time.Time
		)
		if err := rows.Scan(&kind, &intensity, &at); err != nil {
			return nil, fmt.Errorf("EmotionTrends: %w", err)
		}
		tr, ok := byType[kind]
		if !ok {
			tr = &storage.EmotionTrend{Type: kind}
			byType[kind] = tr
			out = append(out, tr)
		}
		tr.AvgIntensity += intensity
		tr.Count++
		if at.After(tr.LastObserved) {
			tr.LastObserved = at
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EmotionTrends: %w", err)
	}

	for _, tr := range out {
		tr.AvgIntensity /= float64(tr.Count)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AvgIntensity != out[j].AvgIntensity {
			return out[i].AvgIntensity > out[j].AvgIntensity
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

// DeleteEmotionEvents removes timeline events created before the cutoff.
func (s *Store) DeleteEmotionEvents(ctx context.Context, createdBefore time.Time) (int64, error) {
	return s.execAffected(ctx, "DeleteEmotionEvents", `DELETE FROM emotional_timeline WHERE created_at < ?`, createdBefore)
}

// UpsertEmotionPattern rewrites the (user, type) pattern under its row lock.
func (s *Store) UpsertEmotionPattern(ctx context.Context, userID, emotionType string, fn func(p *storage.EmotionPattern, exists bool) error) (*storage.EmotionPattern, error) {
	var out *storage.EmotionPattern
	err := s.inTx(ctx, "UpsertEmotionPattern", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.rebind(`
			SELECT `+patternColumns+`
			FROM emotional_patterns WHERE user_id = ? AND emotion_type = ?`+s.dialect.LockClause()), userID, emotionType)
		p, err := scanPattern(row)
		exists := true
		if errors.Is(err, sql.ErrNoRows) {
			p, exists, err = &storage.EmotionPattern{UserID: userID, Type: emotionType}, false, nil
		}
		if err != nil {
			return err
		}

		if err := fn(p, exists); err != nil {
			if skipped(err) && exists {
				out = p
				return nil
			}
			return err
		}
		p.UserID, p.Type = userID, emotionType
		out = p

		triggers, err := marshalJSON(nonNilStrings(p.Triggers))
		if err != nil {
			return err
		}
		strategies, err := marshalJSON(nonNilStrings(p.Strategies))
		if err != nil {
			return err
		}
		if p.LastObserved.IsZero() {
			p.LastObserved = time.Now().UTC()
		}
		if !exists {
			_, err = tx.ExecContext(ctx, s.rebind(`
				INSERT INTO emotional_patterns (`+patternColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
				p.UserID, p.Type, p.Frequency, p.AvgIntensity, triggers, strategies, p.Confidence, p.LastObserved)
			return err
		}
		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE emotional_patterns
			SET frequency_count = ?, avg_intensity = ?, trigger_patterns = ?,
				empathy_strategies = ?, confidence_score = ?, last_observed = ?
			WHERE user_id = ? AND emotion_type = ?`),
			p.Frequency, p.AvgIntensity, triggers, strategies, p.Confidence, p.LastObserved, p.UserID, p.Type)
		return err
	})
	if err != nil {
		if skipped(err) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// ListEmotionPatterns returns the patterns of a user, most confident first.
func (s *Store) ListEmotionPatterns(ctx context.Context, userID string, limit int) ([]*storage.EmotionPattern, error) {
	query := `SELECT ` + patternColumns + ` FROM emotional_patterns WHERE user_id = ?
		ORDER BY confidence_score DESC, emotion_type`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), userID)
	if err != nil {
		return nil, fmt.Errorf("ListEmotionPatterns: %w", err)
	}
	defer rows.Close()

	var patterns []*storage.EmotionPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("ListEmotionPatterns: %w", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListEmotionPatterns: %w", err)
	}
	return patterns, nil
}

func scanPattern(row rowScanner) (*storage.EmotionPattern, error) {
	var (
		p                    storage.EmotionPattern
		triggers, strategies string
	)
	if err := row.Scan(&p.UserID, &p.Type, &p.Frequency, &p.AvgIntensity, &triggers,
		&strategies, &p.Confidence, &p.LastObserved); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(triggers, &p.Triggers); err != nil {
		return nil, fmt.Errorf("decode triggers: %w", err)
	}
	if err := unmarshalJSON(strategies, &p.Strategies); err != nil {
		return nil, fmt.Errorf("decode strategies: %w", err)
	}
	return &p, nil
}
