package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/odiumxp/ai-brain/pkg/storage"
)

const traitColumns = `user_id, trait_name, current_value, historical_values, consolidation_count,
	last_consolidated, created_at, last_modified`

// GetTraits returns all traits of a user ordered by name.
func (s *Store) GetTraits(ctx context.Context, userID string) ([]*storage.Trait, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+traitColumns+`
		FROM personality_state WHERE user_id = ? ORDER BY trait_name`), userID)
	if err != nil {
		return nil, fmt.Errorf("GetTraits: %w", err)
	}
	defer rows.Close()

	var traits []*storage.Trait
	for rows.Next() {
		t, err := scanTrait(rows)
		if err != nil {
			return nil, fmt.Errorf("GetTraits: %w", err)
		}
		traits = append(traits, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetTraits: %w", err)
	}
	return traits, nil
}

// UpsertTrait inserts the trait or overwrites the stored row for the same
// (user, trait) pair.
func (s *Store) UpsertTrait(ctx context.Context, t *storage.Trait) error {
	return s.inTx(ctx, "UpsertTrait", func(tx *sql.Tx) error {
		n, err := s.updateTrait(ctx, tx, t)
		if err != nil || n > 0 {
			return err
		}
		return s.insertTrait(ctx, tx, t)
	})
}

// ModifyTrait rewrites one trait under its row lock.
func (s *Store) ModifyTrait(ctx context.Context, userID, name string, fn func(t *storage.Trait, exists bool) error) (*storage.Trait, error) {
	var out *storage.Trait
	err := s.inTx(ctx, "ModifyTrait", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.rebind(`
			SELECT `+traitColumns+`
			FROM personality_state WHERE user_id = ? AND trait_name = ?`+s.dialect.LockClause()), userID, name)
		t, err := scanTrait(row)
		exists := true
		if errors.Is(err, sql.ErrNoRows) {
			t, exists, err = &storage.Trait{UserID: userID, Name: name, History: map[string]float64{}}, false, nil
		}
		if err != nil {
			return err
		}

		if err := fn(t, exists); err != nil {
			if skipped(err) && exists {
				out = t
				return nil
			}
			return err
		}
		t.UserID, t.Name = userID, name
		out = t
		if !exists {
			return s.insertTrait(ctx, tx, t)
		}
		_, err = s.updateTrait(ctx, tx, t)
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

func (s *Store) updateTrait(ctx context.Context, ex execer, t *storage.Trait) (int64, error) {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	historyJSON, lastConsolidated, err := traitValues(t)
	if err != nil {
		return 0, err
	}
	res, err := ex.ExecContext(ctx, s.rebind(`
		UPDATE personality_state
		SET current_value = ?, historical_values = ?, consolidation_count = ?,
			last_consolidated = ?, last_modified = ?
		WHERE user_id = ? AND trait_name = ?`),
		t.Value, historyJSON, t.ConsolidationCount, lastConsolidated, t.UpdatedAt, t.UserID, t.Name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) insertTrait(ctx context.Context, ex execer, t *storage.Trait) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	historyJSON, lastConsolidated, err := traitValues(t)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, s.rebind(`
		INSERT INTO personality_state (`+traitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		t.UserID, t.Name, t.Value, historyJSON, t.ConsolidationCount, lastConsolidated, t.CreatedAt, t.UpdatedAt)
	return err
}

func traitValues(t *storage.Trait) (string, sql.NullTime, error) {
	history := t.History
	if history == nil {
		history = map[string]float64{}
	}
	historyJSON, err := marshalJSON(history)
	if err != nil {
		return "", sql.NullTime{}, err
	}
	var lastConsolidated sql.NullTime
	if t.LastConsolidated != nil {
		lastConsolidated = sql.NullTime{Time: *t.LastConsolidated, Valid: true}
	}
	return historyJSON, lastConsolidated, nil
}

func scanTrait(row rowScanner) (*storage.Trait, error) {
	var (
		t                storage.Trait
		history          string
		lastConsolidated sql.NullTime
	)
	if err := row.Scan(&t.UserID, &t.Name, &t.Value, &history, &t.ConsolidationCount,
		&lastConsolidated, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(history, &t.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if t.History == nil {
		t.History = map[string]float64{}
	}
	if lastConsolidated.Valid {
		lc := lastConsolidated.Time
		t.LastConsolidated = &lc
	}
	return &t, nil
}
