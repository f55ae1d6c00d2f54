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

const beliefColumns = `id, user_id, belief_statement, belief_key, belief_category, belief_strength,
	confidence_level, evidence_sources, is_active, first_expressed, last_reinforced`

const goalColumns = `id, user_id, goal_description, goal_key, goal_category, priority_level,
	progress_percentage, status, success_criteria, first_mentioned, last_updated`

const mentalStateColumns = `id, user_id, dominant_emotion, emotional_intensity, cognitive_load,
	attention_focus, decision_making_style, communication_style, stress_indicators,
	motivation_level, inferred_needs, confidence_score, created_at`

// FindBelief looks a belief up by its normalized statement.
func (s *Store) FindBelief(ctx context.Context, userID, key string) (*storage.Belief, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+beliefColumns+` FROM user_beliefs WHERE user_id = ? AND belief_key = ?`), userID, key)
	b, err := scanBelief(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.NotFoundError{Entity: "belief", ID: key}
	}
	if err != nil {
		return nil, fmt.Errorf("FindBelief: %w", err)
	}
	return b, nil
}

// InsertBelief stores a new belief.
func (s *Store) InsertBelief(ctx context.Context, b *storage.Belief) error {
	if err := s.insertBelief(ctx, s.db, b); err != nil {
		return fmt.Errorf("InsertBelief: %w", err)
	}
	return nil
}

// UpdateBelief rewrites the mutable fields of a belief.
func (s *Store) UpdateBelief(ctx context.Context, b *storage.Belief) error {
	n, err := s.updateBelief(ctx, s.db, b)
	if err != nil {
		return fmt.Errorf("UpdateBelief: %w", err)
	}
	if n == 0 {
		return &storage.NotFoundError{Entity: "belief", ID: fmt.Sprint(b.ID)}
	}
	return nil
}

// UpsertBelief reinforces or creates the belief stored under key. A
// concurrent insert of the same key loses on the unique index and is
// retried as a reinforcement.
func (s *Store) UpsertBelief(ctx context.Context, userID, key string, fn func(b *storage.Belief, exists bool) error) (*storage.Belief, error) {
	var out *storage.Belief
	err := s.inTx(ctx, "UpsertBelief", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.rebind(`SELECT `+beliefColumns+` FROM user_beliefs WHERE user_id = ? AND belief_key = ?`+s.dialect.LockClause()), userID, key)
		b, err := scanBelief(row)
		exists := true
		if errors.Is(err, sql.ErrNoRows) {
			b, exists, err = &storage.Belief{UserID: userID, Key: key, Active: true}, false, nil
		}
		if err != nil {
			return err
		}

		if err := fn(b, exists); err != nil {
			if skipped(err) && exists {
				out = b
				return nil
			}
			return err
		}
		b.UserID, b.Key = userID, key
		out = b
		if !exists {
			return s.insertBelief(ctx, tx, b)
		}
		_, err = s.updateBelief(ctx, tx, b)
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

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) insertBelief(ctx context.Context, ex execer, b *storage.Belief) error {
	if b.ID == 0 {
		b.ID = s.nextID()
	}
	evidence, err := marshalJSON(nonNilIDs(b.Evidence))
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, s.rebind(`
		INSERT INTO user_beliefs (`+beliefColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		b.ID, b.UserID, b.Statement, b.Key, b.Category, b.Strength,
		b.Confidence, evidence, b.Active, b.FirstExpressed, b.LastReinforced)
	return err
}

func (s *Store) updateBelief(ctx context.Context, ex execer, b *storage.Belief) (int64, error) {
	evidence, err := marshalJSON(nonNilIDs(b.Evidence))
	if err != nil {
		return 0, err
	}
	res, err := ex.ExecContext(ctx, s.rebind(`
		UPDATE user_beliefs
		SET belief_strength = ?, confidence_level = ?, evidence_sources = ?, is_active = ?, last_reinforced = ?
		WHERE user_id = ? AND id = ?`),
		b.Strength, b.Confidence, evidence, b.Active, b.LastReinforced, b.UserID, b.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListBeliefs returns beliefs ordered by strength then recency.
func (s *Store) ListBeliefs(ctx context.Context, q storage.BeliefQuery) ([]*storage.Belief, error) {
	conditions := []string{"user_id = ?"}
	args := []interface{}{q.UserID}
	if q.ActiveOnly {
		conditions = append(conditions, "is_active = ?")
		args = append(args, true)
	}
	if q.Category != "" {
		conditions = append(conditions, "belief_category = ?")
		args = append(args, q.Category)
	}
	query := `SELECT ` + beliefColumns + ` FROM user_beliefs WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY belief_strength DESC, last_reinforced DESC, id ASC`
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("ListBeliefs: %w", err)
	}
	defer rows.Close()

	var beliefs []*storage.Belief
	for rows.Next() {
		b, err := scanBelief(rows)
		if err != nil {
			return nil, fmt.Errorf("ListBeliefs: %w", err)
		}
		beliefs = append(beliefs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListBeliefs: %w", err)
	}
	return beliefs, nil
}

// StrengthenBeliefs multiplies the strength of recently reinforced active
// beliefs by factor, capped at 1.
func (s *Store) StrengthenBeliefs(ctx context.Context, reinforcedSince time.Time, factor float64) (int64, error) {
	return s.execAffected(ctx, "StrengthenBeliefs", `
		UPDATE user_beliefs
		SET belief_strength = CASE WHEN belief_strength * ? > 1 THEN 1 ELSE belief_strength * ? END
		WHERE last_reinforced > ? AND is_active = ?`,
		factor, factor, reinforcedSince, true)
}

// DeactivateBeliefs retires weak beliefs that were not reinforced recently.
func (s *Store) DeactivateBeliefs(ctx context.Context, reinforcedBefore time.Time, maxStrength float64) (int64, error) {
	return s.execAffected(ctx, "DeactivateBeliefs", `
		UPDATE user_beliefs SET is_active = ?
		WHERE is_active = ? AND last_reinforced < ? AND belief_strength < ?`,
		false, true, reinforcedBefore, maxStrength)
}

// FindGoal looks a goal up by its normalized description.
func (s *Store) FindGoal(ctx context.Context, userID, key string) (*storage.Goal, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+goalColumns+` FROM user_goals WHERE user_id = ? AND goal_key = ?`), userID, key)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.NotFoundError{Entity: "goal", ID: key}
	}
	if err != nil {
		return nil, fmt.Errorf("FindGoal: %w", err)
	}
	return g, nil
}

// GetGoal returns one goal of a user.
func (s *Store) GetGoal(ctx context.Context, userID string, id int64) (*storage.Goal, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+goalColumns+` FROM user_goals WHERE user_id = ? AND id = ?`), userID, id)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.NotFoundError{Entity: "goal", ID: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("GetGoal: %w", err)
	}
	return g, nil
}

// InsertGoal stores a new goal.
func (s *Store) InsertGoal(ctx context.Context, g *storage.Goal) error {
	if err := s.insertGoal(ctx, s.db, g); err != nil {
		return fmt.Errorf("InsertGoal: %w", err)
	}
	return nil
}

// UpdateGoal rewrites the mutable fields of a goal.
func (s *Store) UpdateGoal(ctx context.Context, g *storage.Goal) error {
	n, err := s.updateGoal(ctx, s.db, g)
	if err != nil {
		return fmt.Errorf("UpdateGoal: %w", err)
	}
	if n == 0 {
		return &storage.NotFoundError{Entity: "goal", ID: fmt.Sprint(g.ID)}
	}
	return nil
}

// UpsertGoal updates or creates the goal stored under key.
func (s *Store) UpsertGoal(ctx context.Context, userID, key string, fn func(g *storage.Goal, exists bool) error) (*storage.Goal, error) {
	var out *storage.Goal
	err := s.inTx(ctx, "UpsertGoal", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.rebind(`SELECT `+goalColumns+` FROM user_goals WHERE user_id = ? AND goal_key = ?`+s.dialect.LockClause()), userID, key)
		g, err := scanGoal(row)
		exists := true
		if errors.Is(err, sql.ErrNoRows) {
			g, exists, err = &storage.Goal{UserID: userID, Key: key, Status: storage.GoalActive}, false, nil
		}
		if err != nil {
			return err
		}

		if err := fn(g, exists); err != nil {
			if skipped(err) && exists {
				out = g
				return nil
			}
			return err
		}
		g.UserID, g.Key = userID, key
		out = g
		if !exists {
			return s.insertGoal(ctx, tx, g)
		}
		_, err = s.updateGoal(ctx, tx, g)
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

// ModifyGoal applies fn to one goal under its row lock.
func (s *Store) ModifyGoal(ctx context.Context, userID string, id int64, fn func(g *storage.Goal) error) (*storage.Goal, error) {
	var out *storage.Goal
	err := s.inTx(ctx, "ModifyGoal", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.rebind(`SELECT `+goalColumns+` FROM user_goals WHERE user_id = ? AND id = ?`+s.dialect.LockClause()), userID, id)
		g, err := scanGoal(row)
		if errors.Is(err, sql.ErrNoRows) {
			return &storage.NotFoundError{Entity: "goal", ID: fmt.Sprint(id)}
		}
		if err != nil {
			return err
		}
		out = g
		if err := fn(g); err != nil {
			if skipped(err) {
				return nil
			}
			return err
		}
		_, err = s.updateGoal(ctx, tx, g)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) insertGoal(ctx context.Context, ex execer, g *storage.Goal) error {
	if g.ID == 0 {
		g.ID = s.nextID()
	}
	_, err := ex.ExecContext(ctx, s.rebind(`
		INSERT INTO user_goals (`+goalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		g.ID, g.UserID, g.Description, g.Key, g.Category, g.Priority,
		g.Progress, string(g.Status), g.SuccessCriteria, g.FirstMentioned, g.UpdatedAt)
	return err
}

func (s *Store) updateGoal(ctx context.Context, ex execer, g *storage.Goal) (int64, error) {
	res, err := ex.ExecContext(ctx, s.rebind(`
		UPDATE user_goals
		SET priority_level = ?, progress_percentage = ?, status = ?, last_updated = ?
		WHERE user_id = ? AND id = ?`),
		g.Priority, g.Progress, string(g.Status), g.UpdatedAt, g.UserID, g.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListGoals returns goals ordered by priority then age. An empty UserID
// lists goals of every user.
func (s *Store) ListGoals(ctx context.Context, q storage.GoalQuery) ([]*storage.Goal, error) {
	conditions := []string{}
	args := []interface{}{}
	if q.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, q.UserID)
	}
	if q.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(q.Status))
	}
	if !q.UpdatedBefore.IsZero() {
		conditions = append(conditions, "last_updated < ?")
		args = append(args, q.UpdatedBefore)
	}

	query := `SELECT ` + goalColumns + ` FROM user_goals`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY priority_level DESC, first_mentioned DESC, id ASC`
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("ListGoals: %w", err)
	}
	defer rows.Close()

	var goals []*storage.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("ListGoals: %w", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListGoals: %w", err)
	}
	return goals, nil
}

// AbandonGoals marks active goals without progress and without updates
// since the cutoff as abandoned.
func (s *Store) AbandonGoals(ctx context.Context, updatedBefore time.Time) (int64, error) {
	return s.execAffected(ctx, "AbandonGoals", `
		UPDATE user_goals SET status = ?
		WHERE status = ? AND last_updated < ? AND progress_percentage = 0`,
		string(storage.GoalAbandoned), string(storage.GoalActive), updatedBefore)
}

// InsertMentalState appends a snapshot.
func (s *Store) InsertMentalState(ctx context.Context, m *storage.MentalState) error {
	if m.ID == 0 {
		m.ID = s.nextID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	stress, err := marshalJSON(nonNilStrings(m.StressIndicators))
	if err != nil {
		return fmt.Errorf("InsertMentalState: %w", err)
	}
	needs, err := marshalJSON(nonNilStrings(m.InferredNeeds))
	if err != nil {
		return fmt.Errorf("InsertMentalState: %w", err)
	}
	_, err = s.exec(ctx, "InsertMentalState", `
		INSERT INTO mental_states (`+mentalStateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.DominantEmotion, m.Intensity, m.CognitiveLoad,
		m.AttentionFocus, m.DecisionStyle, m.CommunicationStyle, stress,
		m.MotivationLevel, needs, m.Confidence, m.CreatedAt)
	return err
}

// LatestMentalState returns the newest snapshot of a user.
func (s *Store) LatestMentalState(ctx context.Context, userID string) (*storage.MentalState, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+mentalStateColumns+` FROM mental_states WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`), userID)

	var (
		m             storage.MentalState
		stress, needs string
	)
	err := row.Scan(&m.ID, &m.UserID, &m.DominantEmotion, &m.Intensity, &m.CognitiveLoad,
		&m.AttentionFocus, &m.DecisionStyle, &m.CommunicationStyle, &stress,
		&m.MotivationLevel, &needs, &m.Confidence, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.NotFoundError{Entity: "mental state", ID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("LatestMentalState: %w", err)
	}
	if err := unmarshalJSON(stress, &m.StressIndicators); err != nil {
		return nil, fmt.Errorf("LatestMentalState: %w", err)
	}
	if err := unmarshalJSON(needs, &m.InferredNeeds); err != nil {
		return nil, fmt.Errorf("LatestMentalState: %w", err)
	}
	return &m, nil
}

// PruneMentalStates keeps the newest keep snapshots of a user.
func (s *Store) PruneMentalStates(ctx context.Context, userID string, keep int) (int64, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id FROM mental_states WHERE user_id = ? ORDER BY created_at DESC, id DESC`), userID)
	if err != nil {
		return 0, fmt.Errorf("PruneMentalStates: %w", err)
	}
	var stale []int64
	position := 0
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("PruneMentalStates: %w", err)
		}
		if position >= keep {
			stale = append(stale, id)
		}
		position++
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("PruneMentalStates: %w", err)
	}
	rows.Close()

	if len(stale) == 0 {
		return 0, nil
	}
	args := append([]interface{}{userID}, int64Args(stale)...)
	return s.execAffected(ctx, "PruneMentalStates",
		`DELETE FROM mental_states WHERE user_id = ? AND id IN (`+placeholders(len(stale))+`)`, args...)
}

func scanBelief(row rowScanner) (*storage.Belief, error) {
	var (
		b        storage.Belief
		evidence string
	)
	err := row.Scan(&b.ID, &b.UserID, &b.Statement, &b.Key, &b.Category, &b.Strength,
		&b.Confidence, &evidence, &b.Active, &b.FirstExpressed, &b.LastReinforced)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(evidence, &b.Evidence); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}
	return &b, nil
}

func scanGoal(row rowScanner) (*storage.Goal, error) {
	var (
		g      storage.Goal
		status string
	)
	err := row.Scan(&g.ID, &g.UserID, &g.Description, &g.Key, &g.Category, &g.Priority,
		&g.Progress, &status, &g.SuccessCriteria, &g.FirstMentioned, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	g.Status = storage.GoalStatus(status)
	return &g, nil
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
