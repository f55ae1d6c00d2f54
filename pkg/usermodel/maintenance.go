package usermodel

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/odiumxp/ai-brain/pkg/storage"
)

// ActiveUsers returns the users with a memory inside the active window.
func (e *Engine) ActiveUsers(ctx context.Context) ([]string, error) {
	users, err := e.store.ListActiveUsers(ctx, e.now().UTC().Add(-e.cfg.Maintenance.ActiveWindow))
	if err != nil {
		return nil, fmt.Errorf("active users: %w", err)
	}
	return users, nil
}

// Reprocess runs extraction again over the user's memories of the
// reprocess window. Beliefs reinforce once per memory, so repeated runs
// do not inflate them.
func (e *Engine) Reprocess(ctx context.Context, userID string) (int, error) {
	cfg := e.cfg.Maintenance
	memories, err := e.store.ListMemories(ctx, storage.MemoryQuery{
		UserID: userID,
		Since:  e.now().UTC().Add(-cfg.ReprocessWindow),
		Limit:  cfg.ReprocessLimit,
	})
	if err != nil {
		return 0, fmt.Errorf("reprocess: %w", err)
	}

	processed := 0
	for _, m := range memories {
		if _, err := e.ProcessConversation(ctx, userID, m.Text(), m.ID); err != nil {
			return processed, fmt.Errorf("reprocess memory %d: %w", m.ID, err)
		}
		processed++
	}
	return processed, nil
}

// AdvanceGoals nudges the progress of active goals that recent
// conversations keep coming back to. A goal advances by ProgressStep, up
// to ProgressCap, when more than ProgressMinHits of the user's recent
// memories mention one of its significant words.
func (e *Engine) AdvanceGoals(ctx context.Context, userID string) (int, error) {
	cfg := e.cfg.Maintenance
	now := e.now().UTC()

	goals, err := e.store.ListGoals(ctx, storage.GoalQuery{
		UserID:        userID,
		Status:        storage.GoalActive,
		UpdatedBefore: now.Add(-cfg.ProgressIdle),
		Limit:         cfg.ProgressGoals,
	})
	if err != nil {
		return 0, fmt.Errorf("advance goals: %w", err)
	}
	if len(goals) == 0 {
		return 0, nil
	}

	texts, err := e.recentTexts(ctx, userID, now.Add(-cfg.ProgressLookback), cfg.ProgressMemories)
	if err != nil {
		return 0, fmt.Errorf("advance goals: %w", err)
	}

	advanced := 0
	for _, g := range goals {
		if g.Progress >= cfg.ProgressCap {
			continue
		}
		words := goalWords(g.Description)
		hits := 0
		for _, text := range texts {
			if mentionsAny(text, words) {
				hits++
			}
		}
		if hits <= cfg.ProgressMinHits {
			continue
		}

		moved := false
		updated, err := e.store.ModifyGoal(ctx, userID, g.ID, func(g *storage.Goal) error {
			moved = false
			if g.Status != storage.GoalActive || g.Progress >= cfg.ProgressCap {
				return storage.ErrSkipWrite
			}
			g.Progress = clampInt(g.Progress+cfg.ProgressStep, 0, cfg.ProgressCap)
			g.UpdatedAt = now
			moved = true
			return nil
		})
		if storage.IsNotFound(err) {
			continue
		}
		if err != nil {
			return advanced, fmt.Errorf("advance goal %d: %w", g.ID, err)
		}
		if !moved {
			continue
		}
		e.logger.Debug().Str("user_id", userID).Int64("goal_id", g.ID).Int("progress", updated.Progress).Msg("goal progress advanced")
		advanced++
	}
	return advanced, nil
}

// PrioritizeGoals raises by one, up to 10, the priority of active goals
// whose description appears verbatim in a recent memory.
func (e *Engine) PrioritizeGoals(ctx context.Context, userID string) (int, error) {
	cfg := e.cfg.Maintenance
	now := e.now().UTC()

	goals, err := e.store.ListGoals(ctx, storage.GoalQuery{UserID: userID, Status: storage.GoalActive})
	if err != nil {
		return 0, fmt.Errorf("prioritize goals: %w", err)
	}
	if len(goals) == 0 {
		return 0, nil
	}
	texts, err := e.recentTexts(ctx, userID, now.Add(-cfg.GoalMentionWindow), 0)
	if err != nil {
		return 0, fmt.Errorf("prioritize goals: %w", err)
	}

	raised := 0
	for _, g := range goals {
		description := strings.ToLower(g.Description)
		mentioned := false
		for _, text := range texts {
			if strings.Contains(text, description) {
				mentioned = true
				break
			}
		}
		if !mentioned {
			continue
		}
		_, err := e.store.ModifyGoal(ctx, userID, g.ID, func(g *storage.Goal) error {
			g.Priority = clampInt(g.Priority+1, 1, 10)
			g.UpdatedAt = now
			return nil
		})
		if storage.IsNotFound(err) {
			continue
		}
		if err != nil {
			return raised, fmt.Errorf("prioritize goal %d: %w", g.ID, err)
		}
		raised++
	}
	return raised, nil
}

// StrengthenBeliefs multiplies the strength of every active belief
// reinforced inside the belief window by BeliefFactor, capped at 1.
func (e *Engine) StrengthenBeliefs(ctx context.Context) (int64, error) {
	cfg := e.cfg.Maintenance
	n, err := e.store.StrengthenBeliefs(ctx, e.now().UTC().Add(-cfg.BeliefWindow), cfg.BeliefFactor)
	if err != nil {
		return 0, fmt.Errorf("strengthen beliefs: %w", err)
	}
	return n, nil
}

// CleanupReport counts the rows retired by Cleanup.
type CleanupReport struct {
	BeliefsDeactivated int64 `json:"beliefs_deactivated"`
	GoalsAbandoned     int64 `json:"goals_abandoned"`
}

// Cleanup deactivates weak beliefs that were not reinforced for the
// retention period and abandons untouched goals without progress.
func (e *Engine) Cleanup(ctx context.Context) (*CleanupReport, error) {
	cfg := e.cfg.Maintenance
	now := e.now().UTC()

	beliefs, err := e.store.DeactivateBeliefs(ctx, now.Add(-cfg.BeliefRetention), cfg.WeakBelief)
	if err != nil {
		return nil, fmt.Errorf("cleanup beliefs: %w", err)
	}
	goals, err := e.store.AbandonGoals(ctx, now.Add(-cfg.GoalRetention))
	if err != nil {
		return nil, fmt.Errorf("cleanup goals: %w", err)
	}
	return &CleanupReport{BeliefsDeactivated: beliefs, GoalsAbandoned: goals}, nil
}

// PruneMentalStates keeps the newest MentalStatesKept snapshots of a user.
func (e *Engine) PruneMentalStates(ctx context.Context, userID string) (int64, error) {
	n, err := e.store.PruneMentalStates(ctx, userID, e.cfg.Maintenance.MentalStatesKept)
	if err != nil {
		return 0, fmt.Errorf("prune mental states: %w", err)
	}
	return n, nil
}

// AnalyzeMentalState infers a snapshot over a wider window than the one
// used while chatting.
func (e *Engine) AnalyzeMentalState(ctx context.Context, userID string) (*storage.MentalState, error) {
	return e.InferMentalState(ctx, userID, e.cfg.Maintenance.AnalysisMemories)
}

// recentTexts returns the lower-cased text of the user's memories created
// at or after since, newest first.
func (e *Engine) recentTexts(ctx context.Context, userID string, since time.Time, limit int) ([]string, error) {
	memories, err := e.store.ListMemories(ctx, storage.MemoryQuery{UserID: userID, Since: since, Limit: limit})
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(memories))
	for i, m := range memories {
		texts[i] = strings.ToLower(m.Text())
	}
	return texts, nil
}

// goalWords returns the lower-cased words of a description longer than
// three characters.
func goalWords(description string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(description)) {
		if utf8.RuneCountInString(w) > 3 {
			words = append(words, w)
		}
	}
	return words
}

func mentionsAny(text string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}
