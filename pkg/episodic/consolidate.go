package episodic

import (
	"context"
	"fmt"
	"math"

	"github.com/odiumxp/ai-brain/pkg/storage"
)

// ConsolidationReport counts the effects of one consolidation pass.
type ConsolidationReport struct {
	Scanned   int   `json:"scanned"`
	Updated   int   `json:"updated"`
	Forgotten int64 `json:"forgotten"`
}

// Consolidate re-derives the importance of a user's unpinned memories from
// their write-time score, the forgetting curve and their access history, then
// forgets the ones that faded away. Pinned memories are never read or
// changed here.
func (e *Engine) Consolidate(ctx context.Context, userID string) (*ConsolidationReport, error) {
	now := e.now().UTC()
	report := &ConsolidationReport{}

	memories, err := e.store.ListMemories(ctx, storage.MemoryQuery{
		UserID:       userID,
		Before:       now.Add(-e.cfg.ConsolidationMinAge),
		UnpinnedOnly: true,
		Ascending:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("consolidate: %w", err)
	}
	report.Scanned = len(memories)

	for _, m := range memories {
		if m.Pinned {
			continue
		}
		retention := e.ebbinghaus.CalculateRetention(m.CreatedAt, m.LastAccessed, now)
		importance := e.ebbinghaus.ConsolidatedImportance(m.BaseImportance, m.AccessCount, retention)
		if math.Abs(importance-m.Importance) < 1e-9 {
			continue
		}
		if err := e.store.UpdateImportance(ctx, userID, m.ID, importance); err != nil {
			return nil, fmt.Errorf("consolidate memory %d: %w", m.ID, err)
		}
		m.Importance = importance
		report.Updated++
	}

	forgotten, err := e.store.DeleteForgettable(ctx, userID, e.ebbinghaus.ForgetThreshold(), now.Add(-e.ebbinghaus.ForgetAge()))
	if err != nil {
		return nil, fmt.Errorf("forget memories: %w", err)
	}
	report.Forgotten = forgotten

	e.logger.Info().
		Str("user_id", userID).
		Int("scanned", report.Scanned).
		Int("updated", report.Updated).
		Int64("forgotten", report.Forgotten).
		Msg("memories consolidated")
	return report, nil
}
