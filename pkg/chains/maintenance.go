package chains

import (
	"context"
	"fmt"
	"math"

	"github.com/odiumxp/ai-brain/pkg/storage"
)

// CleanupReport counts the effects of Cleanup.
type CleanupReport struct {
	Deleted int64 `json:"deleted"`
	Decayed int   `json:"decayed"`
}

// Cleanup deletes weak, never accessed chains past the retention window,
// then decays the chains that were not updated recently.
func (e *Engine) Cleanup(ctx context.Context) (*CleanupReport, error) {
	now := e.now().UTC()
	cfg := e.cfg.Cleanup

	deleted, err := e.store.DeleteChains(ctx, cfg.MaxStrength, now.Add(-cfg.MinAge))
	if err != nil {
		return nil, fmt.Errorf("cleanup chains: %w", err)
	}

	decayed, err := e.Decay(ctx)
	if err != nil {
		return nil, err
	}

	e.logger.Info().Int64("deleted", deleted).Int("decayed", decayed).Msg("memory chains cleaned up")
	return &CleanupReport{Deleted: deleted, Decayed: decayed}, nil
}

// DecayedStrength pulls strength down by 10% and back up by 0.01 per
// access, never below floor.
func DecayedStrength(strength float64, accessCount int64, floor float64) float64 {
	return math.Max(floor, strength*0.9+float64(accessCount)*0.01)
}

// Decay applies DecayedStrength to every chain not updated within the
// idle window. last_updated is left alone.
func (e *Engine) Decay(ctx context.Context) (int, error) {
	cfg := e.cfg.Cleanup
	stale, err := e.store.ListStaleChains(ctx, e.now().UTC().Add(-cfg.DecayIdle), 0)
	if err != nil {
		return 0, fmt.Errorf("decay chains: %w", err)
	}

	decayed := 0
	for _, c := range stale {
		strength := DecayedStrength(c.Strength, c.AccessCount, cfg.DecayFloor)
		if math.Abs(strength-c.Strength) < 1e-12 {
			continue
		}
		if err := e.store.UpdateChainStrength(ctx, c.ID, strength); err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return decayed, fmt.Errorf("decay chain %d: %w", c.ID, err)
		}
		decayed++
	}
	return decayed, nil
}

// DeepCleanup deletes every never accessed chain older than the deep
// cleanup age, whatever its strength.
func (e *Engine) DeepCleanup(ctx context.Context) (int64, error) {
	deleted, err := e.store.DeleteChains(ctx, 0, e.now().UTC().Add(-e.cfg.Cleanup.DeepCleanupAge))
	if err != nil {
		return 0, fmt.Errorf("deep cleanup chains: %w", err)
	}
	e.logger.Info().Int64("deleted", deleted).Msg("memory chains deep cleanup")
	return deleted, nil
}

// Rebuild builds chains for one active user with the maintenance bounds.
func (e *Engine) Rebuild(ctx context.Context, userID string) (int, error) {
	return e.Build(ctx, userID, BuildOptions{
		MaxSeeds: e.cfg.RebuildSeeds,
		Lookback: e.cfg.RebuildLookback,
	})
}

// Strengthen tries to extend the strong or popular chains that were not
// updated recently and returns the number extended. Failures on one chain
// are logged and do not stop the others.
func (e *Engine) Strengthen(ctx context.Context) (int, error) {
	cfg := e.cfg.Extend
	stale, err := e.store.ListStaleChains(ctx, e.now().UTC().Add(-cfg.Idle), 0)
	if err != nil {
		return 0, fmt.Errorf("strengthen chains: %w", err)
	}

	extended, considered := 0, 0
	for _, c := range stale {
		if c.Strength <= cfg.MinStrength && c.AccessCount <= cfg.MinAccess {
			continue
		}
		if cfg.Limit > 0 && considered >= cfg.Limit {
			break
		}
		considered++

		ok, err := e.Extend(ctx, c)
		if err != nil {
			e.logger.Error().Err(err).Str("user_id", c.UserID).Int64("chain_id", c.ID).Msg("extend chain failed")
			continue
		}
		if ok {
			extended++
		}
	}
	return extended, nil
}

// Extend appends the strongest newer memory related to the chain's last
// memory when its strength exceeds the extension threshold. The existing
// sequence is kept and the chain strength only ever rises.
func (e *Engine) Extend(ctx context.Context, c *storage.Chain) (bool, error) {
	last, err := e.store.GetMemory(ctx, c.UserID, c.EndMemoryID)
	if storage.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	candidates, err := e.store.ListMemories(ctx, storage.MemoryQuery{
		UserID:    c.UserID,
		Since:     last.CreatedAt,
		ExcludeID: last.ID,
		Limit:     e.cfg.Extend.Window,
		Ascending: true,
	})
	if err != nil {
		return false, fmt.Errorf("extend chain: %w", err)
	}
	fresh := candidates[:0]
	for _, m := range candidates {
		if m.CreatedAt.After(last.CreatedAt) && !c.Contains(m.ID) {
			fresh = append(fresh, m)
		}
	}

	rels := DetectRelationships(last, fresh)
	if len(rels) == 0 || rels[0].Strength <= e.cfg.Extend.Threshold {
		return false, nil
	}
	best := rels[0]

	c.MemoryIDs = append(c.MemoryIDs, best.Memory.ID)
	c.EndMemoryID = best.Memory.ID
	c.Strength = math.Max(c.Strength, best.Strength)
	c.Topics = mergeTopics(c.Topics, ExtractTopics([]*storage.Memory{best.Memory}))
	c.UpdatedAt = e.now().UTC()
	if err := e.store.UpdateChain(ctx, c); err != nil {
		return false, fmt.Errorf("extend chain: %w", err)
	}

	e.logger.Debug().
		Str("user_id", c.UserID).
		Int64("chain_id", c.ID).
		Int64("memory_id", best.Memory.ID).
		Float64("strength", best.Strength).
		Msg("memory chain extended")
	return true, nil
}
