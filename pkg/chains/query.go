package chains

import (
	"context"
	"fmt"
	"strings"

	"github.com/odiumxp/ai-brain/pkg/oracle"
	"github.com/odiumxp/ai-brain/pkg/storage"
)

// DefaultFindLimit applies when Find is called without a limit.
const DefaultFindLimit = 5

// Find returns the user's strongest chains whose summary or topics match
// text. An empty text matches every chain.
func (e *Engine) Find(ctx context.Context, userID, text string, limit int) ([]*storage.Chain, error) {
	if limit <= 0 {
		limit = DefaultFindLimit
	}
	return e.store.ListChains(ctx, storage.ChainQuery{
		UserID: userID,
		Text:   strings.TrimSpace(text),
		Limit:  limit,
	})
}

// ChainMemories is a chain with its memories in sequence order.
type ChainMemories struct {
	Chain    *storage.Chain    `json:"chain"`
	Memories []*storage.Memory `json:"memories"`
}

// GetChainMemories loads a chain and its memories and records one access
// on the chain. Memories deleted since the chain was built are left out.
func (e *Engine) GetChainMemories(ctx context.Context, userID string, chainID int64) (*ChainMemories, error) {
	chain, err := e.store.GetChain(ctx, userID, chainID)
	if err != nil {
		return nil, err
	}

	memories, err := e.store.ListMemories(ctx, storage.MemoryQuery{UserID: userID, IDs: chain.MemoryIDs})
	if err != nil {
		return nil, fmt.Errorf("chain memories: %w", err)
	}
	byID := make(map[int64]*storage.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}
	ordered := make([]*storage.Memory, 0, len(chain.MemoryIDs))
	for _, id := range chain.MemoryIDs {
		if m, ok := byID[id]; ok {
			ordered = append(ordered, m)
		}
	}

	now := e.now().UTC()
	if err := e.store.TouchChain(ctx, userID, chainID, now); err != nil {
		return nil, fmt.Errorf("record chain access: %w", err)
	}
	chain.AccessCount++
	chain.UpdatedAt = now

	return &ChainMemories{Chain: chain, Memories: ordered}, nil
}

// Narrative is a story spanning several chains.
type Narrative struct {
	Topic          string           `json:"topic"`
	ChainsAnalyzed int              `json:"chains_analyzed"`
	Narrative      string           `json:"narrative"`
	KeyChains      []*storage.Chain `json:"key_chains"`

	// Degraded is set when the oracle failed and Narrative only joins the
	// chain summaries.
	Degraded bool `json:"degraded,omitempty"`
}

// GetNarrativeUnderstanding connects up to ten chains matching topic into
// one narrative. It returns nil when the user has no matching chain.
func (e *Engine) GetNarrativeUnderstanding(ctx context.Context, userID, topic string) (*Narrative, error) {
	chains, err := e.Find(ctx, userID, topic, 10)
	if err != nil {
		return nil, err
	}
	if len(chains) == 0 {
		return nil, nil
	}

	digests := make([]oracle.ChainDigest, len(chains))
	for i, c := range chains {
		digests[i] = oracle.ChainDigest{Name: c.Name, Summary: c.Summary, Topics: c.Topics}
	}

	n := &Narrative{
		Topic:          topic,
		ChainsAnalyzed: len(chains),
		KeyChains:      chains,
	}
	if n.Topic == "" {
		n.Topic = "General"
	}
	if len(n.KeyChains) > 3 {
		n.KeyChains = n.KeyChains[:3]
	}

	r := e.text.Narrative(ctx, digests)
	if r.IsOK() {
		n.Narrative = r.Value
		return n, nil
	}

	summaries := make([]string, 0, len(chains))
	for _, c := range chains {
		if c.Summary != "" && c.Summary != PlaceholderSummary {
			summaries = append(summaries, c.Summary)
		}
	}
	n.Narrative = strings.Join(summaries, "\n\n")
	n.Degraded = true
	return n, nil
}
