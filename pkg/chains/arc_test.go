package chains_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/odiumxp/ai-brain/pkg/chains"
	"github.com/odiumxp/ai-brain/pkg/storage"
)

func TestExtractTopics(t *testing.T) {
	memories := []*storage.Memory{
		{UserText: "My Project at work is late", AIText: "Let's plan it"},
		{UserText: "A trip with a friend", AIText: "Travel is fun"},
	}
	assert.Equal(t, []string{"project", "work", "friend", "travel", "plan"}, chains.ExtractTopics(memories))
	assert.Empty(t, chains.ExtractTopics(nil))
}

func TestAnalyzeEmotionalArc(t *testing.T) {
	memories := []*storage.Memory{
		{Emotions: map[string]float64{"fear": 0.6}, CreatedAt: base},
		{Emotions: map[string]float64{"joy": 0.2}, CreatedAt: base.Add(time.Hour)},
		{Emotions: nil, CreatedAt: base.Add(2 * time.Hour)},
		{Emotions: map[string]float64{"joy": 0.9, "fear": 0.1}, CreatedAt: base.Add(3 * time.Hour)},
	}

	arc := chains.AnalyzeEmotionalArc(memories)
	assert.Equal(t, "fear", arc.Start)
	assert.Equal(t, "joy", arc.End)
	assert.Equal(t, "joy", arc.Dominant)
	assert.InDelta(t, 0.5, arc.Volatility, 1e-9)
	assert.Len(t, arc.Progression, 3)
	assert.Equal(t, 3, arc.Progression[2].Position)

	empty := chains.AnalyzeEmotionalArc([]*storage.Memory{{}})
	assert.Empty(t, empty.Dominant)
	assert.Zero(t, empty.Volatility)
}

func TestChainName(t *testing.T) {
	same := []*storage.Memory{{CreatedAt: base}, {CreatedAt: base.Add(time.Hour)}}
	assert.Equal(t, "Narrative Chain (2024-03-01)", chains.ChainName("narrative", same))

	span := []*storage.Memory{{CreatedAt: base}, {CreatedAt: base.Add(48 * time.Hour)}}
	assert.Equal(t, "Thematic Chain (2024-03-01 - 2024-03-03)", chains.ChainName("thematic", span))

	assert.Equal(t, "Empty Chain", chains.ChainName("narrative", nil))
}
