package chains

import (
	"math"
	"sort"
	"time"

	"github.com/odiumxp/ai-brain/pkg/intelligence"
	"github.com/odiumxp/ai-brain/pkg/storage"
)

// RelationType labels how two memories relate.
type RelationType string

const (
	Continuation RelationType = "continuation"
	Sequential   RelationType = "sequential"
	Emotional    RelationType = "emotional"
	Thematic     RelationType = "thematic"
)

const (
	semanticWeight  = 0.5
	temporalWeight  = 0.3
	emotionalWeight = 0.2

	// temporalHorizon is where temporal proximity reaches zero.
	temporalHorizon = 7 * 24 * time.Hour

	// MeaningfulStrength is the strength a relationship must exceed to
	// count toward a chain.
	MeaningfulStrength = 0.3
)

// Relationship scores memory B (Memory) against a seed memory A.
type Relationship struct {
	Memory    *storage.Memory
	Semantic  float64
	Temporal  float64
	Emotional float64
	Strength  float64
	Type      RelationType
}

// Meaningful reports whether the relationship may join a chain.
func (r Relationship) Meaningful() bool {
	return r.Strength > MeaningfulStrength
}

// Score computes the relationship from a to b. The blend of semantic,
// temporal and emotional signals is scaled by b's importance.
func Score(a, b *storage.Memory) Relationship {
	r := Relationship{
		Memory:    b,
		Semantic:  semanticSimilarity(a, b),
		Temporal:  temporalProximity(a.CreatedAt, b.CreatedAt),
		Emotional: emotionalContinuity(a, b),
	}
	r.Strength = (semanticWeight*r.Semantic + temporalWeight*r.Temporal + emotionalWeight*r.Emotional) * b.Importance
	r.Type = classify(r)
	return r
}

func semanticSimilarity(a, b *storage.Memory) float64 {
	if a.Embedding == nil || b.Embedding == nil {
		return 0
	}
	return intelligence.CosineSimilarity(a.Embedding, b.Embedding)
}

func temporalProximity(a, b time.Time) float64 {
	delta := math.Abs(float64(a.Sub(b)))
	return math.Max(0, 1-delta/float64(temporalHorizon))
}

// emotionalContinuity is 1 for the same dominant emotion, 0.5 for two
// different ones and 0 when either memory has none.
func emotionalContinuity(a, b *storage.Memory) float64 {
	da := intelligence.DominantEmotion(a.Emotions)
	db := intelligence.DominantEmotion(b.Emotions)
	switch {
	case da == "" || db == "":
		return 0
	case da == db:
		return 1
	default:
		return 0.5
	}
}

// classify applies the first matching rule in order.
func classify(r Relationship) RelationType {
	switch {
	case r.Semantic > 0.8:
		return Continuation
	case r.Temporal > 0.7:
		return Sequential
	case r.Emotional > 0.8:
		return Emotional
	default:
		return Thematic
	}
}

// DetectRelationships scores seed against each candidate and returns the
// meaningful relationships, strongest first. The seed itself is skipped.
func DetectRelationships(seed *storage.Memory, candidates []*storage.Memory) []Relationship {
	out := make([]Relationship, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == seed.ID {
			continue
		}
		if r := Score(seed, c); r.Meaningful() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Strength > out[j].Strength
	})
	return out
}
