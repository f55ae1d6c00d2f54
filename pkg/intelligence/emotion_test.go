package intelligence_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odiumxp/ai-brain/pkg/intelligence"
)

func TestDominantEmotion(t *testing.T) {
	assert.Equal(t, "fear", intelligence.DominantEmotion(map[string]float64{"fear": 0.8, "sadness": 0.2}))
	assert.Equal(t, "anger", intelligence.DominantEmotion(map[string]float64{"joy": 0.5, "anger": 0.5}))
	assert.Equal(t, "", intelligence.DominantEmotion(intelligence.NeutralEmotions()))
	assert.Equal(t, "", intelligence.DominantEmotion(nil))
}

func TestNormalizeEmotions(t *testing.T) {
	got := intelligence.NormalizeEmotions(map[string]float64{"joy": 1.7, "fear": -0.2, "anger": math.NaN()})
	assert.Equal(t, map[string]float64{"joy": 1, "fear": 0}, got)
}

func TestNeutralEmotions(t *testing.T) {
	neutral := intelligence.NeutralEmotions()
	assert.Len(t, neutral, len(intelligence.BaseEmotions))
	assert.Zero(t, intelligence.TotalIntensity(neutral))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, intelligence.CosineSimilarity([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, intelligence.CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, intelligence.CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.Zero(t, intelligence.CosineSimilarity([]float64{1}, []float64{1, 2}))
	assert.Zero(t, intelligence.CosineSimilarity([]float64{0, 0}, []float64{1, 2}))
	assert.Zero(t, intelligence.CosineSimilarity(nil, nil))
}

func TestNormalizeVector(t *testing.T) {
	v := intelligence.NormalizeVector([]float64{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-9)
	assert.InDelta(t, 0.8, v[1], 1e-9)
	assert.Equal(t, []float64{0, 0}, intelligence.NormalizeVector([]float64{0, 0}))
}
