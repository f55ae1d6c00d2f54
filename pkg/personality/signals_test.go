package personality_test

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odiumxp/ai-brain/pkg/personality"
)

func TestAnalyzeTraits_Markers(t *testing.T) {
	texts := []string{
		"User: haha that joke was FUNNY!!!\nAI: glad you liked it",
		"User: honestly, I understand. Why? How?\nAI: I'm here for you",
	}
	signals := personality.AnalyzeTraits(texts)

	assert.Equal(t, 5.0, signals[personality.Humor])
	assert.Equal(t, 5.0, signals[personality.Empathy])
	assert.Equal(t, 5.0, signals[personality.Directness])
	assert.Equal(t, 5.0, signals[personality.Enthusiasm])
	assert.Equal(t, 5.0, signals[personality.Curiosity])
	assert.Equal(t, 0.0, signals[personality.Patience])
	assert.Equal(t, 5.0, signals[personality.Formality])
	assert.Len(t, signals, len(personality.Traits))
}

func TestAnalyzeTraits_Formality(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  float64
	}{
		{"formal", []string{"Would you kindly help, please?"}, 10},
		{"casual", []string{"yeah gonna be awesome"}, 2.5},
		{"tie", []string{"yeah, please"}, 5},
		{"mixed", []string{"please", "cool", "nothing"}, 5 + 5*(1-0.5)/3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, personality.AnalyzeTraits(tt.texts)[personality.Formality], 1e-9)
		})
	}
}

func TestAnalyzeTraits_Patience(t *testing.T) {
	signals := personality.AnalyzeTraits([]string{strings.Repeat("a", 801), "short"})
	assert.Equal(t, 5.0, signals[personality.Patience])
}

func TestAnalyzeTraits_Empty(t *testing.T) {
	assert.Nil(t, personality.AnalyzeTraits(nil))
}

func TestEvolveValue_ConvergesToSignal(t *testing.T) {
	value := 5.0
	runs := 0
	for ; runs < 20; runs++ {
		next := personality.EvolveValue(value, 8, 0.1)
		assert.Greater(t, next, value)
		assert.LessOrEqual(t, next, 8.0)
		value = next
	}
	assert.InDelta(t, 8-3*math.Pow(0.9, 20), value, 1e-9)

	for ; value < 7.9; runs++ {
		value = personality.EvolveValue(value, 8, 0.1)
	}
	assert.Equal(t, 33, runs)

	for i := 0; i < 300; i++ {
		value = personality.EvolveValue(value, 8, 0.1)
	}
	assert.InDelta(t, 8.0, value, 1e-9)
}

func TestEvolveValue_Clamps(t *testing.T) {
	assert.Equal(t, 10.0, personality.EvolveValue(10, 50, 0.5))
	assert.Equal(t, 0.0, personality.EvolveValue(0, -50, 0.5))
}
