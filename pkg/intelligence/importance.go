// Package intelligence provides the deterministic scoring used across the
// brain: memory importance, emotion maps, vector similarity and the
// Ebbinghaus forgetting curve.
package intelligence

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Importance bounds.
const (
	MinImportance = 0.0
	MaxImportance = 3.0
)

// DefaultSalienceKeywords are the personal-salience words that raise the
// importance of a message.
var DefaultSalienceKeywords = []string{
	"feel", "think", "remember", "important", "love", "hate",
	"want", "need", "dream", "hope", "fear", "believe",
}

// ImportanceEvaluator scores how valuable a message is likely to be for
// future retrieval.
//
// The score is the sum of:
//   - a base of 1.0
//   - 0.5 times the summed absolute emotion intensity
//   - 0.3 for messages longer than 500 characters, plus 0.5 more above 1000
//   - 0.4 when any salience keyword occurs (case-insensitive substring)
//   - 0.2 per question mark
//
// clamped to [0, 3]. Evaluation is pure: the same inputs always produce the
// same score.
//
// Example usage:
//
//	evaluator := NewImportanceEvaluator()
//	score := evaluator.EvaluateImportance("I feel scared???", map[string]float64{"fear": 0.8})
type ImportanceEvaluator struct {
	// keywords are matched lower-cased against the lower-cased message.
	keywords []string

	base           float64
	emotionWeight  float64
	longBonus      float64
	longerBonus    float64
	longLength     int
	longerLength   int
	keywordBonus   float64
	questionWeight float64
}

// NewImportanceEvaluator creates an evaluator with the default weights and
// keyword set.
func NewImportanceEvaluator() *ImportanceEvaluator {
	return NewImportanceEvaluatorWithKeywords(DefaultSalienceKeywords)
}

// NewImportanceEvaluatorWithKeywords creates an evaluator with a custom
// salience keyword set.
func NewImportanceEvaluatorWithKeywords(keywords []string) *ImportanceEvaluator {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			lowered = append(lowered, k)
		}
	}
	return &ImportanceEvaluator{
		keywords:       lowered,
		base:           1.0,
		emotionWeight:  0.5,
		longBonus:      0.3,
		longerBonus:    0.5,
		longLength:     500,
		longerLength:   1000,
		keywordBonus:   0.4,
		questionWeight: 0.2,
	}
}

// EvaluateImportance scores a user message given its emotion map. Length is
// measured in Unicode code points.
func (e *ImportanceEvaluator) EvaluateImportance(message string, emotions map[string]float64) float64 {
	score := e.base

	score += e.emotionWeight * TotalIntensity(emotions)

	length := utf8.RuneCountInString(message)
	if length > e.longLength {
		score += e.longBonus
	}
	if length > e.longerLength {
		score += e.longerBonus
	}

	if e.hasKeyword(message) {
		score += e.keywordBonus
	}

	score += e.questionWeight * float64(strings.Count(message, "?"))

	return ClampImportance(score)
}

func (e *ImportanceEvaluator) hasKeyword(message string) bool {
	lower := strings.ToLower(message)
	for _, keyword := range e.keywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// ClampImportance bounds a score to [MinImportance, MaxImportance]. NaN maps
// to MinImportance.
func ClampImportance(score float64) float64 {
	if math.IsNaN(score) {
		return MinImportance
	}
	return math.Max(MinImportance, math.Min(MaxImportance, score))
}

var defaultEvaluator = NewImportanceEvaluator()

// ScoreImportance scores a message with the default evaluator.
func ScoreImportance(message string, emotions map[string]float64) float64 {
	return defaultEvaluator.EvaluateImportance(message, emotions)
}
