package intelligence

import (
	"math"
	"sort"
)

// BaseEmotions is the emotion vocabulary requested from the text oracle.
var BaseEmotions = []string{"joy", "sadness", "anger", "fear", "surprise"}

// NeutralEmotions returns an all-zero map over BaseEmotions.
func NeutralEmotions() map[string]float64 {
	m := make(map[string]float64, len(BaseEmotions))
	for _, e := range BaseEmotions {
		m[e] = 0
	}
	return m
}

// NormalizeEmotions clamps every intensity to [0,1] and drops NaN values.
func NormalizeEmotions(emotions map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(emotions))
	for name, v := range emotions {
		if math.IsNaN(v) {
			continue
		}
		out[name] = math.Max(0, math.Min(1, v))
	}
	return out
}

// TotalIntensity sums the absolute intensities of an emotion map.
func TotalIntensity(emotions map[string]float64) float64 {
	total := 0.0
	for _, v := range emotions {
		if math.IsNaN(v) {
			continue
		}
		total += math.Abs(v)
	}
	return total
}

// DominantEmotion returns the emotion with the highest strictly positive
// intensity. Ties go to the alphabetically first name. It returns "" when
// no emotion is present.
func DominantEmotion(emotions map[string]float64) string {
	names := make([]string, 0, len(emotions))
	for name := range emotions {
		names = append(names, name)
	}
	sort.Strings(names)

	best, bestValue := "", 0.0
	for _, name := range names {
		if v := emotions[name]; v > bestValue {
			best, bestValue = name, v
		}
	}
	return best
}
