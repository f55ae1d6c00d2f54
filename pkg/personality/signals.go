package personality

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	humorMarkers      = regexp.MustCompile(`haha|lol|😂|funny|joke|lmao`)
	empathyMarkers    = regexp.MustCompile(`understand|feel|sorry|care about|support|here for you`)
	directnessMarkers = regexp.MustCompile(`directly|honestly|bluntly|straightforward|cut to the chase`)
	casualMarkers     = regexp.MustCompile(`yeah|nah|gonna|wanna|cool|awesome`)
	formalMarkers     = regexp.MustCompile(`please|thank you|would you|kindly|sir|madam`)
)

const patienceLength = 800

// AnalyzeTraits derives a raw signal in [MinValue, MaxValue] for every
// trait from conversation texts. Each trait counts the share of texts
// showing its markers; formality is centred on the midpoint and moves down
// for casual and up for formal language. It returns nil for no texts.
func AnalyzeTraits(texts []string) map[string]float64 {
	if len(texts) == 0 {
		return nil
	}

	hits := make(map[string]float64, len(Traits))
	formality := 0.0
	for _, raw := range texts {
		text := strings.ToLower(raw)

		if humorMarkers.MatchString(text) {
			hits[Humor]++
		}
		if empathyMarkers.MatchString(text) {
			hits[Empathy]++
		}
		if directnessMarkers.MatchString(text) {
			hits[Directness]++
		}

		casual := len(casualMarkers.FindAllStringIndex(text, -1))
		formal := len(formalMarkers.FindAllStringIndex(text, -1))
		switch {
		case formal > casual:
			formality++
		case casual > formal:
			formality -= 0.5
		}

		if strings.Count(text, "!") > 2 {
			hits[Enthusiasm]++
		}
		if strings.Count(text, "?") > 1 {
			hits[Curiosity]++
		}
		if utf8.RuneCountInString(text) > patienceLength {
			hits[Patience]++
		}
	}

	n := float64(len(texts))
	signals := make(map[string]float64, len(Traits))
	for _, name := range Traits {
		if name == Formality {
			signals[name] = Clamp(DefaultValue + 5*formality/n)
			continue
		}
		signals[name] = Clamp(hits[name] / n * MaxValue)
	}
	return signals
}

// EvolveValue applies one exponential moving average step toward signal.
func EvolveValue(current, signal, weight float64) float64 {
	return Clamp((1-weight)*current + weight*signal)
}

// Clamp bounds a trait value to [MinValue, MaxValue]. NaN maps to the
// default value.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultValue
	}
	return math.Max(MinValue, math.Min(MaxValue, v))
}
