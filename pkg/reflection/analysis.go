package reflection

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/odiumxp/ai-brain/pkg/intelligence"
	"github.com/odiumxp/ai-brain/pkg/storage"
)

// Report is the analysis a reflection is written from.
type Report struct {
	Period string    `json:"period"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`

	Memory   MemoryPatterns         `json:"memory_patterns"`
	Learning LearningSummary        `json:"learning"`
	Behavior BehaviorChanges        `json:"behavior"`
	Emotions []*storage.EmotionTrend `json:"emotional_trends,omitempty"`

	// ChainsFormed counts the memory chains created in the period.
	ChainsFormed int `json:"chains_formed"`
}

// MemoryPatterns describes the conversations of the period.
type MemoryPatterns struct {
	Total           int                `json:"total_memories"`
	DominantEmotion string             `json:"dominant_emotion"`
	EmotionTotals   map[string]float64 `json:"emotion_totals,omitempty"`
	Topics          map[string]int     `json:"topic_clusters,omitempty"`
	AvgImportance   float64            `json:"avg_importance"`
	TimeOfDay       map[string]int     `json:"time_of_day,omitempty"`
	PeakHours       []int              `json:"peak_hours,omitempty"`
}

// LearningSummary describes what the user worked on understanding.
type LearningSummary struct {
	LearningMemories  int            `json:"learning_memories"`
	KeyInsights       []KeyInsight   `json:"key_insights,omitempty"`
	PersonalityShifts map[string]int `json:"personality_shifts,omitempty"`
}

// KeyInsight is an important learning moment.
type KeyInsight struct {
	MemoryID   int64     `json:"memory_id"`
	At         time.Time `json:"at"`
	Importance float64   `json:"importance"`
	Excerpt    string    `json:"excerpt"`
}

// BehaviorChanges describes how the personality moved in the period.
type BehaviorChanges struct {
	Trends      map[string]TraitTrend `json:"trait_trends,omitempty"`
	Consistency Consistency           `json:"consistency"`
}

// TraitTrend is the direction of one trait over its dated history.
type TraitTrend struct {
	Direction  string  `json:"direction"`
	Change     float64 `json:"change"`
	DataPoints int     `json:"data_points"`
}

// Consistency scores how settled the personality is: 1 with no change,
// falling by 0.01 per dated change.
type Consistency struct {
	Score      float64 `json:"score"`
	Changes    int     `json:"changes"`
	Assessment string  `json:"assessment"`
}

// Trend directions.
const (
	Increasing = "increasing"
	Decreasing = "decreasing"
	Stable     = "stable"
)

// topicKeywords cluster conversations by what the user was doing.
var topicKeywords = []string{"learn", "understand", "think", "feel", "remember", "create"}

// learningKeywords mark a conversation as a learning moment.
var learningKeywords = []string{"learn", "understand", "knowledge", "concept"}

const (
	keyInsightImportance = 1.5
	maxKeyInsights       = 3
	excerptLength        = 200
	recentPoints         = 5
)

// AnalyzeMemories summarises the memories of a period.
func AnalyzeMemories(memories []*storage.Memory) MemoryPatterns {
	p := MemoryPatterns{Total: len(memories), DominantEmotion: "none"}
	if len(memories) == 0 {
		return p
	}

	totals := map[string]float64{}
	topics := map[string]int{}
	timeOfDay := map[string]int{}
	hours := map[int]int{}
	importance := 0.0
	for _, m := range memories {
		for name, v := range m.Emotions {
			totals[name] += v
		}
		text := strings.ToLower(m.Text())
		for _, k := range topicKeywords {
			if strings.Contains(text, k) {
				topics[k]++
			}
		}
		hour := m.CreatedAt.UTC().Hour()
		hours[hour]++
		timeOfDay[period(hour)]++
		importance += m.Importance
	}

	if d := intelligence.DominantEmotion(totals); d != "" {
		p.DominantEmotion = d
	}
	if len(totals) > 0 {
		p.EmotionTotals = totals
	}
	if len(topics) > 0 {
		p.Topics = topics
	}
	p.AvgImportance = importance / float64(len(memories))
	p.TimeOfDay = timeOfDay
	p.PeakHours = peakHours(hours, 3)
	return p
}

func period(hour int) string {
	switch {
	case hour < 6:
		return "night"
	case hour < 12:
		return "morning"
	case hour < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

func peakHours(counts map[int]int, n int) []int {
	hours := make([]int, 0, len(counts))
	for h := range counts {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool {
		if counts[hours[i]] != counts[hours[j]] {
			return counts[hours[i]] > counts[hours[j]]
		}
		return hours[i] < hours[j]
	})
	if len(hours) > n {
		hours = hours[:n]
	}
	return hours
}

// SummarizeLearning finds the learning moments among memories, which are
// expected newest first, and counts the dated trait changes in [from, to].
func SummarizeLearning(memories []*storage.Memory, traits []*storage.Trait, from, to time.Time) LearningSummary {
	var s LearningSummary
	for _, m := range memories {
		text := strings.ToLower(m.Text())
		if !containsAny(text, learningKeywords) {
			continue
		}
		s.LearningMemories++
		if m.Importance > keyInsightImportance && len(s.KeyInsights) < maxKeyInsights {
			s.KeyInsights = append(s.KeyInsights, KeyInsight{
				MemoryID:   m.ID,
				At:         m.CreatedAt,
				Importance: m.Importance,
				Excerpt:    excerpt(m.Text(), excerptLength),
			})
		}
	}

	for _, t := range traits {
		if n := len(datedValues(t, from, to)); n > 0 {
			if s.PersonalityShifts == nil {
				s.PersonalityShifts = map[string]int{}
			}
			s.PersonalityShifts[t.Name] = n
		}
	}
	return s
}

// TrackBehavior computes the trend of every trait with at least two dated
// values in [from, to] and the consistency of the period. The newest
// values, at most five and always leaving one older value, are compared
// with the rest.
func TrackBehavior(traits []*storage.Trait, from, to time.Time) BehaviorChanges {
	var b BehaviorChanges
	changes := 0
	for _, t := range traits {
		values := datedValues(t, from, to)
		changes += len(values)
		if len(values) < 2 {
			continue
		}
		split := recentPoints
		if split > len(values)-1 {
			split = len(values) - 1
		}
		recent, older := mean(values[:split]), mean(values[split:])
		direction := Stable
		switch {
		case recent-older > 1e-9:
			direction = Increasing
		case older-recent > 1e-9:
			direction = Decreasing
		}
		if b.Trends == nil {
			b.Trends = map[string]TraitTrend{}
		}
		b.Trends[t.Name] = TraitTrend{Direction: direction, Change: math.Abs(recent - older), DataPoints: len(values)}
	}
	b.Consistency = consistency(changes)
	return b
}

func consistency(changes int) Consistency {
	score := math.Max(0, 1-float64(changes)/100)
	c := Consistency{Score: score, Changes: changes}
	switch {
	case score > 0.8:
		c.Assessment = "highly_consistent"
	case score > 0.6:
		c.Assessment = "moderately_consistent"
	case score > 0.4:
		c.Assessment = "variable"
	default:
		c.Assessment = "highly_variable"
	}
	return c
}

// datedValues returns the trait's history values dated within [from, to],
// newest first.
func datedValues(t *storage.Trait, from, to time.Time) []float64 {
	type point struct {
		day   time.Time
		value float64
	}
	var points []point
	lo := from.UTC().Truncate(24 * time.Hour)
	for date, v := range t.History {
		d, err := time.Parse("2006-01-02", date)
		if err != nil || d.Before(lo) || d.After(to) {
			continue
		}
		points = append(points, point{d, v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].day.After(points[j].day) })

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.value
	}
	return values
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
