package chains

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odiumxp/ai-brain/pkg/intelligence"
	"github.com/odiumxp/ai-brain/pkg/storage"
)

// TopicKeywords are matched against chain memories to tag topics.
var TopicKeywords = []string{
	"project", "work", "family", "friend", "travel", "learning",
	"problem", "solution", "idea", "plan", "goal", "emotion",
}

// ExtractTopics returns the topic keywords found in the memories, in
// keyword order.
func ExtractTopics(memories []*storage.Memory) []string {
	found := make(map[string]bool)
	for _, m := range memories {
		text := strings.ToLower(m.UserText + " " + m.AIText)
		for _, k := range TopicKeywords {
			if strings.Contains(text, k) {
				found[k] = true
			}
		}
	}

	topics := make([]string, 0, len(found))
	for _, k := range TopicKeywords {
		if found[k] {
			topics = append(topics, k)
		}
	}
	return topics
}

// mergeTopics adds the topics of extra to topics without duplicates.
func mergeTopics(topics []string, extra []string) []string {
	seen := make(map[string]bool, len(topics))
	for _, t := range topics {
		seen[t] = true
	}
	for _, t := range extra {
		if !seen[t] {
			seen[t] = true
			topics = append(topics, t)
		}
	}
	return topics
}

// AnalyzeEmotionalArc traces the dominant emotion through memories in
// chain order. Volatility is the share of steps where the emotion changes.
func AnalyzeEmotionalArc(memories []*storage.Memory) storage.EmotionalArc {
	var arc storage.EmotionalArc
	counts := make(map[string]int)

	for i, m := range memories {
		emotion := intelligence.DominantEmotion(m.Emotions)
		if emotion == "" {
			continue
		}
		arc.Progression = append(arc.Progression, storage.ArcPoint{
			Position:  i,
			Emotion:   emotion,
			Timestamp: m.CreatedAt,
		})
		counts[emotion]++
		if i == 0 {
			arc.Start = emotion
		}
		if i == len(memories)-1 {
			arc.End = emotion
		}
	}
	if len(arc.Progression) == 0 {
		return arc
	}

	// Most frequent emotion; ties go to the one seen first.
	best := 0
	for _, p := range arc.Progression {
		if counts[p.Emotion] > best {
			arc.Dominant, best = p.Emotion, counts[p.Emotion]
		}
	}

	changes := 0
	for i := 1; i < len(arc.Progression); i++ {
		if arc.Progression[i].Emotion != arc.Progression[i-1].Emotion {
			changes++
		}
	}
	steps := len(arc.Progression) - 1
	if steps < 1 {
		steps = 1
	}
	arc.Volatility = float64(changes) / float64(steps)
	return arc
}

// ChainName renders "<Type> Chain (<start>[ - <end>])" from the first and
// last memory dates.
func ChainName(chainType string, memories []*storage.Memory) string {
	if len(memories) == 0 {
		return "Empty Chain"
	}
	label := chainType
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}

	start := memories[0].CreatedAt.UTC().Format("2006-01-02")
	end := memories[len(memories)-1].CreatedAt.UTC().Format("2006-01-02")
	span := start
	if start != end {
		span = start + " - " + end
	}
	return fmt.Sprintf("%s Chain (%s)", label, span)
}

// chronological sorts memories oldest first, breaking ties by id.
func chronological(memories []*storage.Memory) {
	sort.SliceStable(memories, func(i, j int) bool {
		if memories[i].CreatedAt.Equal(memories[j].CreatedAt) {
			return memories[i].ID < memories[j].ID
		}
		return memories[i].CreatedAt.Before(memories[j].CreatedAt)
	})
}
