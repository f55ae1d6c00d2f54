package emotion

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/odiumxp/ai-brain/pkg/storage"
)

// Context is what the agent should know about the user's feelings before
// answering.
type Context struct {
	UserID   string                    `json:"user_id"`
	Recent   []*storage.EmotionEvent   `json:"recent"`
	Patterns []*storage.EmotionPattern `json:"patterns"`
}

// GetContext returns the five newest emotions of the last day and the
// three most confident patterns. It returns nil when there are neither.
func (e *Engine) GetContext(ctx context.Context, userID string) (*Context, error) {
	recent, err := e.store.ListEmotionEvents(ctx, storage.EmotionQuery{
		UserID: userID,
		Since:  e.now().UTC().Add(-24 * time.Hour),
		Limit:  5,
	})
	if err != nil {
		return nil, fmt.Errorf("emotional context: %w", err)
	}
	patterns, err := e.store.ListEmotionPatterns(ctx, userID, 3)
	if err != nil {
		return nil, fmt.Errorf("emotional context: %w", err)
	}
	if len(recent) == 0 && len(patterns) == 0 {
		return nil, nil
	}
	return &Context{UserID: userID, Recent: recent, Patterns: patterns}, nil
}

// GenerateContext renders c as the prompt block placed before a reply.
// A nil context renders as the empty string.
func GenerateContext(c *Context, now time.Time) string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("## EMOTIONAL CONTEXT\n")
	if len(c.Recent) > 0 {
		b.WriteString("**Recent Emotions:**\n")
		for _, ev := range c.Recent {
			hours := int(math.Round(now.Sub(ev.CreatedAt).Hours()))
			fmt.Fprintf(&b, "- %s (intensity: %g/10), %d hours ago\n", ev.Type, ev.Intensity, hours)
		}
	}
	if len(c.Patterns) > 0 {
		b.WriteString("**Learned Empathy Strategies:**\n")
		for _, p := range c.Patterns {
			strategies := p.Strategies
			if len(strategies) == 0 {
				strategies = []string{fallbackStrategy}
			}
			fmt.Fprintf(&b, "- For %s: %s\n", p.Type, strings.Join(strategies, ", "))
		}
	}
	b.WriteString("Respond with empathy that fits this emotional state.\n\n")
	return b.String()
}

const fallbackStrategy = "Be supportive and understanding"

var defaultStrategies = map[string][]string{
	Joy:          {"Share in their happiness", "Be enthusiastic and positive"},
	Sadness:      {"Be supportive and understanding", "Offer comfort and empathy"},
	Anger:        {"Stay calm and listen", "Acknowledge their feelings"},
	Fear:         {"Be reassuring and supportive", "Help them feel safe"},
	Surprise:     {"Show interest and curiosity", "Match their energy level"},
	Disgust:      {"Be understanding", "Don't judge their reaction"},
	Trust:        {"Be reliable and honest", "Build on the positive connection"},
	Anticipation: {"Be encouraging", "Share in their excitement"},
}

// Calibration is how to respond to one emotion of a user.
type Calibration struct {
	Emotion    string   `json:"emotion"`
	Strategies []string `json:"strategies"`
	Confidence float64  `json:"confidence"`

	// Learned is false when the strategies are the defaults.
	Learned bool `json:"learned"`
}

// EmpathyCalibration returns the learned strategies for emotionType, or
// the default strategies at confidence 0.5 when none were learned.
func (e *Engine) EmpathyCalibration(ctx context.Context, userID, emotionType string) (*Calibration, error) {
	emotionType = strings.ToLower(strings.TrimSpace(emotionType))
	patterns, err := e.store.ListEmotionPatterns(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("empathy calibration: %w", err)
	}
	for _, p := range patterns {
		if p.Type == emotionType && len(p.Strategies) > 0 {
			return &Calibration{Emotion: emotionType, Strategies: p.Strategies, Confidence: p.Confidence, Learned: true}, nil
		}
	}

	strategies, ok := defaultStrategies[emotionType]
	if !ok {
		strategies = []string{fallbackStrategy}
	}
	return &Calibration{Emotion: emotionType, Strategies: append([]string(nil), strategies...), Confidence: 0.5}, nil
}
