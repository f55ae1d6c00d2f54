package usermodel

import (
	"fmt"
	"strings"
)

// Context sizes rendered by GenerateContext.
const (
	contextBeliefs = 3
	contextGoals   = 2
)

// GenerateContext renders the model as a prompt block: the current mental
// state, the strongest beliefs and the top goals. A nil model renders as
// the empty string.
func GenerateContext(m *Model) string {
	if m == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("## USER MODEL CONTEXT\n")

	if s := m.MentalState; s != nil {
		fmt.Fprintf(&b, "**Current Mental State:** %s (motivation: %s, cognitive load: %s)\n",
			orDefault(s.DominantEmotion, "neutral"),
			orDefault(s.MotivationLevel, "neutral"),
			orDefault(s.CognitiveLoad, "normal"))
	}

	if len(m.Beliefs) > 0 {
		parts := make([]string, 0, contextBeliefs)
		for i, belief := range m.Beliefs {
			if i == contextBeliefs {
				break
			}
			parts = append(parts, fmt.Sprintf("%s (%s)", belief.Statement, belief.Category))
		}
		b.WriteString("**Key Beliefs:** " + strings.Join(parts, "; ") + "\n")
	}

	if len(m.Goals) > 0 {
		parts := make([]string, 0, contextGoals)
		for i, goal := range m.Goals {
			if i == contextGoals {
				break
			}
			parts = append(parts, fmt.Sprintf("%s (%d%% complete)", goal.Description, goal.Progress))
		}
		b.WriteString("**Active Goals:** " + strings.Join(parts, "; ") + "\n")
	}

	b.WriteString("\n")
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
