package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/odiumxp/ai-brain/pkg/intelligence"
	"github.com/odiumxp/ai-brain/pkg/llm"
)

// ExtractedBelief is one belief found in a conversation.
type ExtractedBelief struct {
	Statement  string
	Category   string
	Confidence float64
	Strength   float64
}

// ExtractedGoal is one goal found in a conversation.
type ExtractedGoal struct {
	Description     string
	Category        string
	Priority        int
	SuccessCriteria string
}

// MentalStateReading is the oracle's view of a user's current state.
type MentalStateReading struct {
	DominantEmotion    string
	Intensity          float64
	CognitiveLoad      string
	AttentionFocus     string
	DecisionStyle      string
	CommunicationStyle string
	StressIndicators   []string
	MotivationLevel    string
	InferredNeeds      []string
}

// DetectedEmotion is one emotion read from a conversation turn.
type DetectedEmotion struct {
	Type            string
	Intensity       float64
	Confidence      float64
	Triggers        []string
	DurationMinutes int
	EmpathyResponse string
}

// ChainDigest is the part of a memory chain fed to the narrative prompt.
type ChainDigest struct {
	Name    string
	Summary string
	Topics  []string
}

// TextOracle performs structured text understanding through an LLM.
type TextOracle struct {
	caller
	provider llm.Provider
}

// NewTextOracle creates a text oracle. A nil provider, like a nil
// *TextOracle, fails every call with ErrUnavailable.
func NewTextOracle(provider llm.Provider, cfg Config, opts ...Option) *TextOracle {
	return &TextOracle{
		caller:   newCaller("text", cfg, applyOptions(opts)),
		provider: provider,
	}
}

func (o *TextOracle) generate(ctx context.Context, operation string, messages []llm.Message, opts ...llm.GenerateOption) (string, time.Time, error) {
	start := time.Now()
	if o == nil || o.provider == nil {
		return "", start, ErrUnavailable
	}
	var out string
	err := o.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = o.provider.GenerateWithMessages(ctx, messages, opts...)
		return err
	})
	if err != nil {
		o.record(operation, StatusFailure, start, err)
	}
	return out, start, err
}

const emotionPrompt = `Analyze the emotional tone of the text. Respond ONLY with valid JSON: {"joy": 0-1, "sadness": 0-1, "anger": 0-1, "fear": 0-1, "surprise": 0-1}`

// AnalyzeEmotion maps text to emotion intensities in [0,1]. Degraded and
// failed calls carry the neutral map.
func (o *TextOracle) AnalyzeEmotion(ctx context.Context, text string) Result[map[string]float64] {
	out, start, err := o.generate(ctx, "emotion", llm.Prompt(emotionPrompt, text), llm.WithJSONMode(), llm.WithMaxTokens(100))
	if err != nil {
		r := Failure[map[string]float64](err)
		r.Value = intelligence.NeutralEmotions()
		return r
	}

	var raw map[string]interface{}
	if err := decodeLoose(out, &raw); err != nil {
		o.record("emotion", StatusDegraded, start, err)
		return Degraded(intelligence.NeutralEmotions(), err)
	}

	emotions := intelligence.NeutralEmotions()
	found := 0
	for name, v := range raw {
		if f, ok := toFloat(v); ok {
			emotions[strings.ToLower(strings.TrimSpace(name))] = f
			found++
		}
	}
	if found == 0 {
		err := fmt.Errorf("%w: no emotion intensities", ErrMalformed)
		o.record("emotion", StatusDegraded, start, err)
		return Degraded(intelligence.NeutralEmotions(), err)
	}

	o.record("emotion", StatusOK, start, nil)
	return OK(intelligence.NormalizeEmotions(emotions))
}

const beliefPrompt = `Analyze the conversation text and extract any beliefs, opinions, or convictions expressed by the user: explicit statements of belief, strong opinions or values, philosophical or ethical stances, personal principles.
For each belief provide "statement" (paraphrased for clarity), "category" (religious, political, scientific, personal, ethical, ...), "confidence" (0-1, how certain they seem) and "strength" (0-1, how strongly held).
Respond ONLY with JSON: {"beliefs": [...]}. Use an empty list when there are none.`

// ExtractBeliefs lists the beliefs expressed in text. Entries without a
// statement are dropped.
func (o *TextOracle) ExtractBeliefs(ctx context.Context, text string) Result[[]ExtractedBelief] {
	out, start, err := o.generate(ctx, "beliefs", llm.Prompt(beliefPrompt, text), llm.WithJSONMode(), llm.WithMaxTokens(800))
	if err != nil {
		return Failure[[]ExtractedBelief](err)
	}

	items, err := objectList(out, "beliefs", "items")
	if err != nil {
		o.record("beliefs", StatusDegraded, start, err)
		return Degraded[[]ExtractedBelief](nil, err)
	}

	var beliefs []ExtractedBelief
	for _, item := range items {
		statement := firstString(item, "statement", "belief", "belief_statement")
		if statement == "" {
			continue
		}
		b := ExtractedBelief{
			Statement:  statement,
			Category:   strings.ToLower(firstString(item, "category")),
			Confidence: 0.5,
			Strength:   0.5,
		}
		if b.Category == "" {
			b.Category = "personal"
		}
		if f, ok := firstFloat(item, "confidence", "confidence_level"); ok {
			b.Confidence = clamp(f, 0, 1)
		}
		if f, ok := firstFloat(item, "strength", "belief_strength"); ok {
			b.Strength = clamp(f, 0, 1)
		}
		beliefs = append(beliefs, b)
	}

	o.record("beliefs", StatusOK, start, nil)
	return OK(beliefs)
}

const goalPrompt = `Analyze the conversation and identify any goals, objectives, or aspirations mentioned by the user: explicit goals, future plans, learning objectives, career aspirations, personal development targets.
For each goal provide "description" (clear, actionable statement), "category" (career, personal, learning, relationship, health, ...), "priority" (1-10) and "success_criteria" (how they will know it is achieved).
Respond ONLY with JSON: {"goals": [...]}. Use an empty list when there are none.`

// ExtractGoals lists the goals mentioned in text. Priorities are clamped
// to [1,10] and default to 5.
func (o *TextOracle) ExtractGoals(ctx context.Context, text string) Result[[]ExtractedGoal] {
	out, start, err := o.generate(ctx, "goals", llm.Prompt(goalPrompt, text), llm.WithJSONMode(), llm.WithMaxTokens(800))
	if err != nil {
		return Failure[[]ExtractedGoal](err)
	}

	items, err := objectList(out, "goals", "items")
	if err != nil {
		o.record("goals", StatusDegraded, start, err)
		return Degraded[[]ExtractedGoal](nil, err)
	}

	var goals []ExtractedGoal
	for _, item := range items {
		description := firstString(item, "description", "goal", "goal_description")
		if description == "" {
			continue
		}
		g := ExtractedGoal{
			Description: description,
			Category:    strings.ToLower(firstString(item, "category")),
			Priority:    5,
		}
		if g.Category == "" {
			g.Category = "personal"
		}
		if f, ok := firstFloat(item, "priority", "priority_level"); ok {
			g.Priority = int(math.Round(clamp(f, 1, 10)))
		}
		g.SuccessCriteria = firstString(item, "success_criteria", "successCriteria")
		if g.SuccessCriteria == "" {
			g.SuccessCriteria = strings.Join(stringList(item["success_criteria"]), "; ")
		}
		goals = append(goals, g)
	}

	o.record("goals", StatusOK, start, nil)
	return OK(goals)
}

const mentalStatePrompt = `Based on the recent conversation history, infer the user's current mental and emotional state.
Respond ONLY with a JSON object with the fields "dominant_emotion" (joy, sadness, anger, fear, surprise, ...), "emotional_intensity" (0-1), "cognitive_load" (low, normal, high, overwhelmed), "attention_focus", "decision_making_style" (analytical, intuitive, emotional, practical), "communication_style" (direct, indirect, verbose, concise), "stress_indicators" (list), "motivation_level" (low, neutral, high, very high) and "inferred_needs" (list).`

// InferMentalState reads the user's state from recent conversation turns.
// A response without a dominant emotion is Degraded.
func (o *TextOracle) InferMentalState(ctx context.Context, turns []string) Result[MentalStateReading] {
	if len(turns) == 0 {
		return Failure[MentalStateReading](errors.New("no conversation to analyze"))
	}
	prompt := llm.Prompt(mentalStatePrompt, "Recent conversations:\n"+strings.Join(turns, "\n\n"))
	out, start, err := o.generate(ctx, "mental_state", prompt,
		llm.WithJSONMode(), llm.WithTemperature(0.4), llm.WithMaxTokens(600))
	if err != nil {
		return Failure[MentalStateReading](err)
	}

	var raw map[string]interface{}
	if err := decodeLoose(out, &raw); err != nil {
		o.record("mental_state", StatusDegraded, start, err)
		return Degraded(neutralReading(), err)
	}

	reading := MentalStateReading{
		DominantEmotion:    strings.ToLower(firstString(raw, "dominant_emotion")),
		Intensity:          0.5,
		CognitiveLoad:      orDefault(strings.ToLower(firstString(raw, "cognitive_load")), "normal"),
		AttentionFocus:     firstString(raw, "attention_focus"),
		DecisionStyle:      orDefault(strings.ToLower(firstString(raw, "decision_making_style")), "unknown"),
		CommunicationStyle: orDefault(strings.ToLower(firstString(raw, "communication_style")), "unknown"),
		StressIndicators:   stringList(raw["stress_indicators"]),
		MotivationLevel:    orDefault(strings.ToLower(firstString(raw, "motivation_level")), "neutral"),
		InferredNeeds:      stringList(raw["inferred_needs"]),
	}
	if f, ok := firstFloat(raw, "emotional_intensity", "intensity"); ok {
		reading.Intensity = clamp(f, 0, 1)
	}
	if reading.DominantEmotion == "" {
		err := fmt.Errorf("%w: missing dominant_emotion", ErrMalformed)
		o.record("mental_state", StatusDegraded, start, err)
		return Degraded(neutralReading(), err)
	}

	o.record("mental_state", StatusOK, start, nil)
	return OK(reading)
}

func neutralReading() MentalStateReading {
	return MentalStateReading{
		DominantEmotion:    "neutral",
		Intensity:          0.5,
		CognitiveLoad:      "normal",
		DecisionStyle:      "unknown",
		CommunicationStyle: "unknown",
		MotivationLevel:    "neutral",
	}
}

// SummarizeChain writes a short narrative summary of a chain of turns.
func (o *TextOracle) SummarizeChain(ctx context.Context, chainType string, turns []string) Result[string] {
	prompt := fmt.Sprintf(`Analyze this sequence of conversations and create a concise summary that captures the narrative flow, key topics, and emotional progression. Focus on how these conversations connect thematically or chronologically.

%s

Provide a summary that shows how these memories form a coherent %s chain:`, numbered(turns), chainType)

	return o.freeText(ctx, "chain_summary", prompt, 300)
}

// Narrative connects several chain summaries into one story.
func (o *TextOracle) Narrative(ctx context.Context, chains []ChainDigest) Result[string] {
	var b strings.Builder
	b.WriteString("Based on these memory chains, provide a coherent narrative understanding:\n\n")
	for _, c := range chains {
		topics := "None"
		if len(c.Topics) > 0 {
			topics = strings.Join(c.Topics, ", ")
		}
		fmt.Fprintf(&b, "Chain: %s\nSummary: %s\nTopics: %s\n\n", c.Name, c.Summary, topics)
	}
	b.WriteString("Create a unified narrative that connects these chains:")

	return o.freeText(ctx, "narrative", b.String(), 500)
}

const detectEmotionsPrompt = `Analyze the conversation text and detect the user's emotional state. Use the primary emotions joy, sadness, anger, fear, surprise, disgust, trust and anticipation.
For each emotion provide "type", "intensity" (0-10), "confidence" (0-1), "triggers" (keywords or topics that caused it), "duration_minutes" (estimated) and "empathy_response" (how an empathetic assistant should respond).
Respond ONLY with JSON: {"emotions": [...]}. Use an empty list when no emotion is present.`

// DetectEmotions lists the emotions expressed in text. Intensities are
// clamped to [0,10]; confidence defaults to 0.8 and duration to 30 minutes.
func (o *TextOracle) DetectEmotions(ctx context.Context, text string) Result[[]DetectedEmotion] {
	out, start, err := o.generate(ctx, "detect_emotions", llm.Prompt(detectEmotionsPrompt, text),
		llm.WithJSONMode(), llm.WithTemperature(0.3), llm.WithMaxTokens(800))
	if err != nil {
		return Failure[[]DetectedEmotion](err)
	}

	items, err := objectList(out, "emotions", "items")
	if err != nil {
		o.record("detect_emotions", StatusDegraded, start, err)
		return Degraded[[]DetectedEmotion](nil, err)
	}

	var emotions []DetectedEmotion
	for _, item := range items {
		kind := strings.ToLower(firstString(item, "type", "emotion", "emotion_type"))
		if kind == "" {
			continue
		}
		e := DetectedEmotion{
			Type:            kind,
			Intensity:       5,
			Confidence:      0.8,
			Triggers:        stringList(item["triggers"]),
			DurationMinutes: 30,
			EmpathyResponse: firstString(item, "empathy_response", "response"),
		}
		if f, ok := firstFloat(item, "intensity"); ok {
			e.Intensity = clamp(f, 0, 10)
		}
		if f, ok := firstFloat(item, "confidence"); ok && f > 0 {
			e.Confidence = clamp(f, 0, 1)
		}
		if f, ok := firstFloat(item, "duration_minutes", "duration"); ok && f > 0 {
			e.DurationMinutes = int(math.Round(f))
		}
		emotions = append(emotions, e)
	}

	o.record("detect_emotions", StatusOK, start, nil)
	return OK(emotions)
}

// ReflectionInsight writes insights, patterns, recommendations and
// concerns from a reflection analysis rendered as JSON.
func (o *TextOracle) ReflectionInsight(ctx context.Context, analysis string) Result[string] {
	prompt := `Analyze this self-reflection data of a conversational memory system and provide:
1. Key insights about its current state
2. Patterns you have identified
3. Recommendations for improvement
4. Any concerns or areas needing attention

Keep the response concise but insightful.

` + analysis

	return o.freeText(ctx, "reflection", prompt, 1000)
}

func (o *TextOracle) freeText(ctx context.Context, operation, prompt string, maxTokens int) Result[string] {
	out, start, err := o.generate(ctx, operation, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, llm.WithTemperature(0.4), llm.WithMaxTokens(maxTokens))
	if err != nil {
		return Failure[string](err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		err := fmt.Errorf("%w: empty text", ErrMalformed)
		o.record(operation, StatusDegraded, start, err)
		return Degraded("", err)
	}
	o.record(operation, StatusOK, start, nil)
	return OK(out)
}

func numbered(turns []string) string {
	var b strings.Builder
	for i, t := range turns {
		fmt.Fprintf(&b, "Conversation %d:\n%s\n\n", i+1, t)
	}
	return strings.TrimRight(b.String(), "\n")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
