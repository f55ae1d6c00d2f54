// Package llm defines the text-understanding provider behind the oracle.
//
// The brain never chats through a provider. It sends short analysis prompts
// (emotion scoring, belief and goal extraction, chain summaries, mental
// state) and expects small, usually JSON, answers back.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned by providers when the model answered with no
// content at all.
var ErrEmptyResponse = errors.New("llm: empty response")

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider generates text from a prompt.
//
// Implementations: openai (any OpenAI compatible endpoint), ollama and the
// scripted llmtest provider.
type Provider interface {
	// Generate answers a single user prompt.
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)

	// GenerateWithMessages answers a system and user message sequence.
	GenerateWithMessages(ctx context.Context, messages []Message, opts ...GenerateOption) (string, error)

	Close() error
}

// Message is one entry of a prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt builds the two-message prompt every analysis call uses.
func Prompt(system, user string) []Message {
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}
}

// GenerateOptions tunes one generation.
type GenerateOptions struct {
	// Temperature is low by default: analysis answers should be stable.
	Temperature float64

	// MaxTokens caps the answer; zero leaves it to the provider.
	MaxTokens int

	// JSONMode asks the provider to constrain output to a JSON object.
	// Callers still parse tolerantly since not every model honours it.
	JSONMode bool
}

// GenerateOption configures GenerateOptions.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the sampling temperature.
//
// Example:
//
//	text, _ := provider.Generate(ctx, "Summarize this", llm.WithTemperature(0.4))
func WithTemperature(temp float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Temperature = temp
	}
}

// WithMaxTokens caps the length of the answer.
func WithMaxTokens(max int) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.MaxTokens = max
	}
}

// WithJSONMode requests a JSON object answer.
func WithJSONMode() GenerateOption {
	return func(opts *GenerateOptions) {
		opts.JSONMode = true
	}
}

// ApplyGenerateOptions resolves opts over the defaults (temperature 0.3,
// 512 tokens).
func ApplyGenerateOptions(opts []GenerateOption) *GenerateOptions {
	options := &GenerateOptions{
		Temperature: 0.3,
		MaxTokens:   512,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
