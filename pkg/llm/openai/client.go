// Package openai implements llm.Provider for OpenAI and every OpenAI
// compatible chat endpoint (DeepSeek, DashScope, vLLM) selected by BaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/odiumxp/ai-brain/pkg/llm"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-4o-mini"

// Config configures the client. Only APIKey is required.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string

	// Timeout bounds one HTTP request; the oracle applies its own, usually
	// shorter, deadline through the context.
	Timeout time.Duration
}

// Client implements llm.Provider.
type Client struct {
	client *openai.Client
	model  string
}

var _ llm.Provider = (*Client)(nil)

// NewClient creates a chat completion client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("openai llm: api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	config.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: openai.NewClientWithConfig(config), model: model}, nil
}

// Generate implements llm.Provider.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// GenerateWithMessages implements llm.Provider.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if options.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat %s: %w", c.model, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai chat %s: %w", c.model, llm.ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// Close implements llm.Provider. The SDK holds no resources.
func (c *Client) Close() error {
	return nil
}
