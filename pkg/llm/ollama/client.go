// Package ollama implements llm.Provider against the Ollama /api/chat
// endpoint so the text oracle can run fully on local models.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/odiumxp/ai-brain/pkg/llm"
)

// Defaults used when Config leaves them empty.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.1:8b"
)

// Config configures the client.
type Config struct {
	// APIKey is only needed behind an authenticating proxy.
	APIKey  string
	Model   string
	BaseURL string

	// KeepAlive tells Ollama how long to keep the model loaded, e.g. "10m".
	KeepAlive string

	// HTTPClient defaults to a client with a 60 second timeout; local
	// models can be slow to load on the first call.
	HTTPClient *http.Client
}

// StatusError is returned for a non-200 answer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama: status %d: %s", e.StatusCode, e.Body)
}

// Client implements llm.Provider.
type Client struct {
	http      *http.Client
	endpoint  string
	apiKey    string
	model     string
	keepAlive string
}

var _ llm.Provider = (*Client)(nil)

// NewClient creates an Ollama client. It does not contact the server.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	return &Client{
		http:      client,
		endpoint:  baseURL + "/api/chat",
		apiKey:    cfg.APIKey,
		model:     model,
		keepAlive: cfg.KeepAlive,
	}, nil
}

// Generate implements llm.Provider.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// GenerateWithMessages implements llm.Provider. Ollama names the token
// limit num_predict and selects JSON output with the top level format field.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	body := chatRequest{
		Model:     c.model,
		Messages:  messages,
		KeepAlive: c.keepAlive,
		Options: chatOptions{
			Temperature: options.Temperature,
			NumPredict:  options.MaxTokens,
		},
	}
	if options.JSONMode {
		body.Format = "json"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("ollama: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	if out.Message.Content == "" {
		return "", fmt.Errorf("ollama %s: %w", c.model, llm.ErrEmptyResponse)
	}
	return out.Message.Content, nil
}

// Close implements llm.Provider.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []llm.Message `json:"messages"`
	Stream    bool          `json:"stream"`
	Format    string        `json:"format,omitempty"`
	KeepAlive string        `json:"keep_alive,omitempty"`
	Options   chatOptions   `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Message llm.Message `json:"message"`
}
