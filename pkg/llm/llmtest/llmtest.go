// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/odiumxp/ai-brain/pkg/llm"
)

type rule struct {
	contains string
	response string
	err      error
}

// Provider answers with canned responses. The first rule whose substring
// appears in any message wins; otherwise the default response is returned.
type Provider struct {
	mu       sync.Mutex
	rules    []rule
	fallback string
	calls    []string
	options  []*llm.GenerateOptions
}

var _ llm.Provider = (*Provider)(nil)

// New creates a provider answering fallback when no rule matches.
func New(fallback string) *Provider {
	return &Provider{fallback: fallback}
}

// On answers response to prompts containing substr.
func (p *Provider) On(substr, response string) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = append(p.rules, rule{contains: substr, response: response})
	return p
}

// Fail returns err for prompts containing substr.
func (p *Provider) Fail(substr string, err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = append(p.rules, rule{contains: substr, err: err})
	return p
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return p.GenerateWithMessages(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// GenerateWithMessages implements llm.Provider.
func (p *Provider) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	prompt := b.String()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, prompt)
	p.options = append(p.options, llm.ApplyGenerateOptions(opts))

	for _, r := range p.rules {
		if strings.Contains(prompt, r.contains) {
			return r.response, r.err
		}
	}
	return p.fallback, nil
}

// Close implements llm.Provider.
func (p *Provider) Close() error {
	return nil
}

// Calls returns the prompts received so far.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// LastOptions returns the options of the most recent call, or nil.
func (p *Provider) LastOptions() *llm.GenerateOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.options) == 0 {
		return nil
	}
	return p.options[len(p.options)-1]
}
