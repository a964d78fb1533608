// Package generation drafts a structured resume through an ordered list of
// providers, falling back on failure, then normalizes and typesets it.
package generation

import (
	"context"

	"github.com/jonathan/resume-pipeline/internal/llm"
)

// Provider produces a raw structured resume for a prompt
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMProvider adapts an llm.Client to Provider
type LLMProvider struct {
	name   string
	client llm.Client
	tier   llm.ModelTier
}

// NewLLMProvider wraps client; drafting uses the advanced tier
func NewLLMProvider(name string, client llm.Client) *LLMProvider {
	return &LLMProvider{name: name, client: client, tier: llm.TierAdvanced}
}

// WithTier overrides the model tier used for drafting
func (p *LLMProvider) WithTier(tier llm.ModelTier) *LLMProvider {
	if tier != "" {
		p.tier = tier
	}
	return p
}

// Name returns the provider name used in attempt records
func (p *LLMProvider) Name() string {
	return p.name
}

// Generate requests a JSON resume draft
func (p *LLMProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return p.client.GenerateJSON(ctx, prompt, p.tier)
}

// Close releases the underlying client
func (p *LLMProvider) Close() error {
	return p.client.Close()
}
