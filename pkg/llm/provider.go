// Package llm provides LLM provider implementations and the typed error
// taxonomy shared by the request queue and its callers.
package llm

import (
	"context"
	"time"

	"google.golang.org/genai"

	"github.com/cpunion/meetassist/pkg/types"
)

// Prompt is everything a provider needs for one call.
type Prompt struct {
	SystemInstruction string
	// History is replayed verbatim; the last turn is the current request.
	History   []types.ConversationTurn
	Grounding bool
	Timeout   time.Duration
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens     int32
	CandidatesTokens int32
	TotalTokens      int32
}

// Response is the provider output.
type Response struct {
	Text    string
	Sources []types.Source
	Usage   Usage
}

// Provider is the outbound transport to an LLM. Implementations return
// errors already classified with Classify.
type Provider interface {
	Generate(ctx context.Context, prompt *Prompt) (*Response, error)
}

// KeySetter is implemented by providers whose credential can change at
// runtime.
type KeySetter interface {
	SetAPIKey(ctx context.Context, key string) error
}

// ProviderFunc adapts a function to a Provider.
type ProviderFunc func(ctx context.Context, prompt *Prompt) (*Response, error)

// Generate implements Provider.
func (f ProviderFunc) Generate(ctx context.Context, prompt *Prompt) (*Response, error) {
	return f(ctx, prompt)
}

// Contents converts the history into genai contents.
func (p *Prompt) Contents() []*genai.Content {
	contents := make([]*genai.Content, 0, len(p.History))
	for _, turn := range p.History {
		if turn.Text == "" {
			continue
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, genai.Role(turn.Role)))
	}
	return contents
}

// Config builds the generation config for the prompt.
func (p *Prompt) Config() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if p.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(p.SystemInstruction, genai.RoleUser)
	}
	if p.Grounding {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return cfg
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
