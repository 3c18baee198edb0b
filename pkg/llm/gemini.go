package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider using Google GenAI Gemini.
type GeminiProvider struct {
	mu     sync.RWMutex
	client *genai.Client
	apiKey string
	model  string

	timeout time.Duration
}

var (
	_ Provider  = (*GeminiProvider)(nil)
	_ KeySetter = (*GeminiProvider)(nil)
)

// GeminiConfig holds configuration for the Gemini provider.
type GeminiConfig struct {
	APIKey  string        // If empty, uses GOOGLE_API_KEY env var
	Model   string        // e.g., "gemini-2.5-flash"
	Timeout time.Duration // Used when a prompt carries no timeout
}

// DefaultGeminiConfig returns default configuration.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{Timeout: 30 * time.Second}
}

// NewGeminiProvider creates a new Gemini provider. A missing API key is not
// an error: the provider stays unconfigured until SetAPIKey is called.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	model := cfg.Model
	if model == "" {
		model = os.Getenv("GOOGLE_MODEL")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	p := &GeminiProvider{model: model, timeout: cfg.Timeout}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey != "" {
		if err := p.SetAPIKey(ctx, apiKey); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// SetAPIKey replaces the credential and rebuilds the underlying client.
// An empty key unconfigures the provider.
func (p *GeminiProvider) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		p.mu.Lock()
		p.client, p.apiKey = nil, ""
		p.mu.Unlock()
		return nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("failed to create genai client: %w", err)
	}

	p.mu.Lock()
	p.client, p.apiKey = client, key
	p.mu.Unlock()
	return nil
}

// Configured reports whether an API key is set.
func (p *GeminiProvider) Configured() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.apiKey != ""
}

// Generate produces a response from Gemini.
func (p *GeminiProvider) Generate(ctx context.Context, prompt *Prompt) (*Response, error) {
	p.mu.RLock()
	client, model := p.client, p.model
	p.mu.RUnlock()
	if client == nil {
		return nil, ErrUnconfigured
	}

	timeout := prompt.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.Models.GenerateContent(ctx, model, prompt.Contents(), prompt.Config())
	if err != nil {
		return nil, Classify(fmt.Errorf("gemini generate failed: %w", err))
	}
	return responseFromGenAI(resp)
}

func responseFromGenAI(resp *genai.GenerateContentResponse) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, &UpstreamError{Body: "prompt blocked: " + string(resp.PromptFeedback.BlockReason)}
		}
		return nil, ErrEmptyResponse
	}

	cand := resp.Candidates[0]
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Text:    text.String(),
		Sources: ExtractSources(cand.GroundingMetadata),
		Usage:   usageFrom(resp.UsageMetadata),
	}, nil
}

// Model returns the model name.
func (p *GeminiProvider) Model() string {
	return p.model
}
