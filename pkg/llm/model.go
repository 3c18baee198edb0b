package llm

import (
	"context"
	"strings"
	"time"

	"google.golang.org/adk/model"
)

// ModelProvider adapts an ADK model.LLM to Provider.
type ModelProvider struct {
	llm     model.LLM
	timeout time.Duration
}

// NewModelProvider wraps llm. timeout applies to prompts that carry none.
func NewModelProvider(llm model.LLM, timeout time.Duration) *ModelProvider {
	return &ModelProvider{llm: llm, timeout: timeout}
}

// Name returns the wrapped model name.
func (p *ModelProvider) Name() string {
	return p.llm.Name()
}

// Generate runs a non-streaming request against the wrapped model.
func (p *ModelProvider) Generate(ctx context.Context, prompt *Prompt) (*Response, error) {
	timeout := prompt.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	req := &model.LLMRequest{
		Contents: prompt.Contents(),
		Config:   prompt.Config(),
	}

	out := &Response{}
	var text strings.Builder
	for resp, err := range p.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return nil, Classify(err)
		}
		if resp == nil {
			continue
		}
		if resp.ErrorCode != "" {
			return nil, classifyCode(resp.ErrorCode, resp.ErrorMessage)
		}
		if resp.Content != nil {
			for _, part := range resp.Content.Parts {
				if part != nil && part.Text != "" {
					text.WriteString(part.Text)
				}
			}
		}
		out.Sources = MergeSources(out.Sources, ExtractSources(resp.GroundingMetadata))
		if resp.UsageMetadata != nil {
			out.Usage = usageFrom(resp.UsageMetadata)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, Classify(err)
	}
	if text.Len() == 0 {
		return nil, ErrEmptyResponse
	}
	out.Text = text.String()
	return out, nil
}
