package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"

	"github.com/cpunion/meetassist/pkg/assistant"
	"github.com/cpunion/meetassist/pkg/llm"
	"github.com/cpunion/meetassist/pkg/types"
)

// newProvider builds the LLM provider for the selected backend. A missing
// API key is not an error; the assistant reports it per request.
func newProvider(ctx context.Context, apiKey string, timeout time.Duration) (llm.Provider, error) {
	switch backend {
	case "genai", "":
		p, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{
			APIKey:  apiKey,
			Model:   modelName,
			Timeout: timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		return p, nil
	case "adk":
		if apiKey == "" {
			return llm.ProviderFunc(func(context.Context, *llm.Prompt) (*llm.Response, error) {
				return nil, llm.ErrUnconfigured
			}), nil
		}
		m, err := gemini.NewModel(ctx, modelName, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create Gemini model (%s): %w", modelName, err)
		}
		return llm.NewModelProvider(m, timeout), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want genai or adk)", backend)
	}
}

// loadAssistantConfig reads MEETASSIST_* settings and applies flags that
// were set explicitly.
func loadAssistantConfig(cmd *cobra.Command) (assistant.Config, error) {
	cfg, err := assistant.LoadConfig()
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("persona") {
		p := types.Persona(persona)
		if !p.Valid() {
			return cfg, fmt.Errorf("unknown persona %q", persona)
		}
		cfg.Persona = p
	}
	if flags.Changed("topic") {
		cfg.Topic = topic
	}
	if flags.Changed("grounding") {
		cfg.Grounding = grounding
	}
	return cfg, nil
}

// buildAssistant creates the provider and the assistant around it.
func buildAssistant(cmd *cobra.Command, cfg assistant.Config) (*assistant.Assistant, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	provider, err := newProvider(cmd.Context(), apiKey, cfg.AnswerTimeout)
	if err != nil {
		return nil, err
	}
	a := assistant.New(provider, cfg, logger)
	if err := a.SetAPIKey(cmd.Context(), apiKey); err != nil {
		_ = a.Stop()
		return nil, err
	}
	if !a.IsConfigured() {
		logger.Warn().Msg("GOOGLE_API_KEY not set; questions will not be answered")
	}
	logger.Debug().
		Str("backend", backend).
		Str("model", modelName).
		Str("persona", string(cfg.Persona)).
		Bool("grounding", cfg.Grounding).
		Dur("min_interval", cfg.Queue.MinInterval).
		Msg("assistant configured")
	return a, nil
}

func printAnswer(w io.Writer, res *types.AnswerResult) {
	fmt.Fprintf(w, "\nQ: %s\n", res.Question)
	if res.Conclusion != "" {
		fmt.Fprintf(w, "결론: %s\n", res.Conclusion)
		if res.Rationale != "" {
			fmt.Fprintf(w, "근거: %s\n", res.Rationale)
		}
	} else {
		fmt.Fprintf(w, "A: %s\n", strings.TrimSpace(res.Answer))
	}
	for i, src := range res.Sources {
		fmt.Fprintf(w, "  [%d] %s <%s>\n", i+1, src.Title, src.URI)
	}
}
