package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/battlebrief/bulwark/internal/config"
	"github.com/battlebrief/bulwark/internal/logger"
)

// NewRegistry builds a gateway for every backend. Backends without
// credentials are still registered and fail per call, so the set of valid
// names never depends on the environment. The returned GeminiClient must be
// closed on shutdown.
func NewRegistry(cfg *config.Config, log *logger.Logger) (Registry, *GeminiClient) {
	gemini := NewGeminiClient(cfg.GeminiAPIKey, log)
	hf := HuggingFaceConfig{
		APIKey:     cfg.HuggingFaceAPIKey,
		BaseURL:    cfg.HuggingFaceBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.ProviderTimeout},
	}

	// Without an endpoint id the RunPod key has nowhere to go.
	deepseekKey, deepseekBase := "", ""
	if cfg.RunPodEndpointID != "" {
		deepseekKey, deepseekBase = cfg.RunPodAPIKey, RunPodBaseURL(cfg.RunPodEndpointID)
	}

	reg := Registry{
		GPT4: NewOpenAIGateway(OpenAIConfig{
			Name:   GPT4,
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
		}),
		Mistral: NewOpenAIGateway(OpenAIConfig{
			Name:    Mistral,
			APIKey:  cfg.MistralAPIKey,
			BaseURL: cfg.MistralBaseURL,
			Model:   cfg.MistralModel,
		}),
		DeepSeekR1: NewOpenAIGateway(OpenAIConfig{
			Name:      DeepSeekR1,
			APIKey:    deepseekKey,
			BaseURL:   deepseekBase,
			Model:     cfg.RunPodModel,
			Reasoning: true,
		}),
		Claude: NewAnthropicGateway(AnthropicConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
		}),
		Gemini:  NewGeminiGateway(gemini, cfg.GeminiModel),
		BART:    NewHuggingFaceGateway(BART, hf),
		T5:      NewHuggingFaceGateway(T5, hf),
		Pegasus: NewHuggingFaceGateway(Pegasus, hf),
	}
	for name, g := range reg {
		reg[name] = WithTimeout(g, cfg.ProviderTimeout)
	}

	log.Info("Provider registry ready", "providers", len(reg), "timeout", cfg.ProviderTimeout.String())
	return reg, gemini
}

type timeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

// WithTimeout bounds every call to g by d. A non-positive d returns g as is.
func WithTimeout(g Gateway, d time.Duration) Gateway {
	if d <= 0 {
		return g
	}
	return &timeoutGateway{next: g, timeout: d}
}

func (t *timeoutGateway) Summarize(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Summarize(ctx, req)
}
