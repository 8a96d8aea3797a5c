package provider

import (
	"context"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIConfig configures a gateway for any OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	Name    Name
	APIKey  string
	BaseURL string
	Model   string
	// Reasoning marks models that emit a thinking block before the answer.
	Reasoning bool
}

type OpenAIGateway struct {
	name      Name
	model     string
	reasoning bool
	client    *openai.Client
}

func NewOpenAIGateway(cfg OpenAIConfig) *OpenAIGateway {
	g := &OpenAIGateway{name: cfg.Name, model: cfg.Model, reasoning: cfg.Reasoning}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return g
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base+"/"))
	}
	client := openai.NewClient(opts...)
	g.client = &client
	return g
}

func (g *OpenAIGateway) Summarize(ctx context.Context, req Request) (string, error) {
	if g.client == nil {
		return "", newError(g.name, "not configured", errMissingCredentials)
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.system()),
			openai.UserMessage(req.userPrompt()),
		},
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(req.maxTokens()),
	})
	if err != nil {
		return "", newError(g.name, "request failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", newError(g.name, "chat completion choices are missing", errEmptyOutput)
	}

	content := resp.Choices[0].Message.Content
	if g.reasoning {
		content = StripReasoning(content)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", newError(g.name, "chat completion message content is missing", errEmptyOutput)
	}
	return content, nil
}

// RunPodBaseURL returns the OpenAI-compatible base URL of a RunPod serverless endpoint.
func RunPodBaseURL(endpointID string) string {
	return "https://api.runpod.ai/v2/" + endpointID + "/openai/v1"
}
