package provider

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type AnthropicGateway struct {
	model  string
	client *anthropic.Client
}

func NewAnthropicGateway(cfg AnthropicConfig) *AnthropicGateway {
	g := &AnthropicGateway{model: cfg.Model}
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
	client := anthropic.NewClient(opts...)
	g.client = &client
	return g
}

func (g *AnthropicGateway) Summarize(ctx context.Context, req Request) (string, error) {
	if g.client == nil {
		return "", newError(Claude, "not configured", errMissingCredentials)
	}

	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   req.maxTokens(),
		Temperature: anthropic.Float(req.Temperature),
		System:      []anthropic.TextBlockParam{{Text: req.system()}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.userPrompt())),
		},
	})
	if err != nil {
		return "", newError(Claude, "request failed", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", newError(Claude, "message has no text content", errEmptyOutput)
	}
	return text, nil
}
