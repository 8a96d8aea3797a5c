package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/battlebrief/bulwark/internal/logger"
)

// GeminiClient owns the process-wide genai client. The client is created on
// first use and shared by every caller until Close.
type GeminiClient struct {
	apiKey string
	log    *logger.Logger

	once   sync.Once
	client *genai.Client
	err    error
}

func NewGeminiClient(apiKey string, log *logger.Logger) *GeminiClient {
	return &GeminiClient{apiKey: apiKey, log: log.With("component", "GeminiClient")}
}

func (c *GeminiClient) get() (*genai.Client, error) {
	c.once.Do(func() {
		if strings.TrimSpace(c.apiKey) == "" {
			c.err = errMissingCredentials
			return
		}
		c.client, c.err = genai.NewClient(context.Background(), option.WithAPIKey(c.apiKey))
		if c.err == nil {
			c.log.Info("GenAI client created")
		}
	})
	return c.client, c.err
}

// GenerateParams describes one single-turn generation.
type GenerateParams struct {
	Model             string
	SystemInstruction string
	Prompt            string
	Temperature       float32
	MaxOutputTokens   int32
	JSON              bool
}

// Generate runs a single-turn generation and returns the concatenated text parts.
func (c *GeminiClient) Generate(ctx context.Context, p GenerateParams) (string, error) {
	client, err := c.get()
	if err != nil {
		return "", fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := client.GenerativeModel(p.Model)
	configureModel(model, p)

	resp, err := model.GenerateContent(ctx, genai.Text(p.Prompt))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	return candidateText(resp)
}

func configureModel(model *genai.GenerativeModel, p GenerateParams) {
	if p.SystemInstruction != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(p.SystemInstruction)},
		}
	}
	temp := p.Temperature
	model.GenerationConfig = genai.GenerationConfig{Temperature: &temp}
	if p.MaxOutputTokens > 0 {
		maxTokens := p.MaxOutputTokens
		model.GenerationConfig.MaxOutputTokens = &maxTokens
	}
	if p.JSON {
		model.ResponseMIMEType = "application/json"
	}
}

// candidateText concatenates the text parts of the first candidate.
func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyOutput
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		}
	}
	if out.Len() == 0 {
		return "", errEmptyOutput
	}
	return out.String(), nil
}

func (c *GeminiClient) Close() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close GenAI client: %w", err)
	}
	c.log.Info("GenAI client closed")
	return nil
}

type generator interface {
	Generate(ctx context.Context, p GenerateParams) (string, error)
}

type GeminiGateway struct {
	client generator
	model  string
}

func NewGeminiGateway(client *GeminiClient, model string) *GeminiGateway {
	return &GeminiGateway{client: client, model: model}
}

func (g *GeminiGateway) Summarize(ctx context.Context, req Request) (string, error) {
	text, err := g.client.Generate(ctx, GenerateParams{
		Model:             g.model,
		SystemInstruction: req.system(),
		Prompt:            req.userPrompt(),
		Temperature:       float32(req.Temperature),
		MaxOutputTokens:   int32(req.maxTokens()),
	})
	switch {
	case errors.Is(err, errMissingCredentials):
		return "", newError(Gemini, "not configured", err)
	case errors.Is(err, errEmptyOutput):
		return "", newError(Gemini, "response had no text parts", err)
	case err != nil:
		return "", newError(Gemini, "request failed", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", newError(Gemini, "response text is blank", errEmptyOutput)
	}
	return text, nil
}
