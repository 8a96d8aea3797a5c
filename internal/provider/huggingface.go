package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	hfChunkWords   = 600
	hfChunkOverlap = 50
	hfMinLength    = 30
)

// HFModels maps the encoder-decoder backends to their hosted model ids.
var HFModels = map[Name]string{
	BART:    "facebook/bart-large-cnn",
	T5:      "t5-small",
	Pegasus: "google/pegasus-large",
}

type HuggingFaceConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// HuggingFaceGateway calls the hosted inference API of a summarization model.
// Long inputs are summarized chunk by chunk and the joined chunk summaries are
// summarized once more.
type HuggingFaceGateway struct {
	name    Name
	modelID string
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewHuggingFaceGateway(name Name, cfg HuggingFaceConfig) *HuggingFaceGateway {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &HuggingFaceGateway{
		name:    name,
		modelID: HFModels[name],
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    client,
	}
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
	Options    hfOptions    `json:"options"`
}

type hfParameters struct {
	MaxLength int  `json:"max_length"`
	MinLength int  `json:"min_length"`
	DoSample  bool `json:"do_sample"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type hfSummary struct {
	SummaryText string `json:"summary_text"`
}

type hfError struct {
	Error string `json:"error"`
}

func (g *HuggingFaceGateway) Summarize(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(g.apiKey) == "" {
		return "", newError(g.name, "not configured", errMissingCredentials)
	}

	chunks := chunkWords(req.Text, hfChunkWords, hfChunkOverlap)
	if len(chunks) == 0 {
		return "", newError(g.name, "input is empty", errEmptyOutput)
	}

	maxLen := int(req.maxTokens())
	partials := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		s, err := g.call(ctx, chunk, maxLen)
		if err != nil {
			return "", err
		}
		partials = append(partials, s)
	}
	if len(partials) == 1 {
		return partials[0], nil
	}
	return g.call(ctx, strings.Join(partials, " "), maxLen)
}

func (g *HuggingFaceGateway) call(ctx context.Context, text string, maxLen int) (string, error) {
	if g.name == T5 {
		text = "summarize: " + text
	}
	body, err := json.Marshal(hfRequest{
		Inputs:     text,
		Parameters: hfParameters{MaxLength: maxLen, MinLength: hfMinLength},
		Options:    hfOptions{WaitForModel: true},
	})
	if err != nil {
		return "", newError(g.name, "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/models/"+g.modelID, bytes.NewReader(body))
	if err != nil {
		return "", newError(g.name, "failed to build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return "", newError(g.name, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newError(g.name, "failed to read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr hfError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return "", newError(g.name, fmt.Sprintf("status %d", resp.StatusCode), fmt.Errorf("%s", apiErr.Error))
		}
		return "", newError(g.name, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var out []hfSummary
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", newError(g.name, "malformed response", err)
	}
	if len(out) == 0 || strings.TrimSpace(out[0].SummaryText) == "" {
		return "", newError(g.name, "summary_text is missing", errEmptyOutput)
	}
	return strings.TrimSpace(out[0].SummaryText), nil
}

// chunkWords splits text into windows of at most size words, each starting
// overlap words before the end of the previous one.
func chunkWords(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var chunks []string
	for start := 0; ; start += size - overlap {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
