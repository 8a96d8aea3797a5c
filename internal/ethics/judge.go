package ethics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/battlebrief/bulwark/internal/logger"
	"github.com/battlebrief/bulwark/internal/utils"
)

// ErrJudgeUnparseable is returned when the judge never produced a usable score
// sheet within its attempt budget.
var ErrJudgeUnparseable = errors.New("judge response could not be parsed")

const (
	FacetConsistency = "Consistency"
	FacetCoverage    = "Coverage"
	FacetCoherence   = "Coherence"
	FacetFluency     = "Fluency"
	FacetOverall     = "Overall"

	judgeMaxTokens = 256
)

var facets = []string{FacetConsistency, FacetCoverage, FacetCoherence, FacetFluency}

const judgeSystemPrompt = "You are NATO-Judge-v1, an impartial military-intelligence reviewer. " +
	"Evaluate the QUALITY of the SUMMARY relative to the SOURCE along four criteria:\n" +
	"  1. CONSISTENCY\n  2. COVERAGE\n  3. COHERENCE\n  4. FLUENCY\n\n" +
	"For each give a justification of at most 30 words and an integer score 1-10. " +
	"Respond ONLY in compact JSON, e.g.:\n" +
	`{"Consistency":{"score":4,"justification":"..."},` +
	`"Coverage":{"score":9,"justification":"..."},` +
	`"Coherence":{"score":6,"justification":"..."},` +
	`"Fluency":{"score":5,"justification":"..."}}`

type FacetScore struct {
	Score         int    `json:"score"`
	Justification string `json:"justification"`
}

// QualityScore maps facet names to scores. It always carries an Overall entry
// computed locally from the four facets.
type QualityScore map[string]FacetScore

// Overall returns the derived overall score.
func (q QualityScore) Overall() int { return q[FacetOverall].Score }

type JudgeConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxAttempts int
}

// Judge asks a Mistral model, through its OpenAI-compatible API, to grade a
// summary against its source.
type Judge struct {
	client      openai.Client
	model       string
	maxAttempts int
	log         *logger.Logger
}

func NewJudge(cfg JudgeConfig, log *logger.Logger) *Judge {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base+"/"))
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Judge{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		maxAttempts: attempts,
		log:         log.With("component", "QualityJudge"),
	}
}

// Evaluate retries only while the reply fails to parse. Transport errors end
// the evaluation immediately.
func (j *Judge) Evaluate(ctx context.Context, source, summary string) (QualityScore, error) {
	userPrompt := "<SOURCE>\n" + source + "\n</SOURCE>\n<SUMMARY>\n" + summary + "\n</SUMMARY>"

	for attempt := 1; attempt <= j.maxAttempts; attempt++ {
		resp, err := j.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(j.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(judgeSystemPrompt),
				openai.UserMessage(userPrompt),
			},
			Temperature: openai.Float(0),
			MaxTokens:   openai.Int(judgeMaxTokens),
		})
		if err != nil {
			return nil, fmt.Errorf("judge request failed: %w", err)
		}

		raw := ""
		if len(resp.Choices) > 0 {
			raw = resp.Choices[0].Message.Content
		}
		scores, err := ParseQualityScore(raw)
		if err == nil {
			return scores, nil
		}
		j.log.Warn("Judge reply rejected, retrying", "attempt", attempt, "error", err, "reply", utils.Preview(raw, 120))
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrJudgeUnparseable, j.maxAttempts)
}

// ParseQualityScore decodes a judge reply, optionally wrapped in a code fence,
// and derives Overall as the rounded mean of the four facets.
func ParseQualityScore(raw string) (QualityScore, error) {
	var parsed map[string]FacetScore
	if err := json.Unmarshal([]byte(utils.StripCodeFence(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	out := make(QualityScore, len(facets)+1)
	values := make([]float64, 0, len(facets))
	for _, f := range facets {
		s, ok := parsed[f]
		if !ok {
			return nil, fmt.Errorf("missing facet %q", f)
		}
		if s.Score < 1 || s.Score > 10 {
			return nil, fmt.Errorf("facet %q score %d out of range", f, s.Score)
		}
		out[f] = s
		values = append(values, float64(s.Score))
	}

	overall := out[FacetOverall]
	overall.Score = int(utils.RoundTo(utils.Mean(values), 0))
	if o, ok := parsed[FacetOverall]; ok {
		overall.Justification = o.Justification
	}
	out[FacetOverall] = overall
	return out, nil
}
