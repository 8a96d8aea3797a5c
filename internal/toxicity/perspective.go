package toxicity

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/commentanalyzer/v1alpha1"
	"google.golang.org/api/option"

	"github.com/battlebrief/bulwark/internal/utils"
)

// MaxCommentBytes is the largest text the Perspective API accepts.
const MaxCommentBytes = 20480

// perspectiveAttributes maps API attribute names to the stored label names.
var perspectiveAttributes = map[string]string{
	"TOXICITY":          "toxicity",
	"SEVERE_TOXICITY":   "severe_toxicity",
	"IDENTITY_ATTACK":   "identity_attack",
	"INSULT":            "insult",
	"PROFANITY":         "profanity",
	"THREAT":            "threat",
	"SEXUALLY_EXPLICIT": "sexually_explicit",
}

type PerspectiveScorer struct {
	svc *commentanalyzer.Service
}

// NewPerspectiveScorer creates a scorer for the Perspective comment analyzer.
// endpoint overrides the API base URL and is empty outside tests.
func NewPerspectiveScorer(ctx context.Context, apiKey, endpoint string) (*PerspectiveScorer, error) {
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(endpoint, "/")+"/"))
	}
	svc, err := commentanalyzer.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create comment analyzer client: %w", err)
	}
	return &PerspectiveScorer{svc: svc}, nil
}

func (p *PerspectiveScorer) Score(ctx context.Context, text string) (Scores, error) {
	text = utils.TruncateBytes(text, MaxCommentBytes)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot score empty text")
	}

	requested := make(map[string]commentanalyzer.AttributeParameters, len(perspectiveAttributes))
	for attr := range perspectiveAttributes {
		requested[attr] = commentanalyzer.AttributeParameters{}
	}

	resp, err := p.svc.Comments.Analyze(&commentanalyzer.AnalyzeCommentRequest{
		Comment:             &commentanalyzer.TextEntry{Text: text},
		RequestedAttributes: requested,
		Languages:           []string{"en"},
		DoNotStore:          true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("perspective analyze failed: %w", err)
	}

	scores := make(Scores, len(perspectiveAttributes))
	for attr, label := range perspectiveAttributes {
		s, ok := resp.AttributeScores[attr]
		if !ok || s.SummaryScore == nil {
			continue
		}
		scores[label] = s.SummaryScore.Value
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("perspective returned no attribute scores")
	}
	return scores, nil
}
