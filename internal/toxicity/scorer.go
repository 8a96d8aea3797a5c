// Package toxicity scores texts with a content-safety classifier and derives
// the aggregate numbers stored with each summary.
package toxicity

import (
	"context"

	"github.com/battlebrief/bulwark/internal/utils"
)

// OverallLabel is the pseudo-label holding the mean of all other labels.
const OverallLabel = "overall"

// Scores maps a label to a probability in [0, 1].
type Scores map[string]float64

type Scorer interface {
	Score(ctx context.Context, text string) (Scores, error)
}

// WithOverall returns a copy of s with the overall mean added.
func WithOverall(s Scores) Scores {
	out := make(Scores, len(s)+1)
	values := make([]float64, 0, len(s))
	for label, v := range s {
		if label == OverallLabel {
			continue
		}
		out[label] = v
		values = append(values, v)
	}
	out[OverallLabel] = utils.Mean(values)
	return out
}

// Reduction computes, per label of report, how much lower the summary scored
// in percent. A zero report score yields 0.
func Reduction(report, summary Scores) map[string]float64 {
	out := make(map[string]float64, len(report))
	for label, r := range report {
		if r == 0 {
			out[label] = 0
			continue
		}
		out[label] = (r - summary[label]) / r * 100
	}
	return out
}
