// Package ethics decides whether a generated summary may be shown and scores
// its quality. Check is the local keyword gate, Judge scores quality through a
// remote model and Auditor rates the summary against responsible-use
// principles.
package ethics

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxSummaryChars is the length ceiling of a compliant summary, in characters.
const MaxSummaryChars = 2000

type Verdict struct {
	Compliant bool
	Reason    string
}

type termCategory struct {
	label string
	terms []string
}

// Categories are checked in order and the first one with a hit decides.
var categories = []termCategory{
	{
		label: "classification terms",
		terms: []string{
			"top secret", "classified", "confidential", "eyes only", "noforn",
			"sensitive compartmented information", "sci", "comsec", "sigint",
		},
	},
	{
		label: "violent or harmful content",
		terms: []string{
			"kill", "massacre", "torture", "rape", "murder", "slaughter",
			"bomb civilian", "genocide", "ethnic cleansing",
		},
	},
	{
		label: "politically sensitive content",
		terms: []string{
			"regime change", "assassination", "coup", "overthrow government",
		},
	},
}

// Check matches summary case-insensitively against the term lists as plain
// substrings, then applies the length ceiling.
func Check(summary string) Verdict {
	lower := strings.ToLower(summary)
	for _, c := range categories {
		var found []string
		for _, term := range c.terms {
			if strings.Contains(lower, term) {
				found = append(found, term)
			}
		}
		if len(found) > 0 {
			return Verdict{Reason: fmt.Sprintf("%s: %s", c.label, strings.Join(found, ", "))}
		}
	}

	if utf8.RuneCountInString(summary) > MaxSummaryChars {
		return Verdict{Reason: "summary length exceeds security guidelines"}
	}
	return Verdict{Compliant: true}
}
