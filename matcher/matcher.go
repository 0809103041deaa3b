// Package matcher decides whether free-text diagnosis or treatment output
// names one of a fixed set of ground-truth categories.
//
// Two Comparators are provided. Model asks a language model and never guesses:
// a failed call or an unusable reply yields Indeterminate. Static grades text
// with the clinical catalog (fuzzy names, alternative phrasings, negation).
package matcher

import (
	"context"

	"github.com/hupe1980/clinagents/core"
)

// Outcome is the result class of one comparison.
type Outcome string

const (
	OutcomeMatch         Outcome = "match"
	OutcomeNoMatch       Outcome = "no_match"
	OutcomeIndeterminate Outcome = "indeterminate"
)

// Verdict is the result of one comparison. Category is set for matches.
type Verdict struct {
	Outcome  Outcome `json:"outcome"`
	Category string  `json:"category,omitempty"`
	// Reason explains indeterminate verdicts.
	Reason string `json:"reason,omitempty"`
}

// Matches reports whether the verdict picked category.
func (v Verdict) Matches(category string) bool {
	return v.Outcome == OutcomeMatch && v.Category == category
}

// Indeterminate reports whether no decision could be made.
func (v Verdict) Indeterminate() bool { return v.Outcome == OutcomeIndeterminate }

// Match builds a match verdict.
func Match(category string) Verdict { return Verdict{Outcome: OutcomeMatch, Category: category} }

// NoMatch is the verdict for text naming none of the categories.
var NoMatch = Verdict{Outcome: OutcomeNoMatch}

// Indeterminate builds an indeterminate verdict.
func Indeterminate(reason string) Verdict {
	return Verdict{Outcome: OutcomeIndeterminate, Reason: reason}
}

// Comparator maps candidate text onto at most one of categories. Usage reports
// the model cost of the decision, zero for static or cached decisions.
type Comparator interface {
	Name() string
	Match(ctx context.Context, candidate string, categories []string) (Verdict, core.Usage)
}
