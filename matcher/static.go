package matcher

import (
	"context"
	"strings"

	"github.com/hupe1980/clinagents/clinical"
	"github.com/hupe1980/clinagents/core"
)

var _ Comparator = (*Static)(nil)

// StaticOptions configure the Static comparator.
type StaticOptions struct {
	// Gracious also accepts the loose phrasings of each pathology (for
	// example "gallbladder inflammation").
	Gracious bool
}

// Static grades text against the clinical catalog. Pathology categories use
// the fuzzy name, alternative and gracious rules; any other category is
// treated as a treatment label. The strongest pathology match wins; ties and
// treatments resolve in category order.
type Static struct {
	gracious bool
}

// NewStatic creates a Static comparator.
func NewStatic(optFns ...func(o *StaticOptions)) *Static {
	opts := StaticOptions{Gracious: true}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Static{gracious: opts.Gracious}
}

// Name implements Comparator.
func (s *Static) Name() string { return "static" }

// Match implements Comparator.
func (s *Static) Match(_ context.Context, candidate string, categories []string) (Verdict, core.Usage) {
	if strings.TrimSpace(candidate) == "" {
		return NoMatch, core.Usage{}
	}

	var (
		best     string
		strength clinical.MatchStrength
	)

	for _, cat := range categories {
		if p, ok := clinical.ParsePathology(cat); ok {
			got := p.Match(candidate)
			if got == clinical.GraciousMatch && !s.gracious {
				got = clinical.NoMatch
			}
			if got > strength {
				best, strength = cat, got
			}
			continue
		}

		if strength == clinical.NoMatch && clinical.MatchTreatmentCategory(cat, candidate) {
			return Match(cat), core.Usage{}
		}
	}

	if strength == clinical.NoMatch {
		return NoMatch, core.Usage{}
	}

	return Match(best), core.Usage{}
}
