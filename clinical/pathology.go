// Package clinical is the fixed medical catalog of the benchmark: the four
// acute abdominal pathologies, the alternative names accepted for them, their
// standard-of-care treatments and the guideline work-up (labs, imaging, exam
// maneuvers) used for process scoring.
package clinical

import (
	"strings"

	"github.com/hupe1980/clinagents/internal/textmatch"
)

// Pathology is one ground-truth diagnosis category.
type Pathology string

const (
	Appendicitis   Pathology = "appendicitis"
	Cholecystitis  Pathology = "cholecystitis"
	Diverticulitis Pathology = "diverticulitis"
	Pancreatitis   Pathology = "pancreatitis"
)

// Pathologies lists the supported categories in reporting order.
var Pathologies = []Pathology{Appendicitis, Cholecystitis, Diverticulitis, Pancreatitis}

// DiagnosisCategories returns the pathology names as plain strings.
func DiagnosisCategories() []string {
	out := make([]string, len(Pathologies))
	for i, p := range Pathologies {
		out[i] = string(p)
	}
	return out
}

// ParsePathology maps a category name onto a Pathology.
func ParsePathology(s string) (Pathology, bool) {
	norm := textmatch.Normalize(s)
	for _, p := range Pathologies {
		if norm == string(p) {
			return p, true
		}
	}
	return "", false
}

// MatchPathology picks the pathology a free-text diagnosis (for example a
// discharge diagnosis) is about, using a lenient partial ratio.
func MatchPathology(text string) (Pathology, bool) {
	norm := textmatch.Normalize(text)
	for _, p := range Pathologies {
		if textmatch.PartialRatio(norm, string(p)) > 80 {
			return p, true
		}
	}
	return "", false
}

// Alternative accepts text mentioning Location together with any modifier.
type Alternative struct {
	Location  string
	Modifiers []string
}

// Holds reports whether the alternative is positively stated in text. With
// perSentence set, location and modifier must appear in the same sentence.
func (a Alternative) Holds(text string, perSentence bool) bool {
	chunks := []string{text}
	if perSentence {
		chunks = strings.Split(text, ".")
	}
	for _, chunk := range chunks {
		if !textmatch.KeywordPositive(chunk, a.Location) {
			continue
		}
		for _, mod := range a.Modifiers {
			if textmatch.KeywordPositive(chunk, mod) {
				return true
			}
		}
	}
	return false
}

var alternativeNames = map[Pathology][]Alternative{
	Appendicitis: {
		{Location: "appendi", Modifiers: []string{"gangren", "infect", "inflam", "abscess", "rupture", "necros", "perf"}},
	},
	Cholecystitis: {
		{Location: "gallbladder", Modifiers: []string{"gangren", "infect", "inflam", "abscess", "necros", "perf"}},
		{Location: "cholangitis", Modifiers: []string{"cholangitis"}},
	},
	Diverticulitis: {
		{Location: "diverticul", Modifiers: []string{"inflam", "infect", "abscess", "perf", "rupture"}},
	},
	Pancreatitis: {
		{Location: "pancrea", Modifiers: []string{"gangren", "infect", "inflam", "abscess", "necros"}},
	},
}

var graciousNames = map[Pathology][]Alternative{
	Cholecystitis: {
		{Location: "acute gallbladder", Modifiers: []string{"disease", "attack"}},
		{Location: "acute biliary", Modifiers: []string{"colic"}},
	},
	Diverticulitis: {
		{Location: "acute colonic", Modifiers: []string{"perfor"}},
		{Location: "sigmoid", Modifiers: []string{"perfor"}},
		{Location: "sigmoid", Modifiers: []string{"colitis"}},
	},
}

// Alternatives returns the anatomical location plus modifier phrasings that
// count as naming p.
func (p Pathology) Alternatives() []Alternative { return alternativeNames[p] }

// GraciousAlternatives returns the lenient phrasings accepted for p.
func (p Pathology) GraciousAlternatives() []Alternative { return graciousNames[p] }

// MatchStrength grades how text names a pathology.
type MatchStrength int

const (
	NoMatch MatchStrength = iota
	GraciousMatch
	AlternativeMatch
	ExactMatch
)

// Match grades diagnosis text against p: the category name must appear with
// a partial ratio above 90 and not be negated; failing that the alternative
// and then the gracious phrasings are tried.
func (p Pathology) Match(diagnosis string) MatchStrength {
	if strings.TrimSpace(diagnosis) == "" {
		return NoMatch
	}

	clean := textmatch.Normalize(diagnosis)
	if textmatch.PartialRatio(string(p), clean) > 90 && !textmatch.IsNegated(diagnosis, string(p)) {
		return ExactMatch
	}

	for _, alt := range p.Alternatives() {
		if alt.Holds(diagnosis, false) {
			return AlternativeMatch
		}
	}

	for _, alt := range p.GraciousAlternatives() {
		if alt.Holds(diagnosis, false) {
			return GraciousMatch
		}
	}

	return NoMatch
}
