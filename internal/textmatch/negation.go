package textmatch

import (
	"regexp"
	"strings"
)

// negation cues that precede the negated term
var preCues = []string{
	"no", "not", "without", "denies", "denied", "deny", "negative for",
	"rule out", "ruled out", "r o", "unlikely", "absence of", "absent",
	"free of", "exclude", "excluded", "excluding", "no evidence of", "no signs of",
	"less likely",
}

// cues that follow the negated term ("appendicitis was ruled out")
var postCues = []string{
	"ruled out", "excluded", "unlikely", "not seen", "not present", "absent",
	"less likely", "negative",
}

const (
	preWindow  = 5
	postWindow = 4
)

var clauseSplit = regexp.MustCompile(`[.;:\n]|,\s*(?:but|however)\b|\bbut\b|\bhowever\b`)

// IsNegated reports whether term occurs in text only in negated form. A
// mention counts as negated when a negation cue appears within a short token
// window inside the same clause. When term does not occur at all IsNegated
// returns false.
func IsNegated(text, term string) bool {
	found, positive := scan(text, term)
	return found && !positive
}

// KeywordPositive reports whether term occurs in text at least once without
// being negated.
func KeywordPositive(text, term string) bool {
	_, positive := scan(text, term)
	return positive
}

func scan(text, term string) (found, positive bool) {
	term = Normalize(term)
	if term == "" {
		return false, false
	}
	for _, clause := range clauseSplit.Split(strings.ToLower(text), -1) {
		norm := Normalize(clause)
		if norm == "" {
			continue
		}
		words := strings.Fields(norm)
		for _, pos := range mentions(words, term) {
			found = true
			if !negatedAt(words, pos, len(strings.Fields(term))) {
				return true, true
			}
		}
	}
	return found, false
}

// mentions returns the word offsets at which a word of words starts with the
// first word of term and the following words match the rest.
func mentions(words []string, term string) []int {
	parts := strings.Fields(term)
	var out []int
	for i := 0; i+len(parts) <= len(words); i++ {
		ok := true
		for j, p := range parts {
			w := words[i+j]
			if j == len(parts)-1 {
				if !strings.HasPrefix(w, p) {
					ok = false
				}
			} else if w != p {
				ok = false
			}
			if !ok {
				break
			}
		}
		if ok {
			out = append(out, i)
		}
	}
	return out
}

func negatedAt(words []string, pos, termLen int) bool {
	start := max(0, pos-preWindow)
	before := " " + strings.Join(words[start:pos], " ") + " "
	for _, cue := range preCues {
		if strings.Contains(before, " "+cue+" ") {
			return true
		}
	}
	end := min(len(words), pos+termLen+postWindow)
	after := " " + strings.Join(words[pos+termLen:end], " ") + " "
	for _, cue := range postCues {
		if strings.Contains(after, " "+cue+" ") {
			return true
		}
	}
	return false
}
