// Package textmatch holds the fuzzy string helpers shared by the case
// environment and the static comparator: similarity ratios on top of
// Levenshtein distance plus a small rule-based negation detector.
package textmatch

import (
	"slices"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Normalize lowercases s, drops punctuation and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case unicode.IsSpace(r) || r == '-' || r == '/':
			if !space && b.Len() > 0 {
				b.WriteRune(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Ratio returns a 0-100 similarity of a and b.
func Ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return int(float64(longest-d)*100/float64(longest) + 0.5)
}

// PartialRatio returns the best Ratio of the shorter string against the
// windows of the longer one. Window widths vary by up to partialSlack runes
// so a single dropped or doubled letter still lines up.
func PartialRatio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		if len(rb) == 0 {
			return 100
		}
		return 0
	}

	short := string(ra)
	best := 0
	for w := max(1, len(ra)-partialSlack); w <= min(len(rb), len(ra)+partialSlack); w++ {
		for i := 0; i+w <= len(rb); i++ {
			score := Ratio(short, string(rb[i:i+w]))
			if score > best {
				best = score
				if best == 100 {
					return best
				}
			}
		}
	}
	return best
}

const partialSlack = 2

// TokenSetRatio compares the sorted token sets of a and b, which ignores word
// order and duplicated words.
func TokenSetRatio(a, b string) int {
	ta, tb := tokenSet(a), tokenSet(b)
	var inter, onlyA, onlyB []string
	for t := range ta {
		if tb[t] {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tb {
		if !ta[t] {
			onlyB = append(onlyB, t)
		}
	}
	slices.Sort(inter)
	slices.Sort(onlyA)
	slices.Sort(onlyB)

	base := strings.Join(inter, " ")
	withA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := Ratio(withA, withB)
	if base != "" {
		if r := Ratio(base, withA); r > best {
			best = r
		}
		if r := Ratio(base, withB); r > best {
			best = r
		}
	}
	return best
}

// Score is the combined similarity used for lookups: the best of Ratio,
// TokenSetRatio and PartialRatio, where PartialRatio only counts once the
// shorter string has at least minPartialLen runes.
func Score(a, b string) int {
	a, b = Normalize(a), Normalize(b)
	best := Ratio(a, b)
	if r := TokenSetRatio(a, b); r > best {
		best = r
	}
	if min(len([]rune(a)), len([]rune(b))) >= minPartialLen {
		if r := PartialRatio(a, b); r > best {
			best = r
		}
	}
	return best
}

const minPartialLen = 4

// BestMatch returns the index and score of the candidate most similar to
// query, or -1 when none reaches threshold. Ties keep the earliest candidate.
func BestMatch(query string, candidates []string, threshold int) (int, int) {
	idx, best := -1, -1
	for i, c := range candidates {
		s := Score(query, c)
		if s > best {
			idx, best = i, s
		}
	}
	if best < threshold {
		return -1, best
	}
	return idx, best
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, t := range strings.Fields(Normalize(s)) {
		out[t] = true
	}
	return out
}
