package textmatch

import "strings"

// SplitOutsideParens splits s on sep, ignoring separators nested in
// parentheses or brackets. Parts are trimmed and empty parts dropped.
func SplitOutsideParens(s string, sep rune) []string {
	var (
		out   []string
		depth int
		cur   strings.Builder
	)
	flush := func() {
		if p := strings.TrimSpace(cur.String()); p != "" {
			out = append(out, p)
		}
		cur.Reset()
	}
	for _, r := range s {
		switch {
		case r == '(' || r == '[':
			depth++
		case (r == ')' || r == ']') && depth > 0:
			depth--
		case r == sep && depth == 0:
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return out
}

// ContainsAny reports whether the normalized text contains any of the
// normalized needles.
func ContainsAny(text string, needles ...string) bool {
	text = Normalize(text)
	for _, n := range needles {
		if n = Normalize(n); n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}
