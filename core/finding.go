package core

import (
	"fmt"
	"strings"
)

// FindingItem is one requested item inside a Finding (a single lab value or
// imaging report). Unavailable marks items the case does not record. Lower
// and Upper carry a lab's reference range for scoring; they are never
// rendered to agents.
type FindingItem struct {
	Requested   string   `json:"requested"`
	Name        string   `json:"name,omitempty"`
	Value       string   `json:"value,omitempty"`
	Lower       *float64 `json:"lower,omitempty"`
	Upper       *float64 `json:"upper,omitempty"`
	Unavailable bool     `json:"unavailable,omitempty"`
}

// Finding is the immutable result of resolving a RequestFinding against the
// case environment. Either Text/Items carry a payload or Unavailable is set.
type Finding struct {
	Kind        FindingKind   `json:"kind"`
	Requested   []string      `json:"requested,omitempty"`
	Text        string        `json:"text,omitempty"`
	Items       []FindingItem `json:"items,omitempty"`
	Unavailable bool          `json:"unavailable"`
}

// UnavailableFinding builds a Finding signalling that nothing was recorded.
func UnavailableFinding(kind FindingKind, requested []string) Finding {
	return Finding{Kind: kind, Requested: cloneStrings(requested), Unavailable: true}
}

// Available reports how many items carry a value.
func (f Finding) Available() int {
	n := 0
	for _, it := range f.Items {
		if !it.Unavailable {
			n++
		}
	}
	if f.Text != "" {
		n++
	}
	return n
}

// Render formats the finding as the observation text shown to agents.
func (f Finding) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s results:\n", f.Kind.Label())

	if f.Unavailable {
		if len(f.Requested) > 0 {
			fmt.Fprintf(&b, "Not available: %s\n", strings.Join(f.Requested, ", "))
		} else {
			b.WriteString("Not available.\n")
		}
		return strings.TrimRight(b.String(), "\n")
	}

	if f.Text != "" {
		b.WriteString(f.Text)
		b.WriteString("\n")
	}

	for _, it := range f.Items {
		if it.Unavailable {
			fmt.Fprintf(&b, "- %s: not available\n", it.Requested)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", it.Name, it.Value)
	}

	return strings.TrimRight(b.String(), "\n")
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
