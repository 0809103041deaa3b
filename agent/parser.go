package agent

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/internal/textmatch"
)

// MaxRanked is the number of distinct ranked diagnoses kept.
const MaxRanked = 5

var (
	errEmptyOutput   = errors.New("empty output")
	errNoAction      = errors.New("no Action, Lab Interpretation or Final Diagnosis found")
	errEmptyDiagnose = errors.New("final diagnosis is empty")
)

var (
	thinkBlockRe   = regexp.MustCompile(`(?is)<think>.*?</think>`)
	thinkTagRe     = regexp.MustCompile(`(?i)</?think>`)
	finalDiagRe    = regexp.MustCompile(`(?im)^[\s*#]*final\s+diagnos[ie]s\s*\**\s*(?:\(\s*ranked\s*\))?\s*\**\s*:?\s*\**`)
	treatmentRe    = regexp.MustCompile(`(?im)^[\s*#]*treatment(?:\s+plan)?\s*\**\s*:\s*\**`)
	actionRe       = regexp.MustCompile(`(?im)^[\s*#]*action\s*\**\s*:[\s*]*(.*)$`)
	actionInputRe  = regexp.MustCompile(`(?im)^[\s*#]*action\s+input\s*\**\s*:[\s*]*(.*)$`)
	thoughtRe      = regexp.MustCompile(`(?im)^[\s*#]*thought\s*\**\s*:[\s*]*`)
	labBlockRe     = regexp.MustCompile(`(?im)^[\s*#]*lab\s+interpretation\s*\**\s*:`)
	numberedItemRe = regexp.MustCompile(`^\s*\d+\s*[.:)]\s*`)
	explanationRe  = regexp.MustCompile(`\s+-+\s+|\s*:\s+|\s+\(`)
)

// doneActions are the action labels an information gatherer uses to hand off.
var doneActions = map[string]bool{
	"done": true, "finish": true, "finished": true, "none": true, "stop": true, "complete": true,
}

// Parsed is the structured reading of one agent reply. Interpretation is set
// when a Lab Interpretation block accompanies another action.
type Parsed struct {
	Action         core.ActionRequest
	Interpretation []core.LabInterpretation
}

// Parse reduces free-form model output into exactly one ActionRequest.
// Replies follow one of two layouts: "Thought / [Lab Interpretation] / Action /
// Action Input" while gathering, or "Thought / Final Diagnosis (ranked) /
// Treatment" once done. A bare Lab Interpretation block parses as Interpret.
func Parse(raw string) (Parsed, error) {
	text := StripThinking(raw)
	if text == "" {
		return Parsed{}, errEmptyOutput
	}

	thought := extractThought(text)

	labs, hasLabs, err := extractLabInterpretation(text)
	if err != nil {
		return Parsed{}, err
	}

	actions := actionRe.FindAllStringSubmatchIndex(text, -1)

	switch {
	case len(actions) > 0:
		action, err := parseAction(text, actions, thought, labs, hasLabs)
		if err != nil {
			return Parsed{}, err
		}
		p := Parsed{Action: action}
		if _, ok := action.(core.Interpret); !ok && hasLabs {
			p.Interpretation = labs
		}
		return p, nil

	case finalDiagRe.MatchString(text):
		d, err := parseDiagnosis(text, thought)
		if err != nil {
			return Parsed{}, err
		}
		p := Parsed{Action: d}
		if hasLabs {
			p.Interpretation = labs
		}
		return p, nil

	case hasLabs:
		return Parsed{Action: core.Interpret{Thought: thought, Labs: labs}}, nil

	case treatmentRe.MatchString(text):
		loc := treatmentRe.FindStringIndex(text)
		plan := strings.TrimSpace(text[loc[1]:])
		if plan == "" {
			return Parsed{}, errors.New("treatment is empty")
		}
		return Parsed{Action: core.EmitTreatment{Thought: thought, Text: plan}}, nil
	}

	return Parsed{}, errNoAction
}

// StripThinking removes reasoning blocks emitted by thinking models.
func StripThinking(raw string) string {
	text := thinkBlockRe.ReplaceAllString(raw, "")
	text = thinkTagRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func parseAction(text string, matches [][]int, thought string, labs []core.LabInterpretation, hasLabs bool) (core.ActionRequest, error) {
	labels := make([]string, 0, len(matches))
	for _, m := range matches {
		labels = append(labels, cleanLabel(text[m[2]:m[3]]))
	}

	for _, l := range labels[1:] {
		if l != labels[0] {
			return nil, fmt.Errorf("more than one action (%q and %q); request one action type at a time", labels[0], l)
		}
	}

	label := labels[0]
	input := ""
	if m := actionInputRe.FindStringSubmatch(text[matches[0][1]:]); m != nil {
		input = cleanInput(m[1])
	}

	if kind, ok := core.ParseFindingKind(label); ok {
		return core.RequestFinding{
			Thought:    thought,
			Kind:       kind,
			Parameters: textmatch.SplitOutsideParens(input, ','),
		}, nil
	}

	if doneActions[label] {
		return core.Abstain{Thought: thought, Reason: input}, nil
	}

	if label == "lab interpretation" || label == "interpret" || label == "interpretation" {
		if !hasLabs {
			return nil, errors.New("lab interpretation action without a Lab Interpretation block")
		}
		return core.Interpret{Thought: thought, Labs: labs}, nil
	}

	if label == "" {
		return nil, errors.New("action is empty")
	}

	return nil, fmt.Errorf("unknown action %q (want Physical Examination, Laboratory Tests or Imaging)", label)
}

func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*\"'`<>[]. ")
	return strings.ToLower(s)
}

func cleanInput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*\"'`[] ")
	if strings.EqualFold(s, "none") || strings.EqualFold(s, "n/a") {
		return ""
	}
	return s
}

// extractThought returns the text after "Thought:" up to the next section.
func extractThought(text string) string {
	loc := thoughtRe.FindStringIndex(text)
	if loc == nil {
		return ""
	}

	rest := text[loc[1]:]
	end := len(rest)
	for _, re := range []*regexp.Regexp{labBlockRe, actionRe, finalDiagRe, treatmentRe} {
		if l := re.FindStringIndex(rest); l != nil && l[0] < end {
			end = l[0]
		}
	}

	return strings.TrimSpace(strings.Trim(strings.TrimSpace(rest[:end]), "*"))
}

// extractLabInterpretation decodes the JSON object following "Lab
// Interpretation:". Entries are either {"value": ..., "interpretation": ...}
// objects or plain interpretation strings.
func extractLabInterpretation(text string) ([]core.LabInterpretation, bool, error) {
	loc := labBlockRe.FindStringIndex(text)
	if loc == nil {
		return nil, false, nil
	}

	obj, ok := jsonObjectAt(text[loc[1]:])
	if !ok || !gjson.Valid(obj) {
		return nil, true, errors.New("lab interpretation is not a valid JSON object")
	}

	var labs []core.LabInterpretation
	gjson.Parse(obj).ForEach(func(key, value gjson.Result) bool {
		li := core.LabInterpretation{Test: key.String()}
		if value.IsObject() {
			li.Value = value.Get("value").String()
			li.Interpretation = strings.ToLower(value.Get("interpretation").String())
		} else {
			li.Interpretation = strings.ToLower(value.String())
		}
		labs = append(labs, li)
		return true
	})

	return labs, true, nil
}

// jsonObjectAt returns the first balanced {...} object in s. Braces inside
// string literals are ignored.
func jsonObjectAt(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 || strings.TrimSpace(s[:start]) != "" && !isFence(s[:start]) {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

func isFence(s string) bool {
	s = strings.TrimSpace(s)
	return s == "```" || s == "```json"
}

func parseDiagnosis(text, thought string) (core.EmitDiagnosis, error) {
	loc := finalDiagRe.FindStringIndex(text)
	body := text[loc[1]:]

	treatment := ""
	if tl := treatmentRe.FindStringIndex(body); tl != nil {
		treatment = strings.TrimSpace(body[tl[1]:])
		body = body[:tl[0]]
	}

	body = strings.TrimSpace(strings.Trim(strings.TrimSpace(body), "*"))
	if body == "" {
		return core.EmitDiagnosis{}, errEmptyDiagnose
	}

	return core.EmitDiagnosis{
		Thought:   thought,
		Text:      body,
		Ranked:    ParseRanked(body),
		Treatment: treatment,
	}, nil
}

// ParseRanked extracts up to MaxRanked distinct diagnoses from a final
// diagnosis block. Numbered or bulleted lines are taken in order; trailing
// explanations after " - ", ": " or " (" are cut. A single unnumbered line
// yields one diagnosis.
func ParseRanked(block string) []string {
	var out []string

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(out) > 0 {
				break
			}
			continue
		}

		lower := strings.ToLower(strings.Trim(line, "*# "))
		if strings.HasPrefix(lower, "treatment") || strings.HasPrefix(lower, "thought") {
			break
		}

		line = numberedItemRe.ReplaceAllString(line, "")
		line = strings.TrimLeft(line, "-*•# \t")
		if loc := explanationRe.FindStringIndex(line); loc != nil {
			line = line[:loc[0]]
		}

		d := textmatch.Normalize(line)
		if d == "" || slices.Contains(out, d) {
			continue
		}

		out = append(out, d)
		if len(out) == MaxRanked {
			break
		}
	}

	return out
}
