package matcher

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/clinagents/agent"
	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/internal/textmatch"
	"github.com/hupe1980/clinagents/internal/util"
	"github.com/hupe1980/clinagents/logging"
	"github.com/hupe1980/clinagents/model"
)

// Prompt is the fixed classification template.
const Prompt = `You are a strict medical classifier. Decide which category the candidate text names.

Candidate:
{{.Candidate}}

Categories:
{{list .Categories}}

Answer with exactly one category name from the list, or "none" if no category applies. Do not explain.`

var _ Comparator = (*Model)(nil)

// ModelOptions configure the Model comparator.
type ModelOptions struct {
	Retry     model.RetryPolicy
	MaxTokens int
	Logger    logging.Logger
}

// Model is the model-backed Comparator. Decoding runs at temperature 0 and
// decided verdicts are memoized per (candidate, categories) together with the
// usage of the call that decided them, so repeated comparisons within a
// process return the same verdict and the same usage. Concurrent comparisons
// of one key share a single model call. Usage never carries latency.
type Model struct {
	client    model.Client
	retry     model.RetryPolicy
	maxTokens int
	logger    logging.Logger

	group singleflight.Group
	mu    sync.Mutex
	memo  map[string]memoEntry
}

type memoEntry struct {
	verdict Verdict
	usage   core.Usage
}

// NewModel creates a Model comparator over client.
func NewModel(client model.Client, optFns ...func(o *ModelOptions)) *Model {
	opts := ModelOptions{
		Retry:     model.DefaultRetryPolicy(),
		MaxTokens: 32,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client:    client,
		retry:     opts.Retry,
		maxTokens: opts.MaxTokens,
		logger:    logging.OrNoOp(opts.Logger),
		memo:      make(map[string]memoEntry),
	}
}

// Name implements Comparator.
func (m *Model) Name() string { return "model:" + m.Model() }

// Model returns the backing model name.
func (m *Model) Model() string { return m.client.Info().Name }

// Match implements Comparator.
func (m *Model) Match(ctx context.Context, candidate string, categories []string) (Verdict, core.Usage) {
	if strings.TrimSpace(candidate) == "" || len(categories) == 0 {
		return NoMatch, core.Usage{}
	}

	key := candidate + "\x00" + strings.Join(categories, "\x1f")

	m.mu.Lock()
	e, ok := m.memo[key]
	m.mu.Unlock()
	if ok {
		return e.verdict, e.usage
	}

	res, _, _ := m.group.Do(key, func() (any, error) {
		m.mu.Lock()
		e, ok := m.memo[key]
		m.mu.Unlock()
		if ok {
			return e, nil
		}

		e, decided := m.classify(ctx, candidate, categories)
		if decided {
			m.mu.Lock()
			m.memo[key] = e
			m.mu.Unlock()
		}
		return e, nil
	})

	e = res.(memoEntry)

	return e.verdict, e.usage
}

// classify asks the model once (with retries). It reports whether the
// verdict was decided and may be memoized.
func (m *Model) classify(ctx context.Context, candidate string, categories []string) (memoEntry, bool) {
	prompt, err := util.RenderTemplate(Prompt, map[string]any{"Candidate": candidate, "Categories": categories})
	if err != nil {
		return memoEntry{verdict: Indeterminate(err.Error())}, false
	}

	req := model.Request{
		Role:        core.RoleMatcher,
		Messages:    []model.Message{model.User(prompt)},
		Temperature: model.Float(0),
		MaxTokens:   m.maxTokens,
		Tag:         "matcher",
	}

	var usage core.Usage
	resp, err := model.InvokeWithRetry(ctx, m.client, req, m.retry, func(at model.Attempt) {
		usage = usage.Add(at.Response.Usage)
	})
	usage.Latency = 0

	if err != nil {
		var exhausted *model.RetryExhaustedError
		reason := err.Error()
		if errors.As(err, &exhausted) {
			reason = "retries exhausted: " + exhausted.Last.Error()
		}
		m.logger.Warn("matcher.indeterminate", "candidate", candidate, "error", err)
		return memoEntry{verdict: Indeterminate(reason), usage: usage}, false
	}

	v := ParseVerdict(resp.Text, categories)
	if v.Indeterminate() {
		m.logger.Warn("matcher.indeterminate", "candidate", candidate, "reply", resp.Text)
		return memoEntry{verdict: v, usage: usage}, false
	}

	return memoEntry{verdict: v, usage: usage}, true
}

var noneReplies = map[string]bool{"none": true, "no match": true, "nomatch": true, "no": true, "null": true}

// ParseVerdict maps a classifier reply onto a verdict. The reply must be a
// category name or "none"; a reply naming exactly one category inside extra
// words is accepted, anything else is indeterminate.
func ParseVerdict(reply string, categories []string) Verdict {
	text := textmatch.Normalize(agent.StripThinking(reply))
	text = strings.TrimPrefix(text, "category ")
	text = strings.TrimPrefix(text, "answer ")

	if text == "" {
		return Indeterminate("empty reply")
	}
	if noneReplies[text] {
		return NoMatch
	}

	for _, c := range categories {
		if text == textmatch.Normalize(c) {
			return Match(c)
		}
	}

	var found []string
	padded := " " + text + " "
	for _, c := range categories {
		if strings.Contains(padded, " "+textmatch.Normalize(c)+" ") {
			found = append(found, c)
		}
	}

	switch {
	case len(found) == 1:
		return Match(found[0])
	case len(found) == 0 && strings.HasPrefix(text, "none"):
		return NoMatch
	default:
		return Indeterminate("unrecognized reply: " + strings.TrimSpace(reply))
	}
}
