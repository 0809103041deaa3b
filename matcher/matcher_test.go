package matcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/clinagents/clinical"
	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/model"
)

var categories = clinical.DiagnosisCategories()

func noDelay(o *ModelOptions) { o.Retry = model.RetryPolicy{MaxAttempts: 2} }

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		reply string
		want  Verdict
	}{
		{"appendicitis", Match("appendicitis")},
		{"  Cholecystitis.\n", Match("cholecystitis")},
		{"Category: pancreatitis", Match("pancreatitis")},
		{"<think>could be appendicitis</think>diverticulitis", Match("diverticulitis")},
		{"The answer is diverticulitis", Match("diverticulitis")},
		{"none", NoMatch},
		{"\"None\"", NoMatch},
		{"None of the above", NoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVerdict(tt.reply, categories))
		})
	}

	assert.True(t, ParseVerdict("", categories).Indeterminate())
	assert.True(t, ParseVerdict("appendicitis or cholecystitis", categories).Indeterminate())
	assert.True(t, ParseVerdict("I cannot tell", categories).Indeterminate())
}

func TestModel_MatchAndMemo(t *testing.T) {
	m := model.NewScriptedModel("matcher-model").EnqueueText("appendicitis")
	c := NewModel(m, noDelay)

	v, first := c.Match(context.Background(), "Acute appendicitis", categories)
	assert.Equal(t, Match("appendicitis"), v)
	assert.True(t, v.Matches("appendicitis"))
	assert.Equal(t, 1, first.Calls)
	assert.Zero(t, first.Latency)

	// the script is empty now; a second call must be served from the memo
	// and report the same usage as the call that decided it
	v, again := c.Match(context.Background(), "Acute appendicitis", categories)
	assert.Equal(t, Match("appendicitis"), v)
	assert.Equal(t, first, again)

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, core.RoleMatcher, calls[0].Role)
	require.NotNil(t, calls[0].Temperature)
	assert.Zero(t, *calls[0].Temperature)
	assert.Contains(t, calls[0].LastUserText(), "1. appendicitis")
	assert.Contains(t, calls[0].LastUserText(), "Acute appendicitis")
	assert.Equal(t, "model:matcher-model", c.Name())
}

func TestModel_ConcurrentMatchesShareOneCall(t *testing.T) {
	m := model.NewScriptedModel("matcher-model").EnqueueText("cholecystitis")
	c := NewModel(m, noDelay)

	var wg sync.WaitGroup
	verdicts := make([]Verdict, 8)
	usages := make([]core.Usage, 8)
	for i := range verdicts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			verdicts[i], usages[i] = c.Match(context.Background(), "Acute cholecystitis", categories)
		}()
	}
	wg.Wait()

	require.Len(t, m.Calls(), 1)
	for i := range verdicts {
		assert.Equal(t, Match("cholecystitis"), verdicts[i])
		assert.Equal(t, usages[0], usages[i])
	}
}

func TestModel_Indeterminate(t *testing.T) {
	busy := model.Step{Err: model.Transient("scripted", errors.New("429"))}
	m := model.NewScriptedModel("m").Enqueue(busy, busy).EnqueueText("maybe", "cholecystitis")
	c := NewModel(m, noDelay)

	v, usage := c.Match(context.Background(), "Acute cholecystitis", categories)
	assert.True(t, v.Indeterminate())
	assert.Contains(t, v.Reason, "retries exhausted")
	assert.Equal(t, 2, usage.Calls)
	assert.False(t, v.Matches("cholecystitis"))

	v, _ = c.Match(context.Background(), "Acute cholecystitis", categories)
	assert.True(t, v.Indeterminate())

	// indeterminate verdicts are not memoized
	v, _ = c.Match(context.Background(), "Acute cholecystitis", categories)
	assert.Equal(t, Match("cholecystitis"), v)
}

func TestModel_EmptyCandidate(t *testing.T) {
	m := model.NewScriptedModel("m")
	v, usage := NewModel(m).Match(context.Background(), "  ", categories)
	assert.Equal(t, NoMatch, v)
	assert.Zero(t, usage)
	assert.Empty(t, m.Calls())
}

func TestStatic_Diagnosis(t *testing.T) {
	s := NewStatic()
	ctx := context.Background()

	tests := []struct {
		candidate string
		want      Verdict
	}{
		{"Acute appendicitis", Match("appendicitis")},
		{"Sigmoid diverticulitis with abscess", Match("diverticulitis")},
		{"Gallstone pancreatitis", Match("pancreatitis")},
		{"No evidence of appendicitis", NoMatch},
		{"", NoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.candidate, func(t *testing.T) {
			v, usage := s.Match(ctx, tt.candidate, categories)
			assert.Equal(t, tt.want, v)
			assert.Zero(t, usage)
		})
	}
	assert.Equal(t, "static", s.Name())
}

func TestStatic_Treatment(t *testing.T) {
	s := NewStatic()
	treatments := clinical.TreatmentCategories()

	v, _ := s.Match(context.Background(), "Laparoscopic appendectomy and IV antibiotics", treatments)
	assert.Equal(t, Match("appendectomy"), v)

	v, _ = s.Match(context.Background(), "Observation only", treatments)
	assert.Equal(t, NoMatch, v)
}
