package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/clinagents/agent"
	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/engine"
	"github.com/hupe1980/clinagents/environment"
	"github.com/hupe1980/clinagents/internal/testutil"
	"github.com/hupe1980/clinagents/model"
	"github.com/hupe1980/clinagents/transcript"
)

// deterministicClinician answers from the request alone, so concurrent cases
// sharing one client get the same replies in any order.
func deterministicClinician() *model.ScriptedModel {
	m := model.NewScriptedModel("deterministic")
	m.SetFallback(func(req model.Request) (model.Response, error) {
		assistant := 0
		for _, msg := range req.Messages {
			if msg.Role == "assistant" {
				assistant++
			}
		}

		usage := core.Usage{InputTokens: 50 + 10*assistant, OutputTokens: 12}

		switch {
		case assistant == 0:
			return model.Response{Text: "Thought: exam\nAction: Physical Examination\nAction Input: abdomen", Usage: usage}, nil
		case assistant == 1:
			return model.Response{Text: "Thought: labs\nAction: Laboratory Tests\nAction Input: White Blood Cells", Usage: usage}, nil
		case strings.Contains(req.Messages[0].Content, "RLQ"):
			return model.Response{Text: "Final Diagnosis: Acute appendicitis\nTreatment: appendectomy", Usage: usage}, nil
		default:
			return model.Response{Text: "Final Diagnosis: Sigmoid diverticulitis\nTreatment: antibiotics", Usage: usage}, nil
		}
	})
	return m
}

func testCases(n int) []core.PatientCase {
	cases := make([]core.PatientCase, n)
	for i := range cases {
		b := testutil.NewCaseBuilder(fmt.Sprintf("%05d", 30000+i))
		if i%2 == 0 {
			b.History("34M with RLQ pain.").Exam("McBurney tenderness.").Lab("White Blood Cells", "14.2").Diagnosis("appendicitis")
		} else {
			b.History("60F with LLQ pain.").Exam("LLQ tenderness.").Diagnosis("diverticulitis")
		}
		cases[i] = b.Build()
	}
	return cases
}

func newOrchestrator(t *testing.T, cases []core.PatientCase) *engine.Orchestrator {
	t.Helper()
	env := environment.New(environment.NewDataset(cases...))
	o, err := engine.NewSingle(agent.NewClinician(deterministicClinician()), env, func(o *engine.Options) { o.MaxTurns = 5 })
	require.NoError(t, err)
	return o
}

func TestRunner_DeterministicAcrossConcurrency(t *testing.T) {
	cases := testCases(12)

	run := func(concurrency int) Result {
		store := transcript.NewInMemoryStore()
		r := New(newOrchestrator(t, cases), func(o *Options) {
			o.Concurrency = concurrency
			o.Sink = store
		})
		res, err := r.Run(context.Background(), "run-1", cases)
		require.NoError(t, err)
		assert.Equal(t, len(cases), store.Len())
		return res
	}

	seq := run(1)
	par := run(8)

	require.Len(t, seq.Transcripts, 12)
	assert.Equal(t, 12, seq.Counts[core.TerminationDiagnosed])

	for i, tr := range seq.Transcripts {
		assert.Equal(t, cases[i].ID, tr.CaseID)
		assert.Equal(t, "run-1", tr.RunID)
	}

	opts := cmp.Options{
		cmpopts.IgnoreFields(core.Transcript{}, "ID", "StartedAt", "Duration"),
		cmpopts.IgnoreFields(core.Usage{}, "Latency"),
		cmpopts.EquateEmpty(),
	}
	if diff := cmp.Diff(seq.Transcripts, par.Transcripts, opts); diff != "" {
		t.Errorf("transcripts differ between concurrency 1 and 8 (-seq +par):\n%s", diff)
	}
	assert.Equal(t, seq.Counts, par.Counts)
}

type panicky struct {
	CaseRunner
}

func (p panicky) Run(ctx context.Context, c core.PatientCase) core.Transcript {
	if c.ID == "30001" {
		panic("nil finding")
	}
	return p.CaseRunner.Run(ctx, c)
}

func TestRunner_PanicIsContained(t *testing.T) {
	cases := testCases(4)
	r := New(panicky{newOrchestrator(t, cases)}, func(o *Options) { o.Concurrency = 2 })

	res, err := r.Run(context.Background(), "", cases)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, core.TerminationAgentFailure, res.Transcripts[1].Termination)
	assert.Equal(t, "panic: nil finding", res.Transcripts[1].Error)
	assert.Equal(t, "diverticulitis", res.Transcripts[1].GroundTruth.Diagnosis)
	assert.Equal(t, 3, res.Counts[core.TerminationDiagnosed])
	assert.Equal(t, 1, res.Counts[core.TerminationAgentFailure])
}

type failingSink struct{}

func (failingSink) Append(context.Context, core.Transcript) error { return errors.New("disk full") }

type countingObserver struct {
	mu sync.Mutex
	n  int
}

func (c *countingObserver) ObserveTranscript(core.Transcript) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func TestRunner_SinkErrorsDoNotStopCases(t *testing.T) {
	cases := testCases(3)
	obs := &countingObserver{}
	r := New(newOrchestrator(t, cases), func(o *Options) {
		o.Concurrency = 3
		o.Sink = failingSink{}
		o.Observers = []Observer{obs}
	})

	res, err := r.Run(context.Background(), "run-2", cases)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 3, res.Counts[core.TerminationDiagnosed])
	assert.Equal(t, 3, obs.n)
	assert.Empty(t, r.ActiveRuns())
}

func TestRunner_CancelledContext(t *testing.T) {
	cases := testCases(4)
	r := New(newOrchestrator(t, cases), func(o *Options) { o.Concurrency = 2 })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.Run(ctx, "run-3", cases)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Counts[core.TerminationMaxTurnsExceeded])
	assert.False(t, r.Cancel("run-3"))
}
