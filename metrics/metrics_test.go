package metrics

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/internal/testutil"
)

func TestRecorder_ObserveTranscript(t *testing.T) {
	r := NewRecorder(prometheus.Labels{"experiment": "exp-1"})

	diagnosed := testutil.NewTranscriptBuilder("t-1", testutil.AppendicitisCase()).
		Exam().
		Violations("no action").
		Diagnosis("Acute appendicitis").
		Call(core.RoleClinician, "gpt-4o", 100, 20).
		Call(core.RoleClinician, "gpt-4o", 120, 30).
		Build()
	diagnosed.Duration = 3 * time.Second

	failed := testutil.NewTranscriptBuilder("t-2", testutil.DiverticulitisCase()).
		Termination(core.TerminationAgentFailure).
		Build()
	failed.Calls = append(failed.Calls, core.CallRecord{Role: core.RoleClinician, Model: "gpt-4o", Attempt: 1, Error: "rate limited"})

	var wg sync.WaitGroup
	for _, tr := range []core.Transcript{diagnosed, failed, diagnosed} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.ObserveTranscript(tr)
		}()
	}
	wg.Wait()

	path := filepath.Join(t.TempDir(), "clinagents.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `clinagents_cases_total{experiment="exp-1",mode="single",termination="diagnosed"} 2`)
	assert.Contains(t, out, `clinagents_cases_total{experiment="exp-1",mode="single",termination="agent_failure"} 1`)
	assert.Contains(t, out, `clinagents_model_calls_total{experiment="exp-1",model="gpt-4o",role="clinician"} 5`)
	assert.Contains(t, out, `clinagents_model_call_errors_total{experiment="exp-1",model="gpt-4o",role="clinician"} 1`)
	assert.Contains(t, out, `clinagents_model_tokens_total{direction="input",experiment="exp-1",model="gpt-4o",role="clinician"} 440`)
	assert.Contains(t, out, `clinagents_protocol_violations_total{experiment="exp-1",role="clinician"} 2`)
	assert.Contains(t, out, `clinagents_case_turns_count{experiment="exp-1",mode="single"} 3`)
}

func TestRecorder_WriteTextfileEmptyPath(t *testing.T) {
	require.Error(t, NewRecorder(nil).WriteTextfile(""))
}
