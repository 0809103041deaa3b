package clinagents

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/clinagents/config"
	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/environment"
	"github.com/hupe1980/clinagents/evaluation/store"
	"github.com/hupe1980/clinagents/internal/testutil"
	"github.com/hupe1980/clinagents/model"
	"github.com/hupe1980/clinagents/transcript"
)

const (
	examReply = "Thought: start with the exam\nAction: Physical Examination\nAction Input: abdomen"
	labsReply = "Thought: check inflammation\nAction: Laboratory Tests\nAction Input: White Blood Cells"
	doneReply = "Thought: I have enough information\nAction: done"
	diagReply = "Thought: classic presentation\nFinal Diagnosis:\n1. Acute appendicitis\n2. Mesenteric adenitis\nTreatment: Laparoscopic appendectomy"
)

const testConfig = `
platforms:
  gpt:
    provider: openai
    model: gpt-4o
  claude:
    provider: anthropic
    model: claude-3-5-sonnet-20241022
runtime:
  max_turns: 6
  concurrency: 2
retry:
  max_attempts: 2
  initial_delay: 1ms
cost_table:
  rates:
    gpt-4o:
      input: 0.000001
      output: 0.000002
`

func newTestHarness(t *testing.T, models map[string]*model.ScriptedModel) *Harness {
	t.Helper()

	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)

	return New(func(o *Options) {
		o.Config = cfg
		o.NewClient = func(name string, p config.Platform) (model.Client, error) {
			m, ok := models[name]
			require.True(t, ok, "unexpected platform %s", name)
			return m, nil
		}
	})
}

func testDataset() *environment.Dataset {
	return environment.NewDataset(testutil.AppendicitisCase(), testutil.DiverticulitisCase())
}

func TestHarness_RunSingleAndEvaluate(t *testing.T) {
	dir := t.TempDir()
	gpt := model.NewScriptedModel("gpt-4o").EnqueueText(examReply, labsReply, diagReply)

	h := newTestHarness(t, map[string]*model.ScriptedModel{"gpt": gpt})

	res, err := h.RunSingle(context.Background(), SingleRun{
		Model: "gpt",
		Run: Run{
			Dataset:     testDataset(),
			CaseIDs:     []string{"20001"},
			LogDir:      dir,
			MetricsFile: filepath.Join(dir, "metrics.prom"),
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Transcripts, 1)

	tr := res.Transcripts[0]
	assert.Equal(t, core.TerminationDiagnosed, tr.Termination)
	assert.Equal(t, "gpt-single", tr.Experiment)
	assert.Equal(t, res.RunID, tr.RunID)
	assert.Len(t, tr.Turns, 3)

	runDir := filepath.Join(dir, "gpt-single")
	stored, err := transcript.Load(filepath.Join(runDir, transcript.RunFileName(res.RunID)))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, tr.ID, stored[0].ID)

	metrics, err := os.ReadFile(filepath.Join(dir, "metrics.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `clinagents_cases_total{experiment="gpt-single",mode="single",termination="diagnosed"} 1`)

	dbPath := filepath.Join(dir, "scores.db")
	records, sum, err := h.Evaluate(context.Background(), EvaluateRun{
		LogDir:  runDir,
		DBPath:  dbPath,
		CSVPath: filepath.Join(dir, "scores.csv"),
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "gpt-single", sum.Experiment)
	assert.Equal(t, "static", sum.Comparator)
	assert.InDelta(t, 1.0, sum.DiagnosisAccuracy, 1e-9)
	assert.True(t, records[0].TreatmentMatch)
	assert.Positive(t, records[0].Cost.USD)
	assert.FileExists(t, filepath.Join(dir, "scores.csv"))

	db, err := store.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	saved, err := db.Summary(context.Background(), "gpt-single")
	require.NoError(t, err)
	assert.Equal(t, sum, saved)
}

func TestHarness_RunMulti(t *testing.T) {
	dir := t.TempDir()
	gatherer := model.NewScriptedModel("gpt-4o").EnqueueText(examReply, doneReply)
	diagnostician := model.NewScriptedModel("claude-3-5-sonnet").EnqueueText(diagReply)

	h := newTestHarness(t, map[string]*model.ScriptedModel{"gpt": gatherer, "claude": diagnostician})

	res, err := h.RunMulti(context.Background(), MultiRun{
		Info:      "gpt",
		Diagnosis: "claude",
		Run: Run{
			Dataset: testDataset(),
			CaseIDs: []string{"20001"},
			LogDir:  dir,
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Transcripts, 1)

	tr := res.Transcripts[0]
	assert.Equal(t, core.ModeMulti, tr.Mode)
	assert.Equal(t, "gpt-claude-multi", tr.Experiment)
	assert.Equal(t, core.TerminationDiagnosed, tr.Termination)
	assert.Equal(t, "claude-3-5-sonnet", tr.Models[core.RoleDiagnostician])
	assert.DirExists(t, filepath.Join(dir, "gpt-claude-multi"))
}

func TestHarness_SetupFaults(t *testing.T) {
	h := newTestHarness(t, map[string]*model.ScriptedModel{"gpt": model.NewScriptedModel("gpt-4o")})
	ctx := context.Background()

	_, err := h.RunSingle(ctx, SingleRun{Model: "gemini", Run: Run{Dataset: testDataset()}})
	require.ErrorIs(t, err, core.ErrSetupFault)

	_, err = h.RunSingle(ctx, SingleRun{Model: "gpt", Run: Run{Dataset: testDataset(), CaseIDs: []string{"99999"}}})
	require.ErrorIs(t, err, core.ErrSetupFault)
	require.ErrorIs(t, err, core.ErrCaseNotFound)

	_, err = h.RunSingle(ctx, SingleRun{Model: "gpt", Run: Run{Split: "holdout"}})
	require.ErrorIs(t, err, core.ErrSetupFault)

	_, _, err = h.Evaluate(ctx, EvaluateRun{LogDir: t.TempDir()})
	require.ErrorIs(t, err, core.ErrSetupFault)

	// a run killed before its first case leaves an empty transcript file
	killed := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(killed, transcript.FileName), nil, 0o644))
	_, _, err = h.Evaluate(ctx, EvaluateRun{LogDir: killed})
	require.ErrorIs(t, err, core.ErrSetupFault)
}

func TestHarness_RerunReplacesEarlierTranscripts(t *testing.T) {
	dir := t.TempDir()
	gpt := model.NewScriptedModel("gpt-4o").EnqueueText(examReply, diagReply, examReply, diagReply)
	h := newTestHarness(t, map[string]*model.ScriptedModel{"gpt": gpt})

	for i := 0; i < 2; i++ {
		_, err := h.RunSingle(context.Background(), SingleRun{
			Model: "gpt",
			Run:   Run{Dataset: testDataset(), CaseIDs: []string{"20001"}, LogDir: dir},
		})
		require.NoError(t, err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "gpt-single", "*.jsonl"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	records, sum, err := h.Evaluate(context.Background(), EvaluateRun{LogDir: filepath.Join(dir, "gpt-single")})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, sum.Cases)
}

func TestHarness_ModelSelectorNeedsMatcher(t *testing.T) {
	cfg, err := config.Parse([]byte(testConfig + "\n"))
	require.NoError(t, err)
	cfg.Runtime.Selector = config.SelectorModel

	h := New(func(o *Options) {
		o.Config = cfg
		o.NewClient = func(string, config.Platform) (model.Client, error) {
			return model.NewScriptedModel("m"), nil
		}
	})

	_, err = h.RunSingle(context.Background(), SingleRun{Model: "gpt", Run: Run{Dataset: testDataset(), LogDir: t.TempDir()}})
	require.ErrorIs(t, err, core.ErrSetupFault)
	assert.Contains(t, err.Error(), "matcher platform")
}

func TestHarness_ClientIsCached(t *testing.T) {
	h := newTestHarness(t, map[string]*model.ScriptedModel{"gpt": model.NewScriptedModel("gpt-4o")})

	a, err := h.Client("gpt")
	require.NoError(t, err)
	b, err := h.Client("gpt")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "gpt-4o", a.Info().Name)
}

func TestNewPlatformClient(t *testing.T) {
	c, err := NewPlatformClient("gpt", config.Platform{Provider: "openai", Model: "gpt-4o", APIKeyEnv: "UNSET_TEST_KEY"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", c.Info().Name)

	c, err = NewPlatformClient("claude", config.Platform{Provider: "anthropic", Model: "claude-3-5-sonnet-20241022"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Info().Provider)

	_, err = NewPlatformClient("x", config.Platform{Provider: "bard"})
	require.ErrorIs(t, err, core.ErrSetupFault)
}
