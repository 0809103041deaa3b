package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/internal/testutil"
)

func TestFileStore_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")

	s, err := OpenFileStore(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), s.Path())

	want := testutil.NewTranscriptBuilder("t-1", testutil.AppendicitisCase()).
		Exam().
		Labs("WBC", "CRP").
		Violations("no action found").
		Treatment("appendectomy").
		Diagnosis("Acute appendicitis", "acute appendicitis", "mesenteric adenitis").
		Call(core.RoleClinician, "gpt-4o", 100, 20).
		Build()

	require.NoError(t, s.Append(context.Background(), want))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Append(context.Background(), want), ErrClosed)

	got, err := Load(s.Path())
	require.NoError(t, err)
	require.Len(t, got, 1)

	if diff := cmp.Diff(want, got[0], cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStore_ConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFileStore(dir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr := testutil.NewTranscriptBuilder(fmt.Sprintf("t-%02d", i), testutil.AppendicitisCase()).Exam().Build()
			assert.NoError(t, s.Append(context.Background(), tr))
		}(i)
	}
	wg.Wait()
	require.NoError(t, s.Close())

	got, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, got, 32)
}

func TestRead_Errors(t *testing.T) {
	trs, err := Read(strings.NewReader("\n\n"))
	require.NoError(t, err)
	assert.Empty(t, trs)

	_, err = Read(strings.NewReader("{\"id\":\"a\",\"turns\":[]}\n{broken"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadDir_Empty(t *testing.T) {
	_, err := LoadDir(t.TempDir())
	assert.ErrorIs(t, err, core.ErrSetupFault)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.jsonl"), []byte("nope\n"), 0o644))
	_, err = LoadDir(dir)
	assert.ErrorIs(t, err, core.ErrSetupFault)
}

func TestLoadDir_EmptyTranscriptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = LoadDir(dir)
	assert.ErrorIs(t, err, core.ErrSetupFault)
}

func TestLoadDir_KeepsLatestRunPerCase(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	write := func(runID string, at time.Time, cases ...core.PatientCase) {
		s, err := OpenFileStore(dir, func(o *FileStoreOptions) { o.RunID = runID })
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, RunFileName(runID)), s.Path())
		for _, c := range cases {
			tr := testutil.NewTranscriptBuilder(runID+"-"+c.ID, c).Exam().Build()
			tr.RunID = runID
			tr.StartedAt = at
			require.NoError(t, s.Append(context.Background(), tr))
		}
		require.NoError(t, s.Close())
	}

	// "b" sorts before "z" but ran later; only case 20001 was re-run
	write("z-first", start, testutil.AppendicitisCase(), testutil.DiverticulitisCase())
	write("b-second", start.Add(time.Hour), testutil.AppendicitisCase())

	got, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byCase := map[string]string{}
	for _, tr := range got {
		byCase[tr.CaseID] = tr.RunID
	}
	assert.Equal(t, map[string]string{"20001": "b-second", "10001": "z-first"}, byCase)
}
