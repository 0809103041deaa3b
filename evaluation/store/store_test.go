package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/evaluation"
	"github.com/hupe1980/clinagents/internal/testutil"
	"github.com/hupe1980/clinagents/matcher"
)

func scoredRecords(t *testing.T) ([]evaluation.ScoreRecord, evaluation.Summary) {
	t.Helper()

	trs := []core.Transcript{
		testutil.NewTranscriptBuilder("t-1", testutil.AppendicitisCase()).
			Exam().
			Labs("White Blood Cells").
			Treatment("appendectomy").
			Diagnosis("Acute appendicitis").
			Call(core.RoleClinician, "gpt-4o", 500, 80).
			Build(),
		testutil.NewTranscriptBuilder("t-2", testutil.DiverticulitisCase()).
			Exam().
			Build(),
	}

	records, sum, err := evaluation.New(matcher.NewStatic()).EvaluateAll(context.Background(), "exp-1", trs)
	require.NoError(t, err)

	return records, sum
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "scores.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	records, _ := scoredRecords(t)

	require.NoError(t, s.SaveRecords(ctx, "exp-1", records))
	// saving again replaces instead of duplicating
	require.NoError(t, s.SaveRecords(ctx, "exp-1", records))

	got, err := s.Records(ctx, "exp-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// ordered by case id: 10001 before 20001
	if diff := cmp.Diff([]evaluation.ScoreRecord{records[1], records[0]}, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	var hits int
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT SUM(diagnosis_match) FROM score_records WHERE experiment = ?`, "exp-1").Scan(&hits))
	assert.Equal(t, 1, hits)

	none, err := s.Records(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_Summary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, sum := scoredRecords(t)

	_, err := s.Summary(ctx, "exp-1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveSummary(ctx, sum))
	sum.Comparator = "model:gpt-4o"
	require.NoError(t, s.SaveSummary(ctx, sum))

	got, err := s.Summary(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, sum, got)

	exps, err := s.Experiments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"exp-1"}, exps)
}

func TestWriteCSV(t *testing.T) {
	records, _ := scoredRecords(t)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, "20001", rows[1][0])
	assert.Equal(t, "diagnosed", rows[1][2])
	assert.Equal(t, "true", rows[1][5])
	assert.Equal(t, "max_turns_exceeded", rows[2][2])
	assert.Equal(t, "", rows[2][10])
}

func TestExportCSV(t *testing.T) {
	records, _ := scoredRecords(t)
	path := filepath.Join(t.TempDir(), "scores.csv")

	require.NoError(t, ExportCSV(path, records))
	assert.FileExists(t, path)
}
