package transcript

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/internal/testutil"
)

func TestInMemoryStore_AppendGetIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	tr := testutil.NewTranscriptBuilder("t-1", testutil.AppendicitisCase()).Exam().Diagnosis("Acute appendicitis").Build()
	require.NoError(t, s.Append(ctx, tr))

	// mutate the original after append
	tr.Turns[0].Raw = "changed"

	got, err := s.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, got.Turns[0].Raw)
	assert.Equal(t, core.ActionRequestFinding, got.Turns[0].Action.Type())
	assert.Equal(t, core.TerminationDiagnosed, got.Termination)

	// mutate the returned copy
	got.Turns[0].Raw = "x"
	again, _ := s.Get(ctx, "t-1")
	assert.Empty(t, again.Turns[0].Raw)
}

func TestInMemoryStore_ListOrderAndOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	a := testutil.NewTranscriptBuilder("a", testutil.AppendicitisCase()).Build()
	b := testutil.NewTranscriptBuilder("b", testutil.DiverticulitisCase()).Build()
	require.NoError(t, s.Append(ctx, a))
	require.NoError(t, s.Append(ctx, b))

	a.Diagnosis = "Acute appendicitis"
	require.NoError(t, s.Append(ctx, a))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "Acute appendicitis", list[0].Diagnosis)
	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, 2, s.Len())

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
