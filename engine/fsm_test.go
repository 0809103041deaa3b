package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/clinagents/core"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from State
		kind EventKind
		want State
	}{
		{StateAwaitingAction, EventRequestFinding, StateResolving},
		{StateResolving, EventFindingResolved, StateAwaitingAction},
		{StateAwaitingAction, EventInterpret, StateAwaitingAction},
		{StateAwaitingAction, EventAbstain, StateAwaitingAction},
		{StateAwaitingAction, EventHandoff, StateDiagnosing},
		{StateAwaitingAction, EventDiagnosis, StateDiagnosing},
		{StateDiagnosing, EventDiagnosisRecorded, StateTerminated},
		{StateAwaitingAction, EventBudgetExhausted, StateTerminated},
		{StateResolving, EventTimeout, StateTerminated},
		{StateDiagnosing, EventAgentFailure, StateTerminated},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.kind), func(t *testing.T) {
			got, err := Transition(tt.from, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransition_Invalid(t *testing.T) {
	for _, kind := range []EventKind{EventRequestFinding, EventDiagnosisRecorded, EventAgentFailure} {
		_, err := Transition(StateTerminated, kind)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}

	_, err := Transition(StateResolving, EventDiagnosis)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = Transition(StateAwaitingAction, EventDiagnosisRecorded)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestIsValidTransition(t *testing.T) {
	assert.True(t, IsValidTransition(StateAwaitingAction, StateResolving))
	assert.True(t, IsValidTransition(StateAwaitingAction, StateAwaitingAction))
	assert.False(t, IsValidTransition(StateResolving, StateDiagnosing))
	assert.False(t, IsValidTransition(StateTerminated, StateAwaitingAction))
}

func TestNewEvent(t *testing.T) {
	assert.Equal(t, core.TerminationDiagnosed, NewEvent(EventDiagnosisRecorded).Termination)
	assert.Equal(t, core.TerminationMaxTurnsExceeded, NewEvent(EventBudgetExhausted).Termination)
	assert.Equal(t, core.TerminationMaxTurnsExceeded, NewEvent(EventTimeout).Termination)
	assert.Equal(t, core.TerminationAgentFailure, NewEvent(EventAgentFailure).Termination)
	assert.Empty(t, NewEvent(EventRequestFinding).Termination)
}

func TestActionEvent(t *testing.T) {
	assert.Equal(t, EventRequestFinding, actionEvent(core.RequestFinding{Kind: core.KindImaging}, core.ModeSingle, core.RoleClinician))
	assert.Equal(t, EventInterpret, actionEvent(core.Interpret{}, core.ModeMulti, core.RoleInterpreter))
	assert.Equal(t, EventAbstain, actionEvent(core.Abstain{}, core.ModeSingle, core.RoleClinician))
	assert.Equal(t, EventHandoff, actionEvent(core.Abstain{}, core.ModeMulti, core.RoleGatherer))
	assert.Equal(t, EventDiagnosis, actionEvent(core.EmitDiagnosis{Text: "x"}, core.ModeMulti, core.RoleGatherer))
	assert.Equal(t, EventDiagnosis, actionEvent(core.EmitTreatment{Text: "x"}, core.ModeSingle, core.RoleClinician))
}
