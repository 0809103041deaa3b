package engine

import (
	"errors"
	"fmt"

	"github.com/hupe1980/clinagents/core"
)

// State is an orchestrator state. The set is closed.
type State string

const (
	StateAwaitingAction State = "awaiting_agent_action"
	StateResolving      State = "resolving_request"
	StateDiagnosing     State = "diagnosing"
	StateTerminated     State = "terminated"
)

// EventKind tags a transition.
type EventKind string

const (
	// EventRequestFinding: the active agent asked for a finding.
	EventRequestFinding EventKind = "request_finding"
	// EventFindingResolved: the environment answered the request.
	EventFindingResolved EventKind = "finding_resolved"
	// EventInterpret: a lab interpretation was recorded.
	EventInterpret EventKind = "interpret"
	// EventAbstain: the agent yielded without acting (single mode).
	EventAbstain EventKind = "abstain"
	// EventHandoff: the gatherer is done or the last turn is reserved for
	// the diagnostician (multi mode).
	EventHandoff EventKind = "handoff"
	// EventDiagnosis: a diagnosis or treatment was emitted.
	EventDiagnosis EventKind = "diagnosis"
	// EventDiagnosisRecorded: the final diagnosis was recorded.
	EventDiagnosisRecorded EventKind = "diagnosis_recorded"
	// EventBudgetExhausted: no turn is left.
	EventBudgetExhausted EventKind = "budget_exhausted"
	// EventTimeout: the wall-clock deadline passed.
	EventTimeout EventKind = "timeout"
	// EventAgentFailure: an agent could not produce a usable action.
	EventAgentFailure EventKind = "agent_failure"
)

// Event is one tagged transition event. Termination is set on events that
// end the run.
type Event struct {
	Kind        EventKind
	Termination core.Termination
}

// transitions is the closed transition table.
var transitions = map[State]map[EventKind]State{
	StateAwaitingAction: {
		EventRequestFinding:  StateResolving,
		EventInterpret:       StateAwaitingAction,
		EventAbstain:         StateAwaitingAction,
		EventHandoff:         StateDiagnosing,
		EventDiagnosis:       StateDiagnosing,
		EventBudgetExhausted: StateTerminated,
		EventTimeout:         StateTerminated,
		EventAgentFailure:    StateTerminated,
	},
	StateResolving: {
		EventFindingResolved: StateAwaitingAction,
		EventTimeout:         StateTerminated,
		EventAgentFailure:    StateTerminated,
	},
	StateDiagnosing: {
		EventDiagnosisRecorded: StateTerminated,
		EventBudgetExhausted:   StateTerminated,
		EventTimeout:           StateTerminated,
		EventAgentFailure:      StateTerminated,
	},
	StateTerminated: {},
}

// terminations maps terminal events onto their termination reason.
var terminations = map[EventKind]core.Termination{
	EventDiagnosisRecorded: core.TerminationDiagnosed,
	EventBudgetExhausted:   core.TerminationMaxTurnsExceeded,
	EventTimeout:           core.TerminationMaxTurnsExceeded,
	EventAgentFailure:      core.TerminationAgentFailure,
}

// ErrInvalidTransition is wrapped by Transition for events the table does not allow.
var ErrInvalidTransition = errors.New("invalid transition")

// Transition returns the state reached from `from` on event kind.
func Transition(from State, kind EventKind) (State, error) {
	next, ok := transitions[from][kind]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, from, kind)
	}
	return next, nil
}

// IsValidTransition reports whether some event leads from `from` to `to`.
func IsValidTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NewEvent builds an event; terminal kinds carry their termination reason.
func NewEvent(kind EventKind) Event {
	return Event{Kind: kind, Termination: terminations[kind]}
}

// actionEvent maps an accepted action onto its transition event.
func actionEvent(a core.ActionRequest, mode core.Mode, role core.Role) EventKind {
	switch a.(type) {
	case core.RequestFinding:
		return EventRequestFinding
	case core.Interpret:
		return EventInterpret
	case core.Abstain:
		if mode == core.ModeMulti && role == core.RoleGatherer {
			return EventHandoff
		}
		return EventAbstain
	default:
		return EventDiagnosis
	}
}
