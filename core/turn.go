package core

import (
	"encoding/json"
)

// Role identifies which agent role acted in a turn.
type Role string

const (
	// RoleClinician is the single agent that plays every role in single mode.
	RoleClinician Role = "clinician"
	// RoleGatherer requests exams, labs and imaging in multi mode.
	RoleGatherer Role = "information_gatherer"
	// RoleInterpreter interprets lab results in multi mode.
	RoleInterpreter Role = "interpreter"
	// RoleDiagnostician produces the final diagnosis in multi mode.
	RoleDiagnostician Role = "diagnostician"
	// RoleMatcher is the scoring classifier. It never acts inside a case run.
	RoleMatcher Role = "matcher"
)

// Turn is one accepted agent action plus the finding it produced, if any.
// Rejected (malformed) attempts that preceded the accepted action are kept in
// Violations; they do not count as separate turns. Interpretation carries a
// lab interpretation given alongside a non-Interpret action.
type Turn struct {
	Index          int                 `json:"index"`
	Role           Role                `json:"role"`
	Action         ActionRequest       `json:"-"`
	Interpretation []LabInterpretation `json:"interpretation,omitempty"`
	Finding        *Finding            `json:"finding,omitempty"`
	Raw            string              `json:"raw,omitempty"`
	Attempts       int                 `json:"attempts"`
	Violations     []string            `json:"violations,omitempty"`
	Usage          Usage               `json:"usage"`
}

type turnAlias Turn

type turnJSON struct {
	turnAlias
	Action json.RawMessage `json:"action"`
}

// MarshalJSON encodes the action as a tagged variant.
func (t Turn) MarshalJSON() ([]byte, error) {
	action, err := MarshalAction(t.Action)
	if err != nil {
		return nil, err
	}

	return json.Marshal(turnJSON{turnAlias: turnAlias(t), Action: action})
}

// UnmarshalJSON decodes a turn written by MarshalJSON.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var raw turnJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	action, err := UnmarshalAction(raw.Action)
	if err != nil {
		return err
	}

	*t = Turn(raw.turnAlias)
	t.Action = action

	return nil
}

// ConversationState is the ordered turn history of one case run. It is owned
// by a single orchestrator run and never shared, so it carries no lock.
type ConversationState struct {
	CaseID  string `json:"case_id"`
	History string `json:"history"`
	Turns   []Turn `json:"turns"`
}

// NewConversationState seeds an empty state with the case's presenting history.
func NewConversationState(c PatientCase) *ConversationState {
	return &ConversationState{CaseID: c.ID, History: c.History, Turns: []Turn{}}
}

// Len returns the number of accepted turns.
func (s *ConversationState) Len() int { return len(s.Turns) }

// Append records a turn and assigns its index.
func (s *ConversationState) Append(t Turn) Turn {
	t.Index = len(s.Turns)
	s.Turns = append(s.Turns, t)
	return t
}

// Last returns the most recent turn.
func (s *ConversationState) Last() (Turn, bool) {
	if len(s.Turns) == 0 {
		return Turn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}

// LastFinding returns the finding of the most recent turn if that turn
// requested one.
func (s *ConversationState) LastFinding() (*Finding, bool) {
	last, ok := s.Last()
	if !ok || last.Finding == nil {
		return nil, false
	}
	return last.Finding, true
}

// Snapshot returns a copy whose turn slice can be read while the owner keeps
// appending.
func (s *ConversationState) Snapshot() ConversationState {
	turns := make([]Turn, len(s.Turns))
	copy(turns, s.Turns)
	return ConversationState{CaseID: s.CaseID, History: s.History, Turns: turns}
}

// Requests returns every RequestFinding in turn order.
func (s *ConversationState) Requests() []RequestFinding {
	var out []RequestFinding
	for _, t := range s.Turns {
		if rf, ok := t.Action.(RequestFinding); ok {
			out = append(out, rf)
		}
	}
	return out
}
