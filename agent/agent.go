package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/model"
)

// Agent proposes exactly one action per call from the conversation so far.
//
// ProposeAction returns a *core.MalformedOutputError (matching
// core.ErrMalformedOutput) when the reply does not parse into an action the
// agent's role may emit; the Proposal still carries the raw reply and usage
// so the caller can re-prompt. Model failures are returned as is, after the
// agent's own retries.
type Agent interface {
	Name() string
	Role() core.Role
	ProposeAction(ctx context.Context, in Input) (Proposal, error)
}

// Rejection is a reply that was refused and the reason given back to the agent.
type Rejection struct {
	Raw    string
	Reason string
}

// Input is everything an agent sees for one turn.
type Input struct {
	// State is a snapshot of the conversation so far.
	State core.ConversationState
	// Remaining is the number of turns left including this one; -1 means unlimited.
	Remaining int
	// ForceDiagnosis asks for a final diagnosis on this turn.
	ForceDiagnosis bool
	// Rejected lists earlier replies for this turn that could not be used.
	Rejected []Rejection
}

// TemplateData exposes the input to instruction templates.
func (in Input) TemplateData() map[string]any {
	return map[string]any{
		"CaseID":         in.State.CaseID,
		"History":        in.State.History,
		"Turn":           in.State.Len() + 1,
		"Remaining":      in.Remaining,
		"ForceDiagnosis": in.ForceDiagnosis,
	}
}

// Proposal is the outcome of one ProposeAction call.
type Proposal struct {
	Action         core.ActionRequest
	Interpretation []core.LabInterpretation
	Raw            string
	Usage          core.Usage
	Calls          []core.CallRecord
}

// conversation renders the shared turn history as chat messages: the
// presenting history, each turn's reply and each finding as an observation.
// A trailing hand-off turn is dropped when skipHandoff is set.
func conversation(in Input, skipHandoff bool) ([]model.Message, error) {
	query, err := NewInstructionFromText(QueryTemplate).Resolve(in)
	if err != nil {
		return nil, fmt.Errorf("render query: %w", err)
	}

	msgs := []model.Message{model.User(query)}

	turns := in.State.Turns
	if skipHandoff && len(turns) > 0 {
		if _, ok := turns[len(turns)-1].Action.(core.Abstain); ok {
			turns = turns[:len(turns)-1]
		}
	}

	for _, t := range turns {
		msgs = appendMessage(msgs, model.Assistant(turnText(t)))
		if t.Finding != nil {
			msgs = appendMessage(msgs, model.User("Observation:\n"+t.Finding.Render()))
		}
	}

	for _, r := range in.Rejected {
		msgs = appendMessage(msgs, model.Assistant(r.Raw))
		msgs = appendMessage(msgs, model.User(fmt.Sprintf(clarification, r.Reason)))
	}

	switch {
	case in.ForceDiagnosis:
		msgs = appendMessage(msgs, model.User(finalTurnNote))
	case msgs[len(msgs)-1].Role == "assistant":
		msgs = appendMessage(msgs, model.User(continuePrompt))
	}

	return msgs, nil
}

// appendMessage merges consecutive messages of the same role so providers
// that require alternating roles accept the conversation.
func appendMessage(msgs []model.Message, m model.Message) []model.Message {
	if strings.TrimSpace(m.Content) == "" {
		return msgs
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == m.Role {
		msgs[n-1].Content += "\n\n" + m.Content
		return msgs
	}
	return append(msgs, m)
}

// turnText is the assistant text of a turn: the raw reply, or a rendering of
// the action for turns built without one.
func turnText(t core.Turn) string {
	if raw := StripThinking(t.Raw); raw != "" {
		return raw
	}

	switch a := t.Action.(type) {
	case core.RequestFinding:
		return fmt.Sprintf("Thought: %s\nAction: %s\nAction Input: %s", a.Thought, a.Kind.Label(), strings.Join(a.Parameters, ", "))
	case core.EmitDiagnosis:
		return fmt.Sprintf("Final Diagnosis: %s\nTreatment: %s", a.Text, a.Treatment)
	case core.EmitTreatment:
		return "Treatment: " + a.Text
	case core.Interpret:
		var b strings.Builder
		b.WriteString("Lab Interpretation:")
		for _, l := range a.Labs {
			fmt.Fprintf(&b, "\n- %s: %s (%s)", l.Test, l.Value, l.Interpretation)
		}
		return b.String()
	case core.Abstain:
		return "Action: done"
	}

	return ""
}
