package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/model"
)

// mockClient records requests and replies with whatever the test configured.
type mockClient struct{ mock.Mock }

func (m *mockClient) Invoke(ctx context.Context, req model.Request) (model.Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.Response), args.Error(1)
}

func (m *mockClient) Info() model.Info { return model.Info{Name: "mock-model", Provider: "mock"} }

func noDelay(o *ModelAgentOptions) { o.Retry = model.RetryPolicy{MaxAttempts: 3} }

func stateWithLabs() core.ConversationState {
	s := core.NewConversationState(core.PatientCase{ID: "20001", History: "34M with RLQ pain."})
	s.Append(core.Turn{
		Role:    core.RoleClinician,
		Action:  core.RequestFinding{Kind: core.KindLaboratory, Parameters: []string{"CBC"}},
		Raw:     "Thought: labs\nAction: Laboratory Tests\nAction Input: CBC",
		Finding: &core.Finding{Kind: core.KindLaboratory, Items: []core.FindingItem{{Requested: "CBC", Name: "White Blood Cells", Value: "14.2"}}},
	})
	return s.Snapshot()
}

func TestModelAgent_ProposeAction(t *testing.T) {
	client := &mockClient{}
	client.On("Invoke", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		return req.Role == core.RoleClinician && req.Tag == "agent.clinician" && len(req.Messages) == 1
	})).Return(model.Response{
		Text:  "Thought: exam first\nAction: Physical Examination\nAction Input: abdomen",
		Usage: core.Usage{InputTokens: 100, OutputTokens: 20},
	}, nil).Once()

	a := NewClinician(client, noDelay)
	in := Input{State: *core.NewConversationState(core.PatientCase{ID: "20001", History: "34M with RLQ pain."}), Remaining: 5}

	p, err := a.ProposeAction(context.Background(), in)
	require.NoError(t, err)
	client.AssertExpectations(t)

	assert.Equal(t, core.RequestFinding{Thought: "exam first", Kind: core.KindPhysicalExam, Parameters: []string{"abdomen"}}, p.Action)
	assert.Equal(t, 120, p.Usage.TotalTokens())
	assert.Equal(t, 1, p.Usage.Calls)
	require.Len(t, p.Calls, 1)
	assert.Equal(t, core.CallRecord{Role: core.RoleClinician, Model: "mock-model", Attempt: 1, Usage: p.Calls[0].Usage}, p.Calls[0])
}

func TestModelAgent_Malformed(t *testing.T) {
	client := model.NewScriptedModel("scripted").EnqueueText("I think it is appendicitis.")
	a := NewClinician(client, noDelay)

	p, err := a.ProposeAction(context.Background(), newTestInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMalformedOutput)

	var mErr *core.MalformedOutputError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, core.RoleClinician, mErr.Role)
	assert.Equal(t, "I think it is appendicitis.", p.Raw)
	assert.Nil(t, p.Action)
	assert.Len(t, p.Calls, 1)
}

func TestModelAgent_RoleVocabulary(t *testing.T) {
	client := model.NewScriptedModel("scripted").EnqueueText("Thought: x\nAction: Imaging\nAction Input: CT")
	a := NewInterpreter(client, noDelay)

	_, err := a.ProposeAction(context.Background(), Input{State: stateWithLabs()})
	assert.ErrorIs(t, err, core.ErrMalformedOutput)
	assert.True(t, a.Allows(core.ActionInterpret))
	assert.False(t, a.Allows(core.ActionRequestFinding))
}

func TestModelAgent_ForceDiagnosis(t *testing.T) {
	client := model.NewScriptedModel("scripted").EnqueueText(
		"Thought: more labs\nAction: Laboratory Tests\nAction Input: Lipase",
		"Final Diagnosis: Acute appendicitis\nTreatment: appendectomy",
	)
	a := NewClinician(client, noDelay)
	in := Input{State: stateWithLabs(), Remaining: 1, ForceDiagnosis: true}

	_, err := a.ProposeAction(context.Background(), in)
	require.ErrorIs(t, err, core.ErrMalformedOutput)

	in.Rejected = []Rejection{{Raw: "Thought: more labs", Reason: "a final diagnosis is required"}}
	p, err := a.ProposeAction(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "acute appendicitis", p.Action.(core.EmitDiagnosis).Primary())

	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, DiagnosticianPrompt, calls[0].System)
	assert.Contains(t, calls[0].LastUserText(), finalTurnNote)
	assert.Contains(t, calls[1].Transcript(), "a final diagnosis is required")
}

func TestModelAgent_RetriesTransient(t *testing.T) {
	client := model.NewScriptedModel("scripted").Enqueue(
		model.Step{Err: model.Transient("scripted", errors.New("429"))},
		model.Step{Text: "Lab Interpretation: {\"White Blood Cells\": {\"value\": 14.2, \"interpretation\": \"high\"}}"},
	)
	a := NewInterpreter(client, noDelay)

	p, err := a.ProposeAction(context.Background(), Input{State: stateWithLabs()})
	require.NoError(t, err)
	assert.Equal(t, core.ActionInterpret, p.Action.Type())
	require.Len(t, p.Calls, 2)
	assert.NotEmpty(t, p.Calls[0].Error)
	assert.Empty(t, p.Calls[1].Error)
	assert.Equal(t, 2, p.Usage.Calls)
}

func TestModelAgent_RetryExhaustedAndFatal(t *testing.T) {
	transient := model.Step{Err: model.Transient("scripted", errors.New("503"))}
	client := model.NewScriptedModel("scripted").Enqueue(transient, transient, transient)
	a := NewClinician(client, noDelay)

	p, err := a.ProposeAction(context.Background(), newTestInput())
	var exhausted *model.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, p.Calls, 3)

	client = model.NewScriptedModel("scripted").Enqueue(model.Step{Err: model.Fatal("scripted", errors.New("401"))})
	a = NewClinician(client, noDelay)
	_, err = a.ProposeAction(context.Background(), newTestInput())
	assert.ErrorIs(t, err, model.ErrFatal)
	assert.NotErrorIs(t, err, core.ErrMalformedOutput)
}

func TestModelAgent_RequireInterpretation(t *testing.T) {
	client := model.NewScriptedModel("scripted").EnqueueText("Thought: next\nAction: Imaging\nAction Input: CT abdomen")
	a := NewClinician(client, noDelay, func(o *ModelAgentOptions) { o.RequireInterpretation = true })

	_, err := a.ProposeAction(context.Background(), Input{State: stateWithLabs()})
	require.ErrorIs(t, err, core.ErrMalformedOutput)
	assert.Contains(t, err.Error(), "Lab Interpretation")
}

func TestConversation(t *testing.T) {
	s := core.NewConversationState(core.PatientCase{ID: "1", History: "60F with LLQ pain."})
	s.Append(core.Turn{
		Role:    core.RoleGatherer,
		Action:  core.RequestFinding{Kind: core.KindLaboratory, Parameters: []string{"CBC"}},
		Raw:     "Action: Laboratory Tests\nAction Input: CBC",
		Finding: &core.Finding{Kind: core.KindLaboratory, Requested: []string{"CBC"}, Unavailable: true},
	})
	s.Append(core.Turn{Role: core.RoleInterpreter, Action: core.Interpret{Labs: []core.LabInterpretation{{Test: "WBC", Interpretation: "high"}}}})
	s.Append(core.Turn{Role: core.RoleGatherer, Action: core.Abstain{}, Raw: "Action: done"})

	msgs, err := conversation(Input{State: s.Snapshot()}, false)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Contains(t, msgs[0].Content, "60F with LLQ pain.")
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "Observation:\nLaboratory Tests results:\nNot available: CBC", msgs[2].Content)
	assert.Equal(t, "assistant", msgs[3].Role)
	assert.Contains(t, msgs[3].Content, "Lab Interpretation:\n- WBC:  (high)")
	assert.Contains(t, msgs[3].Content, "Action: done")
	assert.Equal(t, continuePrompt, msgs[4].Content)

	msgs, err = conversation(Input{State: s.Snapshot()}, true)
	require.NoError(t, err)
	assert.NotContains(t, msgs[3].Content, "Action: done")

	for i := 1; i < len(msgs); i++ {
		assert.NotEqual(t, msgs[i-1].Role, msgs[i].Role)
	}
}
