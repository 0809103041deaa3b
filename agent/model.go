package agent

import (
	"context"
	"fmt"
	"slices"

	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/logging"
	"github.com/hupe1980/clinagents/model"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	// Instruction is the system prompt.
	Instruction Instruction
	// FinalInstruction replaces Instruction when a diagnosis is forced.
	FinalInstruction Instruction
	// Allowed lists the action types the agent may emit. Empty allows all.
	Allowed []core.ActionType
	// RequireInterpretation rejects replies that follow a lab finding without
	// a Lab Interpretation block.
	RequireInterpretation bool
	// SkipHandoff hides a trailing hand-off (Abstain) turn from the agent.
	SkipHandoff bool
	Retry       model.RetryPolicy
	Temperature *float64
	MaxTokens   int
	Logger      logging.Logger
}

// ModelAgent turns one model call into one proposed action.
//
// Each call renders the conversation, invokes the model through
// model.InvokeWithRetry, parses the reply and checks that the action is one
// the agent's role may emit. Every attempt is recorded as a core.CallRecord.
// ModelAgent holds no per-case state and is safe for concurrent use.
type ModelAgent struct {
	BaseAgent                               // Embedded identity
	client                model.Client      // Language model client
	instruction           Instruction       // System prompt
	finalInstruction      Instruction       // System prompt on a forced diagnosis
	allowed               []core.ActionType // Permitted action types
	requireInterpretation bool              // Enforce lab interpretation after labs
	skipHandoff           bool              // Drop trailing hand-off turn
	retry                 model.RetryPolicy // Transient error retries
	temperature           *float64          // Decoding temperature override
	maxTokens             int               // Completion limit override
	logger                logging.Logger    // Logger
}

// NewModelAgent creates a model-backed agent acting in role.
func NewModelAgent(name string, role core.Role, client model.Client, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:      NewInstructionFromText(ClinicianPrompt),
		FinalInstruction: NewInstructionFromText(DiagnosticianPrompt),
		Retry:            model.DefaultRetryPolicy(),
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &ModelAgent{
		BaseAgent:             NewBaseAgent(name, role),
		client:                client,
		instruction:           opts.Instruction,
		finalInstruction:      opts.FinalInstruction,
		allowed:               slices.Clone(opts.Allowed),
		requireInterpretation: opts.RequireInterpretation,
		skipHandoff:           opts.SkipHandoff,
		retry:                 opts.Retry,
		temperature:           opts.Temperature,
		maxTokens:             opts.MaxTokens,
		logger:                logging.OrNoOp(opts.Logger),
	}
}

// Model returns the name of the backing model.
func (a *ModelAgent) Model() string { return a.client.Info().Name }

// Allows reports whether the agent may emit actions of type t.
func (a *ModelAgent) Allows(t core.ActionType) bool {
	return len(a.allowed) == 0 || slices.Contains(a.allowed, t)
}

// ProposeAction implements Agent.
func (a *ModelAgent) ProposeAction(ctx context.Context, in Input) (Proposal, error) {
	req, err := a.request(in)
	if err != nil {
		return Proposal{}, err
	}

	a.logger.Debug("agent.propose.start",
		"agent", a.Name(),
		"role", a.Role(),
		"case_id", in.State.CaseID,
		"turn", in.State.Len(),
		"rejected", len(in.Rejected),
		"force_diagnosis", in.ForceDiagnosis,
	)

	var p Proposal
	resp, err := model.InvokeWithRetry(ctx, a.client, req, a.retry, func(at model.Attempt) {
		rec := core.CallRecord{Role: a.Role(), Model: a.Model(), Attempt: at.N, Usage: at.Response.Usage}
		if at.Err != nil {
			rec.Error = at.Err.Error()
			a.logger.Warn("agent.model.error", "agent", a.Name(), "attempt", at.N, "transient", model.IsTransient(at.Err), "error", at.Err)
		}
		if cl, ok := a.logger.(logging.ModelCallLogger); ok {
			cl.LogModelCall(string(a.Role()), a.Model(), rec.Usage.TotalTokens(), at.Latency, at.Err)
		}
		p.Calls = append(p.Calls, rec)
		p.Usage = p.Usage.Add(rec.Usage)
	})
	if err != nil {
		return p, fmt.Errorf("agent %s: %w", a.Name(), err)
	}

	p.Raw = resp.Text

	parsed, err := Parse(resp.Text)
	if err != nil {
		return p, core.NewMalformedOutputError(a.Role(), resp.Text, "%v", err)
	}

	if err := a.check(parsed, in, resp.Text); err != nil {
		return p, err
	}

	p.Action = parsed.Action
	p.Interpretation = parsed.Interpretation

	a.logger.Debug("agent.propose.done",
		"agent", a.Name(),
		"case_id", in.State.CaseID,
		"action", parsed.Action.Type(),
		"tokens", p.Usage.TotalTokens(),
	)

	return p, nil
}

func (a *ModelAgent) request(in Input) (model.Request, error) {
	instruction := a.instruction
	if in.ForceDiagnosis && !a.finalInstruction.IsZero() {
		instruction = a.finalInstruction
	}

	system, err := instruction.Resolve(in)
	if err != nil {
		return model.Request{}, fmt.Errorf("agent %s: resolve instruction: %w", a.Name(), err)
	}

	msgs, err := conversation(in, a.skipHandoff)
	if err != nil {
		return model.Request{}, fmt.Errorf("agent %s: %w", a.Name(), err)
	}

	return model.Request{
		Role:        a.Role(),
		System:      system,
		Messages:    msgs,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
		Tag:         "agent." + string(a.Role()),
	}, nil
}

// check rejects actions outside the role's vocabulary.
func (a *ModelAgent) check(p Parsed, in Input, raw string) error {
	t := p.Action.Type()

	if in.ForceDiagnosis && t != core.ActionEmitDiagnosis {
		return core.NewMalformedOutputError(a.Role(), raw, "a final diagnosis is required on this turn, got %s", t)
	}

	if !a.Allows(t) {
		return core.NewMalformedOutputError(a.Role(), raw, "%s may not emit %s", a.Role(), t)
	}

	if a.requireInterpretation && t != core.ActionInterpret && len(p.Interpretation) == 0 {
		if f, ok := in.State.LastFinding(); ok && f.Kind == core.KindLaboratory && !f.Unavailable {
			return core.NewMalformedOutputError(a.Role(), raw, "the Lab Interpretation block is missing")
		}
	}

	return nil
}
