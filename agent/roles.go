package agent

import (
	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/model"
)

// NewClinician creates the single agent that gathers information, interprets
// labs and diagnoses on its own.
func NewClinician(client model.Client, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	return NewModelAgent(string(core.RoleClinician), core.RoleClinician, client, prepend(func(o *ModelAgentOptions) {
		o.Instruction = NewInstructionFromText(ClinicianPrompt)
		o.FinalInstruction = NewInstructionFromText(DiagnosticianPrompt)
	}, optFns)...)
}

// NewGatherer creates the information gatherer of multi-agent mode. It
// requests findings and hands off with "Action: done" (an Abstain). A
// premature diagnosis is accepted as a hand-off too.
func NewGatherer(client model.Client, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	return NewModelAgent(string(core.RoleGatherer), core.RoleGatherer, client, prepend(func(o *ModelAgentOptions) {
		o.Instruction = NewInstructionFromText(GathererPrompt)
		o.FinalInstruction = Instruction{}
		o.Allowed = []core.ActionType{core.ActionRequestFinding, core.ActionAbstain, core.ActionEmitDiagnosis, core.ActionEmitTreatment}
	}, optFns)...)
}

// NewInterpreter creates the lab interpreter of multi-agent mode.
func NewInterpreter(client model.Client, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	return NewModelAgent(string(core.RoleInterpreter), core.RoleInterpreter, client, prepend(func(o *ModelAgentOptions) {
		o.Instruction = NewInstructionFromText(InterpreterPrompt)
		o.FinalInstruction = Instruction{}
		o.Allowed = []core.ActionType{core.ActionInterpret}
	}, optFns)...)
}

// NewDiagnostician creates the diagnostician of multi-agent mode. It does not
// see the gatherer's hand-off message.
func NewDiagnostician(client model.Client, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	return NewModelAgent(string(core.RoleDiagnostician), core.RoleDiagnostician, client, prepend(func(o *ModelAgentOptions) {
		o.Instruction = NewInstructionFromText(DiagnosticianPrompt)
		o.FinalInstruction = NewInstructionFromText(DiagnosticianPrompt)
		o.Allowed = []core.ActionType{core.ActionEmitDiagnosis}
		o.SkipHandoff = true
	}, optFns)...)
}

func prepend(fn func(o *ModelAgentOptions), rest []func(o *ModelAgentOptions)) []func(o *ModelAgentOptions) {
	return append([]func(o *ModelAgentOptions){fn}, rest...)
}
