package testutil

import (
	"time"

	"github.com/hupe1980/clinagents/core"
)

// TranscriptBuilder provides a fluent helper for constructing terminal
// transcripts in tests.
// Example:
//
//	tr := NewTranscriptBuilder("t-1", AppendicitisCase()).Exam().Labs("WBC").Diagnosis("Acute appendicitis").Build()
//
// Chain only the parts you need; the termination defaults to diagnosed once a
// diagnosis is set and to max_turns_exceeded otherwise.
type TranscriptBuilder struct {
	tr          core.Transcript
	role        core.Role
	termination core.Termination
}

// NewTranscriptBuilder creates a single-mode transcript for c.
func NewTranscriptBuilder(id string, c core.PatientCase) *TranscriptBuilder {
	return &TranscriptBuilder{
		tr: core.Transcript{
			ID:          id,
			RunID:       "run-test",
			Experiment:  "test",
			CaseID:      c.ID,
			Mode:        core.ModeSingle,
			GroundTruth: c.GroundTruth,
			History:     c.History,
			Turns:       []core.Turn{},
			StartedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		role: core.RoleClinician,
	}
}

// Multi switches the transcript to multi-agent mode (chainable).
func (b *TranscriptBuilder) Multi() *TranscriptBuilder {
	b.tr.Mode = core.ModeMulti
	b.role = core.RoleGatherer
	return b
}

// Turn appends a raw turn (chainable).
func (b *TranscriptBuilder) Turn(t core.Turn) *TranscriptBuilder {
	t.Index = len(b.tr.Turns)
	if t.Role == "" {
		t.Role = b.role
	}
	if t.Attempts == 0 {
		t.Attempts = 1
	}
	b.tr.Turns = append(b.tr.Turns, t)
	return b
}

// Exam appends a physical examination request (chainable).
func (b *TranscriptBuilder) Exam() *TranscriptBuilder {
	return b.request(core.KindPhysicalExam)
}

// Labs appends a laboratory request (chainable).
func (b *TranscriptBuilder) Labs(tests ...string) *TranscriptBuilder {
	return b.request(core.KindLaboratory, tests...)
}

// Imaging appends an imaging request (chainable).
func (b *TranscriptBuilder) Imaging(studies ...string) *TranscriptBuilder {
	return b.request(core.KindImaging, studies...)
}

func (b *TranscriptBuilder) request(kind core.FindingKind, params ...string) *TranscriptBuilder {
	f := core.Finding{Kind: kind, Requested: params, Text: "recorded"}
	return b.Turn(core.Turn{
		Action:  core.RequestFinding{Kind: kind, Parameters: params},
		Finding: &f,
	})
}

// Violations marks the last turn with rejected attempts (chainable).
func (b *TranscriptBuilder) Violations(reasons ...string) *TranscriptBuilder {
	if n := len(b.tr.Turns); n > 0 {
		t := &b.tr.Turns[n-1]
		t.Violations = append(t.Violations, reasons...)
		t.Attempts += len(reasons)
	}
	return b
}

// Diagnosis records a final diagnosis turn (chainable).
func (b *TranscriptBuilder) Diagnosis(text string, ranked ...string) *TranscriptBuilder {
	role := b.role
	if b.tr.Mode == core.ModeMulti {
		role = core.RoleDiagnostician
	}
	if len(ranked) == 0 {
		ranked = []string{text}
	}

	d := core.EmitDiagnosis{Text: text, Ranked: ranked, Treatment: b.tr.Treatment}
	b.Turn(core.Turn{Role: role, Action: d})

	b.tr.Diagnosis = text
	b.tr.Ranked = ranked
	if b.termination == "" {
		b.termination = core.TerminationDiagnosed
	}
	return b
}

// Treatment sets the proposed treatment (chainable).
func (b *TranscriptBuilder) Treatment(t string) *TranscriptBuilder { b.tr.Treatment = t; return b }

// Termination overrides the termination reason (chainable).
func (b *TranscriptBuilder) Termination(t core.Termination) *TranscriptBuilder {
	b.termination = t
	return b
}

// Call appends a model call record (chainable).
func (b *TranscriptBuilder) Call(role core.Role, modelName string, in, out int) *TranscriptBuilder {
	u := core.Usage{InputTokens: in, OutputTokens: out, Calls: 1, Latency: 100 * time.Millisecond}
	b.tr.Calls = append(b.tr.Calls, core.CallRecord{Role: role, Model: modelName, Attempt: 1, Usage: u})
	b.tr.Usage = b.tr.Usage.Add(u)
	if b.tr.Models == nil {
		b.tr.Models = map[core.Role]string{}
	}
	b.tr.Models[role] = modelName
	return b
}

// Build returns the transcript.
func (b *TranscriptBuilder) Build() core.Transcript {
	tr := b.tr
	tr.Termination = b.termination
	if tr.Termination == "" {
		tr.Termination = core.TerminationMaxTurnsExceeded
	}
	return tr
}
