package agent

import (
	"errors"
	"strings"
	"testing"

	"github.com/hupe1980/clinagents/core"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(Input) (string, error) { return m.text, m.err }

func newTestInput() Input {
	return Input{
		State:     core.ConversationState{CaseID: "20001", History: "34M with RLQ pain."},
		Remaining: 3,
	}
}

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	if !inst.IsStatic() {
		t.Fatalf("expected static instruction")
	}
	got, err := inst.Resolve(newTestInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "static instruction" {
		t.Fatalf("expected 'static instruction', got %q", got)
	}
}

func TestInstruction_Template(t *testing.T) {
	inst := NewInstructionFromText("case {{.CaseID}}: {{.History}} ({{.Remaining}} left, turn {{.Turn}})")
	got, err := inst.Resolve(newTestInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "case 20001: 34M with RLQ pain. (3 left, turn 1)" {
		t.Fatalf("unexpected rendering %q", got)
	}
}

func TestInstruction_PromptsRender(t *testing.T) {
	for _, p := range []string{ClinicianPrompt, GathererPrompt, InterpreterPrompt, DiagnosticianPrompt, QueryTemplate} {
		got, err := NewInstructionFromText(p).Resolve(newTestInput())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(got, "{{") {
			t.Fatalf("unrendered template markers in %q", got)
		}
	}
}

func TestInstruction_NewInstructionFromFunc(t *testing.T) {
	inst := NewInstructionFromFunc(func(in Input) (string, error) { return "dynamic for " + in.State.CaseID, nil })
	if inst.IsStatic() {
		t.Fatalf("expected dynamic instruction")
	}
	got, err := inst.Resolve(newTestInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "dynamic for 20001" {
		t.Fatalf("expected 'dynamic for 20001', got %q", got)
	}
}

func TestInstruction_NewInstructionFromProvider(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{text: "provider text"})
	if inst.IsStatic() {
		t.Fatalf("expected dynamic instruction")
	}
	got, err := inst.Resolve(newTestInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "provider text" {
		t.Fatalf("expected 'provider text', got %q", got)
	}
}

func TestInstruction_ErrorPropagation(t *testing.T) {
	expectedErr := errors.New("boom")
	inst := NewInstructionFromProvider(mockProvider{err: expectedErr})
	_, err := inst.Resolve(newTestInput())
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected error %v, got %v", expectedErr, err)
	}
}
