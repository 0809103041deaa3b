package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActions_ClosedSet(t *testing.T) {
	actions := []ActionRequest{
		RequestFinding{Kind: KindLaboratory, Parameters: []string{"CBC"}},
		EmitDiagnosis{Text: "acute appendicitis"},
		EmitTreatment{Text: "appendectomy"},
		Interpret{Labs: []LabInterpretation{{Test: "WBC", Value: "14", Interpretation: "high"}}},
		Abstain{Reason: "done"},
	}
	for _, a := range actions {
		switch at := a.(type) {
		case RequestFinding, EmitDiagnosis, EmitTreatment, Interpret, Abstain:
		default:
			t.Fatalf("unexpected action type: %T (%v)", at, at)
		}
	}
}

func TestTurn_JSONKeepsActionVariant(t *testing.T) {
	finding := Finding{Kind: KindLaboratory, Requested: []string{"lipase"}, Unavailable: true}
	tests := []struct {
		name   string
		action ActionRequest
	}{
		{"request", RequestFinding{Thought: "check labs", Kind: KindLaboratory, Parameters: []string{"lipase"}}},
		{"diagnosis", EmitDiagnosis{Text: "1. appendicitis", Ranked: []string{"appendicitis"}, Treatment: "surgery"}},
		{"treatment", EmitTreatment{Text: "antibiotics"}},
		{"interpret", Interpret{Labs: []LabInterpretation{{Test: "WBC", Interpretation: "high"}}}},
		{"abstain", Abstain{Reason: "done"}},
		{"nil", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Turn{Index: 2, Role: RoleClinician, Action: tt.action, Finding: &finding, Attempts: 1}
			data, err := json.Marshal(in)
			require.NoError(t, err)

			var out Turn
			require.NoError(t, json.Unmarshal(data, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestUnmarshalAction_UnknownType(t *testing.T) {
	_, err := UnmarshalAction([]byte(`{"type":"teleport","payload":{}}`))
	assert.Error(t, err)
}

func TestEmitDiagnosis_Primary(t *testing.T) {
	assert.Equal(t, "cholecystitis", EmitDiagnosis{Text: "raw", Ranked: []string{"cholecystitis", "colic"}}.Primary())
	assert.Equal(t, "raw", EmitDiagnosis{Text: "raw"}.Primary())
}

func TestParseFindingKind(t *testing.T) {
	tests := []struct {
		in   string
		want FindingKind
		ok   bool
	}{
		{"Physical Examination", KindPhysicalExam, true},
		{"laboratory tests", KindLaboratory, true},
		{"**Laboratory Tests**", KindLaboratory, true},
		{"Imaging", KindImaging, true},
		{"radiology", KindImaging, true},
		{"biopsy", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseFindingKind(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
