package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/clinagents/core"
)

func TestParse_RequestFinding(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want core.RequestFinding
	}{
		{
			name: "labs",
			raw:  "Thought: Need inflammatory markers.\nAction: Laboratory Tests\nAction Input: CBC, CRP, Lipase",
			want: core.RequestFinding{Thought: "Need inflammatory markers.", Kind: core.KindLaboratory, Parameters: []string{"CBC", "CRP", "Lipase"}},
		},
		{
			name: "markdown and parentheses",
			raw:  "**Thought:** check imaging\n**Action:** Imaging\n**Action Input:** CT abdomen (with contrast, IV), Ultrasound RUQ",
			want: core.RequestFinding{Thought: "check imaging", Kind: core.KindImaging, Parameters: []string{"CT abdomen (with contrast, IV)", "Ultrasound RUQ"}},
		},
		{
			name: "physical exam without input",
			raw:  "Thought: start with the exam\nAction: physical examination",
			want: core.RequestFinding{Thought: "start with the exam", Kind: core.KindPhysicalExam},
		},
		{
			name: "thinking block",
			raw:  "<think>Action: Imaging is tempting</think>\nThought: exam first\nAction: Physical Examination\nAction Input: McBurney's point",
			want: core.RequestFinding{Thought: "exam first", Kind: core.KindPhysicalExam, Parameters: []string{"McBurney's point"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Action)
			assert.Empty(t, p.Interpretation)
		})
	}
}

func TestParse_LabInterpretation(t *testing.T) {
	raw := `Thought: WBC is up.
Lab Interpretation: {
    "WBC": {"value": 14.2, "interpretation": "High"},
    "Lipase": {"value": 30, "interpretation": "normal"}
}
Action: Imaging
Action Input: CT abdomen`

	p, err := Parse(raw)
	require.NoError(t, err)

	rf, ok := p.Action.(core.RequestFinding)
	require.True(t, ok)
	assert.Equal(t, "WBC is up.", rf.Thought)
	assert.Equal(t, []core.LabInterpretation{
		{Test: "WBC", Value: "14.2", Interpretation: "high"},
		{Test: "Lipase", Value: "30", Interpretation: "normal"},
	}, p.Interpretation)

	p, err = Parse(`Lab Interpretation: {"ALT": "normal"}`)
	require.NoError(t, err)
	assert.Equal(t, core.Interpret{Labs: []core.LabInterpretation{{Test: "ALT", Interpretation: "normal"}}}, p.Action)

	_, err = Parse("Lab Interpretation: {\"WBC\": {\"value\": 14,}}\nAction: Imaging\nAction Input: CT")
	assert.Error(t, err)
}

func TestParse_Diagnosis(t *testing.T) {
	raw := `Thought: RLQ pain, leukocytosis and a dilated appendix on CT.
**Final Diagnosis (ranked):**
1. Acute appendicitis - most likely given CT
2. Perforated appendicitis: possible
3. Mesenteric adenitis
4. Acute appendicitis
5. Ovarian torsion (less likely)
6. Crohn's disease
Treatment: Laparoscopic appendectomy, IV antibiotics.`

	p, err := Parse(raw)
	require.NoError(t, err)

	d, ok := p.Action.(core.EmitDiagnosis)
	require.True(t, ok)
	assert.Equal(t, "RLQ pain, leukocytosis and a dilated appendix on CT.", d.Thought)
	assert.Equal(t, []string{"acute appendicitis", "perforated appendicitis", "mesenteric adenitis", "ovarian torsion", "crohns disease"}, d.Ranked)
	assert.Equal(t, "Laparoscopic appendectomy, IV antibiotics.", d.Treatment)
	assert.Equal(t, "acute appendicitis", d.Primary())

	p, err = Parse("Final Diagnosis: Acute cholecystitis\nTreatment: Cholecystectomy")
	require.NoError(t, err)
	d = p.Action.(core.EmitDiagnosis)
	assert.Equal(t, []string{"acute cholecystitis"}, d.Ranked)
	assert.Equal(t, "Cholecystectomy", d.Treatment)

	_, err = Parse("Final Diagnosis:\nTreatment: surgery")
	assert.Error(t, err)
}

func TestParse_DoneAndTreatment(t *testing.T) {
	p, err := Parse("Thought: enough information\nAction: done\nAction Input: \"\"")
	require.NoError(t, err)
	assert.Equal(t, core.Abstain{Thought: "enough information"}, p.Action)

	p, err = Parse("Treatment: supportive care and IV fluids")
	require.NoError(t, err)
	assert.Equal(t, core.EmitTreatment{Text: "supportive care and IV fluids"}, p.Action)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", "   "},
		{"only thinking", "<think>hmm</think>"},
		{"prose", "The patient probably has appendicitis."},
		{"unknown action", "Thought: x\nAction: Genetic Testing\nAction Input: BRCA"},
		{"combined action types", "Thought: x\nAction: Laboratory Tests, Imaging\nAction Input: CBC, CT"},
		{"two actions", "Action: Laboratory Tests\nAction Input: CBC\nAction: Imaging\nAction Input: CT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestParseRanked(t *testing.T) {
	assert.Equal(t, []string{"acute pancreatitis", "biliary colic"}, ParseRanked("- Acute Pancreatitis\n- Biliary colic\n\nNotes: ignored"))
	assert.Equal(t, []string{"diverticulitis"}, ParseRanked("* Diverticulitis\nTreatment: antibiotics"))
	assert.Empty(t, ParseRanked(""))
}
