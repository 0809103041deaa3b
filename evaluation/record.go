package evaluation

import (
	"time"

	"github.com/hupe1980/clinagents/clinical"
	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/matcher"
)

// ScoreRecord is the score of one transcript. It is a pure function of the
// transcript and the comparator configuration.
type ScoreRecord struct {
	TranscriptID string               `json:"transcript_id"`
	RunID        string               `json:"run_id"`
	Experiment   string               `json:"experiment"`
	CaseID       string               `json:"case_id"`
	Mode         core.Mode            `json:"mode"`
	Models       map[core.Role]string `json:"models,omitempty"`
	Termination  core.Termination     `json:"termination"`
	Pathology    string               `json:"pathology"`

	Diagnosis        string          `json:"diagnosis"`
	DiagnosisVerdict matcher.Verdict `json:"diagnosis_verdict"`
	DiagnosisMatch   bool            `json:"diagnosis_match"`
	Indeterminate    bool            `json:"indeterminate"`
	// RankedHit is the 1-based rank of the first ranked diagnosis naming the
	// ground truth, 0 if none does.
	RankedHit int  `json:"ranked_hit"`
	Top1      bool `json:"top1"`
	Top3      bool `json:"top3"`
	Top5      bool `json:"top5"`

	Treatment        string              `json:"treatment"`
	TreatmentVerdict matcher.Verdict     `json:"treatment_verdict"`
	TreatmentMatch   bool                `json:"treatment_match"`
	Adherence        *clinical.Adherence `json:"adherence,omitempty"`

	Process Process `json:"process"`
	Cost    Cost    `json:"cost"`
}

// Process describes how information was gathered.
type Process struct {
	Turns    int                      `json:"turns"`
	Requests map[core.FindingKind]int `json:"requests"`
	// TotalRequests counts RequestFinding turns.
	TotalRequests int `json:"total_requests"`
	// Unnecessary counts repeated requests plus requested lab and imaging
	// items outside the guideline work-up of the ground-truth pathology.
	Unnecessary       int  `json:"unnecessary"`
	Repeated          int  `json:"repeated"`
	Violations        int  `json:"violations"`
	PhysicalExam      bool `json:"physical_exam"`
	PhysicalExamFirst bool `json:"physical_exam_first"`
	Interpretations   int  `json:"interpretations"`
	// InterpretedLabs counts interpreted values that name a revealed lab;
	// InterpretationsCorrect those whose low/normal/high label agrees with
	// the reference range.
	InterpretedLabs        int               `json:"interpreted_labs"`
	InterpretationsCorrect int               `json:"interpretations_correct"`
	Labs                   []string          `json:"labs,omitempty"`
	Imaging                []string          `json:"imaging,omitempty"`
	Maneuvers              []string          `json:"maneuvers,omitempty"`
	Coverage               clinical.Coverage `json:"coverage"`
}

// Cost is the resource use of the run plus the scoring.
type Cost struct {
	InputTokens  int                      `json:"input_tokens"`
	OutputTokens int                      `json:"output_tokens"`
	Calls        int                      `json:"calls"`
	Latency      time.Duration            `json:"latency_ns"`
	USD          float64                  `json:"usd"`
	ByRole       map[core.Role]core.Usage `json:"by_role,omitempty"`
	// Matcher is the usage of scoring this transcript.
	Matcher    core.Usage `json:"matcher"`
	MatcherUSD float64    `json:"matcher_usd"`
	// LabFees prices the requested labs with the fee schedule, if configured.
	LabFees float64 `json:"lab_fees"`
}

// Tokens returns input plus output tokens of the run.
func (c Cost) Tokens() int { return c.InputTokens + c.OutputTokens }
