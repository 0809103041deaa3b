package core

import (
	"time"
)

// Termination is the single reason a case run ended.
type Termination string

const (
	// TerminationDiagnosed means a final diagnosis was recorded.
	TerminationDiagnosed Termination = "diagnosed"
	// TerminationMaxTurnsExceeded means the turn budget or the wall-clock
	// deadline ran out before a diagnosis.
	TerminationMaxTurnsExceeded Termination = "max_turns_exceeded"
	// TerminationAgentFailure means an agent could not produce a usable action
	// (re-prompts or transient retries exhausted, or a fatal model error).
	TerminationAgentFailure Termination = "agent_failure"
)

// Terminations lists every termination reason in reporting order.
var Terminations = []Termination{TerminationDiagnosed, TerminationMaxTurnsExceeded, TerminationAgentFailure}

// Mode selects single-agent or multi-agent orchestration.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// Usage aggregates token, call and latency accounting.
type Usage struct {
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Calls        int           `json:"calls"`
	Latency      time.Duration `json:"latency_ns"`
}

// Add returns the element-wise sum.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		Calls:        u.Calls + o.Calls,
		Latency:      u.Latency + o.Latency,
	}
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int { return u.InputTokens + u.OutputTokens }

// CallRecord is the cost metadata of one model call made during a run.
type CallRecord struct {
	Role    Role   `json:"role"`
	Model   string `json:"model"`
	Attempt int    `json:"attempt"`
	Usage   Usage  `json:"usage"`
	Error   string `json:"error,omitempty"`
}

// Transcript is the immutable terminal artifact of one case run. It embeds the
// ground truth so that scoring needs nothing but the transcript itself.
type Transcript struct {
	ID          string          `json:"id"`
	RunID       string          `json:"run_id"`
	Experiment  string          `json:"experiment"`
	CaseID      string          `json:"case_id"`
	Mode        Mode            `json:"mode"`
	Models      map[Role]string `json:"models,omitempty"`
	GroundTruth GroundTruth     `json:"ground_truth"`
	History     string          `json:"history"`
	Turns       []Turn          `json:"turns"`
	Termination Termination     `json:"termination"`
	Diagnosis   string          `json:"diagnosis"`
	Ranked      []string        `json:"ranked,omitempty"`
	Treatment   string          `json:"treatment"`
	Calls       []CallRecord    `json:"calls,omitempty"`
	Usage       Usage           `json:"usage"`
	Error       string          `json:"error,omitempty"`
	Rejected    []string        `json:"rejected,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	Duration    time.Duration   `json:"duration_ns"`
}

// Diagnosed reports whether the run ended with a diagnosis.
func (t Transcript) Diagnosed() bool { return t.Termination == TerminationDiagnosed }

// UsageByRole sums call usage per role.
func (t Transcript) UsageByRole() map[Role]Usage {
	out := map[Role]Usage{}
	for _, c := range t.Calls {
		out[c.Role] = out[c.Role].Add(c.Usage)
	}
	return out
}
