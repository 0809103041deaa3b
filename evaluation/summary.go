package evaluation

import (
	"slices"
	"time"

	"github.com/hupe1980/clinagents/core"
)

// UnknownPathology keys cases whose ground truth is not a catalog pathology.
const UnknownPathology = "unknown"

// PathologySummary is the accuracy on the cases of one pathology.
type PathologySummary struct {
	Cases    int     `json:"cases"`
	Matches  int     `json:"matches"`
	Accuracy float64 `json:"accuracy"`
}

// Summary aggregates the score records of one experiment. Every rate uses
// all cases as denominator: max_turns_exceeded, agent_failure and
// indeterminate cases count as misses, never as missing data.
type Summary struct {
	Experiment    string                      `json:"experiment"`
	Comparator    string                      `json:"comparator,omitempty"`
	Cases         int                         `json:"cases"`
	Terminations  map[core.Termination]int    `json:"terminations"`
	Indeterminate int                         `json:"indeterminate"`
	PerPathology  map[string]PathologySummary `json:"per_pathology"`

	DiagnosisAccuracy float64 `json:"diagnosis_accuracy"`
	MacroAccuracy     float64 `json:"macro_accuracy"`
	Top1              float64 `json:"top1"`
	Top3              float64 `json:"top3"`
	Top5              float64 `json:"top5"`

	TreatmentMatchRate float64 `json:"treatment_match_rate"`
	TreatmentAdherence float64 `json:"treatment_adherence"`

	MeanTurns             float64 `json:"mean_turns"`
	MeanRequests          float64 `json:"mean_requests"`
	MeanUnnecessary       float64 `json:"mean_unnecessary"`
	MeanViolations        float64 `json:"mean_violations"`
	PhysicalExamRate      float64 `json:"physical_exam_rate"`
	PhysicalExamFirstRate float64 `json:"physical_exam_first_rate"`
	MeanCoverage          float64 `json:"mean_coverage"`
	// InterpretationAccuracy is pooled over every graded lab interpretation,
	// zero when none was graded.
	InterpretationAccuracy float64 `json:"interpretation_accuracy"`

	MeanTokens  float64       `json:"mean_tokens"`
	MeanLatency time.Duration `json:"mean_latency_ns"`
	MeanUSD     float64       `json:"mean_usd"`
	TotalUSD    float64       `json:"total_usd"`
	MatcherUSD  float64       `json:"matcher_usd"`
	MeanLabFees float64       `json:"mean_lab_fees"`
}

// Summarize aggregates records. The result depends only on the multiset of
// records, not on their order.
func Summarize(experiment string, records []ScoreRecord) Summary {
	s := Summary{
		Experiment:   experiment,
		Cases:        len(records),
		Terminations: map[core.Termination]int{},
		PerPathology: map[string]PathologySummary{},
	}
	for _, t := range core.Terminations {
		s.Terminations[t] = 0
	}

	if len(records) == 0 {
		return s
	}

	var (
		matches, top1, top3, top5    int
		treatments, adherent         int
		turns, requests, unnecessary int
		violations, exam, examFirst  int
		coverage, usd, matcherUSD    float64
		labFees                      float64
		interpreted, interpretedOK   int
		tokens                       int
		latency                      time.Duration
	)

	for _, r := range records {
		s.Terminations[r.Termination]++
		if r.Indeterminate {
			s.Indeterminate++
		}

		key := r.Pathology
		if key == "" {
			key = UnknownPathology
		}
		ps := s.PerPathology[key]
		ps.Cases++
		if r.DiagnosisMatch {
			ps.Matches++
			matches++
		}
		s.PerPathology[key] = ps

		top1 += b2i(r.Top1)
		top3 += b2i(r.Top3)
		top5 += b2i(r.Top5)
		treatments += b2i(r.TreatmentMatch)
		adherent += b2i(r.Adherence != nil && r.Adherence.RequiredMet)

		turns += r.Process.Turns
		requests += r.Process.TotalRequests
		unnecessary += r.Process.Unnecessary
		violations += r.Process.Violations
		exam += b2i(r.Process.PhysicalExam)
		examFirst += b2i(r.Process.PhysicalExamFirst)
		coverage += r.Process.Coverage.Ratio
		interpreted += r.Process.InterpretedLabs
		interpretedOK += r.Process.InterpretationsCorrect

		tokens += r.Cost.Tokens()
		latency += r.Cost.Latency
		usd += r.Cost.USD
		matcherUSD += r.Cost.MatcherUSD
		labFees += r.Cost.LabFees
	}

	n := float64(len(records))

	s.DiagnosisAccuracy = float64(matches) / n
	s.Top1 = float64(top1) / n
	s.Top3 = float64(top3) / n
	s.Top5 = float64(top5) / n
	s.TreatmentMatchRate = float64(treatments) / n
	s.TreatmentAdherence = float64(adherent) / n
	s.MeanTurns = float64(turns) / n
	s.MeanRequests = float64(requests) / n
	s.MeanUnnecessary = float64(unnecessary) / n
	s.MeanViolations = float64(violations) / n
	s.PhysicalExamRate = float64(exam) / n
	s.PhysicalExamFirstRate = float64(examFirst) / n
	s.MeanCoverage = coverage / n
	if interpreted > 0 {
		s.InterpretationAccuracy = float64(interpretedOK) / float64(interpreted)
	}
	s.MeanTokens = float64(tokens) / n
	s.MeanLatency = latency / time.Duration(len(records))
	s.MeanUSD = usd / n
	s.TotalUSD = usd
	s.MatcherUSD = matcherUSD
	s.MeanLabFees = labFees / n

	keys := make([]string, 0, len(s.PerPathology))
	for k := range s.PerPathology {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	macro := 0.0
	for _, k := range keys {
		ps := s.PerPathology[k]
		ps.Accuracy = float64(ps.Matches) / float64(ps.Cases)
		s.PerPathology[k] = ps
		macro += ps.Accuracy
	}
	s.MacroAccuracy = macro / float64(len(keys))

	return s
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
