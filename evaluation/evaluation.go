// Package evaluation scores transcripts against their ground truth and
// aggregates the scores of one experiment.
package evaluation

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/clinagents/clinical"
	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/logging"
	"github.com/hupe1980/clinagents/matcher"
)

// Evaluator scores one transcript.
type Evaluator interface {
	Evaluate(ctx context.Context, tr core.Transcript) (ScoreRecord, error)
}

// Options configure a Scorer.
type Options struct {
	CostTable CostTable
	// Fees prices requested labs. Optional.
	Fees *clinical.FeeSchedule
	// CoverageThreshold is the fuzzy score for guideline coverage.
	CoverageThreshold int
	// Concurrency bounds EvaluateAll.
	Concurrency int
	Logger      logging.Logger
}

var _ Evaluator = (*Scorer)(nil)

// Scorer is the Evaluator. Only diagnosed transcripts reach the comparator;
// every other transcript scores as a miss.
type Scorer struct {
	cmp  matcher.Comparator
	opts Options
}

// New creates a Scorer that decides matches with cmp.
func New(cmp matcher.Comparator, optFns ...func(o *Options)) *Scorer {
	opts := Options{
		CoverageThreshold: clinical.DefaultCoverageThreshold,
		Concurrency:       1,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	return &Scorer{cmp: cmp, opts: opts}
}

// Comparator returns the configured comparator.
func (s *Scorer) Comparator() matcher.Comparator { return s.cmp }

// Evaluate implements Evaluator.
func (s *Scorer) Evaluate(ctx context.Context, tr core.Transcript) (ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return ScoreRecord{}, err
	}

	p, ok := clinical.ParsePathology(tr.GroundTruth.Diagnosis)
	if !ok {
		p, _ = clinical.MatchPathology(tr.GroundTruth.Diagnosis)
	}

	rec := ScoreRecord{
		TranscriptID:     tr.ID,
		RunID:            tr.RunID,
		Experiment:       tr.Experiment,
		CaseID:           tr.CaseID,
		Mode:             tr.Mode,
		Models:           tr.Models,
		Termination:      tr.Termination,
		Pathology:        string(p),
		Diagnosis:        tr.Diagnosis,
		Treatment:        tr.Treatment,
		DiagnosisVerdict: matcher.NoMatch,
		TreatmentVerdict: matcher.NoMatch,
		Process:          process(tr, p, s.opts.CoverageThreshold),
	}

	var matcherUsage core.Usage

	if tr.Diagnosed() {
		matcherUsage = matcherUsage.Add(s.scoreDiagnosis(ctx, tr, &rec))
		matcherUsage = matcherUsage.Add(s.scoreTreatment(ctx, tr, p, &rec))
	}

	rec.Cost = s.cost(tr, matcherUsage)

	s.opts.Logger.Debug("evaluation.record",
		"case_id", rec.CaseID,
		"termination", rec.Termination,
		"diagnosis_match", rec.DiagnosisMatch,
		"indeterminate", rec.Indeterminate,
		"ranked_hit", rec.RankedHit,
	)

	return rec, nil
}

// scoreDiagnosis compares the ranked diagnoses in order. The first entry
// decides DiagnosisMatch; later entries only move the top-k flags.
func (s *Scorer) scoreDiagnosis(ctx context.Context, tr core.Transcript, rec *ScoreRecord) core.Usage {
	entries := tr.Ranked
	if len(entries) == 0 && tr.Diagnosis != "" {
		entries = []string{tr.Diagnosis}
	}

	var usage core.Usage
	categories := clinical.DiagnosisCategories()

	for i, entry := range entries {
		v, u := s.cmp.Match(ctx, entry, categories)
		usage = usage.Add(u)

		if i == 0 {
			rec.DiagnosisVerdict = v
			rec.Indeterminate = v.Indeterminate()
		}

		if rec.Pathology != "" && v.Matches(rec.Pathology) {
			rec.RankedHit = i + 1
			break
		}
	}

	rec.DiagnosisMatch = rec.RankedHit == 1
	rec.Top1 = rec.RankedHit == 1
	rec.Top3 = rec.RankedHit >= 1 && rec.RankedHit <= 3
	rec.Top5 = rec.RankedHit >= 1 && rec.RankedHit <= 5

	return usage
}

func (s *Scorer) scoreTreatment(ctx context.Context, tr core.Transcript, p clinical.Pathology, rec *ScoreRecord) core.Usage {
	if tr.Treatment == "" {
		return core.Usage{}
	}

	want := tr.GroundTruth.Treatment
	if want == "" && p != "" {
		want = p.StandardOfCare()
	}

	v, usage := s.cmp.Match(ctx, tr.Treatment, clinical.TreatmentCategoriesFor(want))
	rec.TreatmentVerdict = v
	rec.TreatmentMatch = want != "" && v.Matches(want)

	if p != "" {
		a := clinical.CheckTreatment(p, tr.Treatment)
		rec.Adherence = &a
	}

	return usage
}

func (s *Scorer) cost(tr core.Transcript, matcherUsage core.Usage) Cost {
	c := Cost{
		InputTokens:  tr.Usage.InputTokens,
		OutputTokens: tr.Usage.OutputTokens,
		Calls:        tr.Usage.Calls,
		Latency:      tr.Usage.Latency,
		USD:          s.opts.CostTable.TranscriptCost(tr),
		ByRole:       tr.UsageByRole(),
		Matcher:      matcherUsage,
	}

	if mm, ok := s.cmp.(interface{ Model() string }); ok {
		c.MatcherUSD = s.opts.CostTable.Cost(mm.Model(), matcherUsage)
	}

	if s.opts.Fees != nil {
		var labs []string
		for _, l := range process(tr, "", 0).Labs {
			expanded, _ := clinical.ExpandLabRequest(l)
			labs = append(labs, expanded...)
		}
		c.LabFees = s.opts.Fees.Total(labs)
	}

	return c
}

// EvaluateAll scores every transcript, keeping input order, and summarizes
// the records under experiment.
func (s *Scorer) EvaluateAll(ctx context.Context, experiment string, trs []core.Transcript) ([]ScoreRecord, Summary, error) {
	start := time.Now()
	records := make([]ScoreRecord, len(trs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i, tr := range trs {
		g.Go(func() error {
			rec, err := s.Evaluate(gctx, tr)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, Summary{}, err
	}

	sum := Summarize(experiment, records)
	sum.Comparator = s.cmp.Name()

	s.opts.Logger.Info("evaluation.done",
		"experiment", experiment,
		"cases", sum.Cases,
		"accuracy", sum.DiagnosisAccuracy,
		"indeterminate", sum.Indeterminate,
		"duration", time.Since(start),
	)

	return records, sum, nil
}
