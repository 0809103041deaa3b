package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/logging"
	"github.com/hupe1980/clinagents/transcript"
)

// CaseRunner plays one case to termination. *engine.Orchestrator implements it.
type CaseRunner interface {
	Mode() core.Mode
	Run(ctx context.Context, c core.PatientCase) core.Transcript
}

// Observer sees every finished transcript, e.g. to export metrics.
type Observer interface {
	ObserveTranscript(tr core.Transcript)
}

// Options holds configuration overrides passed to New().
type Options struct {
	// Concurrency is the number of cases in flight.
	Concurrency int
	// Sink receives transcripts as cases finish. Optional.
	Sink transcript.Sink
	// ProgressEvery logs progress after every n finished cases. 0 disables it.
	ProgressEvery int
	// Observers see every transcript after it was persisted.
	Observers []Observer
	// Logging services.
	Logger logging.Logger
}

// Runner executes many independent case runs with bounded concurrency. A
// failing or panicking case becomes an agent_failure transcript; it never
// aborts its siblings. Public methods are safe for concurrent use.
type Runner struct {
	cases CaseRunner

	concurrency   int
	sink          transcript.Sink
	progressEvery int
	observers     []Observer
	logger        logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// New constructs a Runner with optional overrides.
func New(cases CaseRunner, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Concurrency:   1,
		ProgressEvery: 10,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	return &Runner{
		cases:         cases,
		concurrency:   opts.Concurrency,
		sink:          opts.Sink,
		progressEvery: opts.ProgressEvery,
		observers:     opts.Observers,
		logger:        logging.OrNoOp(opts.Logger),
		activeRuns:    make(map[string]context.CancelFunc),
	}
}

// Result is the outcome of one batch.
type Result struct {
	RunID string
	// Transcripts are in input order, regardless of completion order.
	Transcripts []core.Transcript
	Counts      map[core.Termination]int
	Duration    time.Duration
}

// Run plays every case and returns their transcripts. The returned error
// only reports transcripts the sink failed to persist; every case has still
// been run.
func (r *Runner) Run(ctx context.Context, runID string, cases []core.PatientCase) (Result, error) {
	if runID == "" {
		runID = core.NewID()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.activeRuns, runID)
		r.mu.Unlock()
	}()

	start := time.Now()

	r.logger.Info("runner.start",
		"run_id", runID,
		"mode", r.cases.Mode(),
		"cases", len(cases),
		"concurrency", r.concurrency,
	)

	res := Result{
		RunID:       runID,
		Transcripts: make([]core.Transcript, len(cases)),
		Counts:      map[core.Termination]int{},
	}

	var (
		mu       sync.Mutex
		done     int
		sinkErrs []error
	)

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i, c := range cases {
		g.Go(func() error {
			tr := r.runCase(ctx, runID, c)

			if r.sink != nil {
				if err := r.sink.Append(context.WithoutCancel(ctx), tr); err != nil {
					r.logger.Error("runner.sink.error", "run_id", runID, "case_id", c.ID, "error", err)
					mu.Lock()
					sinkErrs = append(sinkErrs, fmt.Errorf("case %s: %w", c.ID, err))
					mu.Unlock()
				}
			}

			for _, o := range r.observers {
				o.ObserveTranscript(tr)
			}

			mu.Lock()
			defer mu.Unlock()

			res.Transcripts[i] = tr
			res.Counts[tr.Termination]++
			done++

			if r.progressEvery > 0 && (done%r.progressEvery == 0 || done == len(cases)) {
				r.logger.Info("runner.progress",
					"run_id", runID,
					"done", done,
					"total", len(cases),
					"diagnosed", res.Counts[core.TerminationDiagnosed],
					"max_turns_exceeded", res.Counts[core.TerminationMaxTurnsExceeded],
					"agent_failure", res.Counts[core.TerminationAgentFailure],
				)
			}

			return nil
		})
	}

	_ = g.Wait()

	res.Duration = time.Since(start)

	r.logger.Info("runner.done",
		"run_id", runID,
		"cases", len(cases),
		"duration", res.Duration,
		"diagnosed", res.Counts[core.TerminationDiagnosed],
	)

	return res, errors.Join(sinkErrs...)
}

// runCase runs one case and turns a panic into an agent_failure transcript.
func (r *Runner) runCase(ctx context.Context, runID string, c core.PatientCase) (tr core.Transcript) {
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			tr = core.Transcript{
				ID:          core.NewID(),
				RunID:       runID,
				CaseID:      c.ID,
				Mode:        r.cases.Mode(),
				GroundTruth: c.GroundTruth,
				History:     c.History,
				Turns:       []core.Turn{},
				Termination: core.TerminationAgentFailure,
				Error:       fmt.Sprintf("panic: %v", p),
				StartedAt:   start,
				Duration:    time.Since(start),
			}
			r.logger.Error("runner.case.panic", "run_id", runID, "case_id", c.ID, "panic", p)
		}

		var err error
		if tr.Error != "" {
			err = errors.New(tr.Error)
		}
		if cl, ok := r.logger.(logging.CaseOutcomeLogger); ok {
			cl.LogCaseOutcome(c.ID, string(tr.Termination), len(tr.Turns), tr.Duration, err)
		} else {
			r.logger.Debug("runner.case.done", "case_id", c.ID, "termination", tr.Termination, "turns", len(tr.Turns))
		}
	}()

	tr = r.cases.Run(ctx, c)
	if tr.RunID == "" {
		tr.RunID = runID
	}

	return tr
}

// Cancel stops a running batch. Cases in flight end as max_turns_exceeded;
// cases not yet started end immediately the same way.
func (r *Runner) Cancel(runID string) bool {
	r.mu.RLock()
	cancel, ok := r.activeRuns[runID]
	r.mu.RUnlock()

	if ok {
		cancel()
	}

	return ok
}

// ActiveRuns returns the ids of batches in flight.
func (r *Runner) ActiveRuns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.activeRuns))
	for id := range r.activeRuns {
		ids = append(ids, id)
	}

	return ids
}
