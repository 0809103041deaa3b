// Package clinagents provides a high-level façade over the benchmark harness.
// It turns a configuration into model clients, agents, an orchestrator and a
// runner, and wires scoring to its outputs. Most applications interact with
// this package by:
//  1. Creating a Harness via New() (optionally overriding the config, the
//     logger or the client factory)
//  2. Running a batch of cases with RunSingle or RunMulti
//  3. Scoring the written transcripts with Evaluate
//
// Every model client built by one Harness shares one outbound rate limiter.
// Problems that prevent any case from running are returned as
// core.SetupFault; per-case problems end up in the transcripts.
package clinagents

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"golang.org/x/time/rate"

	"github.com/hupe1980/clinagents/agent"
	"github.com/hupe1980/clinagents/clinical"
	"github.com/hupe1980/clinagents/config"
	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/engine"
	"github.com/hupe1980/clinagents/environment"
	"github.com/hupe1980/clinagents/evaluation"
	"github.com/hupe1980/clinagents/evaluation/store"
	"github.com/hupe1980/clinagents/logging"
	"github.com/hupe1980/clinagents/matcher"
	"github.com/hupe1980/clinagents/metrics"
	"github.com/hupe1980/clinagents/model"
	anthropicmodel "github.com/hupe1980/clinagents/model/anthropic"
	openaimodel "github.com/hupe1980/clinagents/model/openai"
	"github.com/hupe1980/clinagents/runner"
	"github.com/hupe1980/clinagents/transcript"
)

// ClientFactory builds the model client of a configured platform.
type ClientFactory func(name string, p config.Platform) (model.Client, error)

// Options configures the Harness.
type Options struct {
	// Config defaults to config.Default().
	Config *config.Config
	// NewClient defaults to NewPlatformClient.
	NewClient ClientFactory
	// Observers see every finished transcript of every run.
	Observers []runner.Observer
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Harness is the high-level façade aggregating configuration, model clients
// and run wiring. It is safe for concurrent use.
type Harness struct {
	cfg       *config.Config
	newClient ClientFactory
	observers []runner.Observer
	logger    logging.Logger
	limiter   *rate.Limiter

	mu      sync.Mutex
	clients map[string]model.Client
}

// New creates a Harness with optional overrides.
func New(optFns ...func(o *Options)) *Harness {
	opts := Options{
		NewClient: NewPlatformClient,
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.NewClient == nil {
		opts.NewClient = NewPlatformClient
	}

	return &Harness{
		cfg:       opts.Config,
		newClient: opts.NewClient,
		observers: opts.Observers,
		logger:    logging.OrNoOp(opts.Logger),
		limiter:   model.NewLimiter(opts.Config.RateLimit.RequestsPerMinute, opts.Config.RateLimit.Burst),
		clients:   map[string]model.Client{},
	}
}

// Config returns the configuration in use.
func (h *Harness) Config() *config.Config { return h.cfg }

// NewPlatformClient builds an OpenAI or Anthropic client for p.
func NewPlatformClient(name string, p config.Platform) (model.Client, error) {
	switch p.Provider {
	case "openai":
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			o.Model = p.Model
			o.Temperature = p.Temperature
			o.OmitTemperature = p.OmitTemperature
			o.MaxCompletionTokens = int64(p.MaxTokens)
			o.BaseURL = p.BaseURL
			o.APIKey = p.APIKey()
		}), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			o.Model = anthropic.Model(p.Model)
			o.Temperature = p.Temperature
			o.MaxTokens = int64(p.MaxTokens)
			o.BaseURL = p.BaseURL
			o.APIKey = p.APIKey()
		}), nil
	default:
		return nil, &core.SetupFault{
			Component: "platform",
			Problems:  []string{fmt.Sprintf("%s: unsupported provider %q", name, p.Provider)},
		}
	}
}

// Client returns the rate-limited client of a configured platform. Clients
// are built once per platform and reused.
func (h *Harness) Client(platform string) (model.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[platform]; ok {
		return c, nil
	}

	p, err := h.cfg.Platform(platform)
	if err != nil {
		return nil, err
	}

	c, err := h.newClient(platform, p)
	if err != nil {
		var sf *core.SetupFault
		if errors.As(err, &sf) {
			return nil, err
		}
		return nil, core.NewSetupFault("platform", fmt.Errorf("%s: %w", platform, err))
	}

	limited := model.NewRateLimited(c, h.limiter)
	h.clients[platform] = limited

	return limited, nil
}

// Run holds the settings shared by single- and multi-agent runs.
type Run struct {
	// Experiment names the run; transcripts go to LogDir/Experiment.
	Experiment string
	// Split is loaded from the configured data dir unless Dataset is set.
	Split   string
	Dataset *environment.Dataset
	// CaseIDs restricts the run to these cases, in this order.
	CaseIDs []string
	// Matcher is the platform used to select labs and imaging when the
	// configured selector is "model".
	Matcher string
	// LogDir overrides the configured log dir.
	LogDir string
	// MetricsFile receives a Prometheus textfile after the run. Optional.
	MetricsFile string
}

// SingleRun is a run with one clinician agent.
type SingleRun struct {
	Run
	Model string
}

// MultiRun is a run with a team of specialized agents. Interpretation may
// be empty to run without an interpreter.
type MultiRun struct {
	Run
	Info           string
	Interpretation string
	Diagnosis      string
}

// RunSingle plays every selected case with one clinician agent.
func (h *Harness) RunSingle(ctx context.Context, r SingleRun) (runner.Result, error) {
	client, err := h.Client(r.Model)
	if err != nil {
		return runner.Result{}, err
	}

	if r.Experiment == "" {
		r.Experiment = r.Model + "-single"
	}

	team := engine.Team{
		Clinician: agent.NewClinician(client, h.agentOptions(true)),
	}

	return h.run(ctx, r.Run, team)
}

// RunMulti plays every selected case with the gatherer, interpreter and
// diagnostician agents.
func (h *Harness) RunMulti(ctx context.Context, r MultiRun) (runner.Result, error) {
	info, err := h.Client(r.Info)
	if err != nil {
		return runner.Result{}, err
	}
	diag, err := h.Client(r.Diagnosis)
	if err != nil {
		return runner.Result{}, err
	}

	team := engine.Team{
		Gatherer:      agent.NewGatherer(info, h.agentOptions(false)),
		Diagnostician: agent.NewDiagnostician(diag, h.agentOptions(false)),
	}

	if r.Interpretation != "" {
		interp, err := h.Client(r.Interpretation)
		if err != nil {
			return runner.Result{}, err
		}
		team.Interpreter = agent.NewInterpreter(interp, h.agentOptions(false))
	}

	if r.Experiment == "" {
		parts := []string{r.Info}
		if r.Interpretation != "" {
			parts = append(parts, r.Interpretation)
		}
		parts = append(parts, r.Diagnosis, "multi")
		r.Experiment = strings.Join(parts, "-")
	}

	return h.run(ctx, r.Run, team)
}

func (h *Harness) agentOptions(clinician bool) func(o *agent.ModelAgentOptions) {
	return func(o *agent.ModelAgentOptions) {
		o.Retry = h.cfg.Retry.Policy()
		o.Logger = h.logger
		if clinician {
			o.RequireInterpretation = h.cfg.Runtime.RequireLabInterpretation
		}
	}
}

func (h *Harness) run(ctx context.Context, r Run, team engine.Team) (runner.Result, error) {
	ds, err := h.dataset(r)
	if err != nil {
		return runner.Result{}, err
	}

	env, err := h.environment(ds, r.Matcher)
	if err != nil {
		return runner.Result{}, err
	}

	logDir := r.LogDir
	if logDir == "" {
		logDir = h.cfg.Paths.LogDir
	}

	runID := core.NewID()
	logger := h.runLogger(runID)

	callbacks := engine.NewCallbackManager()
	callbacks.RegisterCallback(engine.NewLoggingCallback(engine.CallbackOnTurn, logger))
	callbacks.RegisterCallback(engine.NewLoggingCallback(engine.CallbackOnReprompt, logger))

	rt := h.cfg.Runtime

	o, err := engine.New(team, env, func(o *engine.Options) {
		o.MaxTurns = rt.MaxTurns
		o.MaxReprompts = rt.Reprompts()
		o.ForceDiagnosisOnFinalTurn = rt.ForceDiagnosisOnFinalTurn
		o.Timeout = rt.CaseTimeout
		o.Experiment = r.Experiment
		o.RunID = runID
		o.Callbacks = callbacks
		o.Logger = logger
	})
	if err != nil {
		return runner.Result{}, err
	}

	sink, err := transcript.OpenFileStore(filepath.Join(logDir, r.Experiment), func(o *transcript.FileStoreOptions) {
		o.RunID = runID
	})
	if err != nil {
		return runner.Result{}, err
	}
	defer sink.Close()

	observers := h.observers
	var recorder *metrics.Recorder
	if r.MetricsFile != "" {
		recorder = metrics.NewRecorder(map[string]string{"experiment": r.Experiment})
		observers = append(append([]runner.Observer(nil), observers...), recorder)
	}

	rn := runner.New(o, func(opts *runner.Options) {
		opts.Concurrency = rt.Concurrency
		opts.Sink = sink
		opts.ProgressEvery = rt.ProgressEvery
		opts.Observers = observers
		opts.Logger = logger
	})

	logger.Info("clinagents.run",
		"experiment", r.Experiment,
		"mode", o.Mode(),
		"cases", ds.Len(),
		"transcripts", sink.Path(),
	)

	res, runErr := rn.Run(ctx, runID, ds.Cases())

	if recorder != nil {
		if err := recorder.WriteTextfile(r.MetricsFile); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	return res, runErr
}

func (h *Harness) runLogger(runID string) logging.Logger {
	if rl, ok := h.logger.(*logging.RunLogger); ok {
		return rl.WithRun(runID)
	}
	return h.logger
}

func (h *Harness) dataset(r Run) (*environment.Dataset, error) {
	ds := r.Dataset
	if ds == nil {
		if r.Split == "" {
			r.Split = "test"
		}
		loaded, err := environment.LoadSplit(h.cfg.Paths.DataDir, r.Split)
		if err != nil {
			return nil, err
		}
		ds = loaded
	}

	if len(r.CaseIDs) > 0 {
		sub, err := ds.Subset(r.CaseIDs...)
		if err != nil {
			return nil, core.NewSetupFault("dataset", err)
		}
		ds = sub
	}

	if ds.Len() == 0 {
		return nil, &core.SetupFault{Component: "dataset", Problems: []string{"no cases selected"}}
	}

	return ds, nil
}

func (h *Harness) environment(ds *environment.Dataset, matcherPlatform string) (*environment.Environment, error) {
	var selector environment.Selector = environment.NewFuzzySelector()

	if h.cfg.Runtime.Selector == config.SelectorModel {
		if matcherPlatform == "" {
			return nil, &core.SetupFault{Component: "environment", Problems: []string{"selector \"model\" needs a matcher platform"}}
		}
		client, err := h.Client(matcherPlatform)
		if err != nil {
			return nil, err
		}
		selector = environment.NewModelSelector(client, func(o *environment.ModelSelectorOptions) {
			o.Retry = h.cfg.Retry.Policy()
			o.Logger = h.logger
		})
	}

	return environment.New(ds, func(o *environment.Options) {
		o.Selector = selector
		o.Logger = h.logger
	}), nil
}

// EvaluateRun selects the transcripts to score and where to put the scores.
type EvaluateRun struct {
	// LogDir holds the transcripts (*.jsonl) of one experiment.
	LogDir string
	// Experiment defaults to the experiment recorded in the transcripts.
	Experiment string
	// Matcher is the platform of the model comparator. Empty uses the
	// static catalog comparator.
	Matcher string
	// DBPath and CSVPath receive the scores. Both optional.
	DBPath  string
	CSVPath string
}

// Evaluate scores every transcript in e.LogDir.
func (h *Harness) Evaluate(ctx context.Context, e EvaluateRun) ([]evaluation.ScoreRecord, evaluation.Summary, error) {
	trs, err := transcript.LoadDir(e.LogDir)
	if err != nil {
		return nil, evaluation.Summary{}, err
	}

	if e.Experiment == "" {
		e.Experiment = trs[0].Experiment
	}
	if e.Experiment == "" {
		e.Experiment = filepath.Base(filepath.Clean(e.LogDir))
	}

	var cmp matcher.Comparator = matcher.NewStatic()
	if e.Matcher != "" {
		client, err := h.Client(e.Matcher)
		if err != nil {
			return nil, evaluation.Summary{}, err
		}
		cmp = matcher.NewModel(client, func(o *matcher.ModelOptions) {
			o.Retry = h.cfg.Retry.Policy()
			o.Logger = h.logger
		})
	}

	var fees *clinical.FeeSchedule
	if path := h.cfg.Paths.FeeSchedule; path != "" {
		fees, err = clinical.LoadFeeSchedule(path)
		if err != nil {
			return nil, evaluation.Summary{}, core.NewSetupFault("fee_schedule", err)
		}
	}

	scorer := evaluation.New(cmp, func(o *evaluation.Options) {
		o.CostTable = h.cfg.CostTable
		o.Fees = fees
		o.Concurrency = h.cfg.Runtime.Concurrency
		o.Logger = h.logger
	})

	records, sum, err := scorer.EvaluateAll(ctx, e.Experiment, trs)
	if err != nil {
		return nil, evaluation.Summary{}, err
	}

	if e.DBPath != "" {
		if err := saveScores(ctx, e.DBPath, e.Experiment, records, sum); err != nil {
			return records, sum, err
		}
	}

	if e.CSVPath != "" {
		if err := store.ExportCSV(e.CSVPath, records); err != nil {
			return records, sum, err
		}
	}

	return records, sum, nil
}

func saveScores(ctx context.Context, path, experiment string, records []evaluation.ScoreRecord, sum evaluation.Summary) error {
	db, err := store.Open(path)
	if err != nil {
		return core.NewSetupFault("score_db", err)
	}
	defer db.Close()

	if err := db.SaveRecords(ctx, experiment, records); err != nil {
		return err
	}

	return db.SaveSummary(ctx, sum)
}
