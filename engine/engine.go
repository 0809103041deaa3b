package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/clinagents/agent"
	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/environment"
	"github.com/hupe1980/clinagents/logging"
)

// ErrRepromptsExhausted is wrapped when an agent kept producing malformed
// output after every re-prompt.
var ErrRepromptsExhausted = errors.New("re-prompts exhausted")

// Options configure an Orchestrator.
type Options struct {
	// MaxTurns bounds the number of turns of one case run. 0 means unlimited.
	MaxTurns int
	// MaxReprompts is the number of extra attempts after a malformed reply.
	MaxReprompts int
	// ForceDiagnosisOnFinalTurn asks the single agent for a diagnosis on its
	// last budgeted turn.
	ForceDiagnosisOnFinalTurn bool
	// Timeout is the wall-clock limit of one case run. 0 disables it.
	Timeout time.Duration
	// Experiment and RunID are copied onto every transcript.
	Experiment string
	RunID      string
	Callbacks  *CallbackManager
	Logger     logging.Logger
	// Now is the clock used for StartedAt and Duration.
	Now func() time.Time
}

// DefaultOptions returns 10 turns, 2 re-prompts and no timeout.
func DefaultOptions() Options {
	return Options{
		MaxTurns:     10,
		MaxReprompts: 2,
		Logger:       logging.NoOpLogger{},
		Now:          time.Now,
	}
}

// Team is the set of agents a run is played by. Single mode needs only
// Clinician; multi mode needs Gatherer and Diagnostician, and Interpreter
// when lab results should be interpreted.
type Team struct {
	Clinician     agent.Agent
	Gatherer      agent.Agent
	Interpreter   agent.Agent
	Diagnostician agent.Agent
}

// Mode returns the mode the team is configured for.
func (t Team) Mode() core.Mode {
	if t.Clinician != nil {
		return core.ModeSingle
	}
	return core.ModeMulti
}

func (t Team) validate() error {
	var problems []string

	switch {
	case t.Clinician != nil && (t.Gatherer != nil || t.Interpreter != nil || t.Diagnostician != nil):
		problems = append(problems, "a team is either a single clinician or a multi-agent team, not both")
	case t.Clinician == nil:
		if t.Gatherer == nil {
			problems = append(problems, "multi-agent team needs an information gatherer")
		}
		if t.Diagnostician == nil {
			problems = append(problems, "multi-agent team needs a diagnostician")
		}
	}

	if len(problems) > 0 {
		return &core.SetupFault{Component: "engine", Problems: problems}
	}

	return nil
}

func (t Team) agentFor(role core.Role) agent.Agent {
	switch role {
	case core.RoleClinician:
		return t.Clinician
	case core.RoleGatherer:
		return t.Gatherer
	case core.RoleInterpreter:
		return t.Interpreter
	case core.RoleDiagnostician:
		return t.Diagnostician
	}
	return nil
}

func (t Team) models() map[core.Role]string {
	out := map[core.Role]string{}
	for _, a := range []agent.Agent{t.Clinician, t.Gatherer, t.Interpreter, t.Diagnostician} {
		if m, ok := a.(interface{ Model() string }); ok {
			out[a.Role()] = m.Model()
		}
	}
	return out
}

// Orchestrator drives one case at a time through the state machine
//
//	awaiting_agent_action -> resolving_request -> awaiting_agent_action ... -> diagnosing -> terminated
//
// It holds no per-case state; Run may be called concurrently for different
// cases.
type Orchestrator struct {
	team Team
	mode core.Mode
	env  environment.CaseEnvironment
	opts Options
}

// New creates an orchestrator for team. An inconsistent team is a SetupFault.
func New(team Team, env environment.CaseEnvironment, optFns ...func(o *Options)) (*Orchestrator, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := team.validate(); err != nil {
		return nil, err
	}
	if env == nil {
		return nil, &core.SetupFault{Component: "engine", Problems: []string{"case environment is required"}}
	}

	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxReprompts < 0 {
		opts.MaxReprompts = 0
	}

	return &Orchestrator{team: team, mode: team.Mode(), env: env, opts: opts}, nil
}

// NewSingle creates a single-agent orchestrator.
func NewSingle(clinician agent.Agent, env environment.CaseEnvironment, optFns ...func(o *Options)) (*Orchestrator, error) {
	return New(Team{Clinician: clinician}, env, optFns...)
}

// NewMulti creates a multi-agent orchestrator. interpreter may be nil.
func NewMulti(gatherer, interpreter, diagnostician agent.Agent, env environment.CaseEnvironment, optFns ...func(o *Options)) (*Orchestrator, error) {
	return New(Team{Gatherer: gatherer, Interpreter: interpreter, Diagnostician: diagnostician}, env, optFns...)
}

// Mode returns single or multi.
func (o *Orchestrator) Mode() core.Mode { return o.mode }

// Models returns the model name per role.
func (o *Orchestrator) Models() map[core.Role]string { return o.team.models() }

// Run plays one case to termination and returns its transcript. Failures
// never escape as errors; they end the run with a termination reason.
func (o *Orchestrator) Run(ctx context.Context, c core.PatientCase) core.Transcript {
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	r := &run{
		o:      o,
		log:    logging.ForCase(o.opts.Logger, c.ID),
		state:  core.NewConversationState(c),
		budget: core.NewTurnBudget(o.opts.MaxTurns),
		fsm:    StateAwaitingAction,
		start:  o.opts.Now(),
		tr: core.Transcript{
			ID:          core.NewID(),
			RunID:       o.opts.RunID,
			Experiment:  o.opts.Experiment,
			CaseID:      c.ID,
			Mode:        o.mode,
			Models:      o.team.models(),
			GroundTruth: c.GroundTruth,
			History:     c.History,
		},
	}

	r.log.Debug("engine.run.start", "mode", o.mode, "max_turns", o.opts.MaxTurns)

	for r.fsm != StateTerminated {
		switch r.fsm {
		case StateAwaitingAction:
			r.awaitAction(ctx)
		case StateResolving:
			r.resolve(ctx)
		case StateDiagnosing:
			r.diagnose(ctx)
		}
	}

	return r.finish(ctx)
}

// run is the mutable state of one case run.
type run struct {
	o      *Orchestrator
	log    logging.Logger
	state  *core.ConversationState
	budget *core.TurnBudget
	fsm    State
	start  time.Time
	tr     core.Transcript

	pending   *core.Turn
	interpret bool
	last      *core.EmitDiagnosis
	treatment string
}

func (r *run) awaitAction(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		r.fire(ctx, NewEvent(EventTimeout), err)
		return
	}
	if r.budget.Exhausted() {
		r.fire(ctx, NewEvent(EventBudgetExhausted), nil)
		return
	}

	finalSlot := r.budget.Remaining() == 1

	role := core.RoleClinician
	if r.o.mode == core.ModeMulti {
		if finalSlot {
			r.fire(ctx, NewEvent(EventHandoff), nil)
			return
		}
		role = core.RoleGatherer
		if r.interpret {
			role = core.RoleInterpreter
		}
	}

	force := r.o.mode == core.ModeSingle && finalSlot && r.o.opts.ForceDiagnosisOnFinalTurn

	turn, err := r.propose(ctx, role, force)
	if err != nil {
		r.fail(ctx, err, finalSlot)
		return
	}

	ev := actionEvent(turn.Action, r.o.mode, role)
	if ev == EventRequestFinding {
		r.pending = &turn
		r.fire(ctx, NewEvent(ev), nil)
		return
	}

	if role == core.RoleInterpreter {
		r.interpret = false
	}

	if err := r.commit(ctx, turn); err != nil {
		r.fire(ctx, NewEvent(EventAgentFailure), err)
		return
	}

	r.fire(ctx, NewEvent(ev), nil)
}

func (r *run) resolve(ctx context.Context) {
	turn := r.pending
	r.pending = nil

	rf := turn.Action.(core.RequestFinding)

	f, err := r.o.env.Resolve(ctx, r.state.CaseID, rf.Kind, rf.Parameters)
	if err != nil {
		if ctx.Err() != nil {
			r.fire(ctx, NewEvent(EventTimeout), err)
			return
		}
		r.fire(ctx, NewEvent(EventAgentFailure), fmt.Errorf("resolve %s: %w", rf.Kind, err))
		return
	}

	turn.Finding = &f
	if err := r.commit(ctx, *turn); err != nil {
		r.fire(ctx, NewEvent(EventAgentFailure), err)
		return
	}

	if r.o.mode == core.ModeMulti && r.o.team.Interpreter != nil && f.Kind == core.KindLaboratory && f.Available() > 0 {
		r.interpret = true
	}

	r.fire(ctx, NewEvent(EventFindingResolved), nil)
}

func (r *run) diagnose(ctx context.Context) {
	if r.o.mode == core.ModeSingle {
		r.fire(ctx, NewEvent(EventDiagnosisRecorded), nil)
		return
	}

	if err := ctx.Err(); err != nil {
		r.fire(ctx, NewEvent(EventTimeout), err)
		return
	}
	if r.budget.Exhausted() {
		r.fire(ctx, NewEvent(EventBudgetExhausted), nil)
		return
	}

	turn, err := r.propose(ctx, core.RoleDiagnostician, false)
	if err != nil {
		r.fail(ctx, err, r.budget.Remaining() == 1)
		return
	}

	if err := r.commit(ctx, turn); err != nil {
		r.fire(ctx, NewEvent(EventAgentFailure), err)
		return
	}

	r.fire(ctx, NewEvent(EventDiagnosisRecorded), nil)
}

// propose asks the agent of role for one action, re-prompting on malformed
// output. Rejected attempts stay inside the returned turn.
func (r *run) propose(ctx context.Context, role core.Role, force bool) (core.Turn, error) {
	a := r.o.team.agentFor(role)
	turn := core.Turn{Role: role}

	var (
		rejected []agent.Rejection
		lastErr  error
	)

	for attempt := 0; attempt <= r.o.opts.MaxReprompts; attempt++ {
		in := agent.Input{
			State:          r.state.Snapshot(),
			Remaining:      r.budget.Remaining(),
			ForceDiagnosis: force,
			Rejected:       rejected,
		}

		p, err := a.ProposeAction(ctx, in)
		turn.Attempts++
		turn.Usage = turn.Usage.Add(p.Usage)
		r.tr.Calls = append(r.tr.Calls, p.Calls...)

		if err == nil {
			turn.Action = p.Action
			turn.Interpretation = p.Interpretation
			turn.Raw = p.Raw
			return turn, nil
		}

		var mErr *core.MalformedOutputError
		if !errors.As(err, &mErr) {
			r.tr.Rejected = turn.Violations
			return turn, err
		}

		lastErr = err
		turn.Violations = append(turn.Violations, mErr.Reason)
		rejected = append(rejected, agent.Rejection{Raw: p.Raw, Reason: mErr.Reason})

		r.log.Warn("engine.reprompt",
			"role", role,
			"attempt", turn.Attempts,
			"reason", mErr.Reason,
		)

		if attempt < r.o.opts.MaxReprompts {
			cc := &CallbackContext{CaseID: r.state.CaseID, Mode: r.o.mode, Role: role, Reason: mErr.Reason}
			if err := r.o.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnReprompt, cc); err != nil {
				r.tr.Rejected = turn.Violations
				return turn, err
			}
		}
	}

	r.tr.Rejected = turn.Violations

	return turn, fmt.Errorf("%w: %s after %d attempts: %w", ErrRepromptsExhausted, role, turn.Attempts, lastErr)
}

// fail ends the run after propose failed. A deadline counts as the budget
// running out; so do exhausted re-prompts on the last budgeted turn.
func (r *run) fail(ctx context.Context, err error, finalSlot bool) {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		r.fire(ctx, NewEvent(EventTimeout), err)
	case finalSlot && errors.Is(err, ErrRepromptsExhausted):
		r.fire(ctx, NewEvent(EventBudgetExhausted), err)
	default:
		r.fire(ctx, NewEvent(EventAgentFailure), err)
	}
}

// commit appends a completed turn and charges it to the budget.
func (r *run) commit(ctx context.Context, turn core.Turn) error {
	if err := r.budget.Consume(); err != nil {
		return err
	}

	turn = r.state.Append(turn)

	switch a := turn.Action.(type) {
	case core.EmitDiagnosis:
		r.last = &a
	case core.EmitTreatment:
		r.treatment = a.Text
	}

	r.log.Debug("engine.turn",
		"turn", turn.Index,
		"role", turn.Role,
		"action", actionType(turn.Action),
		"attempts", turn.Attempts,
	)

	cc := &CallbackContext{CaseID: r.state.CaseID, Mode: r.o.mode, Role: turn.Role, Turn: &turn}

	return r.o.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnTurn, cc)
}

// fire applies one transition. Terminal events record the termination
// reason and, if given, the cause.
func (r *run) fire(ctx context.Context, ev Event, cause error) {
	next, err := Transition(r.fsm, ev.Kind)
	if err != nil {
		r.fsm = StateTerminated
		r.tr.Termination = core.TerminationAgentFailure
		r.tr.Error = err.Error()
		return
	}

	from := r.fsm
	r.fsm = next

	if next == StateTerminated {
		r.tr.Termination = ev.Termination
		if cause != nil {
			r.tr.Error = cause.Error()
		}
	}

	r.log.Debug("engine.transition", "from", from, "to", next, "event", ev.Kind)

	cc := &CallbackContext{CaseID: r.state.CaseID, Mode: r.o.mode, From: from, To: next, Event: ev}
	if err := r.o.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnTransition, cc); err != nil && next != StateTerminated {
		r.fire(ctx, NewEvent(EventAgentFailure), err)
	}
}

func (r *run) finish(ctx context.Context) core.Transcript {
	tr := r.tr
	tr.Turns = r.state.Turns
	tr.StartedAt = r.start
	tr.Duration = r.o.opts.Now().Sub(r.start)

	if r.last != nil {
		tr.Diagnosis = r.last.Text
		tr.Ranked = r.last.Ranked
		tr.Treatment = r.last.Treatment
	}
	if tr.Treatment == "" {
		tr.Treatment = r.treatment
	}

	for _, c := range tr.Calls {
		tr.Usage = tr.Usage.Add(c.Usage)
	}

	cc := &CallbackContext{CaseID: tr.CaseID, Mode: tr.Mode, Transcript: &tr}
	if err := r.o.opts.Callbacks.ExecuteCallbacks(context.WithoutCancel(ctx), CallbackOnTermination, cc); err != nil {
		r.log.Warn("engine.callback.error", "callback", CallbackOnTermination, "error", err)
	}

	r.log.Debug("engine.run.done",
		"termination", tr.Termination,
		"turns", len(tr.Turns),
		"tokens", tr.Usage.TotalTokens(),
	)

	return tr
}
