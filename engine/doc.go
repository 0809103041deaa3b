// Package engine implements the orchestrator that plays one patient case
// through a finite state machine.
//
// The Orchestrator owns the conversation of a case run. It asks the active
// agent for an action, resolves information requests against the case
// environment, hands off between roles in multi-agent mode and records the
// single termination reason of the run.
//
// # State Machine
//
//	┌───────────────────────┐  request_finding   ┌───────────────────┐
//	│ awaiting_agent_action │ ─────────────────▶ │ resolving_request │
//	│                       │ ◀───────────────── │                   │
//	└───────────────────────┘  finding_resolved  └───────────────────┘
//	    │ diagnosis / handoff
//	    ▼
//	┌───────────────────────┐  diagnosis_recorded ┌────────────┐
//	│      diagnosing       │ ──────────────────▶ │ terminated │
//	└───────────────────────┘                     └────────────┘
//
// budget_exhausted, timeout and agent_failure lead to terminated from every
// non-terminal state that allows them. The table in fsm.go is the only source
// of legal transitions.
//
// # Turns and Budget
//
// Every accepted action is one turn. Malformed replies are re-prompted inside
// the same turn; the rejected attempts are kept in Turn.Violations and their
// model calls are charged to the transcript. The turn budget bounds the number
// of turns, so a transcript never holds more than MaxTurns turns.
//
// In multi-agent mode the last budgeted turn is reserved for the
// diagnostician. The interpreter runs after a laboratory finding with at least
// one available value, unless only the reserved turn is left.
//
// # Termination
//
//   - diagnosed: a diagnosis (or a treatment in single mode) was recorded
//   - max_turns_exceeded: the budget or the deadline ran out, including
//     exhausted re-prompts on the last budgeted turn
//   - agent_failure: re-prompts or retries exhausted earlier, a fatal model
//     error, an environment error or a failing callback
//
// # Usage
//
//	o, err := engine.NewMulti(gatherer, interpreter, diagnostician, env,
//	    func(o *engine.Options) {
//	        o.MaxTurns = 10
//	        o.Timeout = 5 * time.Minute
//	    })
//	if err != nil {
//	    return err
//	}
//	transcript := o.Run(ctx, patientCase)
//
// Run never returns an error; the transcript carries the outcome. An
// Orchestrator holds no per-case state and may run many cases concurrently.
package engine
