// Package runner executes a batch of independent case runs with bounded
// concurrency.
//
// Each case gets its own orchestrator run; turns inside a case stay strictly
// sequential. Completion order is unspecified, but Result.Transcripts keeps
// input order, and with deterministic models the transcripts do not depend on
// the concurrency width.
//
// # Responsibilities
//   - bounded worker pool (errgroup with SetLimit)
//   - failure containment: a panic becomes an agent_failure transcript and
//     never cancels sibling cases
//   - persistence: transcripts go to the configured transcript.Sink as soon as
//     their case finishes
//   - progress logging and observers (metrics)
//   - cancellation of a whole batch via Cancel
//
// Per-case wall-clock limits and turn budgets belong to the orchestrator.
// Outbound rate limits are shared by wrapping every model client in one
// model.RateLimited before agents are built.
package runner
