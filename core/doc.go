// Package core provides the foundational domain types shared by every part of
// the clinical agent harness:
//
//   - PatientCase and Finding (what the case environment reveals on request)
//   - ActionRequest (the closed set of structured actions an agent may emit)
//   - Turn / ConversationState (the ordered record of one case run)
//   - Transcript (the immutable terminal artifact persisted per case)
//   - Usage / CallRecord (token, call and latency accounting)
//   - the per-case error taxonomy (malformed output, budget exhaustion, setup faults)
//
// The package keeps orchestration, transport and persistence out of scope.
// Everything here is plain data plus small helpers so it can be shared across
// goroutines by value without synchronisation.
package core
