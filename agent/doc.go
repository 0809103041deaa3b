// Package agent contains the clinical agent roles and the parser that turns
// their free-form replies into structured actions. The package focuses on
// three concerns:
//
//  1. The Agent contract: one call, one proposed core.ActionRequest
//  2. Model-backed role agents (Clinician, Gatherer, Interpreter, Diagnostician)
//  3. Output parsing (Thought / Action / Action Input, Lab Interpretation JSON,
//     ranked Final Diagnosis plus Treatment)
//
// Design principles:
//   - Agents are stateless; the conversation is passed in on every call
//   - Re-prompting is the caller's decision; agents only report malformed output
//   - Transient model errors are retried at the call site via model.InvokeWithRetry
//   - Prompts are templates (text/template) and are not part of the contract
//
// The package keeps sequencing, budgets and termination in the engine package.
package agent
