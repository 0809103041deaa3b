// Package model defines the provider-agnostic ModelClient contract and the
// helpers every call site composes around it.
//
// Core goals:
//   - One synchronous suspension point per call (Client.Invoke)
//   - Classified failures (*Error) so call sites can tell transient from fatal
//   - Bounded exponential backoff owned by the caller (InvokeWithRetry)
//   - A shared outbound rate limit across all in-flight cases (RateLimited)
//   - Lightweight scripting for tests (ScriptedModel, ClientFunc)
//
// Providers (OpenAI-compatible endpoints, Anthropic) implement Client in the
// sub-packages and never retry on their own.
package model
