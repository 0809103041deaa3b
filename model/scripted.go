package model

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/clinagents/core"
)

// ErrScriptExhausted is returned by ScriptedModel when nothing is left to replay.
var ErrScriptExhausted = errors.New("scripted model: script exhausted")

// Step is one canned reply of a ScriptedModel: either Text or Err.
type Step struct {
	Text  string
	Err   error
	Usage core.Usage
}

// ScriptedModel is a lightweight in-memory Client useful for tests & examples.
// Replies are served in order from the script, then from prompts registered
// with AddResponse (keyed by the last user message), then from the fallback.
type ScriptedModel struct {
	info      Info
	mu        sync.Mutex
	script    []Step
	responses map[string]string
	fallback  func(Request) (Response, error)
	calls     []Request
}

// NewScriptedModel constructs an empty ScriptedModel.
func NewScriptedModel(name string) *ScriptedModel {
	return &ScriptedModel{
		info:      Info{Name: name, Provider: "scripted"},
		responses: make(map[string]string),
	}
}

// Enqueue appends replies to the script.
func (m *ScriptedModel) Enqueue(steps ...Step) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, steps...)
	return m
}

// EnqueueText appends plain text replies to the script.
func (m *ScriptedModel) EnqueueText(texts ...string) *ScriptedModel {
	steps := make([]Step, len(texts))
	for i, t := range texts {
		steps[i] = Step{Text: t, Usage: core.Usage{InputTokens: 10, OutputTokens: 5}}
	}
	return m.Enqueue(steps...)
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *ScriptedModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// SetFallback installs fn for requests that match nothing else.
func (m *ScriptedModel) SetFallback(fn func(Request) (Response, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = fn
}

// Invoke implements Client.
func (m *ScriptedModel) Invoke(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if len(m.script) > 0 {
		step := m.script[0]
		m.script = m.script[1:]
		if step.Err != nil {
			return Response{}, step.Err
		}
		return Response{Text: step.Text, Model: m.info.Name, Usage: step.Usage}, nil
	}

	if text, ok := m.responses[req.LastUserText()]; ok {
		return Response{Text: text, Model: m.info.Name}, nil
	}

	if m.fallback != nil {
		return m.fallback(req)
	}

	return Response{}, Fatal(m.info.Provider, ErrScriptExhausted)
}

// Calls returns a copy of every request received so far.
func (m *ScriptedModel) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Remaining returns how many scripted replies are left.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.script)
}

// Info implements Client.
func (m *ScriptedModel) Info() Info { return m.info }
