package model

import (
	"context"
	"strings"

	"github.com/hupe1980/clinagents/core"
)

// Message is one chat message sent to a model.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// User builds a user message.
func User(text string) Message { return Message{Role: "user", Content: text} }

// Assistant builds an assistant message.
func Assistant(text string) Message { return Message{Role: "assistant", Content: text} }

// Request captures the normalized model input produced by agents.
type Request struct {
	Role        core.Role `json:"role"`          // Agent role issuing the call
	System      string    `json:"system"`        // System instructions
	Messages    []Message `json:"messages"`      // Conversation in chronological order
	Temperature *float64  `json:"temperature"`   // Overrides the client default when set
	MaxTokens   int       `json:"max_tokens"`    // Overrides the client default when > 0
	Tag         string    `json:"tag,omitempty"` // Free-form label for logging
}

// LastUserText returns the content of the last user message.
func (r Request) LastUserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Transcript flattens system and messages into one string. Used by scripted
// models and memo keys.
func (r Request) Transcript() string {
	var b strings.Builder
	b.WriteString(r.System)
	for _, m := range r.Messages {
		b.WriteString("\n[")
		b.WriteString(m.Role)
		b.WriteString("] ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// Float is a helper for Request.Temperature.
func Float(f float64) *float64 { return &f }

// Response is the raw text of one completion plus its token usage.
type Response struct {
	Text         string     `json:"text"`
	Model        string     `json:"model,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        core.Usage `json:"usage"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "scripted", ...
}

// Client is the ModelClient contract: one synchronous completion per call.
// Implementations do not retry; callers wrap calls with InvokeWithRetry.
// Failures are returned as *Error carrying the transient/fatal classification.
type Client interface {
	Invoke(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc struct {
	info Info
	fn   func(ctx context.Context, req Request) (Response, error)
}

// NewClientFunc wraps fn as a Client named name.
func NewClientFunc(name string, fn func(ctx context.Context, req Request) (Response, error)) *ClientFunc {
	return &ClientFunc{info: Info{Name: name, Provider: "func"}, fn: fn}
}

// Invoke implements Client.
func (c *ClientFunc) Invoke(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	return c.fn(ctx, req)
}

// Info implements Client.
func (c *ClientFunc) Info() Info { return c.info }
