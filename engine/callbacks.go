package engine

import (
	"context"

	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/logging"
)

// CallbackType defines the lifecycle points of a case run where callbacks
// are executed.
//
// Available callback types:
//   - OnTransition: after every state transition
//   - OnTurn: after a turn is appended to the conversation
//   - OnReprompt: after a reply was rejected and the agent is asked again
//   - OnTermination: once the transcript is final
//
// Callbacks are executed synchronously. An error returned from an
// OnTransition, OnTurn or OnReprompt callback ends the run as an agent
// failure; errors from OnTermination are logged.
type CallbackType string

const (
	CallbackOnTransition  CallbackType = "on_transition"
	CallbackOnTurn        CallbackType = "on_turn"
	CallbackOnReprompt    CallbackType = "on_reprompt"
	CallbackOnTermination CallbackType = "on_termination"
)

// CallbackContext carries what a callback may inspect. Fields not relevant
// to the callback type are zero.
type CallbackContext struct {
	CallbackType CallbackType
	CaseID       string
	Mode         core.Mode

	// OnTransition
	From  State
	To    State
	Event Event

	// OnTurn and OnReprompt
	Role   core.Role
	Turn   *core.Turn
	Reason string

	// OnTermination
	Transcript *core.Transcript
}

// Callback is an execution lifecycle hook.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is a registry of callbacks by type.
//
// Callbacks are executed in registration order; the first error stops the
// remaining callbacks of that type. Register callbacks before sharing the
// manager between goroutines; execution is then safe for concurrent use.
type CallbackManager struct {
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates a new callback manager instance.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback to the manager for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}

	callbacks, exists := cm.callbacks[callbackType]
	if !exists {
		return nil // No callbacks registered for this type
	}

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback logs lifecycle events at debug level.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logging.OrNoOp(logger),
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the event with the fields relevant to its type.
func (c *LoggingCallback) Execute(_ context.Context, cc *CallbackContext) error {
	args := []any{"case_id", cc.CaseID, "mode", cc.Mode}

	switch c.callbackType {
	case CallbackOnTransition:
		args = append(args, "from", cc.From, "to", cc.To, "event", cc.Event.Kind)
	case CallbackOnTurn:
		if cc.Turn != nil {
			args = append(args, "role", cc.Turn.Role, "turn", cc.Turn.Index, "action", actionType(cc.Turn.Action), "attempts", cc.Turn.Attempts)
		}
	case CallbackOnReprompt:
		args = append(args, "role", cc.Role, "reason", cc.Reason)
	case CallbackOnTermination:
		if cc.Transcript != nil {
			args = append(args, "termination", cc.Transcript.Termination, "turns", len(cc.Transcript.Turns))
		}
	}

	c.logger.Debug("engine."+string(c.callbackType), args...)

	return nil
}

func actionType(a core.ActionRequest) core.ActionType {
	if a == nil {
		return ""
	}
	return a.Type()
}
