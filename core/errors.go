package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedOutput is matched by every *MalformedOutputError.
	ErrMalformedOutput = errors.New("malformed agent output")
	// ErrBudgetExceeded is returned once the turn budget is used up.
	ErrBudgetExceeded = errors.New("turn budget exceeded")
	// ErrCaseNotFound is returned by case environments for unknown case ids.
	ErrCaseNotFound = errors.New("case not found")
	// ErrSetupFault is matched by every *SetupFault.
	ErrSetupFault = errors.New("setup fault")
)

// MalformedOutputError reports agent output that does not parse into an
// action the role may emit.
type MalformedOutputError struct {
	Role   Role
	Reason string
	Raw    string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrMalformedOutput, e.Role, e.Reason)
}

// Is lets errors.Is match ErrMalformedOutput.
func (e *MalformedOutputError) Is(target error) bool { return target == ErrMalformedOutput }

// NewMalformedOutputError builds a MalformedOutputError.
func NewMalformedOutputError(role Role, raw, format string, args ...any) *MalformedOutputError {
	return &MalformedOutputError{Role: role, Raw: raw, Reason: fmt.Sprintf(format, args...)}
}

// SetupFault is a process-level configuration or environment problem. It is
// raised before any case runs and aborts the whole run.
type SetupFault struct {
	Component string
	Problems  []string
	Err       error
}

func (e *SetupFault) Error() string {
	var b strings.Builder
	b.WriteString(ErrSetupFault.Error())
	if e.Component != "" {
		b.WriteString(" (")
		b.WriteString(e.Component)
		b.WriteString(")")
	}
	if len(e.Problems) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Problems, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is lets errors.Is match ErrSetupFault.
func (e *SetupFault) Is(target error) bool { return target == ErrSetupFault }

// Unwrap returns the underlying cause.
func (e *SetupFault) Unwrap() error { return e.Err }

// NewSetupFault wraps err as a SetupFault of the given component.
func NewSetupFault(component string, err error) *SetupFault {
	return &SetupFault{Component: component, Err: err}
}
