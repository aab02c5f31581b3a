package core

import (
	"errors"
	"fmt"
)

var (
	// ErrContractViolation is returned when the caller breaks the binding
	// contract of the bound pipeline. The current call is aborted.
	ErrContractViolation = errors.New("contract violation")
	// ErrNativeAPIFailure is returned when the native graphics API rejects a request.
	ErrNativeAPIFailure = errors.New("native api failure")
	// ErrStaleBinding is returned by the debug verification pass when the
	// committed-state cache disagrees with the native context.
	ErrStaleBinding = errors.New("stale binding")
	ErrUnknown      = errors.New("unknown")
)

type ErrorKind uint8

const (
	ErrorKindContractViolation ErrorKind = iota
	ErrorKindNativeAPIFailure
	ErrorKindStaleBinding
)

func (k ErrorKind) sentinel() error {
	switch k {
	case ErrorKindContractViolation:
		return ErrContractViolation
	case ErrorKindNativeAPIFailure:
		return ErrNativeAPIFailure
	case ErrorKindStaleBinding:
		return ErrStaleBinding
	}
	return ErrUnknown
}

// BindingError carries where a binding failure happened. It unwraps to one of
// the sentinel errors above and, for native failures, to the backend error.
type BindingError struct {
	Kind    ErrorKind
	Context string
	Op      string
	Stage   string
	// Slot is -1 when the failure is not tied to a slot.
	Slot int
	Msg  string
	Err  error
}

func (e *BindingError) Error() string {
	s := fmt.Sprintf("%s: %s", e.Op, e.Kind.sentinel())
	if e.Context != "" {
		s = fmt.Sprintf("[%s] %s", e.Context, s)
	}
	switch {
	case e.Stage != "" && e.Slot >= 0:
		s += fmt.Sprintf(" (stage %s, slot %d)", e.Stage, e.Slot)
	case e.Stage != "":
		s += fmt.Sprintf(" (stage %s)", e.Stage)
	case e.Slot >= 0:
		s += fmt.Sprintf(" (slot %d)", e.Slot)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *BindingError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}
	return []error{e.Kind.sentinel()}
}

// ContractViolation builds a ContractViolation error for op.
func ContractViolation(op string, format string, args ...interface{}) *BindingError {
	return &BindingError{
		Kind: ErrorKindContractViolation,
		Op:   op,
		Slot: -1,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// NativeFailure wraps a backend error as a NativeAPIFailure.
func NativeFailure(op string, err error) *BindingError {
	return &BindingError{
		Kind: ErrorKindNativeAPIFailure,
		Op:   op,
		Slot: -1,
		Err:  err,
	}
}

// StaleBinding builds a StaleBinding error for op.
func StaleBinding(op string, format string, args ...interface{}) *BindingError {
	return &BindingError{
		Kind: ErrorKindStaleBinding,
		Op:   op,
		Slot: -1,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// At attaches a stage/slot location to the error.
func (e *BindingError) At(stage fmt.Stringer, slot int) *BindingError {
	e.Stage = stage.String()
	e.Slot = slot
	return e
}

// AtSlot attaches a slot that belongs to no shader stage (vertex buffers, render targets).
func (e *BindingError) AtSlot(slot int) *BindingError {
	e.Slot = slot
	return e
}

// In attaches the name of the context that raised the error.
func (e *BindingError) In(context string) *BindingError {
	e.Context = context
	return e
}
