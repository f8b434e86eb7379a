// Package bterr provides the error taxonomy shared by every layer of the
// trace-processing core: a fixed set of Kinds, an Actor tag identifying
// who raised the error, and causal chaining that always keeps the
// deepest cause intact.
package bterr

import (
	"errors"
	"fmt"
)

// Kind is a closed set of error categories. Kind is never a free-form
// string: callers switch on it, they don't parse messages.
type Kind string

const (
	KindInvalidArgument Kind = "invalid_argument"
	KindNotFound        Kind = "not_found"
	KindAlreadyExists   Kind = "already_exists"
	KindInvalidState    Kind = "invalid_state"
	KindProtocol        Kind = "protocol"
	KindDecodeMalformed Kind = "decode_malformed"
	KindIO              Kind = "io"
	KindClockOverflow   Kind = "clock_overflow"
	KindNoMatch         Kind = "no_match"
	KindInterrupted     Kind = "interrupted"
	KindAgain           Kind = "again"
	KindOutOfMemory     Kind = "out_of_memory"
	KindUnsupported     Kind = "unsupported"
)

// Actor identifies what layer raised an error, so that rendered causal
// chains can tag each cause line with who raised it.
type Actor string

const (
	ActorUnknown         Actor = "unknown"
	ActorComponent       Actor = "component"
	ActorComponentClass  Actor = "component-class"
	ActorMessageIterator Actor = "message-iterator"
)

// Error is the standard error type for this module. It never chains when
// Kind is Again or Interrupted: those short-circuit straight to the
// sink's caller instead of accumulating context.
type Error struct {
	Kind      Kind
	Actor     Actor
	Component string
	Operation string
	Message   string
	Location  string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Actor, e.Operation, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Actor, e.Operation, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is against a bare Kind sentinel comparison.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New creates a new Error with no cause.
func New(kind Kind, actor Actor, component, operation, message string) *Error {
	return &Error{
		Kind:      kind,
		Actor:     actor,
		Component: component,
		Operation: operation,
		Message:   message,
	}
}

// Wrap prepends context to cause, preserving the deepest cause intact.
// Again and Interrupted are never wrapped: the original short-circuits.
func Wrap(cause error, kind Kind, actor Actor, component, operation, message string) error {
	if cause == nil {
		return New(kind, actor, component, operation, message)
	}
	if k, ok := KindOf(cause); ok && (k == KindAgain || k == KindInterrupted) {
		return cause
	}
	return &Error{
		Kind:      kind,
		Actor:     actor,
		Component: component,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// KindOf extracts the Kind from err, walking the chain, returning false if
// err (or any of its causes) is not one of ours.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsAgain reports whether err is (or wraps) an Again error.
func IsAgain(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindAgain
}

// IsInterrupted reports whether err is (or wraps) an Interrupted error.
func IsInterrupted(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindInterrupted
}

// Again is the sentinel error short-circuiting to the sink's caller when an
// operation could not make progress yet.
func Again(actor Actor, component, operation string) error {
	return New(KindAgain, actor, component, operation, "would block, retry later")
}

// Interrupted is the sentinel error returned when the shared interrupter
// flag is observed set during a blocking operation.
func Interrupted(actor Actor, component, operation string) error {
	return New(KindInterrupted, actor, component, operation, "operation interrupted")
}

// Chain renders the causal chain top-down, one line per cause, each
// tagged with actor/operation, so any caller (tests, logs, a future CLI)
// gets the same canonical form.
func Chain(err error) []string {
	var lines []string
	for err != nil {
		var e *Error
		if errors.As(err, &e) {
			lines = append(lines, fmt.Sprintf("%s (%s): %s", e.Actor, e.Operation, e.Message))
			err = e.Cause
			continue
		}
		lines = append(lines, err.Error())
		break
	}
	return lines
}
