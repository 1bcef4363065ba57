package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrUnboundVariable is returned when an expression or action references
	// a name not present in the binding context.
	ErrUnboundVariable = errors.New("variable not found in bindings")

	// ErrTypeMismatch is returned when an operator is applied to
	// incompatible types.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrNumeric is returned for division by zero and numeric overflow.
	ErrNumeric = errors.New("numeric error")

	// ErrValidationFailed is returned when an action rejects its inputs
	// before execution.
	ErrValidationFailed = errors.New("validation failed")

	// ErrExecutionFailed names a generic action execution failure. The
	// actions in this package report their own wrapped errors and do not
	// return it.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrMalformedPattern names a pattern the parser contract forbids, such
	// as an empty label where one is required. No code path in this package
	// returns it; the parser reports such input as a *ParseError.
	ErrMalformedPattern = errors.New("malformed pattern")

	// ErrNotReentrant is returned when an action attempts to invoke the
	// engine from within rule execution.
	ErrNotReentrant = errors.New("engine is not reentrant")
)

// ParseError reports ill-formed rule text with the byte offset where
// parsing failed.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Msg)
}
