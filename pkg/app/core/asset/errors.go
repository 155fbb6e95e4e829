package asset

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition is the root of every violated arithmetic precondition
	ErrPrecondition = errors.New("precondition violated")
	ErrInvalidPrice = errors.New("invalid price")
	ErrInvalidFeed  = errors.New("invalid price feed")
	ErrParse        = errors.New("cannot parse asset")
)

// PreconditionError is raised (as a panic) by asset arithmetic when an
// operation is called with arguments it cannot handle: symbol mismatch,
// int64 overflow, division by zero. The engine's transaction wrapper
// recovers it and turns it into an error.
type PreconditionError struct {
	Op  string
	Msg string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

func panicf(op, format string, args ...any) {
	panic(&PreconditionError{Op: op, Msg: fmt.Sprintf(format, args...)})
}

// Assert panics with a PreconditionError when cond is false
func Assert(cond bool, op, format string, args ...any) {
	if !cond {
		panicf(op, format, args...)
	}
}
