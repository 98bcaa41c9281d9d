package model

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput is returned when the seed cannot be decoded.
	ErrMalformedInput = errors.New("malformed input")
	// ErrDanglingTarget is returned when a rewriting pass finds no marker for a target.
	ErrDanglingTarget = errors.New("dangling target")
	// ErrOracleTimeout is returned when a candidate does not finish in time.
	ErrOracleTimeout = errors.New("oracle timeout")
	// ErrOracleUnavailable is returned when the oracle cannot be reached or started.
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrNoLiveMethod is returned when no method executed in the current trace.
	ErrNoLiveMethod = errors.New("no live method")
	// ErrNothingToRemove is returned when a removal is drawn for a method without mutations.
	ErrNothingToRemove = errors.New("nothing to remove")
)

// MalformedInputError reports a seed that failed structural decoding.
type MalformedInputError struct {
	Path string
	Err  error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input %s: %v", e.Path, e.Err)
}

func (e *MalformedInputError) Unwrap() []error {
	return []error{ErrMalformedInput, e.Err}
}

// DanglingTargetError reports a target identifier without a code position
// marker in the method being rewritten.
type DanglingTargetError struct {
	Method     string
	Target     string
	SequenceID int
}

func (e *DanglingTargetError) Error() string {
	return fmt.Sprintf("mutation #%d in %s: no marker for target %s", e.SequenceID, e.Method, e.Target)
}

func (e *DanglingTargetError) Unwrap() error {
	return ErrDanglingTarget
}
