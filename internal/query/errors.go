package query

import (
	"errors"
	"fmt"
)

var (
	ErrQueryState       = errors.New("query: invalid state")
	ErrEngine           = errors.New("query: engine error")
	ErrQueryStalled     = errors.New("query: stalled with no progress")
	ErrInvalidLayout    = errors.New("query: invalid layout")
	ErrFragmentNotFound = errors.New("query: fragment not found")
)

// EngineError wraps a failure reported by the storage engine. It matches
// both ErrEngine and the underlying cause under errors.Is.
type EngineError struct {
	Op  string
	URI string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("query: engine error during %s on %s: %v", e.Op, e.URI, e.Err)
}

func (e *EngineError) Unwrap() []error { return []error{ErrEngine, e.Err} }
