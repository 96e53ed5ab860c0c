package mqtingestor

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure so the dispatch loop can decide what to do with it
type Kind int

const (
	// KindDecode: the payload is not structured data; the message is dropped
	KindDecode Kind = iota
	// KindStore: a store write failed or timed out; the rest of the message is dropped
	KindStore
	// KindInternal: a bug (panic) while handling one message
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindStore:
		return "store"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// StageError is returned by every pipeline stage
type StageError struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// KindOf extracts the Kind of err, treating foreign errors as internal
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}
