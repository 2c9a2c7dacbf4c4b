package rti

import (
	"errors"
	"fmt"

	"github.com/san-kum/rtimpc/internal/horizon"
)

var (
	// ErrConfiguration is shared with the horizon buffer so callers can
	// match construction failures from either layer.
	ErrConfiguration = horizon.ErrConfiguration

	// ErrSequence indicates a phase transition the state machine does not
	// allow, such as feedback without a matching preparation.
	ErrSequence = errors.New("rti: operation out of sequence")
)

type SequenceError struct {
	Op    string
	Phase Phase
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("rti: %s called in phase %s; prepare must run first", e.Op, e.Phase)
}

func (e *SequenceError) Unwrap() error {
	return ErrSequence
}
