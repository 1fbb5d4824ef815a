package graph

import (
	"errors"
	"fmt"
)

// ErrAssertion is matched by every AssertionError.
var ErrAssertion = errors.New("assertion failed")

// AssertionError reports a caller or sequencing bug, such as a message that
// references an entity that was never ingested. The engine panics with it;
// hosts recover it at their top level.
type AssertionError struct {
	Msg string
}

func (e *AssertionError) Error() string { return "assertion failed: " + e.Msg }

func (e *AssertionError) Is(target error) bool { return target == ErrAssertion }

func assertf(format string, args ...any) {
	panic(&AssertionError{Msg: fmt.Sprintf(format, args...)})
}
