package engine

import (
	"errors"
	"fmt"
)

// ErrLoopStopped is returned when work is posted to a loop that no longer
// accepts tasks.
var ErrLoopStopped = errors.New("event loop stopped")

// PanicError describes a task that panicked on the loop.
// It is logged, never returned to the poster.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("loop task panicked: %v", e.Value)
}
