package engine

import (
	"errors"
	"fmt"

	"github.com/kingrea/agent-collab/internal/workflow"
)

var (
	// ErrInvalidTransition matches every *InvalidTransitionError.
	ErrInvalidTransition = errors.New("engine: invalid transition")
	// ErrBusy is returned when an operation starts while another is running.
	ErrBusy = errors.New("engine: another operation is in progress")
	// ErrIterationBudget is returned by the review loop when the configured
	// number of review rounds ran out before approval.
	ErrIterationBudget = errors.New("engine: iteration budget reached")
)

// InvalidTransitionError reports a phase change the transition table forbids.
type InvalidTransitionError struct {
	From workflow.Phase
	To   workflow.Phase
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("engine: invalid transition %s -> %s", e.From.Key(), e.To.Key())
}

// Is lets errors.Is(err, ErrInvalidTransition) match.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
