package engine

import (
	"github.com/kingrea/agent-collab/internal/workflow"
)

// Listener observes a controller. Calls happen synchronously on the goroutine
// running the operation, in registration order.
type Listener interface {
	// OnOutput receives each streamed fragment in arrival order.
	OnOutput(fragment string)
	// OnPhaseChange fires once per successful transition, after the new
	// phase has been persisted.
	OnPhaseChange(phase workflow.Phase)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Output      func(fragment string)
	PhaseChange func(phase workflow.Phase)
}

// OnOutput implements Listener.
func (f ListenerFuncs) OnOutput(fragment string) {
	if f.Output != nil {
		f.Output(fragment)
	}
}

// OnPhaseChange implements Listener.
func (f ListenerFuncs) OnPhaseChange(phase workflow.Phase) {
	if f.PhaseChange != nil {
		f.PhaseChange(phase)
	}
}
