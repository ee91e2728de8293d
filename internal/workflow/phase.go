// internal/workflow/phase.go
//
// Phases of the planner/reviewer collaboration and the fixed table of legal
// transitions between them. Everything here is a pure lookup.

package workflow

import (
	"fmt"
	"strings"
)

// Phase represents a stage in the collaboration workflow
type Phase int

const (
	PhaseInit Phase = iota
	PhaseRefineGoal
	PhaseWritePlan
	PhaseReview
	PhaseRespond
	PhaseApproved
	PhaseExecute
	PhaseDone
)

var phaseKeys = map[Phase]string{
	PhaseInit:       "init",
	PhaseRefineGoal: "refine_goal",
	PhaseWritePlan:  "write_plan",
	PhaseReview:     "review",
	PhaseRespond:    "respond",
	PhaseApproved:   "approved",
	PhaseExecute:    "execute",
	PhaseDone:       "done",
}

// transitions is built once and never mutated. Execute loops onto itself so a
// plan can be carried out one step at a time.
var transitions = map[Phase][]Phase{
	PhaseInit:       {PhaseRefineGoal},
	PhaseRefineGoal: {PhaseWritePlan},
	PhaseWritePlan:  {PhaseReview},
	PhaseReview:     {PhaseRespond, PhaseApproved},
	PhaseRespond:    {PhaseReview},
	PhaseApproved:   {PhaseExecute},
	PhaseExecute:    {PhaseDone, PhaseExecute},
	PhaseDone:       {},
}

// Phases lists every phase in workflow order.
func Phases() []Phase {
	return []Phase{
		PhaseInit,
		PhaseRefineGoal,
		PhaseWritePlan,
		PhaseReview,
		PhaseRespond,
		PhaseApproved,
		PhaseExecute,
		PhaseDone,
	}
}

// CanTransition reports whether target is reachable from current in one step.
// Unknown phases never transition.
func CanTransition(current, target Phase) bool {
	for _, next := range transitions[current] {
		if next == target {
			return true
		}
	}
	return false
}

// NextPhases returns the phases reachable from current in table order.
func NextPhases(current Phase) []Phase {
	next := transitions[current]
	out := make([]Phase, len(next))
	copy(out, next)
	return out
}

// Valid reports whether p is one of the defined phases.
func (p Phase) Valid() bool {
	_, ok := phaseKeys[p]
	return ok
}

// Key returns the stable identifier used in state files and prompts.
func (p Phase) Key() string {
	if key, ok := phaseKeys[p]; ok {
		return key
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// String returns a human-readable name for the phase
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "Not Started"
	case PhaseRefineGoal:
		return "Refine Goal"
	case PhaseWritePlan:
		return "Write Plan"
	case PhaseReview:
		return "Review"
	case PhaseRespond:
		return "Respond to Comments"
	case PhaseApproved:
		return "Approved"
	case PhaseExecute:
		return "Execute"
	case PhaseDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// IsTerminal returns true if no transition leaves this phase
func (p Phase) IsTerminal() bool {
	return p.Valid() && len(transitions[p]) == 0
}

// ParsePhase resolves a persisted phase key.
func ParsePhase(key string) (Phase, error) {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for phase, k := range phaseKeys {
		if k == normalized {
			return phase, nil
		}
	}
	return PhaseInit, fmt.Errorf("workflow: unknown phase %q", key)
}

// MarshalText encodes the phase as its key.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("workflow: cannot encode unknown phase %d", int(p))
	}
	return []byte(p.Key()), nil
}

// UnmarshalText decodes a phase key.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
