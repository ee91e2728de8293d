package engine

import (
	"github.com/kingrea/agent-collab/internal/workflow"
)

// State captures the persisted snapshot of a collaboration.
type State struct {
	Phase           workflow.Phase `json:"phase"`
	Iteration       int            `json:"iteration"`
	PlannerSession  string         `json:"planner_session,omitempty"`
	ReviewerSession string         `json:"reviewer_session,omitempty"`
}

// NewState returns the state of a collaboration that has not started.
func NewState() State {
	return State{Phase: workflow.PhaseInit}
}

// Session returns the stored session handle for a role.
func (s State) Session(role workflow.Role) string {
	if role == workflow.RoleReviewer {
		return s.ReviewerSession
	}
	return s.PlannerSession
}

// WithSession returns a copy of s carrying handle for role.
func (s State) WithSession(role workflow.Role, handle string) State {
	if role == workflow.RoleReviewer {
		s.ReviewerSession = handle
	} else {
		s.PlannerSession = handle
	}
	return s
}

// Status is a read model of the controller for UIs, the CLI and the monitor.
type Status struct {
	Phase           string   `json:"phase"`
	PhaseLabel      string   `json:"phase_label"`
	Iteration       int      `json:"iteration"`
	MaxIterations   int      `json:"max_iterations"`
	BudgetReached   bool     `json:"budget_reached"`
	Approved        bool     `json:"approved"`
	NextPhases      []string `json:"next_phases"`
	ActiveRole      string   `json:"active_role"`
	PlannerSession  string   `json:"planner_session,omitempty"`
	ReviewerSession string   `json:"reviewer_session,omitempty"`
	Busy            bool     `json:"busy"`
}

// record is the on-disk shape. Pointers distinguish missing fields from zero
// values so a state file without a phase can be rejected.
type record struct {
	Phase           *string `json:"phase"`
	Iteration       *int    `json:"iteration"`
	PlannerSession  *string `json:"planner_session"`
	ReviewerSession *string `json:"reviewer_session"`
}

func toRecord(s State) record {
	key := s.Phase.Key()
	iteration := s.Iteration
	return record{
		Phase:           &key,
		Iteration:       &iteration,
		PlannerSession:  optional(s.PlannerSession),
		ReviewerSession: optional(s.ReviewerSession),
	}
}

func (r record) state() (State, bool) {
	if r.Phase == nil {
		return State{}, false
	}
	phase, err := workflow.ParsePhase(*r.Phase)
	if err != nil {
		return State{}, false
	}
	state := State{Phase: phase}
	if r.Iteration != nil {
		if *r.Iteration < 0 {
			return State{}, false
		}
		state.Iteration = *r.Iteration
	}
	if r.PlannerSession != nil {
		state.PlannerSession = *r.PlannerSession
	}
	if r.ReviewerSession != nil {
		state.ReviewerSession = *r.ReviewerSession
	}
	return state, true
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
