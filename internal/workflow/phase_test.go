package workflow

import (
	"encoding/json"
	"testing"
)

func TestCanTransitionMatchesTable(t *testing.T) {
	want := map[Phase][]Phase{
		PhaseInit:       {PhaseRefineGoal},
		PhaseRefineGoal: {PhaseWritePlan},
		PhaseWritePlan:  {PhaseReview},
		PhaseReview:     {PhaseRespond, PhaseApproved},
		PhaseRespond:    {PhaseReview},
		PhaseApproved:   {PhaseExecute},
		PhaseExecute:    {PhaseDone, PhaseExecute},
		PhaseDone:       {},
	}
	for _, from := range Phases() {
		allowed := map[Phase]bool{}
		for _, to := range want[from] {
			allowed[to] = true
		}
		for _, to := range Phases() {
			if got := CanTransition(from, to); got != allowed[to] {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from.Key(), to.Key(), got, allowed[to])
			}
		}
	}
}

func TestNextPhasesReturnsTableOrder(t *testing.T) {
	next := NextPhases(PhaseReview)
	if len(next) != 2 || next[0] != PhaseRespond || next[1] != PhaseApproved {
		t.Fatalf("unexpected review successors: %v", next)
	}
	next[0] = PhaseDone
	if NextPhases(PhaseReview)[0] != PhaseRespond {
		t.Fatalf("NextPhases must return a copy")
	}
}

func TestDoneIsTerminalAndInitUnreachable(t *testing.T) {
	if len(NextPhases(PhaseDone)) != 0 {
		t.Fatalf("done must have no successors")
	}
	if !PhaseDone.IsTerminal() {
		t.Fatalf("done must be terminal")
	}
	for _, from := range Phases() {
		if CanTransition(from, PhaseInit) {
			t.Fatalf("init reachable from %s", from.Key())
		}
	}
}

func TestUnknownPhaseNeverTransitions(t *testing.T) {
	unknown := Phase(42)
	if CanTransition(unknown, PhaseDone) {
		t.Fatalf("unknown phase must not transition")
	}
	if len(NextPhases(unknown)) != 0 {
		t.Fatalf("unknown phase must have no successors")
	}
	if unknown.Valid() {
		t.Fatalf("phase 42 should be invalid")
	}
}

func TestPhaseKeysRoundTrip(t *testing.T) {
	for _, phase := range Phases() {
		parsed, err := ParsePhase(phase.Key())
		if err != nil {
			t.Fatalf("parse %s: %v", phase.Key(), err)
		}
		if parsed != phase {
			t.Fatalf("parse %s = %v", phase.Key(), parsed)
		}
	}
	if _, err := ParsePhase("reviewing"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestPhaseJSONUsesKeys(t *testing.T) {
	data, err := json.Marshal(struct {
		Phase Phase `json:"phase"`
	}{PhaseRefineGoal})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"phase":"refine_goal"}` {
		t.Fatalf("unexpected encoding %s", data)
	}
	var decoded struct {
		Phase Phase `json:"phase"`
	}
	if err := json.Unmarshal([]byte(`{"phase":"execute"}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Phase != PhaseExecute {
		t.Fatalf("decoded %v", decoded.Phase)
	}
}

func TestApprovalMarker(t *testing.T) {
	cases := map[string]bool{
		"[APPROVED]\n\nLooks good!":         true,
		"  \n[APPROVED] ship it":            true,
		"[CHANGES_REQUIRED]\n\nPlease fix X": false,
		"":                                   false,
		"Looks good [APPROVED]":              false,
	}
	for text, want := range cases {
		if got := IsApproval(text); got != want {
			t.Fatalf("IsApproval(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestActiveRole(t *testing.T) {
	if ActiveRole(PhaseReview) != RoleReviewer {
		t.Fatalf("review belongs to the reviewer")
	}
	for _, p := range []Phase{PhaseInit, PhaseRespond, PhaseExecute, PhaseApproved} {
		if ActiveRole(p) != RolePlanner {
			t.Fatalf("%s should belong to the planner", p.Key())
		}
	}
}
