package engine

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/agent-collab/internal/workflow"
)

func TestRepositoryRoundTrip(t *testing.T) {
	repo := NewRepository(filepath.Join(t.TempDir(), "nested", "state.json"))
	states := []State{
		NewState(),
		{Phase: workflow.PhaseReview, Iteration: 3, PlannerSession: "p-1"},
		{Phase: workflow.PhaseExecute, Iteration: 7, PlannerSession: "p-2", ReviewerSession: "r-9"},
	}
	for _, want := range states {
		if err := repo.Save(want); err != nil {
			t.Fatalf("save %+v: %v", want, err)
		}
		got, ok := repo.Load()
		if !ok {
			t.Fatalf("load after save %+v reported absent", want)
		}
		if got != want {
			t.Fatalf("round trip = %+v, want %+v", got, want)
		}
	}
}

func TestRepositoryWritesNullSessions(t *testing.T) {
	repo := NewRepository(filepath.Join(t.TempDir(), "state.json"))
	if err := repo.Save(State{Phase: workflow.PhaseWritePlan, Iteration: 0}); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(repo.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{`"phase": "write_plan"`, `"iteration": 0`, `"planner_session": null`, `"reviewer_session": null`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("state file missing %s:\n%s", want, data)
		}
	}
}

func TestRepositoryLoadRejectsBrokenFiles(t *testing.T) {
	cases := map[string]string{
		"malformed":          `{"phase": "review",`,
		"unknown phase":      `{"phase": "shipping", "iteration": 1}`,
		"missing phase":      `{"iteration": 1}`,
		"negative iteration": `{"phase": "review", "iteration": -1}`,
		"wrong type":         `{"phase": 3}`,
		"empty":              ``,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("seed: %v", err)
			}
			if _, ok := NewRepository(path).Load(); ok {
				t.Fatalf("expected %s state to load as absent", name)
			}
		})
	}
}

func TestRepositoryLoadToleratesUnknownAndMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	content := `{"phase": "respond", "reviewer_session": "r-1", "schema": 2, "extra": {"a": 1}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, ok := NewRepository(path).Load()
	if !ok {
		t.Fatalf("expected state to load")
	}
	want := State{Phase: workflow.PhaseRespond, ReviewerSession: "r-1"}
	if got != want {
		t.Fatalf("load = %+v, want %+v", got, want)
	}
}

func TestRepositoryLoadMissingFile(t *testing.T) {
	repo := NewRepository(filepath.Join(t.TempDir(), "state.json"))
	if _, ok := repo.Load(); ok {
		t.Fatalf("expected missing state to be absent")
	}
}

func TestRepositoryFailedSaveKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	repo := NewRepository(filepath.Join(dir, "state.json"))
	if err := repo.Save(State{Phase: workflow.PhaseReview, Iteration: 2, PlannerSession: "p"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	before, err := os.ReadFile(repo.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	boom := errors.New("disk full")
	repo.syncFile = func(*os.File) error { return boom }
	err = repo.Save(State{Phase: workflow.PhaseApproved, Iteration: 3})
	if !errors.Is(err, boom) {
		t.Fatalf("save error = %v, want %v", err, boom)
	}

	after, err := os.ReadFile(repo.Path())
	if err != nil {
		t.Fatalf("read after failure: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("state file changed after failed save:\nbefore %s\nafter %s", before, after)
	}
	leftovers, err := filepath.Glob(filepath.Join(dir, ".state_*.tmp"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestRepositoryRejectsInvalidState(t *testing.T) {
	repo := NewRepository(filepath.Join(t.TempDir(), "state.json"))
	if err := repo.Save(State{Phase: workflow.Phase(99)}); err == nil {
		t.Fatalf("expected unknown phase to be rejected")
	}
	if err := repo.Save(State{Phase: workflow.PhaseReview, Iteration: -2}); err == nil {
		t.Fatalf("expected negative iteration to be rejected")
	}
	if repo.Exists() {
		t.Fatalf("rejected saves must not create a file")
	}
}

func TestRepositoryDeleteIsIdempotent(t *testing.T) {
	repo := NewRepository(filepath.Join(t.TempDir(), "state.json"))
	if repo.Exists() {
		t.Fatalf("fresh repository should not exist")
	}
	if err := repo.Delete(); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if repo.Exists() {
		t.Fatalf("exists after deleting missing file")
	}
	if err := repo.Save(NewState()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !repo.Exists() {
		t.Fatalf("expected file after save")
	}
	if err := repo.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if repo.Exists() {
		t.Fatalf("file still present after delete")
	}
}
