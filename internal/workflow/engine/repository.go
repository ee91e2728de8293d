package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// StateStore persists workflow state snapshots.
type StateStore interface {
	Load() (State, bool)
	Save(State) error
	Exists() bool
	Delete() error
}

// Repository stores workflow state as JSON at a fixed path. Writes go to a
// sibling temp file that is renamed over the destination, so readers only
// ever see a complete file.
type Repository struct {
	path string

	// syncFile flushes the temp file before rename; tests swap it to inject
	// write failures.
	syncFile func(*os.File) error
}

// NewRepository creates a repository for the state file at path.
func NewRepository(path string) *Repository {
	return &Repository{
		path:     path,
		syncFile: (*os.File).Sync,
	}
}

// Path returns the state file location.
func (r *Repository) Path() string {
	return r.path
}

// Load reads the persisted state. Missing, unreadable and malformed files all
// report false: a broken state file means "start fresh".
func (r *Repository) Load() (State, bool) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return State{}, false
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return State{}, false
	}
	return rec.state()
}

// Save writes the state atomically.
func (r *Repository) Save(state State) (err error) {
	if !state.Phase.Valid() {
		return fmt.Errorf("engine: refusing to save unknown phase %d", int(state.Phase))
	}
	if state.Iteration < 0 {
		return fmt.Errorf("engine: refusing to save negative iteration %d", state.Iteration)
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("engine: ensure state dir: %w", err)
	}
	encoded, err := json.MarshalIndent(toRecord(state), "", "  ")
	if err != nil {
		return fmt.Errorf("engine: encode state: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state_*.tmp")
	if err != nil {
		return fmt.Errorf("engine: create temp state: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()
	if _, err = tmp.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("engine: write temp state: %w", err)
	}
	if err = r.syncFile(tmp); err != nil {
		return fmt.Errorf("engine: sync temp state: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("engine: close temp state: %w", err)
	}
	if err = os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("engine: replace state: %w", err)
	}
	return nil
}

// Exists reports whether a state file is present.
func (r *Repository) Exists() bool {
	_, err := os.Stat(r.path)
	return err == nil
}

// Delete removes the state file. Deleting a missing file is not an error.
func (r *Repository) Delete() error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("engine: delete state: %w", err)
	}
	return nil
}
