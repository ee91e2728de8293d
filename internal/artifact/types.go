// Package artifact reads the documents the agents write into the workdir
// (the plan and the review comments) and watches them for changes. The
// collaboration never writes these files itself; the agent processes do.
package artifact

import (
	"fmt"
	"path/filepath"
	"time"
)

// Kind identifies one of the collaboration documents.
type Kind string

const (
	// KindPlan is the implementation plan authored by the planner.
	KindPlan Kind = "plan"
	// KindComments is the review written by the reviewer.
	KindComments Kind = "comments"
)

// Kinds lists every document kind in display order.
func Kinds() []Kind {
	return []Kind{KindPlan, KindComments}
}

// State summarizes what Check found on disk.
type State string

const (
	StateMissing State = "missing"
	StateEmpty   State = "empty"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Ref binds a document kind to its location.
type Ref struct {
	Kind Kind
	Name string
	Path string
}

// Validate ensures the reference is well-formed.
func (r Ref) Validate() error {
	if r.Kind == "" {
		return fmt.Errorf("artifact: kind is required")
	}
	if r.Path == "" {
		return fmt.Errorf("artifact: path missing for %s", r.Kind)
	}
	return nil
}

// File returns the base name of the document.
func (r Ref) File() string {
	return filepath.Base(r.Path)
}

// CheckResult reports the on-disk status of a document.
type CheckResult struct {
	Ref     Ref
	State   State
	Size    int64
	ModTime time.Time
	Err     error
}
