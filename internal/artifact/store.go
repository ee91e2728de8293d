package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kingrea/agent-collab/internal/workflow"
)

// Store resolves and reads the collaboration documents.
type Store struct {
	refs map[Kind]Ref
}

// NewStore builds a store for the plan and comments documents.
func NewStore(planPath, commentsPath string) *Store {
	return &Store{
		refs: map[Kind]Ref{
			KindPlan:     {Kind: KindPlan, Name: "Plan", Path: filepath.Clean(planPath)},
			KindComments: {Kind: KindComments, Name: "Comments", Path: filepath.Clean(commentsPath)},
		},
	}
}

// Ref returns the reference for kind.
func (s *Store) Ref(kind Kind) (Ref, bool) {
	ref, ok := s.refs[kind]
	return ref, ok
}

// Path returns the location of kind, or "" when unknown.
func (s *Store) Path(kind Kind) string {
	return s.refs[kind].Path
}

// KindOf maps a file path back to the document it belongs to.
func (s *Store) KindOf(path string) (Kind, bool) {
	cleaned := filepath.Clean(path)
	for _, kind := range Kinds() {
		if s.refs[kind].Path == cleaned {
			return kind, true
		}
	}
	return "", false
}

// Check inspects the document on disk.
func (s *Store) Check(kind Kind) (CheckResult, error) {
	ref, ok := s.refs[kind]
	if !ok {
		err := fmt.Errorf("artifact: unknown kind %q", kind)
		return CheckResult{Ref: Ref{Kind: kind}, State: StateError, Err: err}, err
	}
	if err := ref.Validate(); err != nil {
		return CheckResult{Ref: ref, State: StateError, Err: err}, err
	}
	info, err := os.Stat(ref.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CheckResult{Ref: ref, State: StateMissing}, nil
		}
		return CheckResult{Ref: ref, State: StateError, Err: err}, err
	}
	if info.IsDir() {
		err := fmt.Errorf("artifact: expected %s file got directory", kind)
		return CheckResult{Ref: ref, State: StateError, Err: err}, err
	}
	result := CheckResult{Ref: ref, State: StateReady, Size: info.Size(), ModTime: info.ModTime()}
	if info.Size() == 0 {
		result.State = StateEmpty
	}
	return result, nil
}

// Read returns the document text. A missing document reads as "".
func (s *Store) Read(kind Kind) (string, error) {
	ref, ok := s.refs[kind]
	if !ok {
		return "", fmt.Errorf("artifact: unknown kind %q", kind)
	}
	data, err := os.ReadFile(ref.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("artifact: read %s: %w", kind, err)
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

// Content returns the document text, or "" when it cannot be read.
func (s *Store) Content(kind Kind) string {
	text, err := s.Read(kind)
	if err != nil {
		return ""
	}
	return text
}

// Approved reports whether the comments carry the approval marker.
func (s *Store) Approved() bool {
	return workflow.IsApproval(s.Content(KindComments))
}
