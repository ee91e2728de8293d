// internal/workflow/workflow.go
//
// Defines the workdir layout, the two collaboration roles and the approval
// marker. All workflow state lives in .agent-collab/ next to the project.

package workflow

import (
	"strings"
)

// Directory names within the project
const (
	DefaultWorkdir = ".agent-collab"
	LogsDir        = "logs"
	PromptsDir     = "prompts"
)

// File names for workflow artifacts
const (
	FilePlan     = "plan.md"
	FileComments = "comments.md"
	FileLog      = "log.md"
	FileState    = "state.json"
	FileHistory  = "history.db"
	FileDebugLog = "agent-collab.log"
)

// ApprovalMarker is the literal token a reviewer writes at the top of the
// comments file to accept the plan.
const ApprovalMarker = "[APPROVED]"

// Role names one of the two fixed participants.
type Role string

const (
	RolePlanner  Role = "planner"
	RoleReviewer Role = "reviewer"
)

// String returns the role name.
func (r Role) String() string {
	return string(r)
}

// ActiveRole returns the role that owns the next move in a phase. Only review
// belongs to the reviewer.
func ActiveRole(p Phase) Role {
	if p == PhaseReview {
		return RoleReviewer
	}
	return RolePlanner
}

// IsApproval reports whether comments text carries the approval marker once
// surrounding whitespace is trimmed.
func IsApproval(comments string) bool {
	return strings.HasPrefix(strings.TrimSpace(comments), ApprovalMarker)
}
