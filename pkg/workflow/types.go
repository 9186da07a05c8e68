package workflow

import (
	"fmt"
)

// Transition is a directed, gated edge in the status state machine
type Transition struct {
	ID          int64  `json:"id"`
	FromStatus  string `json:"from_status"`
	ToStatus    string `json:"to_status"`
	Description string `json:"description"`

	// MinLevel is the role seniority floor. Zero means no floor.
	MinLevel int `json:"min_level"`

	// RequiredPermission may be spelled in either grant vocabulary, or
	// empty for no grant requirement.
	RequiredPermission string `json:"required_permission,omitempty"`

	// RequiredRoles lists role names of which the caller must hold at
	// least one, compared through canonicalization. Empty means no role
	// requirement.
	RequiredRoles []string `json:"required_roles,omitempty"`

	IsActive bool `json:"is_active"`
}

// AllowedTransition is one edge the caller may take from the document's
// current status
type AllowedTransition struct {
	ToStatus    string `json:"to_status"`
	Description string `json:"description"`
}

// Rejection reasons, one per distinct failed check
const (
	ReasonRoleLevel          = "role_level"
	ReasonRoleRequirement    = "role_requirement"
	ReasonMissingGrant       = "missing_grant"
	ReasonUnknownRequirement = "unknown_requirement"
	ReasonStaleState         = "stale_state"
	ReasonInvalidTransition  = "invalid_transition"
)

// RejectionError is a structured transition rejection. Reason is one of
// the Reason constants; Detail names the failing requirement for logs
// and audit, not for end users.
type RejectionError struct {
	Reason string
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("transition rejected: %s", e.Reason)
	}
	return fmt.Sprintf("transition rejected: %s (%s)", e.Reason, e.Detail)
}

// IsConflict reports whether the rejection is a state conflict rather
// than an authorization failure; clients should re-fetch and retry.
func (e *RejectionError) IsConflict() bool {
	return e.Reason == ReasonStaleState
}
