package documents

import (
	"encoding/json"
	"fmt"
	"time"
)

// Document statuses. IN_REVIEW replaced PENDING_REVIEW in place; the old
// spelling is still accepted on input and normalized on write.
const (
	StatusDraft           = "DRAFT"
	StatusInReview        = "IN_REVIEW"
	StatusPendingReview   = "PENDING_REVIEW"
	StatusPendingApproval = "PENDING_APPROVAL"
	StatusApproved        = "APPROVED"
	StatusPublished       = "PUBLISHED"
	StatusRejected        = "REJECTED"
	StatusArchived        = "ARCHIVED"
)

// NormalizeStatus maps legacy status spellings to their current form
func NormalizeStatus(status string) string {
	if status == StatusPendingReview {
		return StatusInReview
	}
	return status
}

// StatusAliases returns the canonical spelling of a status together with
// the legacy spelling that normalizes to it. Queries that must match rows
// written before normalization compare against both; the two values are
// equal when no legacy spelling exists.
func StatusAliases(status string) (string, string) {
	canonical := NormalizeStatus(status)
	if canonical == StatusInReview {
		return canonical, StatusPendingReview
	}
	return canonical, canonical
}

// ValidStatus reports whether a status string is a known state
func ValidStatus(status string) bool {
	switch NormalizeStatus(status) {
	case StatusDraft, StatusInReview, StatusPendingApproval, StatusApproved,
		StatusPublished, StatusRejected, StatusArchived:
		return true
	}
	return false
}

// AccessRuleKind identifies which identifier space an access rule's value
// is compared against
type AccessRuleKind string

const (
	RuleGroupID   AccessRuleKind = "group_id"
	RuleGroupName AccessRuleKind = "group_name"
	RuleRoleName  AccessRuleKind = "role_name"

	// RuleAny is the decoded form of pre-migration bare-string entries,
	// which never recorded which space they meant. Matched against all
	// three.
	RuleAny AccessRuleKind = "any"
)

// AccessRule is one entry of a document's access list
type AccessRule struct {
	Kind  AccessRuleKind `json:"kind"`
	Value string         `json:"value"`
}

// UnmarshalJSON accepts both the tagged object form and the legacy bare
// string form.
func (r *AccessRule) UnmarshalJSON(data []byte) error {
	var legacy string
	if err := json.Unmarshal(data, &legacy); err == nil {
		r.Kind = RuleAny
		r.Value = legacy
		return nil
	}

	type tagged AccessRule
	var t tagged
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("invalid access rule: %w", err)
	}
	switch t.Kind {
	case RuleGroupID, RuleGroupName, RuleRoleName, RuleAny:
	default:
		return fmt.Errorf("invalid access rule kind: %q", t.Kind)
	}
	*r = AccessRule(t)
	return nil
}

// AccessRules is the document access list, stored as a JSON column
type AccessRules []AccessRule

// Document is the protected resource. Hierarchy fields organize documents
// into a tree independently of access control.
type Document struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`

	Status      string      `json:"status"`
	IsPublic    bool        `json:"is_public"`
	AccessRules AccessRules `json:"access_rules"`
	CreatedBy   int64       `json:"created_by"`

	ParentDocumentID *int64 `json:"parent_document_id,omitempty"`
	HierarchyLevel   int    `json:"hierarchy_level"`
	HierarchyPath    string `json:"hierarchy_path,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
