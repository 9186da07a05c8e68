package authz

import (
	"encoding/json"
	"strings"
	"time"
)

// Role represents a named authorization bundle with a seniority level.
// Higher level means more senior. System roles cannot be deleted through
// the management surface, but their grants remain editable.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Level       int       `json:"level"`
	IsSystem    bool      `json:"is_system"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserRole represents a role assignment to a user. Revocation flips
// IsActive rather than deleting the row, preserving the audit fields.
type UserRole struct {
	ID                 int64     `json:"id"`
	UserID             int64     `json:"user_id"`
	RoleID             int64     `json:"role_id"`
	IsActive           bool      `json:"is_active"`
	AssignedBy         *int64    `json:"assigned_by,omitempty"`
	AssignedAt         time.Time `json:"assigned_at"`
	IsManuallyAssigned bool      `json:"is_manually_assigned"`
}

// Permission represents a fine-grained grant unit in module.action form
type Permission struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Module   string `json:"module"`
	Action   string `json:"action"`
	Resource string `json:"resource,omitempty"`
	IsActive bool   `json:"is_active"`
}

// RolePermission represents a permission grant (or explicit deny) on a role
type RolePermission struct {
	ID           int64     `json:"id"`
	RoleID       int64     `json:"role_id"`
	PermissionID int64     `json:"permission_id"`
	IsGranted    bool      `json:"is_granted"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// Capability represents a coarse grant unit in CATEGORY_ACTION form
type Capability struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

// RoleCapability represents a capability assignment on a role.
// Presence implies grant; there is no is_granted column.
type RoleCapability struct {
	ID           int64 `json:"id"`
	RoleID       int64 `json:"role_id"`
	CapabilityID int64 `json:"capability_id"`
}

// ResourceType classifies resource tree entries
type ResourceType string

const (
	ResourceNavigation ResourceType = "navigation"
	ResourceRoute      ResourceType = "route"
	ResourceAPI        ResourceType = "api"
)

// Resource describes a navigation entry, UI route, or API endpoint,
// optionally gated by a single required capability. A nil
// RequiredCapability means the resource is unrestricted.
type Resource struct {
	ID                 int64           `json:"id"`
	Type               ResourceType    `json:"type"`
	Path               string          `json:"path"`
	Name               string          `json:"name"`
	ParentID           *int64          `json:"parent_id,omitempty"`
	RequiredCapability *string         `json:"required_capability,omitempty"`
	SortOrder          int             `json:"sort_order"`
	IsActive           bool            `json:"is_active"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`

	// Children is populated when building the navigation tree
	Children []*Resource `json:"children,omitempty"`
}

// ResourceMetadata holds the structured part of Resource.Metadata
type ResourceMetadata struct {
	Method string `json:"method,omitempty"`
}

// Method returns the HTTP method carried in metadata for api resources,
// or "" when none is set.
func (r *Resource) Method() string {
	if len(r.Metadata) == 0 {
		return ""
	}
	var meta ResourceMetadata
	if err := json.Unmarshal(r.Metadata, &meta); err != nil {
		return ""
	}
	return strings.ToUpper(meta.Method)
}

// TokenKind identifies which grant vocabulary a requirement string belongs to
type TokenKind string

const (
	KindPermission TokenKind = "permission"
	KindCapability TokenKind = "capability"
	KindUnknown    TokenKind = "unknown"
)

// Token is the sum type over the two grant vocabularies. Requirement
// strings stored in workflow transitions and resource gates may be written
// in either one; Token makes the vocabulary explicit at check sites.
type Token struct {
	Kind TokenKind `json:"kind"`
	Name string    `json:"name"`
}

// ParseToken infers the vocabulary of a requirement string from its surface
// shape: module.action permissions are lowercase and dotted, CATEGORY_ACTION
// capabilities are uppercase with underscores. Strings matching neither
// shape come back KindUnknown and must be treated as deny-by-default.
func ParseToken(name string) Token {
	switch {
	case name == "":
		return Token{Kind: KindUnknown, Name: name}
	case strings.Contains(name, ".") && name == strings.ToLower(name):
		return Token{Kind: KindPermission, Name: name}
	case !strings.Contains(name, ".") && name == strings.ToUpper(name):
		return Token{Kind: KindCapability, Name: name}
	default:
		return Token{Kind: KindUnknown, Name: name}
	}
}

// RoleGrant is the slice of a role that matters for authorization decisions
type RoleGrant struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// GrantSet is a user's resolved effective grants: the union of permissions
// and capabilities across all active role assignments, with explicit
// permission denies already subtracted.
type GrantSet struct {
	UserID       int64               `json:"user_id"`
	Permissions  map[string]struct{} `json:"-"`
	Capabilities map[string]struct{} `json:"-"`
	Roles        []RoleGrant         `json:"roles"`
	MaxLevel     int                 `json:"max_level"`
	Superuser    bool                `json:"superuser"`
	ResolvedAt   time.Time           `json:"resolved_at"`
}

// HasPermission reports whether the set contains the named permission.
// Superusers implicitly hold every permission.
func (g *GrantSet) HasPermission(name string) bool {
	if g.Superuser {
		return true
	}
	_, ok := g.Permissions[name]
	return ok
}

// HasCapability reports whether the set contains the named capability.
// Superusers implicitly hold every capability.
func (g *GrantSet) HasCapability(name string) bool {
	if g.Superuser {
		return true
	}
	_, ok := g.Capabilities[name]
	return ok
}

// HasRole reports whether the user holds the named role, compared through
// role-name canonicalization so org_-prefixed and bare spellings match.
func (g *GrantSet) HasRole(name string) bool {
	for _, r := range g.Roles {
		if SameRole(r.Name, name) {
			return true
		}
	}
	return false
}

// HasToken checks a requirement string against both vocabularies. The raw
// name is looked up in whichever set its shape selects, then the bridge
// mapping is consulted so a requirement written in one vocabulary is
// satisfied by a grant in the other. Unknown-shaped requirements are never
// satisfied (fail closed); callers should log them as configuration
// inconsistencies.
func (g *GrantSet) HasToken(tok Token) bool {
	if g.Superuser {
		return true
	}

	switch tok.Kind {
	case KindPermission:
		if g.HasPermission(tok.Name) {
			return true
		}
		if cap, ok := BridgeToCapability(tok.Name); ok {
			return g.HasCapability(cap)
		}
	case KindCapability:
		if g.HasCapability(tok.Name) {
			return true
		}
		if perm, ok := BridgeToPermission(tok.Name); ok {
			return g.HasPermission(perm)
		}
	}
	return false
}

// PermissionNames returns the permission set as a sorted-insensitive slice
// for serialization into session claims.
func (g *GrantSet) PermissionNames() []string {
	names := make([]string, 0, len(g.Permissions))
	for name := range g.Permissions {
		names = append(names, name)
	}
	return names
}

// CapabilityNames returns the capability set as a slice for serialization
// into session claims.
func (g *GrantSet) CapabilityNames() []string {
	names := make([]string, 0, len(g.Capabilities))
	for name := range g.Capabilities {
		names = append(names, name)
	}
	return names
}
