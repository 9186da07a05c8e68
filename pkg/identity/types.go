// Package identity provides the user and group store. Authentication is an
// external collaborator: this package never verifies credentials, it only
// resolves already-authenticated identities.
package identity

import "time"

// User represents a user identity record
type User struct {
	ID         int64      `json:"id"`
	Email      string     `json:"email"`
	Username   string     `json:"username"`
	IsActive   bool       `json:"is_active"`
	GroupID    *int64     `json:"group_id,omitempty"`
	DivisionID *int64     `json:"division_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Group is populated by GetUserWithGroup
	Group *Group `json:"group,omitempty"`
}

// Group represents an organizational unit. Level is hierarchical seniority:
// higher means more senior.
type Group struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Level       int    `json:"level"`
}
