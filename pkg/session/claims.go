package session

import (
	"time"
)

// Claims is the decoded content of a session token
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`

	// Grants baked in at issuance
	Permissions  []string  `json:"permissions"`
	Capabilities []string  `json:"capabilities"`
	Roles        []string  `json:"roles"`
	Level        int       `json:"level"`
	Superuser    bool      `json:"superuser"`
	ResolvedAt   time.Time `json:"resolved_at"`

	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Stale reports whether the baked grants are older than the propagation
// window and the token should be reissued.
func (c *Claims) Stale(window time.Duration) bool {
	return time.Since(c.ResolvedAt) > window
}

// HasPermission reports whether the baked grants include a permission.
// Superusers implicitly hold every permission.
func (c *Claims) HasPermission(name string) bool {
	if c.Superuser {
		return true
	}
	for _, p := range c.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// HasCapability reports whether the baked grants include a capability.
// Superusers implicitly hold every capability.
func (c *Claims) HasCapability(name string) bool {
	if c.Superuser {
		return true
	}
	for _, cap := range c.Capabilities {
		if cap == name {
			return true
		}
	}
	return false
}
