package authz

import (
	"context"

	"github.com/docuvault/docuvault/pkg/session"
)

// Snapshot implements session.GrantSource, letting the session manager
// bake the current grant set into tokens at issuance.
func (r *Resolver) Snapshot(ctx context.Context, userID int64) (*session.GrantSnapshot, error) {
	grants, err := r.GetGrants(ctx, userID)
	if err != nil {
		return nil, err
	}

	roles := make([]string, 0, len(grants.Roles))
	for _, role := range grants.Roles {
		roles = append(roles, role.Name)
	}

	return &session.GrantSnapshot{
		Permissions:  grants.PermissionNames(),
		Capabilities: grants.CapabilityNames(),
		Roles:        roles,
		Level:        grants.MaxLevel,
		Superuser:    grants.Superuser,
		ResolvedAt:   grants.ResolvedAt,
	}, nil
}

// GrantSetFromClaims rebuilds a GrantSet from the grants baked into a
// session token. Request-path checks run against this set, so they cost no
// database round trip; staleness is bounded by the propagation window.
func GrantSetFromClaims(claims *session.Claims) *GrantSet {
	grants := &GrantSet{
		UserID:       claims.UserID,
		Permissions:  make(map[string]struct{}, len(claims.Permissions)),
		Capabilities: make(map[string]struct{}, len(claims.Capabilities)),
		Roles:        make([]RoleGrant, 0, len(claims.Roles)),
		MaxLevel:     claims.Level,
		Superuser:    claims.Superuser,
		ResolvedAt:   claims.ResolvedAt,
	}
	for _, name := range claims.Permissions {
		grants.Permissions[name] = struct{}{}
	}
	for _, name := range claims.Capabilities {
		grants.Capabilities[name] = struct{}{}
	}
	for _, name := range claims.Roles {
		grants.Roles = append(grants.Roles, RoleGrant{Name: name})
	}
	return grants
}
