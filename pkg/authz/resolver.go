package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/docuvault/docuvault/pkg/observability"
)

// ErrUserInactive is returned when resolving grants for a missing or
// deactivated user. Resolution failure always means deny.
var ErrUserInactive = errors.New("user is inactive or does not exist")

// Resolver computes and caches effective grant sets.
//
// The cache TTL bounds grant staleness: a revoked role keeps working for at
// most one TTL on nodes that did not observe the invalidation. Mutating
// endpoints in this process invalidate eagerly, so locally the window only
// applies to changes made elsewhere.
type Resolver struct {
	store   *Store
	cache   *expirable.LRU[int64, *GrantSet]
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewResolver creates a grant resolver with a TTL-bounded LRU cache
func NewResolver(store *Store, cacheSize int, cacheTTL time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		store:   store,
		cache:   expirable.NewLRU[int64, *GrantSet](cacheSize, nil, cacheTTL),
		logger:  logger,
		metrics: metrics,
	}
}

// GetGrants returns the user's effective grant set, from cache when fresh.
// Any resolution failure surfaces as an error and the caller must deny.
func (r *Resolver) GetGrants(ctx context.Context, userID int64) (*GrantSet, error) {
	if grants, ok := r.cache.Get(userID); ok {
		if r.metrics != nil {
			r.metrics.CacheHitsTotal.WithLabelValues("grants").Inc()
		}
		return grants, nil
	}
	if r.metrics != nil {
		r.metrics.CacheMissesTotal.WithLabelValues("grants").Inc()
	}

	grants, err := r.resolve(ctx, userID)
	if err != nil {
		if r.metrics != nil {
			r.metrics.AuthzResolutionsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.AuthzResolutionsTotal.WithLabelValues("ok").Inc()
	}

	r.cache.Add(userID, grants)
	return grants, nil
}

// resolve computes the grant set from the database: the union of
// permissions and capabilities across active role assignments, with
// explicitly denied permissions subtracted afterwards so a deny from any
// role wins over a grant from any other.
func (r *Resolver) resolve(ctx context.Context, userID int64) (*GrantSet, error) {
	active, err := r.store.UserIsActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving grants for user %d: %w", userID, err)
	}
	if !active {
		return nil, fmt.Errorf("user %d: %w", userID, ErrUserInactive)
	}

	roles, err := r.store.GetUserRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving grants for user %d: %w", userID, err)
	}

	granted, denied, err := r.store.GetUserPermissionGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving grants for user %d: %w", userID, err)
	}

	capabilities, err := r.store.GetUserCapabilities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving grants for user %d: %w", userID, err)
	}

	grants := &GrantSet{
		UserID:       userID,
		Permissions:  make(map[string]struct{}, len(granted)),
		Capabilities: make(map[string]struct{}, len(capabilities)),
		Roles:        make([]RoleGrant, 0, len(roles)),
		ResolvedAt:   time.Now(),
	}

	for _, role := range roles {
		grants.Roles = append(grants.Roles, RoleGrant{Name: role.Name, Level: role.Level})
		if role.Level > grants.MaxLevel {
			grants.MaxLevel = role.Level
		}
		if IsSuperuserRole(role.Name) {
			grants.Superuser = true
		}
	}

	for _, name := range granted {
		grants.Permissions[name] = struct{}{}
	}
	for _, name := range denied {
		delete(grants.Permissions, name)
	}
	for _, name := range capabilities {
		grants.Capabilities[name] = struct{}{}
	}

	return grants, nil
}

// HasPermission checks a single permission for a user
func (r *Resolver) HasPermission(ctx context.Context, userID int64, name string) (bool, error) {
	grants, err := r.GetGrants(ctx, userID)
	if err != nil {
		return false, err
	}
	allowed := grants.HasPermission(name)
	if r.metrics != nil {
		r.metrics.RecordAuthzCheck("permission", allowed)
	}
	return allowed, nil
}

// HasCapability checks a single capability for a user
func (r *Resolver) HasCapability(ctx context.Context, userID int64, name string) (bool, error) {
	grants, err := r.GetGrants(ctx, userID)
	if err != nil {
		return false, err
	}
	allowed := grants.HasCapability(name)
	if r.metrics != nil {
		r.metrics.RecordAuthzCheck("capability", allowed)
	}
	return allowed, nil
}

// HasToken checks a requirement string of either vocabulary for a user.
// Unknown-shaped requirements deny and are logged once per check.
func (r *Resolver) HasToken(ctx context.Context, userID int64, requirement string) (bool, error) {
	grants, err := r.GetGrants(ctx, userID)
	if err != nil {
		return false, err
	}

	tok := ParseToken(requirement)
	if tok.Kind == KindUnknown && r.logger != nil {
		r.logger.WithField("requirement", requirement).
			Warn("requirement string matches neither grant vocabulary, denying")
	}

	allowed := grants.HasToken(tok)
	if r.metrics != nil {
		r.metrics.RecordAuthzCheck(string(tok.Kind), allowed)
	}
	return allowed, nil
}

// HasMinLevel reports whether the user's most senior role meets a level
// floor. Superusers pass regardless of level.
func (r *Resolver) HasMinLevel(ctx context.Context, userID int64, level int) (bool, error) {
	grants, err := r.GetGrants(ctx, userID)
	if err != nil {
		return false, err
	}
	allowed := grants.Superuser || grants.MaxLevel >= level
	if r.metrics != nil {
		r.metrics.RecordAuthzCheck("level", allowed)
	}
	return allowed, nil
}

// CanAccessResource checks whether a user may access a route or API
// endpoint. Paths with no matching resource record are allowed: the
// resource tree gates only what it explicitly lists, and most endpoints
// carry their own checks. Matched resources with no required capability
// are likewise unrestricted.
func (r *Resolver) CanAccessResource(ctx context.Context, userID int64, path, method string) (bool, error) {
	resources, err := r.store.FindResourceByPath(ctx, path)
	if err != nil {
		return false, fmt.Errorf("checking resource access: %w", err)
	}

	var matched *Resource
	for i := range resources {
		res := &resources[i]
		if res.Type == ResourceAPI {
			if m := res.Method(); m != "" && m != method {
				continue
			}
		}
		matched = res
		break
	}

	if matched == nil || matched.RequiredCapability == nil {
		if r.metrics != nil {
			r.metrics.RecordAuthzCheck("resource", true)
		}
		return true, nil
	}

	grants, err := r.GetGrants(ctx, userID)
	if err != nil {
		return false, err
	}

	allowed := grants.HasToken(ParseToken(*matched.RequiredCapability))
	if r.metrics != nil {
		r.metrics.RecordAuthzCheck("resource", allowed)
	}
	return allowed, nil
}

// Navigation returns the navigation tree filtered to entries the user may
// see. A parent with a required capability the user lacks hides its whole
// subtree.
func (r *Resolver) Navigation(ctx context.Context, userID int64) ([]*Resource, error) {
	grants, err := r.GetGrants(ctx, userID)
	if err != nil {
		return nil, err
	}

	resources, err := r.store.ListResources(ctx, ResourceNavigation)
	if err != nil {
		return nil, fmt.Errorf("loading navigation: %w", err)
	}

	visible := make(map[int64]*Resource, len(resources))
	var ordered []*Resource
	for i := range resources {
		res := resources[i]
		if res.RequiredCapability != nil && !grants.HasToken(ParseToken(*res.RequiredCapability)) {
			continue
		}
		node := &res
		visible[node.ID] = node
		ordered = append(ordered, node)
	}

	// Second pass so attachment does not depend on parents sorting before
	// children. A child whose parent was filtered out is dropped with it.
	var roots []*Resource
	for _, node := range ordered {
		if node.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		if parent, ok := visible[*node.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		}
	}

	return roots, nil
}

// Invalidate drops a single user's cached grant set
func (r *Resolver) Invalidate(userID int64) {
	r.cache.Remove(userID)
	if r.metrics != nil {
		r.metrics.CacheInvalidationsTotal.WithLabelValues("user").Inc()
	}
}

// InvalidateAll drops every cached grant set. Used after role or
// vocabulary mutations that affect an unknown set of users.
func (r *Resolver) InvalidateAll() {
	r.cache.Purge()
	if r.metrics != nil {
		r.metrics.CacheInvalidationsTotal.WithLabelValues("all").Inc()
	}
}
