package authz

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/docuvault/docuvault/pkg/httputil"
	"github.com/docuvault/docuvault/pkg/middleware"
	"github.com/docuvault/docuvault/pkg/observability"
)

// Handler exposes the role and grant management API. Every mutation
// invalidates the grant cache; user-scoped mutations invalidate one entry,
// role and vocabulary mutations invalidate everything since the affected
// user set is unknown.
type Handler struct {
	store    *Store
	resolver *Resolver
	logger   *observability.Logger
}

// NewHandler creates the management API handler
func NewHandler(store *Store, resolver *Resolver, logger *observability.Logger) *Handler {
	return &Handler{store: store, resolver: resolver, logger: logger}
}

// RegisterRoutes registers management routes on the given router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/roles/{id}", h.GetRole).Methods("GET")
	router.HandleFunc("/roles/{id}", h.UpdateRole).Methods("PUT")
	router.HandleFunc("/roles/{id}", h.DeleteRole).Methods("DELETE")
	router.HandleFunc("/roles/{id}/permissions", h.SetRolePermission).Methods("POST")
	router.HandleFunc("/roles/{id}/permissions/{permissionId}", h.RemoveRolePermission).Methods("DELETE")
	router.HandleFunc("/roles/{id}/capabilities", h.AssignCapability).Methods("POST")
	router.HandleFunc("/roles/{id}/capabilities/{capabilityId}", h.RemoveCapability).Methods("DELETE")

	router.HandleFunc("/users/{id}/roles", h.ListUserRoles).Methods("GET")
	router.HandleFunc("/users/{id}/roles", h.AssignRole).Methods("POST")
	router.HandleFunc("/users/{id}/roles/{roleId}", h.RevokeRole).Methods("DELETE")
	router.HandleFunc("/users/{id}/grants", h.GetUserGrants).Methods("GET")
	router.HandleFunc("/roles/{id}/bulk-assign", h.BulkAssignRole).Methods("POST")

	router.HandleFunc("/permissions", h.ListPermissions).Methods("GET")
	router.HandleFunc("/permissions", h.CreatePermission).Methods("POST")
	router.HandleFunc("/capabilities", h.ListCapabilities).Methods("GET")
	router.HandleFunc("/capabilities", h.CreateCapability).Methods("POST")

	router.HandleFunc("/resources", h.ListResources).Methods("GET")
	router.HandleFunc("/resources", h.CreateResource).Methods("POST")

	router.HandleFunc("/bridge", h.GetBridge).Methods("GET")
	router.HandleFunc("/consistency-check", h.RunConsistencyCheck).Methods("POST")
	router.HandleFunc("/cache/invalidate", h.InvalidateCache).Methods("POST")
}

// ListRoles handles GET /roles
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list roles")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// CreateRole handles POST /roles
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
		Level       int    `json:"level"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	role := &Role{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Level:       req.Level,
		IsActive:    true,
	}
	if err := h.store.CreateRole(r.Context(), role); err != nil {
		h.logger.WithError(err).Error("failed to create role")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, role)
}

// GetRole handles GET /roles/{id}
func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "role not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, role)
}

// UpdateRole handles PUT /roles/{id}
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		DisplayName string `json:"display_name"`
		Level       int    `json:"level"`
		IsActive    *bool  `json:"is_active"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "role not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	role.DisplayName = req.DisplayName
	role.Level = req.Level
	if req.IsActive != nil {
		role.IsActive = *req.IsActive
	}
	if err := h.store.UpdateRole(r.Context(), role); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.resolver.InvalidateAll()
	httputil.WriteSuccess(w, role)
}

// DeleteRole handles DELETE /roles/{id}. System roles are refused.
func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteRole(r.Context(), roleID); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httputil.WriteNotFoundError(w, "role not found")
		case errors.Is(err, ErrSystemRole):
			httputil.WriteConflict(w, "system roles cannot be deleted")
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	h.resolver.InvalidateAll()
	httputil.WriteNoContent(w)
}

// SetRolePermission handles POST /roles/{id}/permissions, granting or
// explicitly denying a permission on the role.
func (h *Handler) SetRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		PermissionID int64 `json:"permission_id"`
		IsGranted    *bool `json:"is_granted"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	granted := true
	if req.IsGranted != nil {
		granted = *req.IsGranted
	}

	if err := h.store.SetRolePermission(r.Context(), roleID, req.PermissionID, granted); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.resolver.InvalidateAll()
	httputil.WriteNoContent(w)
}

// RemoveRolePermission handles DELETE /roles/{id}/permissions/{permissionId}
func (h *Handler) RemoveRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	permissionID, ok := httputil.ParsePathInt64OrError(w, r, "permissionId")
	if !ok {
		return
	}

	if err := h.store.RemoveRolePermission(r.Context(), roleID, permissionID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.resolver.InvalidateAll()
	httputil.WriteNoContent(w)
}

// AssignCapability handles POST /roles/{id}/capabilities
func (h *Handler) AssignCapability(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		CapabilityID int64 `json:"capability_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.store.AssignCapability(r.Context(), roleID, req.CapabilityID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.resolver.InvalidateAll()
	httputil.WriteNoContent(w)
}

// RemoveCapability handles DELETE /roles/{id}/capabilities/{capabilityId}
func (h *Handler) RemoveCapability(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	capabilityID, ok := httputil.ParsePathInt64OrError(w, r, "capabilityId")
	if !ok {
		return
	}

	if err := h.store.RemoveCapability(r.Context(), roleID, capabilityID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.resolver.InvalidateAll()
	httputil.WriteNoContent(w)
}

// ListUserRoles handles GET /users/{id}/roles
func (h *Handler) ListUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	roles, err := h.store.GetUserRoles(r.Context(), userID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// AssignRole handles POST /users/{id}/roles
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		RoleID int64 `json:"role_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	var assignedBy *int64
	if authCtx := middleware.GetAuthContext(r.Context()); authCtx != nil {
		id := authCtx.User.ID
		assignedBy = &id
	}

	if err := h.store.AssignRole(r.Context(), userID, req.RoleID, assignedBy, true); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.resolver.Invalidate(userID)
	httputil.WriteNoContent(w)
}

// RevokeRole handles DELETE /users/{id}/roles/{roleId}
func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "roleId")
	if !ok {
		return
	}

	if err := h.store.RevokeRole(r.Context(), userID, roleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "role assignment not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	h.resolver.Invalidate(userID)
	httputil.WriteNoContent(w)
}

// BulkAssignRole handles POST /roles/{id}/bulk-assign
func (h *Handler) BulkAssignRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		UserIDs []int64 `json:"user_ids"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.UserIDs) == 0 {
		httputil.WriteValidationError(w, "user_ids is required")
		return
	}

	var assignedBy *int64
	if authCtx := middleware.GetAuthContext(r.Context()); authCtx != nil {
		id := authCtx.User.ID
		assignedBy = &id
	}

	if err := h.store.BulkAssignRole(r.Context(), req.UserIDs, roleID, assignedBy); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	for _, userID := range req.UserIDs {
		h.resolver.Invalidate(userID)
	}
	httputil.WriteSuccessMessage(w, "role assigned", map[string]int{"assigned": len(req.UserIDs)})
}

// GetUserGrants handles GET /users/{id}/grants, returning the resolved
// effective grant set. Bypasses nothing: inactive users resolve to an
// error here exactly as they would at check time.
func (h *Handler) GetUserGrants(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	grants, err := h.resolver.GetGrants(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserInactive) {
			httputil.WriteNotFoundError(w, "user is inactive or does not exist")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":      grants.UserID,
		"permissions":  grants.PermissionNames(),
		"capabilities": grants.CapabilityNames(),
		"roles":        grants.Roles,
		"max_level":    grants.MaxLevel,
		"superuser":    grants.Superuser,
		"resolved_at":  grants.ResolvedAt,
	})
}

// ListPermissions handles GET /permissions
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// CreatePermission handles POST /permissions. The name must parse as a
// permission token so stored vocabulary stays well-shaped.
func (h *Handler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Module   string `json:"module"`
		Action   string `json:"action"`
		Resource string `json:"resource"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if tok := ParseToken(req.Name); tok.Kind != KindPermission {
		httputil.WriteValidationError(w, "permission names must be lowercase module.action")
		return
	}

	perm := &Permission{
		Name:     req.Name,
		Module:   req.Module,
		Action:   req.Action,
		Resource: req.Resource,
		IsActive: true,
	}
	if err := h.store.CreatePermission(r.Context(), perm); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, perm)
}

// ListCapabilities handles GET /capabilities
func (h *Handler) ListCapabilities(w http.ResponseWriter, r *http.Request) {
	caps, err := h.store.ListCapabilities(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, caps)
}

// CreateCapability handles POST /capabilities. The name must parse as a
// capability token.
func (h *Handler) CreateCapability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Category    string `json:"category"`
		Description string `json:"description"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if tok := ParseToken(req.Name); tok.Kind != KindCapability {
		httputil.WriteValidationError(w, "capability names must be uppercase CATEGORY_ACTION")
		return
	}

	cap := &Capability{
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
	}
	if err := h.store.CreateCapability(r.Context(), cap); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, cap)
}

// ListResources handles GET /resources
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.store.ListResources(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, resources)
}

// CreateResource handles POST /resources
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var req Resource
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Path, "path") {
		return
	}
	switch req.Type {
	case ResourceNavigation, ResourceRoute, ResourceAPI:
	default:
		httputil.WriteValidationError(w, "type must be navigation, route, or api")
		return
	}

	req.IsActive = true
	if err := h.store.CreateResource(r.Context(), &req); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, &req)
}

// GetBridge handles GET /bridge, exposing the vocabulary mapping table
func (h *Handler) GetBridge(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, Bridge())
}

// RunConsistencyCheck handles POST /consistency-check, re-running the
// startup vocabulary check on demand.
func (h *Handler) RunConsistencyCheck(w http.ResponseWriter, r *http.Request) {
	findings, err := CheckConsistency(r.Context(), h.store, h.logger)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if findings == nil {
		findings = []string{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"consistent": len(findings) == 0,
		"findings":   findings,
	})
}

// InvalidateCache handles POST /cache/invalidate. With a user_id it drops
// one entry, without it drops everything.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID *int64 `json:"user_id"`
	}
	// An empty body means invalidate everything
	_ = httputil.ParseJSON(r, &req)

	if req.UserID != nil {
		h.resolver.Invalidate(*req.UserID)
		httputil.WriteSuccessMessage(w, "cache entry invalidated", nil)
		return
	}

	h.resolver.InvalidateAll()
	httputil.WriteSuccessMessage(w, "cache cleared", nil)
}
