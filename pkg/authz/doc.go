// Package authz implements the access resolution engine.
//
// Two grant vocabularies coexist, for historical reasons:
//
//   - Permissions: fine-grained "module.action" strings (documents.update,
//     pdf.download) granted per role through role_permissions rows. A row
//     with is_granted=false is an explicit deny and wins over any grant from
//     another role.
//   - Capabilities: coarse "CATEGORY_ACTION" strings (DOCUMENT_EDIT,
//     DASHBOARD_VIEW) granted per role through role_capabilities rows.
//     Presence implies grant; there is no deny.
//
// The two vocabularies are bridged by an explicit mapping table (see
// bridge.go). Call sites that accept a requirement string in either
// vocabulary resolve it through Token and GrantSet.HasToken, which consults
// both sets plus the bridge.
//
// The Resolver computes a user's effective GrantSet, the union of grants
// across all active role assignments, and caches it for a bounded window.
// The cache TTL is the authorization propagation window: changes to roles or
// grants become visible to running sessions only after the window elapses.
// Administrative mutations invalidate the cache eagerly, but session tokens
// carry baked grants that refresh on their own schedule (see pkg/session).
//
// Users holding a superuser role (admin, administrator, org_administrator,
// matched case-insensitively) pass every capability and level check. The
// flag is derived once per resolution so no call site needs to re-match
// role-name spellings.
package authz
