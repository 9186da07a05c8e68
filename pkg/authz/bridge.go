package authz

import (
	"context"
	"fmt"

	"github.com/docuvault/docuvault/pkg/observability"
)

// BridgeEntry pairs a legacy permission name with its capability
// counterpart. The table is deliberately a single inspectable structure
// rather than string literals scattered across call sites, so drift between
// the two vocabularies is detectable by CheckConsistency instead of manual
// audits.
type BridgeEntry struct {
	Permission string `json:"permission"`
	Capability string `json:"capability"`
}

// bridgeTable is the hardcoded mapping between the two grant vocabularies.
// Not every permission has a capability counterpart and vice versa; only
// the pairs that historically gated the same operation are bridged.
var bridgeTable = []BridgeEntry{
	{Permission: "documents.view", Capability: "DOCUMENT_VIEW"},
	{Permission: "documents.create", Capability: "DOCUMENT_CREATE"},
	{Permission: "documents.update", Capability: "DOCUMENT_EDIT"},
	{Permission: "documents.delete", Capability: "DOCUMENT_DELETE"},
	{Permission: "documents.approve", Capability: "DOCUMENT_APPROVE"},
	{Permission: "documents.publish", Capability: "DOCUMENT_PUBLISH"},
	{Permission: "documents.archive", Capability: "DOCUMENT_ARCHIVE"},
	{Permission: "documents.history", Capability: "DOCUMENT_HISTORY_VIEW"},
	{Permission: "pdf.download", Capability: "DOCUMENT_DOWNLOAD"},
	{Permission: "pdf.print", Capability: "DOCUMENT_PRINT"},
	{Permission: "pdf.copy", Capability: "DOCUMENT_COPY"},
	{Permission: "dashboard.view", Capability: "DASHBOARD_VIEW"},
	{Permission: "admin.access", Capability: "ADMIN_ACCESS"},
	{Permission: "users.manage", Capability: "USER_MANAGE"},
	{Permission: "roles.manage", Capability: "ROLE_MANAGE"},
}

var (
	permToCap = make(map[string]string, len(bridgeTable))
	capToPerm = make(map[string]string, len(bridgeTable))
)

func init() {
	for _, e := range bridgeTable {
		permToCap[e.Permission] = e.Capability
		capToPerm[e.Capability] = e.Permission
	}
}

// Bridge returns a copy of the permission/capability mapping table
func Bridge() []BridgeEntry {
	out := make([]BridgeEntry, len(bridgeTable))
	copy(out, bridgeTable)
	return out
}

// BridgeToCapability returns the capability counterpart of a permission name
func BridgeToCapability(permission string) (string, bool) {
	cap, ok := permToCap[permission]
	return cap, ok
}

// BridgeToPermission returns the permission counterpart of a capability name
func BridgeToPermission(capability string) (string, bool) {
	perm, ok := capToPerm[capability]
	return perm, ok
}

// CheckConsistency verifies at startup that the bridge table and every
// stored requirement string resolve against the live vocabularies. Findings
// are logged as configuration warnings; check sites already deny unknown
// requirements, so a finding here means some operation is silently
// ungrantable, not silently granted.
func CheckConsistency(ctx context.Context, store *Store, logger *observability.Logger) ([]string, error) {
	permissions, err := store.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing permissions: %w", err)
	}
	capabilities, err := store.ListCapabilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing capabilities: %w", err)
	}

	knownPerms := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		knownPerms[p.Name] = struct{}{}
	}
	knownCaps := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		knownCaps[c.Name] = struct{}{}
	}

	var findings []string

	for _, e := range bridgeTable {
		if _, ok := knownPerms[e.Permission]; !ok {
			findings = append(findings, fmt.Sprintf("bridge permission %q has no permission record", e.Permission))
		}
		if _, ok := knownCaps[e.Capability]; !ok {
			findings = append(findings, fmt.Sprintf("bridge capability %q has no capability record", e.Capability))
		}
	}

	requirements, err := store.ListTransitionRequirements(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing transition requirements: %w", err)
	}
	for _, req := range requirements {
		tok := ParseToken(req)
		switch tok.Kind {
		case KindPermission:
			if _, ok := knownPerms[req]; !ok {
				findings = append(findings, fmt.Sprintf("transition requirement %q matches no permission", req))
			}
		case KindCapability:
			if _, ok := knownCaps[req]; !ok {
				findings = append(findings, fmt.Sprintf("transition requirement %q matches no capability", req))
			}
		default:
			findings = append(findings, fmt.Sprintf("transition requirement %q matches neither vocabulary", req))
		}
	}

	if logger != nil {
		for _, f := range findings {
			logger.WithField("finding", f).Warn("authorization vocabulary inconsistency")
		}
	}

	return findings, nil
}
