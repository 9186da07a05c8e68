package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/docuvault/docuvault/pkg/authz"
	"github.com/docuvault/docuvault/pkg/observability"
	"github.com/docuvault/docuvault/pkg/workflow"
)

// defaultRoles are created on first startup. The administrator role is the
// superuser spelling; kadiv is a division head, reviewer a mid-level
// approver.
var defaultRoles = []authz.Role{
	{Name: "administrator", DisplayName: "Administrator", Level: 100, IsSystem: true, IsActive: true},
	{Name: "org_kadiv", DisplayName: "Division Head", Level: 60, IsSystem: false, IsActive: true},
	{Name: "reviewer", DisplayName: "Reviewer", Level: 50, IsSystem: false, IsActive: true},
	{Name: "staff", DisplayName: "Staff", Level: 10, IsSystem: false, IsActive: true},
	{Name: "viewer", DisplayName: "Viewer", Level: 0, IsSystem: false, IsActive: true},
}

// rolePermissionGrants maps default roles to their permission grants
var rolePermissionGrants = map[string][]string{
	"org_kadiv": {
		"documents.view", "documents.create", "documents.update",
		"documents.approve", "documents.publish", "documents.archive",
		"documents.history", "pdf.download", "pdf.print", "pdf.copy",
		"dashboard.view",
	},
	"reviewer": {
		"documents.view", "documents.create", "documents.update",
		"documents.history", "pdf.download", "pdf.print", "dashboard.view",
	},
	"staff": {
		"documents.view", "documents.create", "pdf.download", "dashboard.view",
	},
	"viewer": {
		"documents.view", "dashboard.view",
	},
}

// roleCapabilityGrants maps default roles to their capability assignments
var roleCapabilityGrants = map[string][]string{
	"org_kadiv": {"DOCUMENT_APPROVE", "DOCUMENT_PUBLISH", "DOCUMENT_HISTORY_VIEW"},
	"reviewer":  {"DOCUMENT_HISTORY_VIEW"},
}

// Seed populates an empty database with the default roles, the full grant
// vocabularies, role grants, workflow transition edges, and the resource
// tree. Idempotent; existing records are left alone.
func Seed(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	store := authz.NewStore(db)

	if err := seedVocabularies(ctx, store); err != nil {
		return err
	}
	if err := seedRoles(ctx, store); err != nil {
		return err
	}
	if err := seedResources(ctx, store); err != nil {
		return err
	}
	if err := workflow.NewStore(db).SeedDefaults(ctx); err != nil {
		return fmt.Errorf("seeding workflow transitions: %w", err)
	}

	logger.Info("seed data applied")
	return nil
}

// seedVocabularies creates a permission and capability record for every
// bridge table entry, so a fresh database passes the startup consistency
// check.
func seedVocabularies(ctx context.Context, store *authz.Store) error {
	for _, entry := range authz.Bridge() {
		if _, err := store.GetPermissionByName(ctx, entry.Permission); err != nil {
			if !errors.Is(err, authz.ErrNotFound) {
				return fmt.Errorf("seeding permission %s: %w", entry.Permission, err)
			}
			module, action := splitPermission(entry.Permission)
			perm := &authz.Permission{Name: entry.Permission, Module: module, Action: action, IsActive: true}
			if err := store.CreatePermission(ctx, perm); err != nil {
				return fmt.Errorf("seeding permission %s: %w", entry.Permission, err)
			}
		}

		if _, err := store.GetCapabilityByName(ctx, entry.Capability); err != nil {
			if !errors.Is(err, authz.ErrNotFound) {
				return fmt.Errorf("seeding capability %s: %w", entry.Capability, err)
			}
			cap := &authz.Capability{Name: entry.Capability, Category: capabilityCategory(entry.Capability)}
			if err := store.CreateCapability(ctx, cap); err != nil {
				return fmt.Errorf("seeding capability %s: %w", entry.Capability, err)
			}
		}
	}
	return nil
}

func seedRoles(ctx context.Context, store *authz.Store) error {
	for _, role := range defaultRoles {
		role := role
		existing, err := store.GetRoleByName(ctx, role.Name)
		if err == nil {
			role.ID = existing.ID
		} else {
			if !errors.Is(err, authz.ErrNotFound) {
				return fmt.Errorf("seeding role %s: %w", role.Name, err)
			}
			if err := store.CreateRole(ctx, &role); err != nil {
				return fmt.Errorf("seeding role %s: %w", role.Name, err)
			}
		}

		for _, permName := range rolePermissionGrants[role.Name] {
			perm, err := store.GetPermissionByName(ctx, permName)
			if err != nil {
				return fmt.Errorf("granting %s to %s: %w", permName, role.Name, err)
			}
			if err := store.SetRolePermission(ctx, role.ID, perm.ID, true); err != nil {
				return fmt.Errorf("granting %s to %s: %w", permName, role.Name, err)
			}
		}

		for _, capName := range roleCapabilityGrants[role.Name] {
			cap, err := store.GetCapabilityByName(ctx, capName)
			if err != nil {
				return fmt.Errorf("assigning %s to %s: %w", capName, role.Name, err)
			}
			if err := store.AssignCapability(ctx, role.ID, cap.ID); err != nil {
				return fmt.Errorf("assigning %s to %s: %w", capName, role.Name, err)
			}
		}
	}
	return nil
}

// seedResources builds the default navigation tree and the gated API
// entries. Existing resources mean a configured installation; the tree is
// not re-seeded.
func seedResources(ctx context.Context, store *authz.Store) error {
	existing, err := store.ListResources(ctx)
	if err != nil {
		return fmt.Errorf("listing resources: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	capability := func(name string) *string { return &name }
	method := func(m string) json.RawMessage {
		return json.RawMessage(fmt.Sprintf(`{"method":%q}`, m))
	}

	dashboard := &authz.Resource{Type: authz.ResourceNavigation, Path: "/dashboard", Name: "Dashboard", RequiredCapability: capability("DASHBOARD_VIEW"), SortOrder: 1, IsActive: true}
	if err := store.CreateResource(ctx, dashboard); err != nil {
		return fmt.Errorf("seeding resources: %w", err)
	}

	docs := &authz.Resource{Type: authz.ResourceNavigation, Path: "/documents", Name: "Documents", RequiredCapability: capability("DOCUMENT_VIEW"), SortOrder: 2, IsActive: true}
	if err := store.CreateResource(ctx, docs); err != nil {
		return fmt.Errorf("seeding resources: %w", err)
	}

	admin := &authz.Resource{Type: authz.ResourceNavigation, Path: "/admin", Name: "Administration", RequiredCapability: capability("ADMIN_ACCESS"), SortOrder: 9, IsActive: true}
	if err := store.CreateResource(ctx, admin); err != nil {
		return fmt.Errorf("seeding resources: %w", err)
	}

	children := []*authz.Resource{
		{Type: authz.ResourceNavigation, Path: "/admin/roles", Name: "Roles", ParentID: &admin.ID, RequiredCapability: capability("ROLE_MANAGE"), SortOrder: 1, IsActive: true},
		{Type: authz.ResourceNavigation, Path: "/admin/users", Name: "Users", ParentID: &admin.ID, RequiredCapability: capability("USER_MANAGE"), SortOrder: 2, IsActive: true},
		{Type: authz.ResourceAPI, Path: "/api/v1/history/export", RequiredCapability: capability("DOCUMENT_HISTORY_VIEW"), Metadata: method("GET"), IsActive: true},
	}
	for _, res := range children {
		if err := store.CreateResource(ctx, res); err != nil {
			return fmt.Errorf("seeding resources: %w", err)
		}
	}

	return nil
}

func splitPermission(name string) (module, action string) {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) != 2 {
		return name, ""
	}
	return parts[0], parts[1]
}

func capabilityCategory(name string) string {
	parts := strings.SplitN(name, "_", 2)
	return parts[0]
}
