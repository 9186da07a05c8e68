package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a referenced record does not exist
	ErrNotFound = errors.New("not found")
	// ErrSystemRole is returned when deleting a role marked is_system
	ErrSystemRole = errors.New("system roles cannot be deleted")
)

// Store handles persistence for roles, grants, and the resource tree
type Store struct {
	db *sql.DB
}

// NewStore creates a new authz store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UserIsActive reports whether the user exists and is active
func (s *Store) UserIsActive(ctx context.Context, userID int64) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx, `SELECT is_active FROM users WHERE id = $1`, userID).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return active, nil
}

// GetUserRoles returns the active roles held through active assignments
func (s *Store) GetUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	query := `
		SELECT r.id, r.name, r.display_name, r.level, r.is_system, r.is_active, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1 AND ur.is_active = TRUE AND r.is_active = TRUE
		ORDER BY r.level DESC, r.name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(
			&role.ID,
			&role.Name,
			&role.DisplayName,
			&role.Level,
			&role.IsSystem,
			&role.IsActive,
			&role.CreatedAt,
			&role.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// GetUserPermissionGrants returns permission names granted and explicitly
// denied to the user across active role assignments. A name may appear in
// both slices when different roles disagree; the resolver applies the
// deny-wins combining rule.
func (s *Store) GetUserPermissionGrants(ctx context.Context, userID int64) (granted, denied []string, err error) {
	query := `
		SELECT p.name, rp.is_granted
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN roles r ON r.id = rp.role_id
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		  AND ur.is_active = TRUE
		  AND r.is_active = TRUE
		  AND p.is_active = TRUE
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var isGranted bool
		if err := rows.Scan(&name, &isGranted); err != nil {
			return nil, nil, fmt.Errorf("failed to scan permission grant: %w", err)
		}
		if isGranted {
			granted = append(granted, name)
		} else {
			denied = append(denied, name)
		}
	}

	return granted, denied, rows.Err()
}

// GetUserCapabilities returns capability names assigned to the user's
// active roles. Assignment presence is sufficient; there is no deny.
func (s *Store) GetUserCapabilities(ctx context.Context, userID int64) ([]string, error) {
	query := `
		SELECT DISTINCT c.name
		FROM capabilities c
		JOIN role_capabilities rc ON rc.capability_id = c.id
		JOIN roles r ON r.id = rc.role_id
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		  AND ur.is_active = TRUE
		  AND r.is_active = TRUE
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user capabilities: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan capability: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// CreateRole creates a new role
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	query := `
		INSERT INTO roles (name, display_name, level, is_system, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		role.Name,
		role.DisplayName,
		role.Level,
		role.IsSystem,
		role.IsActive,
		now,
		now,
	).Scan(&role.ID)

	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by ID
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	query := `
		SELECT id, name, display_name, level, is_system, is_active, created_at, updated_at
		FROM roles
		WHERE id = $1
	`

	var role Role
	err := s.db.QueryRowContext(ctx, query, roleID).Scan(
		&role.ID,
		&role.Name,
		&role.DisplayName,
		&role.Level,
		&role.IsSystem,
		&role.IsActive,
		&role.CreatedAt,
		&role.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &role, nil
}

// GetRoleByName retrieves a role by its exact name. Role-name
// canonicalization applies to authorization comparisons only, not lookups.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	query := `
		SELECT id, name, display_name, level, is_system, is_active, created_at, updated_at
		FROM roles
		WHERE name = $1
	`

	var role Role
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&role.ID,
		&role.Name,
		&role.DisplayName,
		&role.Level,
		&role.IsSystem,
		&role.IsActive,
		&role.CreatedAt,
		&role.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &role, nil
}

// ListRoles lists all roles
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	query := `
		SELECT id, name, display_name, level, is_system, is_active, created_at, updated_at
		FROM roles
		ORDER BY level DESC, name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(
			&role.ID,
			&role.Name,
			&role.DisplayName,
			&role.Level,
			&role.IsSystem,
			&role.IsActive,
			&role.CreatedAt,
			&role.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// UpdateRole updates a role's display name, level, and active flag
func (s *Store) UpdateRole(ctx context.Context, role *Role) error {
	query := `
		UPDATE roles
		SET display_name = $1, level = $2, is_active = $3, updated_at = $4
		WHERE id = $5
	`

	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		role.DisplayName,
		role.Level,
		role.IsActive,
		now,
		role.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("role %d: %w", role.ID, ErrNotFound)
	}

	role.UpdatedAt = now
	return nil
}

// DeleteRole deletes a role. System roles are protected: their grants stay
// editable but the role itself cannot be removed.
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("role %s: %w", role.Name, ErrSystemRole)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return nil
}

// AssignRole assigns a role to a user, reactivating a previously revoked
// assignment when one exists. The (user, role) pair stays unique.
func (s *Store) AssignRole(ctx context.Context, userID, roleID int64, assignedBy *int64, manual bool) error {
	query := `
		INSERT INTO user_roles (user_id, role_id, is_active, assigned_by, assigned_at, is_manually_assigned)
		VALUES ($1, $2, TRUE, $3, $4, $5)
		ON CONFLICT (user_id, role_id)
		DO UPDATE SET is_active = TRUE, assigned_by = $3, assigned_at = $4, is_manually_assigned = $5
	`

	if _, err := s.db.ExecContext(ctx, query, userID, roleID, assignedBy, time.Now(), manual); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// RevokeRole deactivates a role assignment without deleting the row, so
// the audit fields survive revocation.
func (s *Store) RevokeRole(ctx context.Context, userID, roleID int64) error {
	query := `UPDATE user_roles SET is_active = FALSE WHERE user_id = $1 AND role_id = $2`

	result, err := s.db.ExecContext(ctx, query, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check revoke result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("assignment of role %d to user %d: %w", roleID, userID, ErrNotFound)
	}
	return nil
}

// BulkAssignRole assigns a role to multiple users in a single transaction
func (s *Store) BulkAssignRole(ctx context.Context, userIDs []int64, roleID int64, assignedBy *int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	query := `
		INSERT INTO user_roles (user_id, role_id, is_active, assigned_by, assigned_at, is_manually_assigned)
		VALUES ($1, $2, TRUE, $3, $4, FALSE)
		ON CONFLICT (user_id, role_id)
		DO UPDATE SET is_active = TRUE, assigned_by = $3, assigned_at = $4
	`

	now := time.Now()
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, query, userID, roleID, assignedBy, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to assign role to user %d: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bulk assignment: %w", err)
	}
	return nil
}

// CreatePermission creates a new permission
func (s *Store) CreatePermission(ctx context.Context, perm *Permission) error {
	query := `
		INSERT INTO permissions (name, module, action, resource, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		perm.Name,
		perm.Module,
		perm.Action,
		perm.Resource,
		perm.IsActive,
	).Scan(&perm.ID)

	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

// GetPermissionByName retrieves a permission by name
func (s *Store) GetPermissionByName(ctx context.Context, name string) (*Permission, error) {
	query := `SELECT id, name, module, action, resource, is_active FROM permissions WHERE name = $1`

	var perm Permission
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&perm.ID,
		&perm.Name,
		&perm.Module,
		&perm.Action,
		&perm.Resource,
		&perm.IsActive,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("permission %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}

	return &perm, nil
}

// ListPermissions lists all permissions
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	query := `SELECT id, name, module, action, resource, is_active FROM permissions ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(
			&perm.ID,
			&perm.Name,
			&perm.Module,
			&perm.Action,
			&perm.Resource,
			&perm.IsActive,
		); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, perm)
	}

	return perms, rows.Err()
}

// SetRolePermission grants or explicitly denies a permission on a role
func (s *Store) SetRolePermission(ctx context.Context, roleID, permissionID int64, granted bool) error {
	query := `
		INSERT INTO role_permissions (role_id, permission_id, is_granted, assigned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (role_id, permission_id)
		DO UPDATE SET is_granted = $3, assigned_at = $4
	`

	if _, err := s.db.ExecContext(ctx, query, roleID, permissionID, granted, time.Now()); err != nil {
		return fmt.Errorf("failed to set role permission: %w", err)
	}
	return nil
}

// RemoveRolePermission removes a permission grant record from a role
func (s *Store) RemoveRolePermission(ctx context.Context, roleID, permissionID int64) error {
	query := `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`

	if _, err := s.db.ExecContext(ctx, query, roleID, permissionID); err != nil {
		return fmt.Errorf("failed to remove role permission: %w", err)
	}
	return nil
}

// CreateCapability creates a new capability
func (s *Store) CreateCapability(ctx context.Context, cap *Capability) error {
	query := `
		INSERT INTO capabilities (name, category, description)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		cap.Name,
		cap.Category,
		cap.Description,
	).Scan(&cap.ID)

	if err != nil {
		return fmt.Errorf("failed to create capability: %w", err)
	}
	return nil
}

// GetCapabilityByName retrieves a capability by name
func (s *Store) GetCapabilityByName(ctx context.Context, name string) (*Capability, error) {
	query := `SELECT id, name, category, description FROM capabilities WHERE name = $1`

	var cap Capability
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&cap.ID,
		&cap.Name,
		&cap.Category,
		&cap.Description,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("capability %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capability: %w", err)
	}

	return &cap, nil
}

// ListCapabilities lists all capabilities
func (s *Store) ListCapabilities(ctx context.Context) ([]Capability, error) {
	query := `SELECT id, name, category, description FROM capabilities ORDER BY category ASC, name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list capabilities: %w", err)
	}
	defer rows.Close()

	var caps []Capability
	for rows.Next() {
		var cap Capability
		if err := rows.Scan(&cap.ID, &cap.Name, &cap.Category, &cap.Description); err != nil {
			return nil, fmt.Errorf("failed to scan capability: %w", err)
		}
		caps = append(caps, cap)
	}

	return caps, rows.Err()
}

// AssignCapability assigns a capability to a role. Assignment is
// idempotent; presence alone implies grant.
func (s *Store) AssignCapability(ctx context.Context, roleID, capabilityID int64) error {
	query := `
		INSERT INTO role_capabilities (role_id, capability_id)
		VALUES ($1, $2)
		ON CONFLICT (role_id, capability_id) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, roleID, capabilityID); err != nil {
		return fmt.Errorf("failed to assign capability: %w", err)
	}
	return nil
}

// RemoveCapability removes a capability assignment from a role
func (s *Store) RemoveCapability(ctx context.Context, roleID, capabilityID int64) error {
	query := `DELETE FROM role_capabilities WHERE role_id = $1 AND capability_id = $2`

	if _, err := s.db.ExecContext(ctx, query, roleID, capabilityID); err != nil {
		return fmt.Errorf("failed to remove capability: %w", err)
	}
	return nil
}

// CreateResource creates a new resource tree entry
func (s *Store) CreateResource(ctx context.Context, res *Resource) error {
	query := `
		INSERT INTO resources (type, path, name, parent_id, required_capability, sort_order, is_active, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	var metadata interface{}
	if len(res.Metadata) > 0 {
		metadata = string(res.Metadata)
	}

	err := s.db.QueryRowContext(ctx, query,
		res.Type,
		res.Path,
		res.Name,
		res.ParentID,
		res.RequiredCapability,
		res.SortOrder,
		res.IsActive,
		metadata,
	).Scan(&res.ID)

	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}
	return nil
}

// ListResources lists active resources of the given types, ordered for
// tree assembly
func (s *Store) ListResources(ctx context.Context, types ...ResourceType) ([]Resource, error) {
	query := `
		SELECT id, type, path, name, parent_id, required_capability, sort_order, is_active, metadata
		FROM resources
		WHERE is_active = TRUE
		ORDER BY sort_order ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	wanted := make(map[ResourceType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	var resources []Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		if len(wanted) == 0 || wanted[res.Type] {
			resources = append(resources, *res)
		}
	}

	return resources, rows.Err()
}

// FindResourceByPath finds the active route or api resource matching a
// request path. Method matching against api metadata happens in the
// resolver, since several api rows may share a path.
func (s *Store) FindResourceByPath(ctx context.Context, path string) ([]Resource, error) {
	query := `
		SELECT id, type, path, name, parent_id, required_capability, sort_order, is_active, metadata
		FROM resources
		WHERE is_active = TRUE AND path = $1 AND type IN ('route', 'api')
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, path)
	if err != nil {
		return nil, fmt.Errorf("failed to find resource: %w", err)
	}
	defer rows.Close()

	var resources []Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, *res)
	}

	return resources, rows.Err()
}

// ListTransitionRequirements returns the distinct requirement strings
// declared on active workflow transitions, for the startup consistency
// check.
func (s *Store) ListTransitionRequirements(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT required_permission
		FROM workflow_transitions
		WHERE is_active = TRUE AND required_permission <> ''
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list transition requirements: %w", err)
	}
	defer rows.Close()

	var reqs []string
	for rows.Next() {
		var req string
		if err := rows.Scan(&req); err != nil {
			return nil, fmt.Errorf("failed to scan requirement: %w", err)
		}
		reqs = append(reqs, req)
	}

	return reqs, rows.Err()
}

// scanResource scans a resource from a database row
func scanResource(scanner interface {
	Scan(dest ...interface{}) error
}) (*Resource, error) {
	var res Resource
	var parentID sql.NullInt64
	var requiredCapability, metadata sql.NullString

	err := scanner.Scan(
		&res.ID,
		&res.Type,
		&res.Path,
		&res.Name,
		&parentID,
		&requiredCapability,
		&res.SortOrder,
		&res.IsActive,
		&metadata,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan resource: %w", err)
	}

	if parentID.Valid {
		id := parentID.Int64
		res.ParentID = &id
	}
	if requiredCapability.Valid && requiredCapability.String != "" {
		cap := requiredCapability.String
		res.RequiredCapability = &cap
	}
	if metadata.Valid && metadata.String != "" {
		res.Metadata = []byte(metadata.String)
	}

	return &res, nil
}
