package authz

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database with the authorization
// schema
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			username TEXT NOT NULL UNIQUE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			group_id INTEGER,
			division_id INTEGER,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			level INTEGER NOT NULL DEFAULT 0,
			is_system BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE user_roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			role_id INTEGER NOT NULL REFERENCES roles(id),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			assigned_by INTEGER,
			assigned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			is_manually_assigned BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE(user_id, role_id)
		);

		CREATE TABLE permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			module TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL DEFAULT '',
			resource TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		);

		CREATE TABLE role_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_id INTEGER NOT NULL REFERENCES roles(id),
			permission_id INTEGER NOT NULL REFERENCES permissions(id),
			is_granted BOOLEAN NOT NULL DEFAULT TRUE,
			assigned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(role_id, permission_id)
		);

		CREATE TABLE capabilities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE role_capabilities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_id INTEGER NOT NULL REFERENCES roles(id),
			capability_id INTEGER NOT NULL REFERENCES capabilities(id),
			UNIQUE(role_id, capability_id)
		);

		CREATE TABLE resources (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			path TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			parent_id INTEGER,
			required_capability TEXT,
			sort_order INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			metadata TEXT
		);

		CREATE TABLE workflow_transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			required_permission TEXT NOT NULL DEFAULT '',
			required_roles TEXT NOT NULL DEFAULT '[]',
			min_level INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		);
	`)
	require.NoError(t, err)

	return db
}

// createTestUser inserts an active user and returns its ID
func createTestUser(t *testing.T, db *sql.DB, username string) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(
		`INSERT INTO users (email, username) VALUES ($1, $2) RETURNING id`,
		username+"@example.com", username,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// createTestRole inserts a role and returns its ID
func createTestRole(t *testing.T, db *sql.DB, name string, level int) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(
		`INSERT INTO roles (name, display_name, level) VALUES ($1, $2, $3) RETURNING id`,
		name, name, level,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// assignTestRole links a user to a role
func assignTestRole(t *testing.T, db *sql.DB, userID, roleID int64) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO user_roles (user_id, role_id, assigned_at) VALUES ($1, $2, $3)`,
		userID, roleID, time.Now(),
	)
	require.NoError(t, err)
}

// grantTestPermission creates a permission if needed and grants or denies
// it on a role
func grantTestPermission(t *testing.T, db *sql.DB, roleID int64, name string, granted bool) {
	t.Helper()
	ctx := context.Background()
	store := NewStore(db)

	perm, err := store.GetPermissionByName(ctx, name)
	if err != nil {
		perm = &Permission{Name: name, IsActive: true}
		require.NoError(t, store.CreatePermission(ctx, perm))
	}
	require.NoError(t, store.SetRolePermission(ctx, roleID, perm.ID, granted))
}

// grantTestCapability creates a capability if needed and assigns it to a role
func grantTestCapability(t *testing.T, db *sql.DB, roleID int64, name string) {
	t.Helper()
	ctx := context.Background()
	store := NewStore(db)

	cap, err := store.GetCapabilityByName(ctx, name)
	if err != nil {
		cap = &Capability{Name: name}
		require.NoError(t, store.CreateCapability(ctx, cap))
	}
	require.NoError(t, store.AssignCapability(ctx, roleID, cap.ID))
}
