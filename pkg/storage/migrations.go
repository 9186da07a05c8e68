package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/docuvault/docuvault/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create groups and users tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS groups (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					level INT NOT NULL DEFAULT 0
				);

				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					username VARCHAR(255) NOT NULL UNIQUE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					group_id BIGINT REFERENCES groups(id) ON DELETE SET NULL,
					division_id BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_users_email ON users(email);
				CREATE INDEX idx_users_group_id ON users(group_id);
			`,
		},
		{
			Version:     2,
			Description: "Create roles and user_roles tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					level INT NOT NULL DEFAULT 0,
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS user_roles (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					assigned_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					assigned_at TIMESTAMP NOT NULL DEFAULT NOW(),
					is_manually_assigned BOOLEAN NOT NULL DEFAULT FALSE,
					UNIQUE(user_id, role_id)
				);

				CREATE INDEX idx_user_roles_user_id ON user_roles(user_id);
				CREATE INDEX idx_user_roles_role_id ON user_roles(role_id);
			`,
		},
		{
			Version:     3,
			Description: "Create permissions and role_permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					module VARCHAR(255) NOT NULL DEFAULT '',
					action VARCHAR(255) NOT NULL DEFAULT '',
					resource VARCHAR(255) NOT NULL DEFAULT '',
					is_active BOOLEAN NOT NULL DEFAULT TRUE
				);

				CREATE TABLE IF NOT EXISTS role_permissions (
					id BIGSERIAL PRIMARY KEY,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					is_granted BOOLEAN NOT NULL DEFAULT TRUE,
					assigned_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(role_id, permission_id)
				);

				CREATE INDEX idx_role_permissions_role_id ON role_permissions(role_id);
			`,
		},
		{
			Version:     4,
			Description: "Create capabilities and role_capabilities tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS capabilities (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					category VARCHAR(255) NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS role_capabilities (
					id BIGSERIAL PRIMARY KEY,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					capability_id BIGINT NOT NULL REFERENCES capabilities(id) ON DELETE CASCADE,
					UNIQUE(role_id, capability_id)
				);

				CREATE INDEX idx_role_capabilities_role_id ON role_capabilities(role_id);
			`,
		},
		{
			Version:     5,
			Description: "Create resources table",
			SQL: `
				CREATE TABLE IF NOT EXISTS resources (
					id BIGSERIAL PRIMARY KEY,
					type VARCHAR(50) NOT NULL,
					path VARCHAR(500) NOT NULL,
					name VARCHAR(255) NOT NULL DEFAULT '',
					parent_id BIGINT REFERENCES resources(id) ON DELETE SET NULL,
					required_capability VARCHAR(255),
					sort_order INT NOT NULL DEFAULT 0,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					metadata TEXT
				);

				CREATE INDEX idx_resources_type ON resources(type);
				CREATE INDEX idx_resources_path ON resources(path);
				CREATE INDEX idx_resources_parent_id ON resources(parent_id);
			`,
		},
		{
			Version:     6,
			Description: "Create documents table",
			SQL: `
				CREATE TABLE IF NOT EXISTS documents (
					id BIGSERIAL PRIMARY KEY,
					title VARCHAR(500) NOT NULL,
					description TEXT,
					file_name VARCHAR(500),
					mime_type VARCHAR(255),
					file_size BIGINT,
					status VARCHAR(50) NOT NULL,
					is_public BOOLEAN NOT NULL DEFAULT FALSE,
					access_rules TEXT NOT NULL DEFAULT '[]',
					created_by BIGINT NOT NULL REFERENCES users(id),
					parent_document_id BIGINT REFERENCES documents(id) ON DELETE SET NULL,
					hierarchy_level INT NOT NULL DEFAULT 0,
					hierarchy_path VARCHAR(1000),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_documents_status ON documents(status);
				CREATE INDEX idx_documents_created_by ON documents(created_by);
				CREATE INDEX idx_documents_parent_id ON documents(parent_document_id);
			`,
		},
		{
			Version:     7,
			Description: "Create workflow_transitions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS workflow_transitions (
					id BIGSERIAL PRIMARY KEY,
					from_status VARCHAR(50) NOT NULL,
					to_status VARCHAR(50) NOT NULL,
					description VARCHAR(500) NOT NULL DEFAULT '',
					min_level INT NOT NULL DEFAULT 0,
					required_permission VARCHAR(255) NOT NULL DEFAULT '',
					required_roles TEXT NOT NULL DEFAULT '[]',
					is_active BOOLEAN NOT NULL DEFAULT TRUE
				);

				CREATE INDEX idx_workflow_transitions_from ON workflow_transitions(from_status);
			`,
		},
		{
			Version:     8,
			Description: "Create document_history table",
			SQL: `
				CREATE TABLE IF NOT EXISTS document_history (
					id BIGSERIAL PRIMARY KEY,
					document_id BIGINT NOT NULL,
					action VARCHAR(100) NOT NULL,
					user_id BIGINT,
					username VARCHAR(255),
					from_status VARCHAR(50),
					to_status VARCHAR(50),
					reason TEXT,
					request_id VARCHAR(100),
					ip_address VARCHAR(45),
					metadata TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_document_history_document_id ON document_history(document_id);
				CREATE INDEX idx_document_history_created_at ON document_history(created_at);
				CREATE INDEX idx_document_history_action ON document_history(action);
			`,
		},
		{
			Version:     9,
			Description: "Migrate legacy PENDING_REVIEW statuses to IN_REVIEW",
			SQL: `
				UPDATE documents SET status = 'IN_REVIEW' WHERE status = 'PENDING_REVIEW';
				UPDATE workflow_transitions SET from_status = 'IN_REVIEW' WHERE from_status = 'PENDING_REVIEW';
				UPDATE workflow_transitions SET to_status = 'IN_REVIEW' WHERE to_status = 'PENDING_REVIEW';
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS docuvault_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM docuvault_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO docuvault_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
