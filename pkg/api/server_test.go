package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuvault/docuvault/pkg/config"
	"github.com/docuvault/docuvault/pkg/documents"
	"github.com/docuvault/docuvault/pkg/observability"
	"github.com/docuvault/docuvault/pkg/workflow"
)

const testSchema = `
	CREATE TABLE groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		level INTEGER NOT NULL DEFAULT 0
	);

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

	CREATE TABLE documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT,
		file_name TEXT,
		mime_type TEXT,
		file_size INTEGER,
		status TEXT NOT NULL,
		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		access_rules TEXT NOT NULL DEFAULT '[]',
		created_by INTEGER NOT NULL,
		parent_document_id INTEGER,
		hierarchy_level INTEGER NOT NULL DEFAULT 0,
		hierarchy_path TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE workflow_transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		min_level INTEGER NOT NULL DEFAULT 0,
		required_permission TEXT NOT NULL DEFAULT '',
		required_roles TEXT NOT NULL DEFAULT '[]',
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE document_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		user_id INTEGER,
		username TEXT,
		from_status TEXT,
		to_status TEXT,
		reason TEXT,
		request_id TEXT,
		ip_address TEXT,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL
	);
`

type testEnv struct {
	server *Server
	db     *sql.DB
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &config.Config{
		Session: config.SessionConfig{
			SigningKey:        "test-signing-key-32-bytes-long!!",
			Issuer:            "docuvault-test",
			TokenExpiry:       time.Hour,
			RefreshExpiry:     time.Hour,
			PropagationWindow: time.Minute,
		},
		Authz: config.AuthzConfig{
			CacheTTL:  time.Minute,
			CacheSize: 64,
		},
	}

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(nil)

	server, err := NewServer(cfg, db, client, logger, metrics)
	require.NoError(t, err)

	require.NoError(t, workflow.NewStore(db).SeedDefaults(context.Background()))

	return &testEnv{server: server, db: db}
}

// seedUser inserts a user with a role carrying the given level,
// permissions, and capabilities, and returns the user ID.
func (e *testEnv) seedUser(t *testing.T, email, roleName string, level int, perms, caps []string) int64 {
	t.Helper()

	var userID int64
	err := e.db.QueryRow(
		`INSERT INTO users (email, username) VALUES ($1, $2) RETURNING id`,
		email, email,
	).Scan(&userID)
	require.NoError(t, err)

	var roleID int64
	err = e.db.QueryRow(
		`INSERT INTO roles (name, display_name, level) VALUES ($1, $1, $2)
		 ON CONFLICT (name) DO UPDATE SET level = $2
		 RETURNING id`,
		roleName, level,
	).Scan(&roleID)
	require.NoError(t, err)

	_, err = e.db.Exec(`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, userID, roleID)
	require.NoError(t, err)

	for _, name := range perms {
		var permID int64
		err = e.db.QueryRow(
			`INSERT INTO permissions (name) VALUES ($1)
			 ON CONFLICT (name) DO UPDATE SET name = $1
			 RETURNING id`,
			name,
		).Scan(&permID)
		require.NoError(t, err)
		_, err = e.db.Exec(
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
			 ON CONFLICT (role_id, permission_id) DO NOTHING`,
			roleID, permID,
		)
		require.NoError(t, err)
	}

	for _, name := range caps {
		var capID int64
		err = e.db.QueryRow(
			`INSERT INTO capabilities (name) VALUES ($1)
			 ON CONFLICT (name) DO UPDATE SET name = $1
			 RETURNING id`,
			name,
		).Scan(&capID)
		require.NoError(t, err)
		_, err = e.db.Exec(
			`INSERT INTO role_capabilities (role_id, capability_id) VALUES ($1, $2)
			 ON CONFLICT (role_id, capability_id) DO NOTHING`,
			roleID, capID,
		)
		require.NoError(t, err)
	}

	return userID
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, email string) tokenResponse {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp
}

func TestServer_LoginAndAuthenticatedRequest(t *testing.T) {
	env := setupTestServer(t)
	env.seedUser(t, "alice@example.com", "staff", 10, []string{"documents.view"}, nil)

	resp := env.login(t, "alice@example.com")
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.Contains(t, resp.Claims.Permissions, "documents.view")

	rec := env.do(t, http.MethodGet, "/api/v1/me", resp.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/documents", resp.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// No token, bad token.
	rec = env.do(t, http.MethodGet, "/api/v1/documents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/documents", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_Login_RejectsUnknownAndInactive(t *testing.T) {
	env := setupTestServer(t)
	userID := env.seedUser(t, "bob@example.com", "staff", 10, nil, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, err := env.db.Exec(`UPDATE users SET is_active = FALSE WHERE id = $1`, userID)
	require.NoError(t, err)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "bob@example.com"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_RefreshRotatesToken(t *testing.T) {
	env := setupTestServer(t)
	env.seedUser(t, "alice@example.com", "staff", 10, nil, nil)

	resp := env.login(t, "alice@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": resp.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var refreshed tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refreshed))
	assert.NotEmpty(t, refreshed.Token)
	assert.NotEqual(t, resp.RefreshToken, refreshed.RefreshToken)

	// The presented refresh token was burned.
	rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": resp.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_LogoutRevokesRefreshToken(t *testing.T) {
	env := setupTestServer(t)
	env.seedUser(t, "alice@example.com", "staff", 10, nil, nil)

	resp := env.login(t, "alice@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/auth/logout", "", map[string]string{"refresh_token": resp.RefreshToken})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": resp.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_AdminSurfaceGated(t *testing.T) {
	env := setupTestServer(t)
	env.seedUser(t, "staffer@example.com", "staff", 10, nil, nil)
	env.seedUser(t, "root@example.com", "administrator", 100, nil, nil)

	staff := env.login(t, "staffer@example.com")
	rec := env.do(t, http.MethodGet, "/api/v1/admin/roles", staff.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The administrator role derives the superuser flag, which passes the
	// ADMIN_ACCESS gate without an explicit capability record.
	root := env.login(t, "root@example.com")
	require.True(t, root.Claims.Superuser)
	rec = env.do(t, http.MethodGet, "/api/v1/admin/roles", root.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_DocumentLifecycle(t *testing.T) {
	env := setupTestServer(t)
	env.seedUser(t, "head@example.com", "org_kadiv", 60,
		[]string{"documents.view", "documents.create", "documents.update", "documents.approve"}, nil)

	token := env.login(t, "head@example.com").Token

	rec := env.do(t, http.MethodPost, "/api/v1/documents", token, map[string]interface{}{"title": "Q3 Plan"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var doc documents.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, documents.StatusDraft, doc.Status)

	base := fmt.Sprintf("/api/v1/documents/%d/transitions", doc.ID)

	rec = env.do(t, http.MethodGet, base, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, base, token, map[string]string{"to_status": documents.StatusInReview})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, base, token, map[string]string{"to_status": documents.StatusPendingApproval})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Replaying the first transition now conflicts.
	rec = env.do(t, http.MethodPost, base, token, map[string]string{"to_status": documents.StatusInReview})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_HealthEndpoints(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
