package workflow

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuvault/docuvault/pkg/authz"
	"github.com/docuvault/docuvault/pkg/documents"
	"github.com/docuvault/docuvault/pkg/history"
	"github.com/docuvault/docuvault/pkg/identity"
	"github.com/docuvault/docuvault/pkg/observability"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
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
	`)
	require.NoError(t, err)

	return db
}

func newTestEngine(t *testing.T, db *sql.DB) (*Engine, *documents.Store, *history.DBLogger) {
	t.Helper()

	trail, err := history.NewDBLogger(db)
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	docs := documents.NewStore(db)
	engine := NewEngine(NewStore(db), docs, trail, logger, nil)
	return engine, docs, trail
}

func seedTransitions(t *testing.T, db *sql.DB) {
	t.Helper()
	require.NoError(t, NewStore(db).SeedDefaults(context.Background()))
}

func createTestDocument(t *testing.T, docs *documents.Store, status string) *documents.Document {
	t.Helper()

	doc := &documents.Document{Title: "Proposal", CreatedBy: 1, Status: status}
	require.NoError(t, docs.CreateDocument(context.Background(), doc))
	return doc
}

func testUser() *identity.User {
	return &identity.User{ID: 42, Username: "alice", IsActive: true}
}

func grantsWith(level int, roles []string, permissions ...string) *authz.GrantSet {
	g := &authz.GrantSet{
		Permissions:  map[string]struct{}{},
		Capabilities: map[string]struct{}{},
		MaxLevel:     level,
	}
	for _, r := range roles {
		g.Roles = append(g.Roles, authz.RoleGrant{Name: r, Level: level})
	}
	for _, p := range permissions {
		g.Permissions[p] = struct{}{}
	}
	return g
}

func rejectionOf(t *testing.T, err error) *RejectionError {
	t.Helper()
	var rej *RejectionError
	require.True(t, errors.As(err, &rej), "expected a rejection, got %v", err)
	return rej
}

// A junior reviewer sees only the edges within their level; a senior one
// sees the full set out of IN_REVIEW.
func TestEngine_GetAllowedTransitions_FiltersByLevel(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	seedTransitions(t, db)
	engine, docs, _ := newTestEngine(t, db)

	doc := createTestDocument(t, docs, documents.StatusInReview)

	junior := grantsWith(10, []string{"staff"}, "documents.update")
	allowed, err := engine.GetAllowedTransitions(ctx, junior, doc)
	require.NoError(t, err)
	assert.Empty(t, allowed, "level 10 clears none of the level 50 edges")

	senior := grantsWith(50, []string{"reviewer"}, "documents.update")
	allowed, err = engine.GetAllowedTransitions(ctx, senior, doc)
	require.NoError(t, err)
	targets := make([]string, 0, len(allowed))
	for _, a := range allowed {
		targets = append(targets, a.ToStatus)
	}
	assert.ElementsMatch(t, []string{
		documents.StatusPendingApproval,
		documents.StatusRejected,
		documents.StatusDraft,
	}, targets)
}

func TestEngine_ApplyTransition_Success(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	seedTransitions(t, db)
	engine, docs, trail := newTestEngine(t, db)

	doc := createTestDocument(t, docs, documents.StatusInReview)
	grants := grantsWith(60, []string{"org_kadiv"}, "documents.update")

	require.NoError(t, engine.ApplyTransition(ctx, testUser(), grants, doc, documents.StatusPendingApproval, "ready for sign-off"))
	assert.Equal(t, documents.StatusPendingApproval, doc.Status)

	reloaded, err := docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusPendingApproval, reloaded.Status)

	entries, err := trail.Search(ctx, history.SearchFilter{DocumentID: &doc.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, history.ActionTransition, entries[0].Action)
	assert.Equal(t, documents.StatusInReview, entries[0].FromStatus)
	assert.Equal(t, documents.StatusPendingApproval, entries[0].ToStatus)
	assert.Equal(t, "ready for sign-off", entries[0].Reason)
	require.NotNil(t, entries[0].UserID)
	assert.Equal(t, int64(42), *entries[0].UserID)
}

func TestEngine_ApplyTransition_RejectsByLevel(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	seedTransitions(t, db)
	engine, docs, _ := newTestEngine(t, db)

	doc := createTestDocument(t, docs, documents.StatusInReview)
	grants := grantsWith(10, []string{"staff"}, "documents.update")

	err := engine.ApplyTransition(ctx, testUser(), grants, doc, documents.StatusPendingApproval, "")
	assert.Equal(t, ReasonRoleLevel, rejectionOf(t, err).Reason)

	// Rejection leaves the document untouched.
	reloaded, err := docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusInReview, reloaded.Status)
}

func TestEngine_ApplyTransition_RejectsMissingGrant(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	seedTransitions(t, db)
	engine, docs, _ := newTestEngine(t, db)

	doc := createTestDocument(t, docs, documents.StatusInReview)
	grants := grantsWith(60, []string{"org_kadiv"}) // level is fine, grant missing

	err := engine.ApplyTransition(ctx, testUser(), grants, doc, documents.StatusPendingApproval, "")
	assert.Equal(t, ReasonMissingGrant, rejectionOf(t, err).Reason)
}

func TestEngine_ApplyTransition_RoleRequirementNormalized(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	engine, docs, _ := newTestEngine(t, db)

	store := NewStore(db)
	require.NoError(t, store.CreateTransition(ctx, &Transition{
		FromStatus:    documents.StatusDraft,
		ToStatus:      documents.StatusInReview,
		RequiredRoles: []string{"kadiv"},
		IsActive:      true,
	}))

	doc := createTestDocument(t, docs, documents.StatusDraft)

	// The org_-prefixed spelling satisfies the bare requirement.
	prefixed := grantsWith(60, []string{"org_kadiv"})
	require.NoError(t, engine.ApplyTransition(ctx, testUser(), prefixed, doc, documents.StatusInReview, ""))

	doc2 := createTestDocument(t, docs, documents.StatusDraft)
	wrong := grantsWith(60, []string{"org_staff"})
	err := engine.ApplyTransition(ctx, testUser(), wrong, doc2, documents.StatusInReview, "")
	assert.Equal(t, ReasonRoleRequirement, rejectionOf(t, err).Reason)
}

// A capability-vocabulary requirement on an edge is satisfied through the
// bridge by the mapped permission, and vice versa.
func TestEngine_ApplyTransition_BridgedRequirement(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	seedTransitions(t, db)
	engine, docs, _ := newTestEngine(t, db)

	doc := createTestDocument(t, docs, documents.StatusApproved)

	// The APPROVED -> PUBLISHED edge requires DOCUMENT_PUBLISH; the
	// caller holds only the permission spelling.
	grants := grantsWith(60, []string{"org_kadiv"}, "documents.publish")
	require.NoError(t, engine.ApplyTransition(ctx, testUser(), grants, doc, documents.StatusPublished, ""))
	assert.Equal(t, documents.StatusPublished, doc.Status)
}

func TestEngine_ApplyTransition_UnknownRequirementFailsClosed(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	engine, docs, _ := newTestEngine(t, db)

	store := NewStore(db)
	require.NoError(t, store.CreateTransition(ctx, &Transition{
		FromStatus:         documents.StatusDraft,
		ToStatus:           documents.StatusInReview,
		RequiredPermission: "Mixed.Case",
		IsActive:           true,
	}))

	doc := createTestDocument(t, docs, documents.StatusDraft)
	grants := grantsWith(100, []string{"org_kadiv"}, "documents.update")

	err := engine.ApplyTransition(ctx, testUser(), grants, doc, documents.StatusInReview, "")
	assert.Equal(t, ReasonUnknownRequirement, rejectionOf(t, err).Reason)

	// Only superusers clear an edge whose requirement cannot be parsed.
	super := grantsWith(0, nil)
	super.Superuser = true
	doc2 := createTestDocument(t, docs, documents.StatusDraft)
	require.NoError(t, engine.ApplyTransition(ctx, testUser(), super, doc2, documents.StatusInReview, ""))
}

func TestEngine_ApplyTransition_SuperuserBypass(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	seedTransitions(t, db)
	engine, docs, _ := newTestEngine(t, db)

	doc := createTestDocument(t, docs, documents.StatusPendingApproval)
	super := grantsWith(0, nil)
	super.Superuser = true

	require.NoError(t, engine.ApplyTransition(ctx, testUser(), super, doc, documents.StatusApproved, ""))
	assert.Equal(t, documents.StatusApproved, doc.Status)
}

// A request naming a destination that is reachable from some other status
// is treated as acting on a stale snapshot; an unreachable destination is
// simply invalid.
func TestEngine_ApplyTransition_StaleVersusInvalid(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	seedTransitions(t, db)
	engine, docs, _ := newTestEngine(t, db)

	doc := createTestDocument(t, docs, documents.StatusDraft)
	grants := grantsWith(100, []string{"org_kadiv"}, "documents.update", "documents.approve")

	// APPROVED is reachable from PENDING_APPROVAL but not from DRAFT.
	err := engine.ApplyTransition(ctx, testUser(), grants, doc, documents.StatusApproved, "")
	assert.Equal(t, ReasonStaleState, rejectionOf(t, err).Reason)

	err = engine.ApplyTransition(ctx, testUser(), grants, doc, "LIMBO", "")
	assert.Equal(t, ReasonInvalidTransition, rejectionOf(t, err).Reason)
}

// Two actors race on the same snapshot; the conditional update lets only
// the first commit through.
func TestEngine_ApplyTransition_ConcurrentConflict(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	seedTransitions(t, db)
	engine, docs, _ := newTestEngine(t, db)

	doc := createTestDocument(t, docs, documents.StatusInReview)
	snapshot := *doc

	grants := grantsWith(60, []string{"org_kadiv"}, "documents.update")
	require.NoError(t, engine.ApplyTransition(ctx, testUser(), grants, doc, documents.StatusPendingApproval, ""))

	err := engine.ApplyTransition(ctx, testUser(), grants, &snapshot, documents.StatusRejected, "")
	rej := rejectionOf(t, err)
	assert.Equal(t, ReasonStaleState, rej.Reason)
	assert.True(t, rej.IsConflict())
}

// Legacy status spellings work on both sides of a transition request.
func TestEngine_ApplyTransition_NormalizesLegacyStatus(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	seedTransitions(t, db)
	engine, docs, _ := newTestEngine(t, db)

	// Destination in legacy spelling: DRAFT -> PENDING_REVIEW lands on
	// the canonical IN_REVIEW edge.
	doc := createTestDocument(t, docs, documents.StatusDraft)
	grants := grantsWith(60, []string{"org_kadiv"}, "documents.update")
	require.NoError(t, engine.ApplyTransition(ctx, testUser(), grants, doc, documents.StatusPendingReview, ""))
	assert.Equal(t, documents.StatusInReview, doc.Status)

	// Source in legacy spelling: a pre-migration row still finds the
	// IN_REVIEW edge set.
	res, err := db.Exec(`
		INSERT INTO documents (title, status, created_by, created_at, updated_at)
		VALUES ('Legacy', 'PENDING_REVIEW', 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	legacy, err := docs.GetDocument(ctx, id)
	require.NoError(t, err)
	require.Equal(t, documents.StatusPendingReview, legacy.Status)

	require.NoError(t, engine.ApplyTransition(ctx, testUser(), grants, legacy, documents.StatusPendingApproval, ""))
	assert.Equal(t, documents.StatusPendingApproval, legacy.Status)
}
