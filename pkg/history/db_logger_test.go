package history

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
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

func TestDBLogger_RecordAndSearch(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	userID := int64(7)
	entry := &Entry{
		DocumentID: 42,
		Action:     ActionTransition,
		UserID:     &userID,
		Username:   "alice",
		FromStatus: "DRAFT",
		ToStatus:   "IN_REVIEW",
		Reason:     "ready for review",
		Metadata:   map[string]interface{}{"edge_id": float64(3)},
	}
	require.NoError(t, logger.Record(ctx, entry))
	assert.NotZero(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	require.NoError(t, logger.Record(ctx, &Entry{
		DocumentID: 42, Action: ActionView, UserID: &userID, Username: "alice",
	}))
	require.NoError(t, logger.Record(ctx, &Entry{
		DocumentID: 99, Action: ActionView, Username: "system",
	}))

	docID := int64(42)
	entries, err := logger.Search(ctx, SearchFilter{DocumentID: &docID})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, ActionView, entries[0].Action)
	assert.Equal(t, ActionTransition, entries[1].Action)
	assert.Equal(t, "DRAFT", entries[1].FromStatus)
	assert.Equal(t, "IN_REVIEW", entries[1].ToStatus)
	assert.Equal(t, entry.Metadata, entries[1].Metadata)

	entries, err = logger.Search(ctx, SearchFilter{Actions: []Action{ActionView}})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = logger.Search(ctx, SearchFilter{UserID: &userID, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDBLogger_Stats(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	u1, u2 := int64(1), int64(2)
	require.NoError(t, logger.Record(ctx, &Entry{DocumentID: 1, Action: ActionView, UserID: &u1}))
	require.NoError(t, logger.Record(ctx, &Entry{DocumentID: 1, Action: ActionDownload, UserID: &u1}))
	require.NoError(t, logger.Record(ctx, &Entry{DocumentID: 2, Action: ActionView, UserID: &u2}))

	stats, err := logger.GetStats(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalEntries)
	assert.Equal(t, int64(2), stats.EntriesByAction[ActionView])
	assert.Equal(t, int64(1), stats.EntriesByAction[ActionDownload])
	assert.Equal(t, int64(2), stats.UniqueUsers)
	assert.Equal(t, int64(2), stats.UniqueDocuments)
}

func TestDBLogger_CleanupPreservesTransitions(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	old := time.Now().AddDate(0, 0, -400)
	require.NoError(t, logger.Record(ctx, &Entry{DocumentID: 1, Action: ActionView, CreatedAt: old}))
	require.NoError(t, logger.Record(ctx, &Entry{
		DocumentID: 1, Action: ActionTransition, FromStatus: "DRAFT", ToStatus: "IN_REVIEW", CreatedAt: old,
	}))
	require.NoError(t, logger.Record(ctx, &Entry{DocumentID: 1, Action: ActionView}))

	removed, err := logger.Cleanup(ctx, 365)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	entries, err := logger.Search(ctx, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// The old transition survives retention; only the old view is gone.
	for _, entry := range entries {
		if entry.CreatedAt.Before(time.Now().AddDate(0, 0, -365)) {
			assert.Equal(t, ActionTransition, entry.Action)
		}
	}
}
