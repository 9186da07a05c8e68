package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuvault/docuvault/pkg/observability"
)

// migrationTokens maps each migration version to a fragment of its SQL,
// distinctive enough for sqlmock's regexp matcher.
var migrationTokens = map[int]string{
	1: "CREATE TABLE IF NOT EXISTS groups",
	2: "CREATE TABLE IF NOT EXISTS roles",
	3: "CREATE TABLE IF NOT EXISTS permissions",
	4: "CREATE TABLE IF NOT EXISTS capabilities",
	5: "CREATE TABLE IF NOT EXISTS resources",
	6: "CREATE TABLE IF NOT EXISTS documents",
	7: "CREATE TABLE IF NOT EXISTS workflow_transitions",
	8: "CREATE TABLE IF NOT EXISTS document_history",
	9: "UPDATE documents SET status",
}

func discardLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestRunMigrations_AppliesAllPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS docuvault_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM docuvault_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	for _, migration := range GetMigrations() {
		token, ok := migrationTokens[migration.Version]
		require.True(t, ok, "no token for migration %d", migration.Version)

		mock.ExpectBegin()
		mock.ExpectExec(token).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO docuvault_migrations").
			WithArgs(migration.Version, migration.Description).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, RunMigrations(context.Background(), db, discardLogger()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	migrations := GetMigrations()
	rows := sqlmock.NewRows([]string{"version"})
	for _, migration := range migrations[:len(migrations)-1] {
		rows.AddRow(migration.Version)
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS docuvault_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM docuvault_migrations").
		WillReturnRows(rows)

	// Only the last migration remains pending.
	pending := migrations[len(migrations)-1]
	mock.ExpectBegin()
	mock.ExpectExec(migrationTokens[pending.Version]).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO docuvault_migrations").
		WithArgs(pending.Version, pending.Description).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, RunMigrations(context.Background(), db, discardLogger()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS docuvault_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM docuvault_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	mock.ExpectBegin()
	mock.ExpectExec(migrationTokens[1]).
		WillReturnError(errors.New("relation already exists"))
	mock.ExpectRollback()

	err = RunMigrations(context.Background(), db, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMigrations_VersionsAreOrderedAndUnique(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)

	seen := make(map[int]bool)
	last := 0
	for _, migration := range migrations {
		assert.Greater(t, migration.Version, last, "versions must be ascending")
		assert.False(t, seen[migration.Version])
		assert.NotEmpty(t, migration.Description)
		assert.NotEmpty(t, migration.SQL)
		seen[migration.Version] = true
		last = migration.Version
	}
}
