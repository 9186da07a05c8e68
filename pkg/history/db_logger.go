package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/docuvault/docuvault/pkg/contextkeys"
)

// DBLogger persists history entries to the relational store. There are no
// update or single-row delete methods on purpose.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed history logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Record appends an entry to the trail. The request ID is picked up from
// the context when the caller did not set one.
func (l *DBLogger) Record(ctx context.Context, entry *Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.RequestID == "" {
		entry.RequestID = contextkeys.GetRequestID(ctx)
	}

	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO document_history (
			document_id, action, user_id, username,
			from_status, to_status, reason,
			request_id, ip_address, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		entry.DocumentID, entry.Action, entry.UserID, entry.Username,
		entry.FromStatus, entry.ToStatus, entry.Reason,
		entry.RequestID, entry.IPAddress, nullableJSON(metadataJSON), entry.CreatedAt,
	).Scan(&entry.ID)

	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

// Search returns entries matching the filter, newest first
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Entry, error) {
	query := `
		SELECT id, document_id, action, user_id, username,
		       from_status, to_status, reason,
		       request_id, ip_address, metadata, created_at
		FROM document_history
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if filter.DocumentID != nil {
		query += fmt.Sprintf(" AND document_id = $%d", argCount)
		args = append(args, *filter.DocumentID)
		argCount++
	}
	if filter.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, *filter.UserID)
		argCount++
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, action := range filter.Actions {
			placeholders[i] = fmt.Sprintf("$%d", argCount)
			args = append(args, string(action))
			argCount++
		}
		query += " AND action IN (" + strings.Join(placeholders, ", ") + ")"
	}
	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}
	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search history: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry := &Entry{}
		var userID sql.NullInt64
		var username, fromStatus, toStatus, reason, requestID, ipAddress, metadataJSON sql.NullString

		err := rows.Scan(
			&entry.ID, &entry.DocumentID, &entry.Action, &userID, &username,
			&fromStatus, &toStatus, &reason,
			&requestID, &ipAddress, &metadataJSON, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}

		if userID.Valid {
			id := userID.Int64
			entry.UserID = &id
		}
		entry.Username = username.String
		entry.FromStatus = fromStatus.String
		entry.ToStatus = toStatus.String
		entry.Reason = reason.String
		entry.RequestID = requestID.String
		entry.IPAddress = ipAddress.String

		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// GetStats summarizes the trail, optionally bounded by a time range
func (l *DBLogger) GetStats(ctx context.Context, startTime, endTime *time.Time) (*Stats, error) {
	stats := &Stats{
		EntriesByAction: make(map[Action]int64),
	}

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if startTime != nil {
		whereClause += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *startTime)
		argCount++
	}
	if endTime != nil {
		whereClause += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *endTime)
	}

	err := l.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM document_history %s", whereClause), args...,
	).Scan(&stats.TotalEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to count history entries: %w", err)
	}

	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf("SELECT action, COUNT(*) FROM document_history %s GROUP BY action", whereClause), args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries by action: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var action Action
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		stats.EntriesByAction[action] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = l.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(DISTINCT user_id) FROM document_history %s AND user_id IS NOT NULL", whereClause), args...,
	).Scan(&stats.UniqueUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to count unique users: %w", err)
	}

	err = l.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(DISTINCT document_id) FROM document_history %s", whereClause), args...,
	).Scan(&stats.UniqueDocuments)
	if err != nil {
		return nil, fmt.Errorf("failed to count unique documents: %w", err)
	}

	return stats, nil
}

// Cleanup removes access entries older than the retention window.
// Transition entries are permanent and never removed.
func (l *DBLogger) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := l.db.ExecContext(ctx,
		`DELETE FROM document_history WHERE created_at < $1 AND action <> $2`,
		cutoff, string(ActionTransition),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up history: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count removed entries: %w", err)
	}
	return removed, nil
}

// nullableJSON maps empty JSON to NULL so the column stays queryable
func nullableJSON(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
