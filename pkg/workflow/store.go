package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/docuvault/docuvault/pkg/documents"
)

// ErrNotFound is returned when a transition edge does not exist
var ErrNotFound = errors.New("transition not found")

// Store handles transition edge persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new workflow store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListTransitions returns all transition edges
func (s *Store) ListTransitions(ctx context.Context) ([]Transition, error) {
	return s.list(ctx, `
		SELECT id, from_status, to_status, description, min_level, required_permission, required_roles, is_active
		FROM workflow_transitions
		ORDER BY from_status ASC, to_status ASC
	`)
}

// ListTransitionsFrom returns the active edges leaving a status. The
// status is normalized first so legacy spellings resolve.
func (s *Store) ListTransitionsFrom(ctx context.Context, fromStatus string) ([]Transition, error) {
	query := `
		SELECT id, from_status, to_status, description, min_level, required_permission, required_roles, is_active
		FROM workflow_transitions
		WHERE from_status = $1 AND is_active = TRUE
		ORDER BY to_status ASC
	`
	return s.list(ctx, query, documents.NormalizeStatus(fromStatus))
}

// AnyTransitionTo reports whether any active edge, from any status,
// reaches the given destination. Used to distinguish a stale request
// from a destination that simply does not exist.
func (s *Store) AnyTransitionTo(ctx context.Context, toStatus string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflow_transitions WHERE to_status = $1 AND is_active = TRUE`,
		documents.NormalizeStatus(toStatus),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check transitions: %w", err)
	}
	return count > 0, nil
}

// CreateTransition creates a new transition edge
func (s *Store) CreateTransition(ctx context.Context, tr *Transition) error {
	tr.FromStatus = documents.NormalizeStatus(tr.FromStatus)
	tr.ToStatus = documents.NormalizeStatus(tr.ToStatus)
	if !documents.ValidStatus(tr.FromStatus) || !documents.ValidStatus(tr.ToStatus) {
		return fmt.Errorf("invalid transition statuses: %s -> %s", tr.FromStatus, tr.ToStatus)
	}

	roles, err := json.Marshal(tr.RequiredRoles)
	if err != nil {
		return fmt.Errorf("failed to encode required roles: %w", err)
	}

	query := `
		INSERT INTO workflow_transitions (from_status, to_status, description, min_level, required_permission, required_roles, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err = s.db.QueryRowContext(ctx, query,
		tr.FromStatus, tr.ToStatus, tr.Description,
		tr.MinLevel, tr.RequiredPermission, string(roles), tr.IsActive,
	).Scan(&tr.ID)
	if err != nil {
		return fmt.Errorf("failed to create transition: %w", err)
	}
	return nil
}

// SetTransitionActive enables or disables an edge without deleting it
func (s *Store) SetTransitionActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE workflow_transitions SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update transition: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transition %d: %w", id, ErrNotFound)
	}
	return nil
}

// SeedDefaults inserts the default edge set when the table is empty
func (s *Store) SeedDefaults(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflow_transitions`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count transitions: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, tr := range DefaultTransitions() {
		tr := tr
		if err := s.CreateTransition(ctx, &tr); err != nil {
			return err
		}
	}
	return nil
}

// DefaultTransitions is the standard review workflow
func DefaultTransitions() []Transition {
	return []Transition{
		{FromStatus: documents.StatusDraft, ToStatus: documents.StatusInReview, Description: "Submit for review", MinLevel: 0, RequiredPermission: "documents.update", IsActive: true},
		{FromStatus: documents.StatusInReview, ToStatus: documents.StatusPendingApproval, Description: "Forward for approval", MinLevel: 50, RequiredPermission: "documents.update", IsActive: true},
		{FromStatus: documents.StatusInReview, ToStatus: documents.StatusRejected, Description: "Reject", MinLevel: 50, RequiredPermission: "documents.update", IsActive: true},
		{FromStatus: documents.StatusInReview, ToStatus: documents.StatusDraft, Description: "Return to author", MinLevel: 50, RequiredPermission: "documents.update", IsActive: true},
		{FromStatus: documents.StatusPendingApproval, ToStatus: documents.StatusApproved, Description: "Approve", MinLevel: 60, RequiredPermission: "documents.approve", IsActive: true},
		{FromStatus: documents.StatusPendingApproval, ToStatus: documents.StatusRejected, Description: "Reject", MinLevel: 60, RequiredPermission: "documents.approve", IsActive: true},
		{FromStatus: documents.StatusApproved, ToStatus: documents.StatusPublished, Description: "Publish", MinLevel: 60, RequiredPermission: "DOCUMENT_PUBLISH", IsActive: true},
		{FromStatus: documents.StatusRejected, ToStatus: documents.StatusDraft, Description: "Reopen as draft", MinLevel: 0, RequiredPermission: "documents.update", IsActive: true},
		{FromStatus: documents.StatusPublished, ToStatus: documents.StatusArchived, Description: "Archive", MinLevel: 60, RequiredPermission: "documents.archive", IsActive: true},
		{FromStatus: documents.StatusArchived, ToStatus: documents.StatusDraft, Description: "Restore from archive", MinLevel: 60, RequiredPermission: "documents.archive", IsActive: true},
	}
}

func (s *Store) list(ctx context.Context, query string, args ...interface{}) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	var transitions []Transition
	for rows.Next() {
		var tr Transition
		var roles string
		if err := rows.Scan(
			&tr.ID,
			&tr.FromStatus,
			&tr.ToStatus,
			&tr.Description,
			&tr.MinLevel,
			&tr.RequiredPermission,
			&roles,
			&tr.IsActive,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		if roles != "" {
			if err := json.Unmarshal([]byte(roles), &tr.RequiredRoles); err != nil {
				return nil, fmt.Errorf("failed to decode required roles: %w", err)
			}
		}
		transitions = append(transitions, tr)
	}

	return transitions, rows.Err()
}
