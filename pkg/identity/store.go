package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a user or group does not exist
var ErrNotFound = errors.New("not found")

// Store handles user and group persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new identity store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	query := `
		SELECT id, email, username, is_active, group_id, division_id, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user User
	var groupID, divisionID sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.IsActive,
		&groupID,
		&divisionID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if groupID.Valid {
		id := groupID.Int64
		user.GroupID = &id
	}
	if divisionID.Valid {
		id := divisionID.Int64
		user.DivisionID = &id
	}

	return &user, nil
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, username, is_active, group_id, division_id, created_at, updated_at
		FROM users
		WHERE email = $1
	`

	var user User
	var groupID, divisionID sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.IsActive,
		&groupID,
		&divisionID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if groupID.Valid {
		id := groupID.Int64
		user.GroupID = &id
	}
	if divisionID.Valid {
		id := divisionID.Int64
		user.DivisionID = &id
	}

	return &user, nil
}

// GetUserWithGroup retrieves a user together with its group, when one is set
func (s *Store) GetUserWithGroup(ctx context.Context, userID int64) (*User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.GroupID != nil {
		group, err := s.GetGroup(ctx, *user.GroupID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		user.Group = group
	}

	return user, nil
}

// CreateUser creates a new user
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (email, username, is_active, group_id, division_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		user.Email,
		user.Username,
		user.IsActive,
		user.GroupID,
		user.DivisionID,
		now,
		now,
	).Scan(&user.ID)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// SetUserActive flips the soft-disable flag on a user
func (s *Store) SetUserActive(ctx context.Context, userID int64, active bool) error {
	query := `UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3`

	result, err := s.db.ExecContext(ctx, query, active, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return nil
}

// ListUsers lists all users
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	query := `
		SELECT id, email, username, is_active, group_id, division_id, created_at, updated_at
		FROM users
		ORDER BY email ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		var groupID, divisionID sql.NullInt64

		if err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.Username,
			&user.IsActive,
			&groupID,
			&divisionID,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		if groupID.Valid {
			id := groupID.Int64
			user.GroupID = &id
		}
		if divisionID.Valid {
			id := divisionID.Int64
			user.DivisionID = &id
		}

		users = append(users, user)
	}

	return users, rows.Err()
}

// GetGroup retrieves a group by ID
func (s *Store) GetGroup(ctx context.Context, groupID int64) (*Group, error) {
	query := `SELECT id, name, display_name, level FROM groups WHERE id = $1`

	var group Group
	err := s.db.QueryRowContext(ctx, query, groupID).Scan(
		&group.ID,
		&group.Name,
		&group.DisplayName,
		&group.Level,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("group %d: %w", groupID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return &group, nil
}

// CreateGroup creates a new group
func (s *Store) CreateGroup(ctx context.Context, group *Group) error {
	query := `
		INSERT INTO groups (name, display_name, level)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		group.Name,
		group.DisplayName,
		group.Level,
	).Scan(&group.ID)

	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// ListGroups lists all groups ordered by seniority
func (s *Store) ListGroups(ctx context.Context) ([]Group, error) {
	query := `SELECT id, name, display_name, level FROM groups ORDER BY level DESC, name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var group Group
		if err := rows.Scan(&group.ID, &group.Name, &group.DisplayName, &group.Level); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}

	return groups, rows.Err()
}
