package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("document not found")
	// ErrStatusConflict is returned when a conditional status update finds
	// the document in a different state than expected
	ErrStatusConflict = errors.New("document status changed concurrently")
)

// Store handles document persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new document store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateDocument creates a new document in DRAFT unless a status is set
func (s *Store) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.Status == "" {
		doc.Status = StatusDraft
	}
	doc.Status = NormalizeStatus(doc.Status)
	if !ValidStatus(doc.Status) {
		return fmt.Errorf("invalid document status: %s", doc.Status)
	}

	rules, err := marshalRules(doc.AccessRules)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (
			title, description, file_name, mime_type, file_size,
			status, is_public, access_rules, created_by,
			parent_document_id, hierarchy_level, hierarchy_path,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	now := time.Now()
	err = s.db.QueryRowContext(ctx, query,
		doc.Title,
		doc.Description,
		doc.FileName,
		doc.MimeType,
		doc.FileSize,
		doc.Status,
		doc.IsPublic,
		rules,
		doc.CreatedBy,
		doc.ParentDocumentID,
		doc.HierarchyLevel,
		doc.HierarchyPath,
		now,
		now,
	).Scan(&doc.ID)

	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

// GetDocument retrieves a document by ID
func (s *Store) GetDocument(ctx context.Context, docID int64) (*Document, error) {
	query := `
		SELECT id, title, description, file_name, mime_type, file_size,
		       status, is_public, access_rules, created_by,
		       parent_document_id, hierarchy_level, hierarchy_path,
		       created_at, updated_at
		FROM documents
		WHERE id = $1
	`

	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, docID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %d: %w", docID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments lists documents, optionally filtered by status or owner.
// Listing does not apply the access policy; callers filter with it.
func (s *Store) ListDocuments(ctx context.Context, status string, createdBy *int64, limit, offset int) ([]Document, error) {
	query := `
		SELECT id, title, description, file_name, mime_type, file_size,
		       status, is_public, access_rules, created_by,
		       parent_document_id, hierarchy_level, hierarchy_path,
		       created_at, updated_at
		FROM documents
		WHERE ($1 = '' OR status IN ($1, $2))
		  AND ($3 = 0 OR created_by = $3)
		ORDER BY updated_at DESC
		LIMIT $4 OFFSET $5
	`

	var owner int64
	if createdBy != nil {
		owner = *createdBy
	}

	filter, legacy := StatusAliases(status)
	rows, err := s.db.QueryContext(ctx, query, filter, legacy, owner, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	return docs, rows.Err()
}

// UpdateDocument updates document metadata. Status changes go through the
// workflow engine, never through this method.
func (s *Store) UpdateDocument(ctx context.Context, doc *Document) error {
	rules, err := marshalRules(doc.AccessRules)
	if err != nil {
		return err
	}

	query := `
		UPDATE documents
		SET title = $1, description = $2, is_public = $3, access_rules = $4,
		    parent_document_id = $5, hierarchy_level = $6, hierarchy_path = $7,
		    updated_at = $8
		WHERE id = $9
	`

	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		doc.Title,
		doc.Description,
		doc.IsPublic,
		rules,
		doc.ParentDocumentID,
		doc.HierarchyLevel,
		doc.HierarchyPath,
		now,
		doc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("document %d: %w", doc.ID, ErrNotFound)
	}

	doc.UpdatedAt = now
	return nil
}

// UpdateStatusIf performs a conditional status update: the write lands
// only if the document is still in the expected status. Closes the
// lost-update race between concurrent transition attempts.
func (s *Store) UpdateStatusIf(ctx context.Context, docID int64, expectedStatus, newStatus string) error {
	// Pre-normalization rows may still carry the legacy spelling, so the
	// expected status is matched against both.
	query := `
		UPDATE documents
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status IN ($4, $5)
	`

	expected, legacy := StatusAliases(expectedStatus)
	result, err := s.db.ExecContext(ctx, query,
		NormalizeStatus(newStatus), time.Now(), docID, expected, legacy)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update result: %w", err)
	}
	if affected == 0 {
		// Either the document vanished or another actor moved it first.
		if _, err := s.GetDocument(ctx, docID); err != nil {
			return err
		}
		return fmt.Errorf("document %d: %w", docID, ErrStatusConflict)
	}

	return nil
}

// DeleteDocument removes a document
func (s *Store) DeleteDocument(ctx context.Context, docID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, docID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("document %d: %w", docID, ErrNotFound)
	}
	return nil
}

func marshalRules(rules AccessRules) (string, error) {
	if rules == nil {
		rules = AccessRules{}
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return "", fmt.Errorf("failed to encode access rules: %w", err)
	}
	return string(data), nil
}

func scanDocument(scanner interface {
	Scan(dest ...interface{}) error
}) (*Document, error) {
	var doc Document
	var description, fileName, mimeType, hierarchyPath sql.NullString
	var fileSize sql.NullInt64
	var parentID sql.NullInt64
	var rules string

	err := scanner.Scan(
		&doc.ID,
		&doc.Title,
		&description,
		&fileName,
		&mimeType,
		&fileSize,
		&doc.Status,
		&doc.IsPublic,
		&rules,
		&doc.CreatedBy,
		&parentID,
		&doc.HierarchyLevel,
		&hierarchyPath,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	doc.Description = description.String
	doc.FileName = fileName.String
	doc.MimeType = mimeType.String
	doc.FileSize = fileSize.Int64
	doc.HierarchyPath = hierarchyPath.String
	if parentID.Valid {
		id := parentID.Int64
		doc.ParentDocumentID = &id
	}

	if rules != "" {
		if err := json.Unmarshal([]byte(rules), &doc.AccessRules); err != nil {
			return nil, fmt.Errorf("failed to decode access rules: %w", err)
		}
	}

	return &doc, nil
}
