package documents

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/docuvault/docuvault/pkg/authz"
	"github.com/docuvault/docuvault/pkg/history"
	"github.com/docuvault/docuvault/pkg/httputil"
	"github.com/docuvault/docuvault/pkg/identity"
	"github.com/docuvault/docuvault/pkg/middleware"
	"github.com/docuvault/docuvault/pkg/observability"
)

// Handler exposes the document API
type Handler struct {
	store   *Store
	policy  *Policy
	trail   *history.DBLogger
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewHandler creates the document API handler
func NewHandler(store *Store, policy *Policy, trail *history.DBLogger, logger *observability.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{store: store, policy: policy, trail: trail, logger: logger, metrics: metrics}
}

// RegisterRoutes registers document routes on the given router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/documents", h.ListDocuments).Methods("GET")
	router.HandleFunc("/documents", h.CreateDocument).Methods("POST")
	router.HandleFunc("/documents/{id}", h.GetDocument).Methods("GET")
	router.HandleFunc("/documents/{id}", h.UpdateDocument).Methods("PUT")
	router.HandleFunc("/documents/{id}", h.DeleteDocument).Methods("DELETE")
	router.HandleFunc("/documents/{id}/download", h.DownloadDocument).Methods("GET")
	router.HandleFunc("/documents/{id}/print", h.PrintDocument).Methods("POST")
	router.HandleFunc("/documents/{id}/copy", h.CopyDocument).Methods("POST")
}

// authFor extracts the authenticated caller and their grant set
func authFor(w http.ResponseWriter, r *http.Request) (*middleware.AuthContext, *authz.GrantSet, bool) {
	authCtx := middleware.GetAuthContext(r.Context())
	if authCtx == nil || authCtx.Claims == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, nil, false
	}
	return authCtx, authz.GrantSetFromClaims(authCtx.Claims), true
}

// loadViewable loads a document and enforces view access
func (h *Handler) loadViewable(w http.ResponseWriter, r *http.Request) (*Document, *middleware.AuthContext, *authz.GrantSet, bool) {
	authCtx, grants, ok := authFor(w, r)
	if !ok {
		return nil, nil, nil, false
	}

	docID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, nil, nil, false
	}

	doc, err := h.store.GetDocument(r.Context(), docID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "document not found")
			return nil, nil, nil, false
		}
		httputil.WriteInternalError(w, err)
		return nil, nil, nil, false
	}

	if verdict := h.policy.CanView(authCtx.User, grants, doc); !verdict.Allowed {
		h.logger.WithFields(map[string]interface{}{
			"user_id":     authCtx.User.ID,
			"document_id": doc.ID,
			"reason":      verdict.Reason,
		}).Info("document view denied")
		httputil.WriteForbidden(w, "insufficient permissions")
		return nil, nil, nil, false
	}

	return doc, authCtx, grants, true
}

// record appends a history entry, logging rather than failing the request
// when the trail write goes wrong.
func (h *Handler) record(r *http.Request, entry *history.Entry) {
	if err := h.trail.Record(r.Context(), entry); err != nil {
		h.logger.WithError(err).Warn("failed to record document history")
	}
}

// ListDocuments handles GET /documents, filtering results through the
// view policy so callers only see what they may open.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	authCtx, grants, ok := authFor(w, r)
	if !ok {
		return
	}

	status := httputil.ParseQueryString(r, "status", "")
	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if limit > 200 {
		limit = 200
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	docs, err := h.store.ListDocuments(r.Context(), status, nil, limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("failed to list documents")
		httputil.WriteInternalError(w, err)
		return
	}

	visible := make([]Document, 0, len(docs))
	for i := range docs {
		if h.policy.CanView(authCtx.User, grants, &docs[i]).Allowed {
			visible = append(visible, docs[i])
		}
	}

	httputil.WriteSuccess(w, visible)
}

// CreateDocument handles POST /documents
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	authCtx, grants, ok := authFor(w, r)
	if !ok {
		return
	}
	if !grants.HasToken(authz.ParseToken("documents.create")) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	var doc Document
	if !httputil.ParseJSONOrError(w, r, &doc) {
		return
	}
	if !httputil.RequireNonEmpty(w, doc.Title, "title") {
		return
	}

	doc.ID = 0
	doc.CreatedBy = authCtx.User.ID
	doc.Status = StatusDraft
	if err := h.store.CreateDocument(r.Context(), &doc); err != nil {
		h.logger.WithError(err).Error("failed to create document")
		httputil.WriteInternalError(w, err)
		return
	}

	h.record(r, &history.Entry{
		DocumentID: doc.ID,
		Action:     history.ActionCreate,
		UserID:     &authCtx.User.ID,
		Username:   authCtx.User.Username,
	})

	httputil.WriteCreated(w, &doc)
}

// GetDocument handles GET /documents/{id}
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, authCtx, _, ok := h.loadViewable(w, r)
	if !ok {
		return
	}

	h.record(r, &history.Entry{
		DocumentID: doc.ID,
		Action:     history.ActionView,
		UserID:     &authCtx.User.ID,
		Username:   authCtx.User.Username,
	})

	httputil.WriteSuccess(w, doc)
}

// UpdateDocument handles PUT /documents/{id}. Owners may edit their own
// documents; everyone else needs the update grant.
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	doc, authCtx, grants, ok := h.loadViewable(w, r)
	if !ok {
		return
	}

	if doc.CreatedBy != authCtx.User.ID && !grants.HasToken(authz.ParseToken("documents.update")) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	var req struct {
		Title            *string      `json:"title"`
		Description      *string      `json:"description"`
		IsPublic         *bool        `json:"is_public"`
		AccessRules      *AccessRules `json:"access_rules"`
		ParentDocumentID *int64       `json:"parent_document_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.Title != nil {
		doc.Title = *req.Title
	}
	if req.Description != nil {
		doc.Description = *req.Description
	}
	if req.IsPublic != nil {
		doc.IsPublic = *req.IsPublic
	}
	if req.AccessRules != nil {
		doc.AccessRules = *req.AccessRules
	}
	if req.ParentDocumentID != nil {
		doc.ParentDocumentID = req.ParentDocumentID
	}

	if err := h.store.UpdateDocument(r.Context(), doc); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.record(r, &history.Entry{
		DocumentID: doc.ID,
		Action:     history.ActionUpdate,
		UserID:     &authCtx.User.ID,
		Username:   authCtx.User.Username,
	})

	httputil.WriteSuccess(w, doc)
}

// DeleteDocument handles DELETE /documents/{id}
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, authCtx, grants, ok := h.loadViewable(w, r)
	if !ok {
		return
	}

	if doc.CreatedBy != authCtx.User.ID && !grants.HasToken(authz.ParseToken("documents.delete")) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	if err := h.store.DeleteDocument(r.Context(), doc.ID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.record(r, &history.Entry{
		DocumentID: doc.ID,
		Action:     history.ActionDelete,
		UserID:     &authCtx.User.ID,
		Username:   authCtx.User.Username,
	})

	httputil.WriteNoContent(w)
}

// DownloadDocument handles GET /documents/{id}/download. Download is a
// second check layered on view access.
func (h *Handler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	h.exportAction(w, r, history.ActionDownload, h.policy.CanDownload)
}

// PrintDocument handles POST /documents/{id}/print
func (h *Handler) PrintDocument(w http.ResponseWriter, r *http.Request) {
	h.exportAction(w, r, history.ActionPrint, h.policy.CanPrint)
}

// CopyDocument handles POST /documents/{id}/copy
func (h *Handler) CopyDocument(w http.ResponseWriter, r *http.Request) {
	h.exportAction(w, r, history.ActionCopy, h.policy.CanCopy)
}

func (h *Handler) exportAction(
	w http.ResponseWriter,
	r *http.Request,
	action history.Action,
	check func(*identity.User, *authz.GrantSet, *Document) Verdict,
) {
	doc, authCtx, grants, ok := h.loadViewable(w, r)
	if !ok {
		return
	}

	if verdict := check(authCtx.User, grants, doc); !verdict.Allowed {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	h.record(r, &history.Entry{
		DocumentID: doc.ID,
		Action:     action,
		UserID:     &authCtx.User.ID,
		Username:   authCtx.User.Username,
	})

	httputil.WriteSuccess(w, map[string]interface{}{
		"document_id": doc.ID,
		"file_name":   doc.FileName,
		"mime_type":   doc.MimeType,
		"file_size":   doc.FileSize,
	})
}
