package workflow

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/docuvault/docuvault/pkg/authz"
	"github.com/docuvault/docuvault/pkg/documents"
	"github.com/docuvault/docuvault/pkg/httputil"
	"github.com/docuvault/docuvault/pkg/middleware"
	"github.com/docuvault/docuvault/pkg/observability"
)

// Handler exposes the transition API
type Handler struct {
	engine *Engine
	docs   *documents.Store
	policy *documents.Policy
	logger *observability.Logger
}

// NewHandler creates the transition API handler
func NewHandler(engine *Engine, docs *documents.Store, policy *documents.Policy, logger *observability.Logger) *Handler {
	return &Handler{engine: engine, docs: docs, policy: policy, logger: logger}
}

// RegisterRoutes registers transition routes on the given router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/documents/{id}/transitions", h.ListTransitions).Methods("GET")
	router.HandleFunc("/documents/{id}/transitions", h.ApplyTransition).Methods("POST")
}

// RegisterAdminRoutes registers edge management routes; the caller is
// expected to mount these behind the admin guard.
func (h *Handler) RegisterAdminRoutes(router *mux.Router) {
	router.HandleFunc("/transitions", h.ListAllTransitions).Methods("GET")
	router.HandleFunc("/transitions", h.CreateTransition).Methods("POST")
	router.HandleFunc("/transitions/{id}/active", h.SetTransitionActive).Methods("PUT")
}

// loadViewable loads a document and enforces view access; transitions are
// not visible on documents the caller cannot open.
func (h *Handler) loadViewable(w http.ResponseWriter, r *http.Request) (*documents.Document, *middleware.AuthContext, *authz.GrantSet, bool) {
	authCtx := middleware.GetAuthContext(r.Context())
	if authCtx == nil || authCtx.Claims == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, nil, nil, false
	}
	grants := authz.GrantSetFromClaims(authCtx.Claims)

	docID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, nil, nil, false
	}

	doc, err := h.docs.GetDocument(r.Context(), docID)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			httputil.WriteNotFoundError(w, "document not found")
			return nil, nil, nil, false
		}
		httputil.WriteInternalError(w, err)
		return nil, nil, nil, false
	}

	if verdict := h.policy.CanView(authCtx.User, grants, doc); !verdict.Allowed {
		httputil.WriteForbidden(w, "insufficient permissions")
		return nil, nil, nil, false
	}

	return doc, authCtx, grants, true
}

// ListTransitions handles GET /documents/{id}/transitions
func (h *Handler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	doc, _, grants, ok := h.loadViewable(w, r)
	if !ok {
		return
	}

	allowed, err := h.engine.GetAllowedTransitions(r.Context(), grants, doc)
	if err != nil {
		h.logger.WithError(err).Error("failed to list transitions")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"current_status": documents.NormalizeStatus(doc.Status),
		"transitions":    allowed,
	})
}

// ApplyTransition handles POST /documents/{id}/transitions. A stale-state
// rejection comes back 409 so clients re-fetch and retry; authorization
// rejections come back 403 with the reason category only.
func (h *Handler) ApplyTransition(w http.ResponseWriter, r *http.Request) {
	doc, authCtx, grants, ok := h.loadViewable(w, r)
	if !ok {
		return
	}

	var req struct {
		ToStatus      string `json:"to_status"`
		Reason        string `json:"reason"`
		CurrentStatus string `json:"current_status"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.ToStatus, "to_status") {
		return
	}

	// A client that sends the status it last saw gets the stale check
	// against its own snapshot instead of the freshly loaded row.
	if req.CurrentStatus != "" &&
		documents.NormalizeStatus(req.CurrentStatus) != documents.NormalizeStatus(doc.Status) {
		httputil.WriteConflict(w, ReasonStaleState)
		return
	}

	err := h.engine.ApplyTransition(r.Context(), authCtx.User, grants, doc, req.ToStatus, req.Reason)
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			if rej.IsConflict() {
				httputil.WriteConflict(w, rej.Reason)
				return
			}
			if rej.Reason == ReasonInvalidTransition {
				httputil.WriteBadRequest(w, rej.Reason)
				return
			}
			httputil.WriteForbidden(w, rej.Reason)
			return
		}
		h.logger.WithError(err).Error("failed to apply transition")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, doc)
}

// ListAllTransitions handles GET /transitions
func (h *Handler) ListAllTransitions(w http.ResponseWriter, r *http.Request) {
	transitions, err := h.engine.transitions.ListTransitions(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, transitions)
}

// CreateTransition handles POST /transitions
func (h *Handler) CreateTransition(w http.ResponseWriter, r *http.Request) {
	var tr Transition
	if !httputil.ParseJSONOrError(w, r, &tr) {
		return
	}

	if tr.RequiredPermission != "" {
		if authz.ParseToken(tr.RequiredPermission).Kind == authz.KindUnknown {
			httputil.WriteBadRequest(w, "required_permission matches neither grant vocabulary")
			return
		}
	}

	tr.ID = 0
	if err := h.engine.transitions.CreateTransition(r.Context(), &tr); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	httputil.WriteCreated(w, &tr)
}

// SetTransitionActive handles PUT /transitions/{id}/active
func (h *Handler) SetTransitionActive(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		IsActive bool `json:"is_active"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.engine.transitions.SetTransitionActive(r.Context(), id, req.IsActive); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "transition not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
