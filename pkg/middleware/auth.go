package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/docuvault/docuvault/pkg/contextkeys"
	"github.com/docuvault/docuvault/pkg/httputil"
	"github.com/docuvault/docuvault/pkg/identity"
	"github.com/docuvault/docuvault/pkg/observability"
	"github.com/docuvault/docuvault/pkg/session"
)

// RefreshedTokenHeader carries a replacement session token when the
// middleware reissued one because the baked grants aged past the
// propagation window. Clients should swap to it on sight.
const RefreshedTokenHeader = "X-Refreshed-Token"

// AuthContext is the authenticated caller attached to the request context
type AuthContext struct {
	User   *identity.User
	Claims *session.Claims
}

// Auth validates session tokens and attaches the AuthContext
type Auth struct {
	sessions *session.Manager
	users    *identity.Store
	logger   *observability.Logger
}

// NewAuth creates the authentication middleware
func NewAuth(sessions *session.Manager, users *identity.Store, logger *observability.Logger) *Auth {
	return &Auth{sessions: sessions, users: users, logger: logger}
}

// Authenticate requires a valid Bearer token, loads the user, and rejects
// deactivated accounts. When the token's grants are older than the
// propagation window it reissues the token with fresh grants and returns
// the replacement in the X-Refreshed-Token header; the current request
// runs on the freshly resolved grants.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httputil.WriteUnauthorized(w, "missing or malformed authorization header")
			return
		}

		claims, err := a.sessions.Validate(r.Context(), token)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid session token")
			return
		}

		user, err := a.users.GetUserWithGroup(r.Context(), claims.UserID)
		if err != nil {
			httputil.WriteUnauthorized(w, "unknown user")
			return
		}
		if !user.IsActive {
			httputil.WriteUnauthorized(w, "account is deactivated")
			return
		}

		if claims.Stale(a.sessions.PropagationWindow()) {
			if refreshed, fresh, err := a.sessions.Reissue(r.Context(), claims); err == nil {
				w.Header().Set(RefreshedTokenHeader, refreshed)
				claims = fresh
			} else {
				// Keep serving on the stale grants; a reissue failure is a
				// resolution problem, not an authentication one.
				a.logger.WithError(err).
					WithField("user_id", claims.UserID).
					Warn("failed to reissue session token")
			}
		}

		ctx := contextkeys.WithAuth(r.Context(), &AuthContext{User: user, Claims: claims})
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(user.ID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext retrieves the authenticated caller from the context, or
// nil when the request did not pass through Authenticate.
func GetAuthContext(ctx context.Context) *AuthContext {
	if authCtx, ok := ctx.Value(contextkeys.AuthKey).(*AuthContext); ok {
		return authCtx
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
