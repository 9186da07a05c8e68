package authz

import (
	"net/http"

	"github.com/docuvault/docuvault/pkg/httputil"
	"github.com/docuvault/docuvault/pkg/middleware"
	"github.com/docuvault/docuvault/pkg/observability"
)

// Guard builds route-level authorization middleware. Checks run against
// the grants baked into the caller's session token; the resource gate
// additionally consults the resource tree through the resolver.
type Guard struct {
	resolver *Resolver
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewGuard creates route-level authorization middleware
func NewGuard(resolver *Resolver, logger *observability.Logger, metrics *observability.Metrics) *Guard {
	return &Guard{resolver: resolver, logger: logger, metrics: metrics}
}

// grantsFor pulls the caller's grant set out of the request, or writes an
// error response and returns nil.
func (g *Guard) grantsFor(w http.ResponseWriter, r *http.Request) *GrantSet {
	authCtx := middleware.GetAuthContext(r.Context())
	if authCtx == nil || authCtx.Claims == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil
	}
	return GrantSetFromClaims(authCtx.Claims)
}

// RequireCapability allows only callers holding the capability, via the
// bridge if their grant is spelled as a permission.
func (g *Guard) RequireCapability(name string) func(http.Handler) http.Handler {
	return g.require("capability", Token{Kind: KindCapability, Name: name})
}

// RequirePermission allows only callers holding the permission, via the
// bridge if their grant is spelled as a capability.
func (g *Guard) RequirePermission(name string) func(http.Handler) http.Handler {
	return g.require("permission", Token{Kind: KindPermission, Name: name})
}

func (g *Guard) require(kind string, tok Token) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			grants := g.grantsFor(w, r)
			if grants == nil {
				return
			}

			allowed := grants.HasToken(tok)
			if g.metrics != nil {
				g.metrics.RecordAuthzCheck(kind, allowed)
			}
			if !allowed {
				g.logger.WithFields(map[string]interface{}{
					"user_id":     grants.UserID,
					"requirement": tok.Name,
					"path":        r.URL.Path,
				}).Info("request denied")
				httputil.WriteForbidden(w, "insufficient privileges")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireLevel allows only callers whose most senior role meets the level
// floor. Superusers always pass.
func (g *Guard) RequireLevel(level int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			grants := g.grantsFor(w, r)
			if grants == nil {
				return
			}

			allowed := grants.Superuser || grants.MaxLevel >= level
			if g.metrics != nil {
				g.metrics.RecordAuthzCheck("level", allowed)
			}
			if !allowed {
				httputil.WriteForbidden(w, "insufficient privileges")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperuser allows only superusers. Used for the cache
// invalidation and consistency endpoints.
func (g *Guard) RequireSuperuser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grants := g.grantsFor(w, r)
		if grants == nil {
			return
		}
		if !grants.Superuser {
			httputil.WriteForbidden(w, "insufficient privileges")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ResourceGate checks the request path and method against the resource
// tree. Paths without a resource record pass through; gated resources
// require their capability.
func (g *Guard) ResourceGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := middleware.GetAuthContext(r.Context())
		if authCtx == nil || authCtx.Claims == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		allowed, err := g.resolver.CanAccessResource(r.Context(), authCtx.Claims.UserID, r.URL.Path, r.Method)
		if err != nil {
			g.logger.WithError(err).WithField("path", r.URL.Path).Error("resource access check failed")
			httputil.WriteInternalError(w, err)
			return
		}
		if !allowed {
			httputil.WriteForbidden(w, "insufficient privileges")
			return
		}

		next.ServeHTTP(w, r)
	})
}
