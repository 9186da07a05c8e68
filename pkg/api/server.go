package api

import (
	"database/sql"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/docuvault/docuvault/pkg/authz"
	"github.com/docuvault/docuvault/pkg/config"
	"github.com/docuvault/docuvault/pkg/documents"
	"github.com/docuvault/docuvault/pkg/history"
	"github.com/docuvault/docuvault/pkg/httputil"
	"github.com/docuvault/docuvault/pkg/identity"
	"github.com/docuvault/docuvault/pkg/middleware"
	"github.com/docuvault/docuvault/pkg/observability"
	"github.com/docuvault/docuvault/pkg/session"
	"github.com/docuvault/docuvault/pkg/workflow"
)

// Server wires stores, the resolution engine, and HTTP handlers together
type Server struct {
	router  *mux.Router
	logger  *observability.Logger
	metrics *observability.Metrics

	users    *identity.Store
	authz    *authz.Store
	resolver *authz.Resolver
	docs     *documents.Store
	trail    *history.DBLogger
	engine   *workflow.Engine
	sessions *session.Manager
	refresh  *session.RefreshStore
}

// NewServer builds the full server from configuration and open connections
func NewServer(cfg *config.Config, db *sql.DB, redisClient *redis.Client, logger *observability.Logger, metrics *observability.Metrics) (*Server, error) {
	authzStore := authz.NewStore(db)
	resolver := authz.NewResolver(authzStore, cfg.Authz.CacheSize, cfg.Authz.CacheTTL, logger, metrics)

	sessions, err := session.NewManager(
		[]byte(cfg.Session.SigningKey),
		cfg.Session.Issuer,
		cfg.Session.TokenExpiry,
		cfg.Session.PropagationWindow,
		resolver,
	)
	if err != nil {
		return nil, err
	}

	trail, err := history.NewDBLogger(db)
	if err != nil {
		return nil, err
	}

	docs := documents.NewStore(db)
	transitions := workflow.NewStore(db)

	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		metrics:  metrics,
		users:    identity.NewStore(db),
		authz:    authzStore,
		resolver: resolver,
		docs:     docs,
		trail:    trail,
		engine:   workflow.NewEngine(transitions, docs, trail, logger, metrics),
		sessions: sessions,
		refresh:  session.NewRefreshStore(redisClient, cfg.Session.RefreshExpiry),
	}

	s.setupRoutes(db, redisClient)
	return s, nil
}

// Router returns the configured HTTP handler
func (s *Server) Router() http.Handler {
	return s.router
}

// Resolver exposes the access resolution engine for startup checks
func (s *Server) Resolver() *authz.Resolver {
	return s.resolver
}

// setupRoutes configures all routes and their middleware chains
func (s *Server) setupRoutes(db *sql.DB, redisClient *redis.Client) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RequestLogger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))

	// Unauthenticated surface.
	health := observability.NewHealthChecker(db, redisClient)
	s.router.HandleFunc("/healthz", health.Liveness).Methods("GET")
	s.router.HandleFunc("/readyz", health.Readiness).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	authHandlers := NewAuthHandlers(s.users, s.sessions, s.refresh, s.logger)
	auth := s.router.PathPrefix("/api/v1/auth").Subrouter()
	auth.HandleFunc("/login", authHandlers.Login).Methods("POST")
	auth.HandleFunc("/refresh", authHandlers.Refresh).Methods("POST")
	auth.HandleFunc("/logout", authHandlers.Logout).Methods("POST")

	// Everything below requires a session.
	authn := middleware.NewAuth(s.sessions, s.users, s.logger)
	guard := authz.NewGuard(s.resolver, s.logger, s.metrics)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(authn.Authenticate)
	v1.Use(guard.ResourceGate)

	v1.HandleFunc("/me", authHandlers.Me).Methods("GET")
	v1.HandleFunc("/navigation", s.GetNavigation).Methods("GET")

	policy := documents.NewPolicy(s.logger)
	documents.NewHandler(s.docs, policy, s.trail, s.logger, s.metrics).RegisterRoutes(v1)
	workflow.NewHandler(s.engine, s.docs, policy, s.logger).RegisterRoutes(v1)

	// History search and export are capability-gated as a whole.
	hist := v1.PathPrefix("/history").Subrouter()
	hist.Use(guard.RequireCapability("DOCUMENT_HISTORY_VIEW"))
	history.NewHandler(s.trail, s.logger).RegisterRoutes(hist)

	// Admin surface: role, vocabulary, resource, and transition management.
	admin := s.router.PathPrefix("/api/v1/admin").Subrouter()
	admin.Use(authn.Authenticate)
	admin.Use(guard.RequireCapability("ADMIN_ACCESS"))
	authz.NewHandler(s.authz, s.resolver, s.logger).RegisterRoutes(admin)
	workflow.NewHandler(s.engine, s.docs, policy, s.logger).RegisterAdminRoutes(admin)
}

// GetNavigation handles GET /api/v1/navigation, returning the navigation
// tree filtered to the entries the caller's grants allow.
func (s *Server) GetNavigation(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r.Context())
	if authCtx == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	tree, err := s.resolver.Navigation(r.Context(), authCtx.User.ID)
	if err != nil {
		s.logger.WithError(err).Error("failed to build navigation")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, tree)
}
