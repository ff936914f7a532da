// ABOUTME: HTTP server struct, constructor, and handler wiring for Leadflow.
// ABOUTME: Holds auth dependencies (store, config, argon2 semaphore) used by handlers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/Weskill-org/leadflow-ai-sub000/internal/config"
	"github.com/Weskill-org/leadflow-ai-sub000/internal/hierarchy"
	"github.com/Weskill-org/leadflow-ai-sub000/internal/store"
)

// Server holds the dependencies for the HTTP layer.
type Server struct {
	store       *store.Store
	cfg         *config.Config
	argon2Sem   chan struct{}
	rateLimiter *ipRateLimiter
	googleOAuth *oauth2.Config // nil when Google sign-in is not configured
	googleOIDC  *oidc.Provider
}

// NewServer creates a Server. Returns an error if Google OIDC discovery
// fails. If cfg.GoogleClientID is empty, Google sign-in is skipped.
func NewServer(ctx context.Context, s *store.Store, cfg *config.Config) (*Server, error) {
	evictTTL := cfg.RateLimitEvictTTL
	if evictTTL == 0 {
		evictTTL = 15 * time.Minute
	}
	srv := &Server{
		store:     s,
		cfg:       cfg,
		argon2Sem: make(chan struct{}, cfg.Argon2MaxConcurrent),
		// 10 requests per minute, burst of 10.
		rateLimiter: newIPRateLimiter(rate.Limit(10.0/60), 10, evictTTL),
	}

	if cfg.GoogleClientID != "" {
		provider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
		if err != nil {
			return nil, fmt.Errorf("google oidc discovery: %w", err)
		}
		srv.googleOIDC = provider
		srv.googleOAuth = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.ExternalURL + "/api/v1/auth/oauth/google/callback",
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		}
	}

	return srv, nil
}

// Handler builds and returns the http.Handler.
func (srv *Server) Handler() http.Handler {
	var db *pgxpool.Pool
	if srv.store != nil {
		db = srv.store.Pool()
	}
	r := chi.NewRouter()

	// Security headers first so they appear on every response including errors.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	// 1 MB global body limit against OOM from oversized request bodies.
	r.Use(middleware.RequestSize(1 << 20))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthzHandler(db))
	r.Handle("/metrics", promhttp.Handler())

	// ── API v1 sub-router with huma (OpenAPI 3.1) ────────────────────────────
	apiRouter := chi.NewRouter()
	apiRouter.Use(csrfProtect)
	humaConfig := huma.DefaultConfig("Leadflow API", "0.1.0")
	humaConfig.Info.Description = "Multi-tenant sales CRM and team hierarchy API"
	api := humachi.New(apiRouter, humaConfig)
	registerAuthRoutes(api, srv)

	// ── OAuth routes (chi, not huma — these are redirects, not JSON API calls) ─
	apiRouter.With(srv.authRateLimit()).Get("/auth/oauth/google", srv.googleInitHandler)
	apiRouter.With(srv.authRateLimit()).Get("/auth/oauth/google/callback", srv.googleCallbackHandler)

	// ── Public payment page ───────────────────────────────────────────────────
	apiRouter.Get("/pay/{token}", srv.getPaymentPageHandler)
	apiRouter.With(srv.authRateLimit()).Post("/pay/{token}/confirm", srv.confirmPaymentHandler)

	// ── Tenant routes (chi, not huma, for per-group level middleware) ─────────
	apiRouter.Route("/tenants", func(r chi.Router) {
		r.Use(srv.RequireAuthenticated())
		r.Post("/", srv.createTenantHandler)

		r.Route("/{tenant_id}", func(r chi.Router) {
			r.Use(srv.RequireMember())
			r.Get("/", srv.getTenantHandler)
			r.With(srv.RequireLevelAtMost(hierarchy.LevelCompany)).Patch("/", srv.updateTenantHandler)

			// Hierarchy configuration and tree
			r.Route("/hierarchy", func(r chi.Router) {
				r.Get("/labels", srv.getLabelsHandler)
				r.With(srv.RequireLevelAtMost(hierarchy.LevelCompany)).Put("/labels", srv.putLabelsHandler)
				r.Get("/tree", srv.getTreeHandler)
			})

			// Member management
			r.Route("/members", func(r chi.Router) {
				r.Get("/", srv.listMembersHandler)
				r.Get("/assignable-roles", srv.assignableRolesHandler)
				r.Post("/invite", srv.inviteMemberHandler)
				r.Get("/invitations", srv.listInvitationsHandler)
				r.Patch("/{user_id}/role", srv.updateMemberRoleHandler)
				r.Patch("/{user_id}/manager", srv.updateMemberManagerHandler)
				r.Delete("/{user_id}", srv.removeMemberHandler)
			})

			// Leads pipeline
			r.Route("/leads", func(r chi.Router) {
				r.Get("/", srv.listLeadsHandler)
				r.Post("/", srv.createLeadHandler)
				r.Route("/{lead_id}", func(r chi.Router) {
					r.Get("/", srv.getLeadHandler)
					r.Patch("/", srv.updateLeadHandler)
					r.Post("/stage", srv.updateLeadStageHandler)
					r.Delete("/", srv.deleteLeadHandler)
				})
			})

			// Payment links
			r.Route("/payment-links", func(r chi.Router) {
				r.Get("/", srv.listPaymentLinksHandler)
				r.Post("/", srv.createPaymentLinkHandler)
			})

			// Webhook endpoints (admin levels only)
			r.Route("/webhooks", func(r chi.Router) {
				r.Use(srv.RequireLevelAtMost(hierarchy.LevelSubadmin))
				r.Get("/", srv.listWebhooksHandler)
				r.Post("/", srv.createWebhookHandler)
				r.Patch("/{webhook_id}", srv.updateWebhookHandler)
				r.Delete("/{webhook_id}", srv.deleteWebhookHandler)
			})
		})
	})

	r.Mount("/api/v1", apiRouter)

	return r
}

// acquireArgon2 tries to acquire the argon2 semaphore. Returns false if all
// slots are in use — the caller should return 503 immediately (do NOT block).
func (srv *Server) acquireArgon2() bool {
	select {
	case srv.argon2Sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (srv *Server) releaseArgon2() { <-srv.argon2Sem }

// healthResponse is the JSON body for /healthz.
type healthResponse struct {
	Status string `json:"status"`
	DB     string `json:"db,omitempty"`
}

// healthzHandler returns 200 {"status":"ok"} when the DB is reachable,
// or 503 {"status":"degraded","db":"unavailable"} when it is not.
func healthzHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		statusCode := http.StatusOK

		if db == nil {
			resp.Status = "degraded"
			resp.DB = "unavailable"
			statusCode = http.StatusServiceUnavailable
		} else if err := db.Ping(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "healthz: db ping failed", "error", err)
			resp.Status = "degraded"
			resp.DB = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.ErrorContext(r.Context(), "healthz: failed to encode response", "error", err)
		}
	}
}
