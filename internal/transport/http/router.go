// Package httptransport exposes the admin and ops HTTP surface. Handlers
// stay thin: decode, delegate to a service, encode. No business logic.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ledgerservice "mailroom/internal/ledger/service"
	projectservice "mailroom/internal/project/service"
	tenantservice "mailroom/internal/tenant/service"
	usageservice "mailroom/internal/usage/service"
	"mailroom/pkg/platform/middleware/admin"
	"mailroom/pkg/platform/middleware/logging"
	"mailroom/pkg/platform/middleware/request"
	"mailroom/pkg/platform/middleware/requesttime"
)

// Handler carries the services the admin API fronts.
type Handler struct {
	tenants  *tenantservice.Service
	projects *projectservice.Resolver
	ledger   *ledgerservice.Writer
	usage    *usageservice.Service
	logger   *slog.Logger

	// health reports readiness of backing stores; nil checks are skipped.
	health map[string]func() error
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithHealthCheck registers a named readiness probe for /healthz.
func WithHealthCheck(name string, check func() error) Option {
	return func(h *Handler) { h.health[name] = check }
}

func NewHandler(tenants *tenantservice.Service, projects *projectservice.Resolver, ledger *ledgerservice.Writer, usage *usageservice.Service, opts ...Option) *Handler {
	h := &Handler{
		tenants:  tenants,
		projects: projects,
		ledger:   ledger,
		usage:    usage,
		logger:   slog.Default(),
		health:   make(map[string]func() error),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewRouter wires the ops endpoints and the admin API. Onboarding and
// billing transitions require the operator token; organization-scoped reads
// require that organization's admin key.
func NewRouter(h *Handler, operatorToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(logging.Middleware(h.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/admin/organizations", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireOperatorToken(operatorToken, h.logger))
			r.Post("/", h.handleOnboard)
			r.Post("/{orgID}/suspend", h.handleSuspend)
			r.Post("/{orgID}/reactivate", h.handleReactivate)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdminKey)
			r.Get("/{orgID}", h.handleGetOrganization)
			r.Get("/{orgID}/projects", h.handleListProjects)
			r.Get("/{orgID}/projects/{projectID}/events", h.handleListEvents)
			r.Get("/{orgID}/usage", h.handleUsageSummary)
		})
	})

	return r
}
