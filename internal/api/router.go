package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/courtlens/tenancy/pkg/httpserver"
	"github.com/courtlens/tenancy/pkg/logger"
	"github.com/courtlens/tenancy/pkg/rbac"
	"github.com/courtlens/tenancy/pkg/requestid"
)

// WhoAmIPermission guards GET /app/whoami.
const WhoAmIPermission = "tenant:read"

// RouterConfig wires the router's dependencies. Tenants and
// TenantMiddleware are required. The membership routes are mounted only
// when Members is set.
type RouterConfig struct {
	Tenants          Service
	Members          rbac.MemberDirectory
	Roles            RoleSet
	Contexts         Invalidator
	TenantMiddleware func(http.Handler) http.Handler
	RateLimit        func(http.Handler) http.Handler
	AdminToken       string
	Metrics          http.Handler
	Checks           []httpserver.Check
	HealthTimeout    time.Duration
	Logger           *slog.Logger
}

// NewRouter builds the service's HTTP handler.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(log, cfg.HealthTimeout, cfg.Checks...))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(RequireAdminToken(cfg.AdminToken, log))
		NewHandler(cfg.Tenants, log).Register(r)
		if cfg.Members != nil {
			NewMembersHandler(cfg.Tenants, cfg.Members, cfg.Roles, cfg.Contexts, log).Register(r)
		}
	})

	r.Route("/app", func(r chi.Router) {
		r.Use(cfg.TenantMiddleware)
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit)
		}
		r.With(rbac.Require(WhoAmIPermission)).Get("/whoami", HandleWhoAmI)
		r.Get("/connection", HandleConnectionPing)
	})

	return r
}
