package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/workforcehub/workforcehub/internal/audit/http"
	"github.com/workforcehub/workforcehub/internal/auth"
	"github.com/workforcehub/workforcehub/internal/membership"
	"github.com/workforcehub/workforcehub/internal/observability"
	"github.com/workforcehub/workforcehub/internal/platform/httpx"
	"github.com/workforcehub/workforcehub/internal/platformroles"
	"github.com/workforcehub/workforcehub/internal/rbac"
	"github.com/workforcehub/workforcehub/internal/shared"
	"github.com/workforcehub/workforcehub/jobs"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Guard          rbac.Guard

	AuthHandler          *auth.Handler
	PermissionsHandler   *rbac.PermissionsHandler
	MembershipHandler    *membership.Handler
	PlatformRolesHandler *platformroles.Handler
	AuditHandler         *audithttp.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
	HealthChecks         map[string]HealthCheck
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthHandler(params.HealthChecks))

	if params.AuthHandler != nil {
		r.Route("/auth", func(r chi.Router) {
			limit := 0
			if params.Config != nil {
				limit = params.Config.LoginRateLimit
			}
			r.With(LoginRateLimit(limit)).Group(params.AuthHandler.MountRoutes)
		})
	}
	if params.PermissionsHandler != nil {
		params.PermissionsHandler.MountRoutes(r)
	}
	if params.MembershipHandler != nil {
		r.Route("/companies/{companyID}", params.MembershipHandler.MountRoutes)
	}
	if params.PlatformRolesHandler != nil {
		r.Route("/admin/platform-roles", params.PlatformRolesHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/admin/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil && params.Guard.Roles != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.Guard.Require(rbac.PermAdminManage))
			params.JobHandler.MountRoutes(r)
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = "down"
				continue
			}
			body[name] = "up"
		}
		httpx.JSON(w, status, body)
	}
}
