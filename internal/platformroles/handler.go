package platformroles

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/platform/httpx"
	"github.com/workforcehub/workforcehub/internal/rbac"
)

// Handler exposes /admin/platform-roles.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	resolver  identity.Resolver
	guard     rbac.Guard
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, resolver identity.Resolver, guard rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, resolver: resolver, guard: guard, validator: validator.New()}
}

// MountRoutes registers the platform role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(rbac.PermPlatformRoleRead)).Get("/", h.list)
	r.With(h.guard.RequireAll(rbac.PermPlatformRoleAssign, rbac.PermAdminManage)).Post("/", h.grant)
	r.With(h.guard.RequireAll(rbac.PermPlatformRoleAssign, rbac.PermAdminManage)).Delete("/{principalID}/{role}", h.revoke)
}

type grantRequest struct {
	PrincipalID string `json:"principal_id" validate:"required,uuid"`
	Role        string `json:"role" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": items})
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	actor, err := h.resolver.Resolve(r)
	if err != nil {
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusUnauthorized, Reason: rbac.OutcomeUnauthenticated})
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	target, err := identity.ParsePrincipal(req.PrincipalID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "principal_id is invalid")
		return
	}
	role, err := rbac.ParseRoleName(req.Role)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role is invalid")
		return
	}
	assignment, err := h.service.Grant(r.Context(), actor, target, role)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, assignment)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, err := h.resolver.Resolve(r)
	if err != nil {
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusUnauthorized, Reason: rbac.OutcomeUnauthenticated})
		return
	}
	target, err := identity.ParsePrincipal(chi.URLParam(r, "principalID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "principal id is invalid")
		return
	}
	role, err := rbac.ParseRoleName(chi.URLParam(r, "role"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role is invalid")
		return
	}
	if err := h.service.Revoke(r.Context(), actor, target, role); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotPlatformAdmin):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Status:      http.StatusForbidden,
			Reason:      rbac.OutcomeForbidden,
			Permissions: []string{rbac.PermAdminManage.String()},
		})
	case errors.Is(err, ErrNotAssigned):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrRoleNotGrantable), errors.Is(err, ErrSelfRevoke):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
	case rbac.IsConfigurationError(err):
		h.logger.Error("platform roles configuration", slog.Any("error", err))
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusInternalServerError, Reason: rbac.OutcomeConfigurationError})
	case errors.Is(err, rbac.ErrStoreUnavailable):
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusServiceUnavailable, Reason: rbac.OutcomeStoreUnavailable})
	default:
		h.logger.Error("platform roles request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
