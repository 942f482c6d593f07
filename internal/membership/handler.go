package membership

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/platform/httpx"
	"github.com/workforcehub/workforcehub/internal/rbac"
	"github.com/workforcehub/workforcehub/internal/shared"
)

// Handler exposes membership management under /companies/{companyID}.
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

// MountRoutes registers membership routes on r. Routes must be mounted under a
// pattern that defines the companyID parameter.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Require(rbac.PermMembersRead)).Get("/members", h.list)
	r.With(h.guard.Require(rbac.PermMembersInvite)).Post("/members", h.invite)
	r.With(h.guard.Require(rbac.PermMembersUpdate)).Put("/members/{principalID}/role", h.updateRole)
	r.With(h.guard.Require(rbac.PermMembersUpdate)).Post("/members/{principalID}/suspend", h.suspend)
	r.With(h.guard.Require(rbac.PermMembersUpdate)).Post("/members/{principalID}/reinstate", h.reinstate)
	r.With(h.guard.Require(rbac.PermMembersRemove)).Delete("/members/{principalID}", h.remove)
	r.With(h.guard.Require(rbac.PermMembershipAccept)).Post("/membership/accept", h.accept)
}

type inviteRequest struct {
	PrincipalID string `json:"principal_id" validate:"required,uuid"`
	Role        string `json:"role" validate:"required,oneof=manager hr user provider owner client"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=manager hr user provider owner client"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.List(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	q := r.URL.Query()
	page := shared.ParsePagination(q.Get("page"), q.Get("per_page"), len(members))
	start, end := page.Bounds()
	httpx.JSON(w, http.StatusOK, map[string]any{"members": members[start:end], "pagination": page})
}

func (h *Handler) invite(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req inviteRequest
	if !h.decode(w, r, &req) {
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
	member, err := h.service.Invite(r.Context(), actor, chi.URLParam(r, "companyID"), target, role)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, member)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	target, ok := h.target(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := rbac.ParseRoleName(req.Role)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role is invalid")
		return
	}
	member, err := h.service.UpdateMemberRole(r.Context(), actor, chi.URLParam(r, "companyID"), target, role)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.Suspend)
}

func (h *Handler) reinstate(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.service.Reinstate)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor identity.Principal, companyID string, target identity.Principal) (Member, error)) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	target, ok := h.target(w, r)
	if !ok {
		return
	}
	member, err := fn(r.Context(), actor, chi.URLParam(r, "companyID"), target)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	target, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.service.Remove(r.Context(), actor, chi.URLParam(r, "companyID"), target); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	member, err := h.service.Accept(r.Context(), actor, chi.URLParam(r, "companyID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (identity.Principal, bool) {
	p, err := h.resolver.Resolve(r)
	if err != nil {
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusUnauthorized, Reason: rbac.OutcomeUnauthenticated})
		return p, false
	}
	return p, true
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (identity.Principal, bool) {
	p, err := identity.ParsePrincipal(chi.URLParam(r, "principalID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "principal id is invalid")
		return p, false
	}
	return p, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var fields []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field()))
			}
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid fields: "+strings.Join(fields, ", "))
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotMember):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyMember), errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrSelfChange), errors.Is(err, ErrRoleNotAssignable), errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
	default:
		h.logger.Error("membership request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
