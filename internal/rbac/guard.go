package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/platform/httpx"
)

// Guard outcome reasons, also used as metric labels.
const (
	OutcomeAllowed            = "allowed"
	OutcomeUnauthenticated    = "unauthenticated"
	OutcomeForbidden          = "forbidden"
	OutcomeConfigurationError = "configuration_error"
	OutcomeStoreUnavailable   = "store_unavailable"
	OutcomeAborted            = "aborted"
)

// DecisionObserver receives one notification per guarded request.
type DecisionObserver interface {
	ObserveDecision(permission, outcome string)
}

// Guard wires authorization checks in front of HTTP handlers. The zero value is not
// usable: Resolver and Roles are required.
type Guard struct {
	Resolver identity.Resolver
	Roles    RoleLoader
	Company  CompanySelector
	Logger   *slog.Logger
	Observer DecisionObserver
}

type matchMode int

const (
	matchAny matchMode = iota
	matchAll
)

// WithRBAC guards next with a single permission.
func (g Guard) WithRBAC(required Permission, next http.Handler) http.Handler {
	return g.guard([]Permission{required}, matchAny, next)
}

// WithAnyRBAC guards next with a list of permissions of which one must be satisfied.
func (g Guard) WithAnyRBAC(required []Permission, next http.Handler) http.Handler {
	return g.guard(required, matchAny, next)
}

// WithAllRBAC guards next with a list of permissions that must all be satisfied.
func (g Guard) WithAllRBAC(required []Permission, next http.Handler) http.Handler {
	return g.guard(required, matchAll, next)
}

// Require is the chi middleware form of WithRBAC.
func (g Guard) Require(required Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.WithRBAC(required, next)
	}
}

// RequireAny is the chi middleware form of WithAnyRBAC.
func (g Guard) RequireAny(required ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.WithAnyRBAC(required, next)
	}
}

// RequireAll is the chi middleware form of WithAllRBAC.
func (g Guard) RequireAll(required ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.WithAllRBAC(required, next)
	}
}

func (g Guard) guard(required []Permission, mode matchMode, next http.Handler) http.Handler {
	label := permissionLabel(required)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := checkRequired(required); err != nil {
			g.configurationFailure(w, label, err)
			return
		}

		principal, err := g.Resolver.Resolve(r)
		if err != nil {
			if !errors.Is(err, identity.ErrNoCredentials) {
				g.logger().Warn("rbac identity rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
			}
			g.observe(label, OutcomeUnauthenticated)
			httpx.WriteProblem(w, httpx.ProblemDetail{
				Status: http.StatusUnauthorized,
				Title:  "Unauthorized",
				Reason: OutcomeUnauthenticated,
			})
			return
		}

		ec := g.selector().SelectCompany(r)
		grants, err := g.Roles.LoadEffectiveRoles(r.Context(), principal, ec)
		if err != nil {
			if r.Context().Err() != nil {
				g.observe(label, OutcomeAborted)
				return
			}
			switch {
			case IsConfigurationError(err):
				g.configurationFailure(w, label, err)
			case errors.Is(err, ErrStoreUnavailable):
				g.logger().Error("rbac role store unavailable", slog.String("principal", principal.String()), slog.Any("error", err))
				g.observe(label, OutcomeStoreUnavailable)
				httpx.WriteProblem(w, httpx.ProblemDetail{
					Status: http.StatusServiceUnavailable,
					Title:  "Service Unavailable",
					Reason: OutcomeStoreUnavailable,
				})
			case errors.Is(err, identity.ErrUnauthenticated):
				g.observe(label, OutcomeUnauthenticated)
				httpx.WriteProblem(w, httpx.ProblemDetail{
					Status: http.StatusUnauthorized,
					Title:  "Unauthorized",
					Reason: OutcomeUnauthenticated,
				})
			default:
				g.logger().Error("rbac load roles", slog.Any("error", err))
				g.observe(label, OutcomeStoreUnavailable)
				httpx.WriteProblem(w, httpx.ProblemDetail{
					Status: http.StatusServiceUnavailable,
					Title:  "Service Unavailable",
					Reason: OutcomeStoreUnavailable,
				})
			}
			return
		}

		var decision Decision
		if mode == matchAll {
			decision, err = EvaluateAll(grants, required, ec)
		} else {
			decision, err = EvaluateAny(grants, required, ec)
		}
		if err != nil {
			g.configurationFailure(w, label, err)
			return
		}
		if !decision.Allowed {
			g.observe(label, OutcomeForbidden)
			httpx.WriteProblem(w, httpx.ProblemDetail{
				Status:      http.StatusForbidden,
				Title:       "Forbidden",
				Reason:      OutcomeForbidden,
				Permissions: []string{decision.Permission.String()},
			})
			return
		}

		if r.Context().Err() != nil {
			g.observe(label, OutcomeAborted)
			return
		}
		g.observe(label, OutcomeAllowed)
		next.ServeHTTP(w, r)
	})
}

func (g Guard) configurationFailure(w http.ResponseWriter, label string, err error) {
	g.logger().Error("rbac configuration error", slog.String("permissions", label), slog.Any("error", err))
	g.observe(label, OutcomeConfigurationError)
	httpx.WriteProblem(w, httpx.ProblemDetail{
		Status: http.StatusInternalServerError,
		Title:  "Internal Error",
		Reason: OutcomeConfigurationError,
	})
}

func (g Guard) observe(label, outcome string) {
	if g.Observer != nil {
		g.Observer.ObserveDecision(label, outcome)
	}
}

func (g Guard) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g Guard) selector() CompanySelector {
	if g.Company != nil {
		return g.Company
	}
	return DefaultCompanySelector
}

func permissionLabel(perms []Permission) string {
	parts := make([]string, 0, len(perms))
	for _, p := range perms {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, ",")
}
