package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/platform/httpx"
)

// CatalogEntry is the wire form of one permission.
type CatalogEntry struct {
	Name     string `json:"name"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Scope    string `json:"scope"`
}

// CatalogDocument is the versioned permission catalog shared with UI clients.
type CatalogDocument struct {
	Version     int                 `json:"version"`
	Permissions []CatalogEntry      `json:"permissions"`
	Roles       map[string][]string `json:"roles"`
}

// EffectiveDocument lists what the caller may do in the selected company.
type EffectiveDocument struct {
	Version     int      `json:"version"`
	CompanyID   string   `json:"company_id,omitempty"`
	Permissions []string `json:"permissions"`
}

// PermissionsHandler serves the permission catalog and the caller's effective set.
type PermissionsHandler struct {
	logger   *slog.Logger
	loader   *Loader
	resolver identity.Resolver
	company  CompanySelector
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, loader *Loader, resolver identity.Resolver, company CompanySelector) *PermissionsHandler {
	if company == nil {
		company = DefaultCompanySelector
	}
	return &PermissionsHandler{logger: logger, loader: loader, resolver: resolver, company: company}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/permissions", h.catalog)
	r.Get("/me/permissions", h.effective)
}

// BuildCatalogDocument renders the catalog and role table.
func BuildCatalogDocument() (CatalogDocument, error) {
	all, err := Roles()
	if err != nil {
		return CatalogDocument{}, err
	}
	doc := CatalogDocument{Version: CatalogVersion, Roles: make(map[string][]string, len(all))}
	for _, p := range Catalog() {
		doc.Permissions = append(doc.Permissions, CatalogEntry{
			Name:     p.String(),
			Resource: p.Resource,
			Action:   p.Action,
			Scope:    p.Scope.String(),
		})
	}
	for _, role := range all {
		names := make([]string, 0, len(role.Grants))
		for _, p := range role.Grants {
			names = append(names, p.String())
		}
		sort.Strings(names)
		doc.Roles[string(role.Name)] = names
	}
	return doc, nil
}

func (h *PermissionsHandler) catalog(w http.ResponseWriter, r *http.Request) {
	doc, err := BuildCatalogDocument()
	if err != nil {
		h.logger.Error("rbac catalog", slog.Any("error", err))
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusInternalServerError, Reason: OutcomeConfigurationError})
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *PermissionsHandler) effective(w http.ResponseWriter, r *http.Request) {
	principal, err := h.resolver.Resolve(r)
	if err != nil {
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusUnauthorized, Reason: OutcomeUnauthenticated})
		return
	}
	ec := h.company.SelectCompany(r)
	perms, err := h.loader.EffectivePermissions(r.Context(), principal, ec)
	if err != nil {
		switch {
		case IsConfigurationError(err):
			h.logger.Error("rbac effective permissions", slog.Any("error", err))
			httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusInternalServerError, Reason: OutcomeConfigurationError})
		case errors.Is(err, identity.ErrUnauthenticated):
			httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusUnauthorized, Reason: OutcomeUnauthenticated})
		default:
			h.logger.Error("rbac effective permissions", slog.Any("error", err))
			httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusServiceUnavailable, Reason: OutcomeStoreUnavailable})
		}
		return
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.String())
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, EffectiveDocument{Version: CatalogVersion, CompanyID: ec.CompanyID, Permissions: names})
}
