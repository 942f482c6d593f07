package rbac_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/platform/httpx"
	"github.com/workforcehub/workforcehub/internal/rbac"
	"github.com/workforcehub/workforcehub/internal/rbac/rbactest"
	"github.com/workforcehub/workforcehub/internal/shared"
)

const principalHeader = "X-Test-Principal"

var headerResolver = identity.ResolverFunc(func(r *http.Request) (identity.Principal, error) {
	return identity.ParsePrincipal(r.Header.Get(principalHeader))
})

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveDecision(_ string, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

type stepLoader struct {
	steps  *[]string
	inner  rbac.RoleLoader
	lastEC rbac.EvalContext
}

func (l *stepLoader) LoadEffectiveRoles(ctx context.Context, p identity.Principal, ec rbac.EvalContext) ([]rbac.Grant, error) {
	*l.steps = append(*l.steps, "load")
	l.lastEC = ec
	return l.inner.LoadEffectiveRoles(ctx, p, ec)
}

func newGuard(store *rbactest.Store, observer rbac.DecisionObserver) rbac.Guard {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return rbac.Guard{
		Resolver: headerResolver,
		Roles:    rbac.NewLoader(store, logger, time.Second),
		Logger:   logger,
		Observer: observer,
	}
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func serve(h http.Handler, principal identity.Principal, companyID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	if principal != uuid.Nil {
		req.Header.Set(principalHeader, principal.String())
	}
	if companyID != "" {
		req.Header.Set(rbac.CompanyHeader, companyID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGuardUnauthenticated(t *testing.T) {
	observer := &recordingObserver{}
	called := false
	h := newGuard(rbactest.New(), observer).WithRBAC(rbac.PermContractReadOwn, http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := serve(h, uuid.Nil, "")
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, rbac.OutcomeUnauthenticated, decodeProblem(t, rec).Reason)
	assert.Equal(t, []string{rbac.OutcomeUnauthenticated}, observer.outcomes)
}

func TestGuardForbiddenNamesOnlyUnmetPermission(t *testing.T) {
	store := rbactest.New()
	principal := uuid.New()
	store.SetGlobal(principal, rbac.RoleUser, "")

	called := false
	h := newGuard(store, nil).WithRBAC(rbac.PermContractReadAll, http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	rec := serve(h, principal, "")

	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, rbac.OutcomeForbidden, problem.Reason)
	assert.Equal(t, []string{"contract:read:all"}, problem.Permissions)
	assert.NotContains(t, rec.Body.String(), "user")
}

func TestGuardAllowPassesOriginalRequest(t *testing.T) {
	store := rbactest.New()
	principal := uuid.New()
	store.SetGlobal(principal, rbac.RoleUser, "")

	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	req.Header.Set(principalHeader, principal.String())
	var seen *http.Request
	h := newGuard(store, nil).WithRBAC(rbac.PermContractReadOwn, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Same(t, req, seen)
}

func TestGuardOrdering(t *testing.T) {
	store := rbactest.New()
	principal := uuid.New()
	store.SetGlobal(principal, rbac.RoleUser, "")

	var steps []string
	guard := newGuard(store, nil)
	guard.Resolver = identity.ResolverFunc(func(r *http.Request) (identity.Principal, error) {
		steps = append(steps, "resolve")
		return headerResolver(r)
	})
	guard.Roles = &stepLoader{steps: &steps, inner: guard.Roles}
	h := guard.WithRBAC(rbac.PermContractReadOwn, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		steps = append(steps, "handler")
	}))

	serve(h, principal, "")
	assert.Equal(t, []string{"resolve", "load", "handler"}, steps)

	steps = nil
	serve(h, uuid.Nil, "")
	assert.Equal(t, []string{"resolve"}, steps)
}

func TestGuardAnyOf(t *testing.T) {
	store := rbactest.New()
	principal := uuid.New()
	store.SetMember(principal, "c1", rbac.RoleHR, rbac.MemberActive)

	guard := newGuard(store, nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	h := guard.WithAnyRBAC([]rbac.Permission{rbac.PermContractReadAll, rbac.PermLeaveApproveOrg}, ok)
	assert.Equal(t, http.StatusOK, serve(h, principal, "c1").Code)
	assert.Equal(t, http.StatusForbidden, serve(h, principal, "c2").Code)

	all := guard.WithAllRBAC([]rbac.Permission{rbac.PermLeaveApproveOrg, rbac.PermMembersUpdate}, ok)
	rec := serve(all, principal, "c1")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, []string{"company_member:update:organization"}, decodeProblem(t, rec).Permissions)
}

func TestGuardConfigurationError(t *testing.T) {
	store := rbactest.New()
	principal := uuid.New()
	store.SetGlobal(principal, rbac.RoleAdmin, "")

	called := false
	unknown := rbac.Permission{Resource: "payroll", Action: "run", Scope: rbac.ScopeAll}
	h := newGuard(store, nil).WithRBAC(unknown, http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	rec := serve(h, principal, "")

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, rbac.OutcomeConfigurationError, decodeProblem(t, rec).Reason)
}

func TestGuardStoreUnavailable(t *testing.T) {
	store := rbactest.New()
	store.GlobalErr = errors.New("down")
	store.PlatformErr = store.GlobalErr

	called := false
	h := newGuard(store, nil).WithRBAC(rbac.PermContractReadOwn, http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	rec := serve(h, uuid.New(), "")

	assert.False(t, called)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, rbac.OutcomeStoreUnavailable, decodeProblem(t, rec).Reason)
}

func TestGuardAbortedRequestSkipsHandler(t *testing.T) {
	store := rbactest.New()
	principal := uuid.New()
	store.SetGlobal(principal, rbac.RoleUser, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/resource", nil).WithContext(ctx)
	req.Header.Set(principalHeader, principal.String())

	observer := &recordingObserver{}
	called := false
	h := newGuard(store, observer).WithRBAC(rbac.PermContractReadOwn, http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.False(t, called)
	assert.Equal(t, []string{rbac.OutcomeAborted}, observer.outcomes)
}

func TestGuardRequireWithChiRouteParam(t *testing.T) {
	store := rbactest.New()
	principal := uuid.New()
	store.SetMember(principal, "c1", rbac.RoleManager, rbac.MemberActive)

	guard := newGuard(store, nil)
	r := chi.NewRouter()
	r.Route("/companies/{companyID}", func(r chi.Router) {
		r.Use(guard.Require(rbac.PermMembersRead))
		r.Get("/members", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	})

	for companyID, want := range map[string]int{"c1": http.StatusOK, "c2": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/companies/"+companyID+"/members", nil)
		req.Header.Set(principalHeader, principal.String())
		req.Header.Set(rbac.CompanyHeader, "c1")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, companyID)
	}
}

func TestDefaultCompanySelectorFallsBackToSession(t *testing.T) {
	sess := &shared.Session{}
	sess.SetActiveCompany("from-session")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	assert.Equal(t, "from-session", rbac.DefaultCompanySelector.SelectCompany(req).CompanyID)

	req.Header.Set(rbac.CompanyHeader, "from-header")
	assert.Equal(t, "from-header", rbac.DefaultCompanySelector.SelectCompany(req).CompanyID)
}

func TestPermissionsHandler(t *testing.T) {
	store := rbactest.New()
	principal := uuid.New()
	store.SetGlobal(principal, rbac.RoleUser, "")
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	loader := rbac.NewLoader(store, logger, time.Second)

	r := chi.NewRouter()
	rbac.NewPermissionsHandler(logger, loader, headerResolver, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/permissions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var doc rbac.CatalogDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, rbac.CatalogVersion, doc.Version)
	assert.Len(t, doc.Permissions, len(rbac.Catalog()))
	assert.Contains(t, doc.Roles["user"], "contract:read:own")

	req := httptest.NewRequest(http.MethodGet, "/me/permissions", nil)
	req.Header.Set(principalHeader, principal.String())
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine rbac.EffectiveDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Contains(t, mine.Permissions, "contract:read:own")
	assert.NotContains(t, mine.Permissions, "contract:read:all")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me/permissions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
