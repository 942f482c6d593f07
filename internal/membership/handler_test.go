package membership_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/membership"
	"github.com/workforcehub/workforcehub/internal/rbac"
	"github.com/workforcehub/workforcehub/internal/rbac/rbactest"
)

const principalHeader = "X-Test-Principal"

func newRouter(store *rbactest.Store) http.Handler {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	resolver := identity.ResolverFunc(func(r *http.Request) (identity.Principal, error) {
		return identity.ParsePrincipal(r.Header.Get(principalHeader))
	})
	guard := rbac.Guard{Resolver: resolver, Roles: rbac.NewLoader(store, logger, time.Second), Logger: logger}
	svc := membership.NewService(store, &stubAudit{}, logger, time.Hour)

	r := chi.NewRouter()
	r.Route("/companies/{companyID}", membership.NewHandler(logger, svc, resolver, guard).MountRoutes)
	r.With(guard.Require(rbac.PermAdminManage)).Get("/admin/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path string, principal identity.Principal, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(principalHeader, principal.String())
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTenantAdminRoleUpdateDoesNotGrantPlatformAccess(t *testing.T) {
	store := rbactest.New()
	manager, target := uuid.New(), uuid.New()
	store.SetMember(manager, "c1", rbac.RoleManager, rbac.MemberActive)
	store.SetMember(target, "c1", rbac.RoleUser, rbac.MemberActive)
	store.SetGlobal(target, rbac.RoleUser, "c1")
	before := store.Snapshot()
	router := newRouter(store)

	rec := do(t, router, http.MethodPut, "/companies/c1/members/"+target.String()+"/role", manager, `{"role":"manager"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"role":"manager"`)

	assert.Zero(t, store.PlatformWrites())
	assert.Equal(t, before, store.Snapshot())

	rec = do(t, router, http.MethodGet, "/admin/ping", target, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, router, http.MethodGet, "/admin/ping", manager, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMembershipRoutesAreTenantScoped(t *testing.T) {
	store := rbactest.New()
	manager, target := uuid.New(), uuid.New()
	store.SetMember(manager, "c1", rbac.RoleManager, rbac.MemberActive)
	store.SetMember(target, "c2", rbac.RoleUser, rbac.MemberActive)
	router := newRouter(store)

	rec := do(t, router, http.MethodPut, "/companies/c2/members/"+target.String()+"/role", manager, `{"role":"manager"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodGet, "/companies/c1/members", manager, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMembershipHandlerValidation(t *testing.T) {
	store := rbactest.New()
	manager, target := uuid.New(), uuid.New()
	store.SetMember(manager, "c1", rbac.RoleManager, rbac.MemberActive)
	store.SetMember(target, "c1", rbac.RoleUser, rbac.MemberActive)
	router := newRouter(store)

	rec := do(t, router, http.MethodPut, "/companies/c1/members/"+target.String()+"/role", manager, `{"role":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPut, "/companies/c1/members/not-a-uuid/role", manager, `{"role":"hr"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPut, "/companies/c1/members/"+manager.String()+"/role", manager, `{"role":"hr"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, router, http.MethodDelete, "/companies/c1/members/"+uuid.NewString(), manager, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInviteAcceptFlowOverHTTP(t *testing.T) {
	store := rbactest.New()
	manager, invitee := uuid.New(), uuid.New()
	store.SetMember(manager, "c1", rbac.RoleManager, rbac.MemberActive)
	store.SetGlobal(invitee, rbac.RoleUser, "")
	router := newRouter(store)

	rec := do(t, router, http.MethodPost, "/companies/c1/members", manager, `{"principal_id":"`+invitee.String()+`","role":"hr"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/companies/c1/members", invitee, "")
	assert.Equal(t, http.StatusForbidden, rec.Code, "invited members hold no tenant grants")

	rec = do(t, router, http.MethodPost, "/companies/c1/membership/accept", invitee, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/companies/c1/members", invitee, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListMembersPaginates(t *testing.T) {
	store := rbactest.New()
	manager := uuid.New()
	store.SetMember(manager, "c1", rbac.RoleManager, rbac.MemberActive)
	for i := 0; i < 4; i++ {
		store.SetMember(uuid.New(), "c1", rbac.RoleUser, rbac.MemberActive)
	}
	router := newRouter(store)

	rec := do(t, router, http.MethodGet, "/companies/c1/members?page=2&per_page=2", manager, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Members    []membership.Member `json:"members"`
		Pagination struct {
			Page       int `json:"page"`
			Total      int `json:"total"`
			TotalPages int `json:"total_pages"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Members, 2)
	assert.Equal(t, 2, body.Pagination.Page)
	assert.Equal(t, 5, body.Pagination.Total)
	assert.Equal(t, 3, body.Pagination.TotalPages)

	rec = do(t, router, http.MethodGet, "/companies/c1/members?page=9&per_page=2", manager, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Members)

	rec = do(t, router, http.MethodGet, "/companies/c1/members?page=9223372036854775807", manager, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Members)
	assert.Equal(t, 5, body.Pagination.Total)
}
