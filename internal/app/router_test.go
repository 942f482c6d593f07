package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/workforcehub/workforcehub/internal/app"
	"github.com/workforcehub/workforcehub/internal/auth"
	"github.com/workforcehub/workforcehub/internal/identity"
	"github.com/workforcehub/workforcehub/internal/membership"
	"github.com/workforcehub/workforcehub/internal/observability"
	"github.com/workforcehub/workforcehub/internal/rbac"
	"github.com/workforcehub/workforcehub/internal/rbac/rbactest"
	"github.com/workforcehub/workforcehub/internal/shared"
	"github.com/workforcehub/workforcehub/jobs"
	_ "github.com/workforcehub/workforcehub/testing"
)

type userRepo struct {
	users map[string]*auth.User
}

func (r userRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	if u, ok := r.users[strings.ToLower(email)]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

type harness struct {
	handler http.Handler
	store   *rbactest.Store
	tokens  *identity.Tokens
	metrics *observability.Metrics
	manager *auth.User
}

func newHarness(t *testing.T, checks map[string]app.HealthCheck) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	cfg := &app.Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, LoginRateLimit: 100}
	sessions := shared.NewSessionManager(redisClient, "wfh_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf")
	tokens := identity.NewTokens("router-test-secret")
	metrics := observability.NewMetrics()
	store := rbactest.New()

	hash, err := bcrypt.GenerateFromPassword([]byte("manager-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	manager := &auth.User{ID: uuid.New(), Email: "manager@acme.test", PasswordHash: string(hash), CompanyID: "acme", IsActive: true}
	store.SetMember(manager.ID, "acme", rbac.RoleManager, rbac.MemberActive)

	resolver := identity.Chain{identity.SessionResolver{}, tokens}
	loader := rbac.NewLoader(store, logger, time.Second)
	guard := rbac.Guard{Resolver: resolver, Roles: loader, Logger: logger, Observer: metrics}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessions,
		CSRFManager:        csrf,
		Guard:              guard,
		AuthHandler:        auth.NewHandler(logger, auth.NewService(userRepo{users: map[string]*auth.User{manager.Email: manager}}, nil), sessions, csrf, tokens, time.Hour),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, loader, resolver, nil),
		MembershipHandler:  membership.NewHandler(logger, membership.NewService(store, nil, logger, time.Hour), resolver, guard),
		JobHandler:         jobs.NewHandler(nil, logger),
		Metrics:            metrics,
		HealthChecks:       checks,
	})
	return &harness{handler: router, store: store, tokens: tokens, metrics: metrics, manager: manager}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, map[string]app.HealthCheck{
		"postgres": func(context.Context) error { return nil },
	})
	rec := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"postgres":"up"`)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	h = newHarness(t, map[string]app.HealthCheck{
		"redis": func(context.Context) error { return errors.New("down") },
	})
	rec = h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"down"`)
}

func TestPermissionCatalogIsPublic(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/permissions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var doc rbac.CatalogDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, rbac.CatalogVersion, doc.Version)
	assert.NotEmpty(t, doc.Permissions)
}

func TestSessionLoginFlow(t *testing.T) {
	h := newHarness(t, nil)

	login := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"manager@acme.test","password":"manager-pass"}`))
	login.Header.Set("Content-Type", "application/json")
	rec := h.do(login)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	me := httptest.NewRequest(http.MethodGet, "/me/permissions", nil)
	for _, c := range cookies {
		me.AddCookie(c)
	}
	rec = h.do(me)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var doc rbac.EffectiveDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "acme", doc.CompanyID)
	assert.Contains(t, doc.Permissions, rbac.PermMembersRead.String())
}

func TestCSRFRequiredForCookieWrites(t *testing.T) {
	h := newHarness(t, nil)
	target := uuid.New()
	h.store.SetMember(target, "acme", rbac.RoleUser, rbac.MemberActive)

	login := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"manager@acme.test","password":"manager-pass"}`))
	rec := h.do(login)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()

	update := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/companies/acme/members/"+target.String()+"/role", strings.NewReader(`{"role":"hr"}`))
		for _, c := range cookies {
			req.AddCookie(c)
		}
		if token != "" {
			req.Header.Set(shared.CSRFHeader, token)
		}
		return h.do(req)
	}

	rec = update("")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "csrf")

	csrfReq := httptest.NewRequest(http.MethodGet, "/auth/csrf", nil)
	for _, c := range cookies {
		csrfReq.AddCookie(c)
	}
	rec = h.do(csrfReq)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	rec = update(body["csrf_token"])
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestBearerRequestsSkipCSRFAndAreCounted(t *testing.T) {
	h := newHarness(t, nil)
	token, _, err := h.tokens.Issue(h.manager.ID, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/companies/globex/members", strings.NewReader(`{"principal_id":"`+uuid.NewString()+`","role":"user"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := h.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason":"forbidden"`)

	req = httptest.NewRequest(http.MethodGet, "/jobs/health", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = h.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code, "tenant managers are not platform admins")

	rec = h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `workforcehub_rbac_decisions_total{outcome="forbidden",permission="company_member:invite:organization"} 1`)
}

func TestRequestRateLimitSkipsProbes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             &app.Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, RequestRateLimit: 2},
		SessionManager:     shared.NewSessionManager(redisClient, "wfh_session", "secret", time.Hour, false),
		CSRFManager:        shared.NewCSRFManager("csrf"),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, nil, nil, nil),
		Metrics:            metrics,
	})
	do := func(path string) int {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("/permissions"))
	assert.Equal(t, http.StatusOK, do("/permissions"))
	assert.Equal(t, http.StatusTooManyRequests, do("/permissions"))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do("/healthz"))
		assert.Equal(t, http.StatusOK, do("/metrics"))
	}
}

func TestUnknownRouteReturnsProblem(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
