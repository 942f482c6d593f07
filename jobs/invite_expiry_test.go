package jobs_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workforcehub/workforcehub/internal/identity"
	jobmetrics "github.com/workforcehub/workforcehub/internal/jobs"
	"github.com/workforcehub/workforcehub/internal/membership"
	"github.com/workforcehub/workforcehub/internal/rbac"
	"github.com/workforcehub/workforcehub/internal/rbac/rbactest"
	"github.com/workforcehub/workforcehub/jobs"
	_ "github.com/workforcehub/workforcehub/testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestInviteExpiryJobRemovesStaleInvites(t *testing.T) {
	store := rbactest.New()
	stale, fresh, active := uuid.New(), uuid.New(), uuid.New()
	store.SetMember(stale, "c1", rbac.RoleUser, rbac.MemberInvited)
	store.SetMember(fresh, "c1", rbac.RoleUser, rbac.MemberInvited)
	store.SetMember(active, "c1", rbac.RoleUser, rbac.MemberActive)
	store.Age(stale, "c1", 48*time.Hour)
	store.Age(active, "c1", 48*time.Hour)

	svc := membership.NewService(store, nil, quietLogger(), 24*time.Hour)
	job := jobs.NewInviteExpiryJob(svc, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := jobs.NewInviteExpiryTask("test")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	members, err := store.ListMembers(context.Background(), "c1")
	require.NoError(t, err)
	ids := make([]identity.Principal, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.Principal)
	}
	assert.ElementsMatch(t, []identity.Principal{fresh, active}, ids)
	assert.Zero(t, store.PlatformWrites())
}

type failingExpirer struct{ err error }

func (f failingExpirer) ExpireInvites(ctx context.Context, actor identity.Principal) (int64, error) {
	if !identity.IsSystem(ctx, actor) {
		return 0, errors.New("expected system actor")
	}
	return 0, f.err
}

func TestInviteExpiryJobPropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	job := jobs.NewInviteExpiryJob(failingExpirer{err: boom}, quietLogger(), nil)
	task, err := jobs.NewInviteExpiryTask("")
	require.NoError(t, err)
	assert.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestInviteExpiryJobSkipsMalformedPayload(t *testing.T) {
	job := jobs.NewInviteExpiryJob(failingExpirer{}, quietLogger(), nil)
	err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskMembershipInviteExpiry, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsHealthHandler(t *testing.T) {
	serve := func(h *jobs.Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", h.MountRoutes)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rec
	}

	rec := serve(jobs.NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Failed: 1}}, quietLogger()))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "default", body["queue"])
	assert.EqualValues(t, 3, body["pending"])
	assert.EqualValues(t, 1, body["failed_today"])

	rec = serve(jobs.NewHandler(stubInspector{err: errors.New("redis down")}, quietLogger()))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(jobs.NewHandler(nil, quietLogger()))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := jobs.NewWorker(jobs.WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	assert.Error(t, err)
}
