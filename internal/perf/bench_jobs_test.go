package perf

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/workforcehub/workforcehub/internal/jobs"
	"github.com/workforcehub/workforcehub/internal/membership"
	"github.com/workforcehub/workforcehub/internal/rbac"
	"github.com/workforcehub/workforcehub/internal/rbac/rbactest"
	"github.com/workforcehub/workforcehub/jobs"
)

type flakyExpirer struct {
	inner *membership.Service
	calls int
}

func (f *flakyExpirer) ExpireInvites(ctx context.Context, actor uuid.UUID) (int64, error) {
	f.calls++
	if f.calls%10 == 0 {
		return 0, errors.New("store timeout")
	}
	return f.inner.ExpireInvites(ctx, actor)
}

func TestInviteSweepThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	store := rbactest.New()
	for i := 0; i < 25; i++ {
		invitee := uuid.New()
		store.SetMember(invitee, "c1", rbac.RoleUser, rbac.MemberInvited)
		store.Age(invitee, "c1", 48*time.Hour)
	}
	expirer := &flakyExpirer{inner: membership.NewService(store, nil, logger, 24*time.Hour)}
	job := jobs.NewInviteExpiryJob(expirer, logger, metrics)
	task, err := jobs.NewInviteExpiryTask("perf")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	for i := 0; i < 30; i++ {
		_ = job.Handle(context.Background(), task)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	labels := func(status string) map[string]string {
		return map[string]string{"job": jobs.TaskMembershipInviteExpiry, "status": status}
	}
	success := metricValue(t, families, "workforcehub_jobs_total", labels("success"))
	failure := metricValue(t, families, "workforcehub_jobs_total", labels("failure"))
	if success+failure != 30 {
		t.Fatalf("expected 30 runs, got %f", success+failure)
	}
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("invite sweep success ratio too low: %f", ratio)
	}
	if expired := metricValue(t, families, "workforcehub_membership_invites_expired_total", nil); expired != 25 {
		t.Fatalf("expected 25 expired invites, got %f", expired)
	}
	if mean := histogramMean(t, families, "workforcehub_job_duration_seconds", map[string]string{"job": jobs.TaskMembershipInviteExpiry}); mean > 0.5 {
		t.Fatalf("invite sweep duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok && lp.GetValue() != val {
			return false
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
