package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/workforcehub/workforcehub/internal/identity"
	jobmetrics "github.com/workforcehub/workforcehub/internal/jobs"
)

// InviteExpirer removes stale invitations on behalf of an actor.
type InviteExpirer interface {
	ExpireInvites(ctx context.Context, actor identity.Principal) (int64, error)
}

// InviteExpiryJob sweeps stale membership invitations as the system principal.
type InviteExpiryJob struct {
	Expirer InviteExpirer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewInviteExpiryJob wires dependencies for the sweep handler.
func NewInviteExpiryJob(expirer InviteExpirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *InviteExpiryJob {
	return &InviteExpiryJob{Expirer: expirer, Logger: logger, Metrics: metrics}
}

// Handle processes TaskMembershipInviteExpiry tasks.
func (j *InviteExpiryJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Expirer == nil {
		return errors.New("invite expiry: handler not configured")
	}
	var payload InviteExpiryPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskMembershipInviteExpiry)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	ctx, system := identity.WithSystem(ctx, "membership invite expiry ("+payload.Trigger+")")
	expired, err := j.Expirer.ExpireInvites(ctx, system)
	if err != nil {
		j.logger().Error("expire invites", slog.String("trigger", payload.Trigger), slog.Any("error", err))
		return err
	}
	j.Metrics.AddInvitesExpired(expired)
	j.logger().Info("invite expiry finished", slog.String("trigger", payload.Trigger), slog.Int64("expired", expired))
	return nil
}

func (j *InviteExpiryJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
