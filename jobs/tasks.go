package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMembershipInviteExpiry removes membership invitations older than the invite TTL.
	TaskMembershipInviteExpiry = "membership:invites:expire"
)

// InviteExpiryPayload describes one sweep run.
type InviteExpiryPayload struct {
	Trigger string `json:"trigger"`
}

// NewInviteExpiryTask constructs an Asynq task. Concurrent sweeps collapse into one.
func NewInviteExpiryTask(trigger string) (*asynq.Task, error) {
	if trigger == "" {
		trigger = "cron"
	}
	data, err := json.Marshal(InviteExpiryPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMembershipInviteExpiry, data, asynq.Unique(5*time.Minute), asynq.MaxRetry(3)), nil
}
