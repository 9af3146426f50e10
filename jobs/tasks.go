package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuthzWarmup is the task type for pre-populating authorization
	// cache entries for a team's members.
	TaskAuthzWarmup = "authz:warmup"
)

// AuthzWarmupPayload scopes a warmup run to one team. An empty
// Capabilities list warms the full registry.
type AuthzWarmupPayload struct {
	TeamID       int64    `json:"team_id"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// NewAuthzWarmupTask constructs an Asynq task.
func NewAuthzWarmupTask(payload AuthzWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuthzWarmup, data), nil
}
