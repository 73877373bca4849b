package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskAuditRetentionSweep = "audit.retention.sweep"

type AuditRetentionSweepPayload struct {
	DaysToKeep int `json:"daysToKeep"`
}

func NewAuditRetentionSweepTask(payload AuditRetentionSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetentionSweep, data), nil
}

func ParseAuditRetentionSweepPayload(task *asynq.Task) (AuditRetentionSweepPayload, error) {
	var payload AuditRetentionSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AuditRetentionSweepPayload{}, err
	}
	return payload, nil
}
