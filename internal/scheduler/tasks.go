package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TaskOutreachRun     = "outreach.run"
	TaskDomainJobsSweep = "domainjobs.sweep"
	TaskEventRelay      = "eventlog.relay"
)

type OutreachRunPayload struct {
	RunID string `json:"runId,omitempty"`
}

type EventRelayPayload struct {
	EventID string `json:"eventId"`
}

func NewOutreachRunTask(payload OutreachRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutreachRun, data), nil
}

func ParseOutreachRunPayload(task *asynq.Task) (OutreachRunPayload, error) {
	var payload OutreachRunPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OutreachRunPayload{}, err
	}
	return payload, nil
}

func NewDomainJobsSweepTask() *asynq.Task {
	return asynq.NewTask(TaskDomainJobsSweep, nil)
}

func NewEventRelayTask(payload EventRelayPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEventRelay, data), nil
}

func ParseEventRelayPayload(task *asynq.Task) (EventRelayPayload, error) {
	var payload EventRelayPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return EventRelayPayload{}, err
	}
	return payload, nil
}
