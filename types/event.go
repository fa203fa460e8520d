package types

import (
	"encoding/json"

	"github.com/google/uuid"
)

// EventKind tags a coordination event.
type EventKind string

const (
	EventAgentRegistered EventKind = "agent_registered"
	EventAgentRemoved    EventKind = "agent_removed"
	EventTaskCompleted   EventKind = "task_completed"
	EventMetricsUpdate   EventKind = "metrics_update"
	EventResourceAlert   EventKind = "resource_alert"
	EventShutdown        EventKind = "shutdown"
)

// Lifecycle reports whether the kind is lifecycle-critical. The bus must
// never drop lifecycle events, even under backlog pressure.
func (k EventKind) Lifecycle() bool {
	switch k {
	case EventAgentRegistered, EventAgentRemoved, EventTaskCompleted, EventShutdown:
		return true
	}
	return false
}

// Event is the tagged union carried by the coordination bus. Only the
// fields relevant to Kind are populated.
type Event struct {
	Kind EventKind `json:"kind"`

	// AgentRegistered / AgentRemoved / TaskCompleted
	AgentID uuid.UUID `json:"agent_id,omitempty"`

	// TaskCompleted
	TaskID  uuid.UUID   `json:"task_id,omitempty"`
	Success bool        `json:"success,omitempty"`
	Result  *TaskResult `json:"result,omitempty"`

	// MetricsUpdate
	Snapshot json.RawMessage `json:"snapshot,omitempty"`

	// ResourceAlert
	Resource string  `json:"resource,omitempty"`
	Usage    float64 `json:"usage,omitempty"`
}

// AgentRegisteredEvent 构造 agent 注册事件
func AgentRegisteredEvent(agentID uuid.UUID) Event {
	return Event{Kind: EventAgentRegistered, AgentID: agentID}
}

// AgentRemovedEvent 构造 agent 移除事件
func AgentRemovedEvent(agentID uuid.UUID) Event {
	return Event{Kind: EventAgentRemoved, AgentID: agentID}
}

// TaskCompletedEvent 构造任务完成事件
func TaskCompletedEvent(taskID, agentID uuid.UUID, result TaskResult) Event {
	return Event{Kind: EventTaskCompleted, TaskID: taskID, AgentID: agentID, Success: result.Success, Result: &result}
}

// ResourceAlertEvent 构造资源告警事件
func ResourceAlertEvent(resource string, usage float64) Event {
	return Event{Kind: EventResourceAlert, Resource: resource, Usage: usage}
}
