package engine

import (
	"fmt"
	"time"
)

// Listener is notified synchronously about events, while the affected process instance is locked.
//
// A listener must not call the engine for the same process instance.
type Listener func(Event)

// EventType describes the events, an engine emits.
type EventType int

const (
	EventNodeInstanceActivated EventType = iota + 1
	EventNodeInstanceCanceled
	EventNodeInstanceCompleted
	EventNodeInstanceFailed
	EventProcessInstanceEnded
	EventProcessInstanceStarted
	EventProcessInstanceStateChanged
	EventUserTaskChanged
	EventVariableChanged
	EventTimerTriggered
)

func (v EventType) String() string {
	switch v {
	case EventNodeInstanceActivated:
		return "NODE_INSTANCE_ACTIVATED"
	case EventNodeInstanceCanceled:
		return "NODE_INSTANCE_CANCELED"
	case EventNodeInstanceCompleted:
		return "NODE_INSTANCE_COMPLETED"
	case EventNodeInstanceFailed:
		return "NODE_INSTANCE_FAILED"
	case EventProcessInstanceEnded:
		return "PROCESS_INSTANCE_ENDED"
	case EventProcessInstanceStarted:
		return "PROCESS_INSTANCE_STARTED"
	case EventProcessInstanceStateChanged:
		return "PROCESS_INSTANCE_STATE_CHANGED"
	case EventUserTaskChanged:
		return "USER_TASK_CHANGED"
	case EventVariableChanged:
		return "VARIABLE_CHANGED"
	case EventTimerTriggered:
		return "TIMER_TRIGGERED"
	default:
		return ""
	}
}

func (v EventType) MarshalJSON() ([]byte, error) {
	s := v.String()
	if s == "" {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", s)), nil
}

type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`

	ProcessId         string `json:"processId"`
	ProcessInstanceId string `json:"processInstanceId"`
	NodeId            string `json:"nodeId,omitempty"`
	NodeInstanceId    string `json:"nodeInstanceId,omitempty"`
	UserTaskId        string `json:"userTaskId,omitempty"`

	State    InstanceState   `json:"state,omitempty"` // Process instance state after the event.
	Variable *VariableChange `json:"variable,omitempty"`
}

// VariableChange carries the old and new value of a variable. It is emitted before the change is applied.
type VariableChange struct {
	Name    string   `json:"name"`
	ScopeId string   `json:"scopeId"` // ID of the node instance or process instance, owning the variable.
	Tags    []string `json:"tags,omitempty"`

	OldValue *Data `json:"oldValue,omitempty"` // nil, if the variable is created.
	NewValue *Data `json:"newValue,omitempty"` // nil, if the variable is deleted.
}
