package engine

import (
	"fmt"
	"time"

	"github.com/gclaussn/go-procengine/model"
)

// InstanceState describes possible process instance states.
type InstanceState int

const (
	InstanceAborted InstanceState = iota + 1
	InstanceActive
	InstanceCompleted
	InstanceError
	InstancePending
	InstanceSuspended
)

func MapInstanceState(s string) InstanceState {
	switch s {
	case "ABORTED":
		return InstanceAborted
	case "ACTIVE":
		return InstanceActive
	case "COMPLETED":
		return InstanceCompleted
	case "ERROR":
		return InstanceError
	case "PENDING":
		return InstancePending
	case "SUSPENDED":
		return InstanceSuspended
	default:
		return 0
	}
}

// IsEnded determines if the state is terminal.
func (v InstanceState) IsEnded() bool {
	return v == InstanceAborted || v == InstanceCompleted
}

func (v InstanceState) MarshalJSON() ([]byte, error) {
	s := v.String()
	if s == "" {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", s)), nil
}

func (v InstanceState) String() string {
	switch v {
	case InstanceAborted:
		return "ABORTED"
	case InstanceActive:
		return "ACTIVE"
	case InstanceCompleted:
		return "COMPLETED"
	case InstanceError:
		return "ERROR"
	case InstancePending:
		return "PENDING"
	case InstanceSuspended:
		return "SUSPENDED"
	default:
		return ""
	}
}

func (v *InstanceState) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) > 2 {
		s = s[1 : len(s)-1]
		*v = MapInstanceState(s)
	}
	if *v == 0 {
		return fmt.Errorf("invalid instance state data %s", s)
	}
	return nil
}

// NodeInstanceState describes possible node instance states.
// Node instances are removed, when they are completed or canceled.
type NodeInstanceState int

const (
	NodeInstanceActive NodeInstanceState = iota + 1
	NodeInstanceFailed
)

func (v NodeInstanceState) MarshalJSON() ([]byte, error) {
	s := v.String()
	if s == "" {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", s)), nil
}

func (v NodeInstanceState) String() string {
	switch v {
	case NodeInstanceActive:
		return "ACTIVE"
	case NodeInstanceFailed:
		return "ERROR"
	default:
		return ""
	}
}

// UserTaskState describes the lifecycle of a user task.
//
//	NEW -> RESERVED -> IN_PROGRESS -> COMPLETED | FAILED | ABORTED | SKIPPED
//
// SUSPENDED is reachable from RESERVED and IN_PROGRESS. A resumed user task returns to its previous state.
type UserTaskState int

const (
	UserTaskAborted UserTaskState = iota + 1
	UserTaskCompleted
	UserTaskFailed
	UserTaskInProgress
	UserTaskNew
	UserTaskReserved
	UserTaskSkipped
	UserTaskSuspended
)

func MapUserTaskState(s string) UserTaskState {
	switch s {
	case "ABORTED":
		return UserTaskAborted
	case "COMPLETED":
		return UserTaskCompleted
	case "FAILED":
		return UserTaskFailed
	case "IN_PROGRESS":
		return UserTaskInProgress
	case "NEW":
		return UserTaskNew
	case "RESERVED":
		return UserTaskReserved
	case "SKIPPED":
		return UserTaskSkipped
	case "SUSPENDED":
		return UserTaskSuspended
	default:
		return 0
	}
}

// IsTerminal determines if a user task with this state is terminated.
func (v UserTaskState) IsTerminal() bool {
	switch v {
	case UserTaskAborted, UserTaskCompleted, UserTaskFailed, UserTaskSkipped:
		return true
	default:
		return false
	}
}

func (v UserTaskState) MarshalJSON() ([]byte, error) {
	s := v.String()
	if s == "" {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", s)), nil
}

func (v UserTaskState) String() string {
	switch v {
	case UserTaskAborted:
		return "ABORTED"
	case UserTaskCompleted:
		return "COMPLETED"
	case UserTaskFailed:
		return "FAILED"
	case UserTaskInProgress:
		return "IN_PROGRESS"
	case UserTaskNew:
		return "NEW"
	case UserTaskReserved:
		return "RESERVED"
	case UserTaskSkipped:
		return "SKIPPED"
	case UserTaskSuspended:
		return "SUSPENDED"
	default:
		return ""
	}
}

// Termination returns the termination type of a terminal state or an empty string.
func (v UserTaskState) Termination() string {
	if v.IsTerminal() {
		return v.String()
	}
	return ""
}

func (v *UserTaskState) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) > 2 {
		s = s[1 : len(s)-1]
		*v = MapUserTaskState(s)
	}
	if *v == 0 {
		return fmt.Errorf("invalid user task state data %s", s)
	}
	return nil
}

// SnapshotEncoding determines the binary encoding of process instance snapshots.
type SnapshotEncoding int

const (
	SnapshotEncodingCbor SnapshotEncoding = iota + 1
	SnapshotEncodingMsgpack
)

func MapSnapshotEncoding(s string) SnapshotEncoding {
	switch s {
	case "CBOR":
		return SnapshotEncodingCbor
	case "MSGPACK":
		return SnapshotEncodingMsgpack
	default:
		return 0
	}
}

func (v SnapshotEncoding) String() string {
	switch v {
	case SnapshotEncodingCbor:
		return "CBOR"
	case SnapshotEncodingMsgpack:
		return "MSGPACK"
	default:
		return ""
	}
}

type Data struct {
	Encoding    string `json:"encoding" validate:"required"` // Encoding of the value - e.g. `json`.
	IsEncrypted bool   `json:"encrypted,omitempty"`          // Determines if a value is encrypted.
	Value       string `json:"value"`                        // Data value, encoded as a string.
}

func (v Data) String() string {
	return fmt.Sprintf("%s:%s", v.Encoding, v.Value)
}

// JSON creates JSON encoded data from an already encoded value.
func JSON(value string) *Data {
	return &Data{Encoding: "json", Value: value}
}

// Text creates text data.
func Text(value string) *Data {
	return &Data{Encoding: "text", Value: value}
}

// Correlation is a set of properties, used to route external events to a process instance.
// The order of properties is not significant.
type Correlation map[string]string

type CorrelationInstance struct {
	EncodedKey   string      `json:"encodedKey"`   // Stable encoding of the correlation.
	CorrelatedId string      `json:"correlatedId"` // ID of the correlated process instance.
	Correlation  Correlation `json:"correlation"`
}

// Process represents a registered process definition.
type Process struct {
	Id      string `json:"id"`
	Version string `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	Dynamic   bool      `json:"dynamic"`
	Name      string    `json:"name,omitempty"`
	NodeCount int       `json:"nodeCount"`

	Definition *model.Process `json:"-"`
}

func (v Process) String() string {
	return fmt.Sprintf("%s:%s", v.Id, v.Version)
}

type ProcessInstance struct {
	Id string `json:"id"`

	ParentId             string `json:"parentId,omitempty"`             // ID of the parent process instance, if started by a sub process node.
	ParentNodeInstanceId string `json:"parentNodeInstanceId,omitempty"` // ID of the sub process node instance within the parent.
	RootId               string `json:"rootId,omitempty"`               // ID of the root process instance.

	ProcessId      string `json:"processId"`
	ProcessVersion string `json:"processVersion"`

	BusinessKey    string                `json:"businessKey,omitempty"`
	CorrelationKey string                `json:"correlationKey,omitempty"` // Encoded key of the correlation, if correlated.
	CreatedAt      time.Time             `json:"createdAt"`
	EndedAt        *time.Time            `json:"endedAt,omitempty"`
	Error          *ProcessInstanceError `json:"error,omitempty"`
	NodeInstances  []NodeInstance        `json:"nodeInstances"`
	ReferenceId    string                `json:"referenceId,omitempty"`
	State          InstanceState         `json:"state"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

func (v ProcessInstance) HasParent() bool {
	return v.ParentId != ""
}

func (v ProcessInstance) IsEnded() bool {
	return v.State.IsEnded()
}

func (v ProcessInstance) IsRoot() bool {
	return v.RootId == ""
}

// NodeInstanceById returns an active node instance or false, if no such node instance exists.
func (v ProcessInstance) NodeInstanceById(id string) (NodeInstance, bool) {
	for _, nodeInstance := range v.NodeInstances {
		if nodeInstance.Id == id {
			return nodeInstance, true
		}
	}
	return NodeInstance{}, false
}

// NodeInstancesByNodeId returns all active node instances of a node.
func (v ProcessInstance) NodeInstancesByNodeId(nodeId string) []NodeInstance {
	var nodeInstances []NodeInstance
	for _, nodeInstance := range v.NodeInstances {
		if nodeInstance.NodeId == nodeId {
			nodeInstances = append(nodeInstances, nodeInstance)
		}
	}
	return nodeInstances
}

func (v ProcessInstance) String() string {
	return v.Id
}

type ProcessInstanceCriteria struct {
	BusinessKey string        `json:"businessKey,omitempty"`
	ParentId    string        `json:"parentId,omitempty"`
	ProcessId   string        `json:"processId,omitempty"`
	State       InstanceState `json:"state,omitempty"`

	IncludeEnded bool `json:"includeEnded,omitempty"` // Includes archived process instances.
}

// ProcessInstanceError retains the context of a process instance in state [InstanceError].
type ProcessInstanceError struct {
	NodeInstanceId string `json:"nodeInstanceId"`
	Cause          string `json:"cause"`
}

type NodeInstance struct {
	Id     string         `json:"id"`
	NodeId string         `json:"nodeId"`
	Type   model.NodeType `json:"type"`

	ChildInstanceId string            `json:"childInstanceId,omitempty"` // sub process
	CreatedAt       time.Time         `json:"createdAt"`
	State           NodeInstanceState `json:"state"`
	TimerId         string            `json:"timerId,omitempty"`    // timer
	UserTaskId      string            `json:"userTaskId,omitempty"` // user task
}

// NodeInstanceError is an error, which occurred when a node instance processed a signal.
type NodeInstanceError struct {
	ProcessInstanceId string `json:"processInstanceId"`
	NodeInstanceId    string `json:"nodeInstanceId"`
	NodeId            string `json:"nodeId"`
	Error             string `json:"error"`
	Fatal             bool   `json:"fatal"` // Determines if the process instance ended up in state [InstanceError].
}

func (v NodeInstanceError) String() string {
	return fmt.Sprintf("%s/%s: %s", v.ProcessInstanceId, v.NodeInstanceId, v.Error)
}

// SignalResult is the outcome of a signal delivery.
type SignalResult struct {
	ProcessInstance ProcessInstance     `json:"processInstance"`
	Delivered       int                 `json:"delivered"` // Number of node instances that progressed.
	Errors          []NodeInstanceError `json:"errors,omitempty"`
	Success         bool                `json:"success"` // true, if at least one node instance progressed.
}

type UserTask struct {
	Id string `json:"id"`

	NodeId            string `json:"nodeId"`
	NodeInstanceId    string `json:"nodeInstanceId"`
	ProcessInstanceId string `json:"processInstanceId"`

	ActualOwner     string           `json:"actualOwner,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	Data            map[string]*Data `json:"data,omitempty"` // Custom data, mirrored as node instance variables.
	Description     string           `json:"description,omitempty"`
	Inputs          map[string]*Data `json:"inputs,omitempty"`
	Name            string           `json:"name"`
	Outputs         map[string]*Data `json:"outputs,omitempty"`
	PotentialOwners []string         `json:"potentialOwners,omitempty"`
	PreviousState   UserTaskState    `json:"previousState,omitempty"` // State before the user task was suspended.
	Priority        int              `json:"priority"`
	Skippable       bool             `json:"skippable"`
	State           UserTaskState    `json:"state"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

func (v UserTask) IsTerminated() bool {
	return v.State.IsTerminal()
}

func (v UserTask) String() string {
	return v.Id
}

type UserTaskCriteria struct {
	ActualOwner       string        `json:"actualOwner,omitempty"`
	ProcessInstanceId string        `json:"processInstanceId,omitempty"`
	State             UserTaskState `json:"state,omitempty"`

	IncludeTerminated bool `json:"includeTerminated,omitempty"` // Includes archived user tasks.
}
