package engine

import (
	"time"

	"github.com/gclaussn/go-procengine/model"
)

// AbortProcessInstanceCmd provides data for the abortion of a process instance.
type AbortProcessInstanceCmd struct {
	// Process instance ID.
	Id string `json:"-" validate:"required"`
}

// ClaimUserTaskCmd provides data for claiming a new user task.
type ClaimUserTaskCmd struct {
	// User task ID.
	Id string `json:"-" validate:"required"`
	// ID of the user that claims the user task. If the user task defines potential owners, the user must be one of them.
	UserId string `json:"userId" validate:"required"`
}

// CompleteNodeInstanceCmd provides data for the completion of an active node instance.
type CompleteNodeInstanceCmd struct {
	// Process instance ID.
	ProcessInstanceId string `json:"-" validate:"required"`
	// ID of an active node instance.
	NodeInstanceId string `json:"-" validate:"required"`

	// Outcome of the node instance, written as variables before the successors are activated.
	// For a variable deletion, no data must be provided.
	Variables map[string]*Data `json:"variables,omitempty" validate:"max=100,dive,keys,variable_name,endkeys"`
}

// CompleteUserTaskCmd provides data for the completion of an user task.
type CompleteUserTaskCmd struct {
	// User task ID.
	Id string `json:"-" validate:"required"`
	// Outputs of the user task, mapped to the variables of the owning process instance.
	Outputs map[string]*Data `json:"outputs,omitempty" validate:"max=100,dive,keys,variable_name,endkeys"`
	// ID of the user that completes the user task - must be the actual owner.
	UserId string `json:"userId" validate:"required"`
}

// CreateProcessCmd provides data for the registration of a process definition.
//
// Either a YAML definition or a definition, created via [model.Builder], must be provided.
type CreateProcessCmd struct {
	// Process definition.
	Definition *model.Process `json:"-"`
	// Process definition as YAML.
	Yaml string `json:"yaml" validate:"required_without=Definition"`
}

// DelegateUserTaskCmd provides data for the delegation of an user task to another user.
type DelegateUserTaskCmd struct {
	// User task ID.
	Id string `json:"-" validate:"required"`
	// ID of the user, the user task is delegated to.
	TargetUserId string `json:"targetUserId" validate:"required"`
	// ID of the user that delegates the user task.
	UserId string `json:"userId" validate:"required"`
}

// ExecuteJobsCmd specifies how many due jobs of the built-in job service are executed.
type ExecuteJobsCmd struct {
	// Maximum number of jobs to execute.
	Limit int `json:"limit" validate:"gte=1,lte=1000"`
}

// FailNodeInstanceCmd provides data for failing an active node instance.
type FailNodeInstanceCmd struct {
	// Process instance ID.
	ProcessInstanceId string `json:"-" validate:"required"`
	// ID of an active node instance.
	NodeInstanceId string `json:"-" validate:"required"`

	// Cause of the failure.
	Cause string `json:"cause" validate:"required"`
}

// FailUserTaskCmd provides data for failing an user task.
type FailUserTaskCmd struct {
	// User task ID.
	Id string `json:"-" validate:"required"`
	// Cause of the failure.
	Cause string `json:"cause" validate:"required"`
	// ID of the user that fails the user task - must be the actual owner.
	UserId string `json:"userId" validate:"required"`
}

// FindCorrelationCmd specifies a correlation lookup, either by correlation properties or by correlated ID.
type FindCorrelationCmd struct {
	// Correlated process instance ID.
	CorrelatedId string `json:"correlatedId,omitempty" validate:"required_without=Correlation"`
	// Correlation properties.
	Correlation Correlation `json:"correlation,omitempty" validate:"max=100"`
}

// GetNodeInstanceVariablesCmd specifies the local variables of a node instance to get.
type GetNodeInstanceVariablesCmd struct {
	// Process instance ID.
	ProcessInstanceId string `json:"-" validate:"required"`
	// ID of an active node instance.
	NodeInstanceId string `json:"-" validate:"required"`

	// Names of variables to get. If empty, all variables are returned.
	Names []string `json:"names,omitempty"`
}

type GetProcessInstanceCmd struct {
	// Process instance ID.
	Id string `json:"-" validate:"required"`
}

// GetProcessVariablesCmd specifies the process variables to get.
type GetProcessVariablesCmd struct {
	// Process instance ID.
	ProcessInstanceId string `json:"-" validate:"required"`

	// Names of variables to get. If empty, all variables are returned.
	Names []string `json:"names,omitempty"`
}

type GetUserTaskCmd struct {
	// User task ID.
	Id string `json:"-" validate:"required"`
}

type ReleaseUserTaskCmd struct {
	// User task ID.
	Id string `json:"-" validate:"required"`
	// ID of the user that releases the user task - must be the actual owner.
	UserId string `json:"userId" validate:"required"`
}

type ResumeProcessInstanceCmd struct {
	// Process instance ID.
	Id string `json:"-" validate:"required"`
}

type ResumeUserTaskCmd struct {
	// User task ID.
	Id string `json:"-" validate:"required"`
	// ID of the user that resumes the user task.
	UserId string `json:"userId" validate:"required"`
}

type RetryProcessInstanceCmd struct {
	// Process instance ID.
	Id string `json:"-" validate:"required"`
}

// SetProcessVariablesCmd provides data for setting or deleting process variables.
type SetProcessVariablesCmd struct {
	// Process instance ID.
	ProcessInstanceId string `json:"-" validate:"required"`

	// Variables to set or delete. For a variable deletion, no data must be provided.
	Variables map[string]*Data `json:"variables" validate:"min=1,max=100,dive,keys,variable_name,endkeys"`
}

// SetTimeCmd is used to increase the engine's time for testing purposes.
type SetTimeCmd struct {
	// A future point in time.
	Time time.Time `json:"time" validate:"required"`
}

// SignalProcessInstanceCmd provides data for the delivery of a signal.
//
// The target process instance is specified either by ID or by correlation.
type SignalProcessInstanceCmd struct {
	// Process instance ID.
	Id string `json:"-" validate:"required_without=Correlation"`
	// Correlation of the target process instance.
	Correlation Correlation `json:"correlation,omitempty" validate:"max=100"`
	// Type of the event to deliver.
	EventType string `json:"eventType" validate:"required"`
	// Payload of the signal, written as variables of each node instance that consumes the signal.
	Payload map[string]*Data `json:"payload,omitempty" validate:"max=100,dive,keys,variable_name,endkeys"`
}

type SkipUserTaskCmd struct {
	// User task ID.
	Id string `json:"-" validate:"required"`
	// ID of the user that skips the user task.
	UserId string `json:"userId" validate:"required"`
}

// StartProcessInstanceCmd provides data for the start of a process instance.
type StartProcessInstanceCmd struct {
	// ID of a registered process.
	ProcessId string `json:"processId" validate:"required"`
	// Version of a registered process. If empty, the latest registered version is started.
	Version string `json:"version,omitempty"`

	// Optional key, used to correlate a process instance with a business entity.
	BusinessKey string `json:"businessKey,omitempty"`
	// Optional correlation, used to route signals to the process instance.
	Correlation Correlation `json:"correlation,omitempty" validate:"max=100"`
	// Optional ID of an external reference.
	ReferenceId string `json:"referenceId,omitempty"`
	// Name of the trigger, used to select start nodes. If empty, none start nodes are selected.
	Trigger string `json:"trigger,omitempty"`
	// Variables to set at process instance scope.
	Variables map[string]*Data `json:"variables,omitempty" validate:"max=100,dive,keys,variable_name,endkeys"`
}

type StartUserTaskCmd struct {
	// User task ID.
	Id string `json:"-" validate:"required"`
	// ID of the user that starts the work. A new user task is claimed for the user.
	UserId string `json:"userId" validate:"required"`
}

type SuspendProcessInstanceCmd struct {
	// Process instance ID.
	Id string `json:"-" validate:"required"`
}

type SuspendUserTaskCmd struct {
	// User task ID.
	Id string `json:"-" validate:"required"`
	// ID of the user that suspends the user task.
	UserId string `json:"userId" validate:"required"`
}

// TriggerTimerCmd provides the data of a fired timer job.
type TriggerTimerCmd struct {
	// ID of the process instance, the timer belongs to.
	ProcessInstanceId string `json:"processInstanceId" validate:"required"`
	// Timer ID.
	TimerId string `json:"timerId" validate:"required"`
	// Number of remaining fires. `0` indicates the final fire, `-1` an unbounded timer.
	Remaining int `json:"remaining" validate:"gte=-1"`
}

// UpdateUserTaskCmd provides data for a batched update of an user task.
//
// All provided fields are applied, before the user task is persisted once.
type UpdateUserTaskCmd struct {
	// User task ID.
	Id string `json:"-" validate:"required"`

	// New actual owner. An empty string removes the actual owner.
	ActualOwner *string `json:"actualOwner,omitempty"`
	// Custom data to set or delete. For a deletion, no data must be provided.
	Data map[string]*Data `json:"data,omitempty" validate:"max=100,dive,keys,variable_name,endkeys"`
	// New description.
	Description *string `json:"description,omitempty"`
	// New name.
	Name *string `json:"name,omitempty" validate:"omitnil,min=1"`
	// New priority.
	Priority *int `json:"priority,omitempty" validate:"omitnil,gte=0"`
	// ID of the user that updates the user task.
	UserId string `json:"userId" validate:"required"`
}
