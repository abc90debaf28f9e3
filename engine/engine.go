package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gclaussn/go-procengine/model"
	"go.uber.org/zap"
)

const (
	DefaultEngineId = "default-engine" // Default ID of an engine, used when no specific ID is provided via [Options].
)

// An Engine starts, drives and persists process instances of registered process definitions.
//
// Operations that mutate a process instance are serialized per process instance ID.
// Operations on unrelated process instances run in parallel.
type Engine interface {
	// AbortProcessInstance cancels all active node instances and ends a process instance in state [InstanceAborted].
	//
	// Aborting an already ended process instance returns the ended process instance without further side effects.
	AbortProcessInstance(context.Context, AbortProcessInstanceCmd) (ProcessInstance, error)

	// AddListener adds a listener, which is notified synchronously about process, node and variable events.
	// The returned ID is used to remove the listener.
	AddListener(Listener) int

	// ClaimUserTask reserves a new user task for a user.
	ClaimUserTask(context.Context, ClaimUserTaskCmd) (UserTask, error)

	// CompleteNodeInstance completes an active node instance and continues the execution with the node's successors.
	CompleteNodeInstance(context.Context, CompleteNodeInstanceCmd) (ProcessInstance, error)

	// CompleteUserTask completes an user task, which is in progress, and continues the owning process instance.
	CompleteUserTask(context.Context, CompleteUserTaskCmd) (UserTask, error)

	// CreateProcess registers a process definition.
	//
	// If a process with the same ID and version exists, the definitions are compared.
	// When the definitions equal, the existing process is returned.
	// When the definitions differ, an error of type [ErrorConflict] is returned.
	CreateProcess(context.Context, CreateProcessCmd) (Process, error)

	// DelegateUserTask changes the actual owner of a reserved or in progress user task.
	DelegateUserTask(context.Context, DelegateUserTaskCmd) (UserTask, error)

	// ExecuteJobs fires due timer jobs of the engine's built-in job service.
	//
	// Due jobs are normally handled by a job executor, running inside the engine.
	// When waiting for a timer to be triggered during testing, this method must be called!
	ExecuteJobs(context.Context, ExecuteJobsCmd) ([]Job, error)

	// FailNodeInstance freezes an active node instance and its process instance in state [InstanceError].
	FailNodeInstance(context.Context, FailNodeInstanceCmd) (ProcessInstance, error)

	// FailUserTask fails an user task, which is in progress. The owning process instance ends up in state [InstanceError].
	FailUserTask(context.Context, FailUserTaskCmd) (UserTask, error)

	// FindCorrelation looks up a correlation by its properties or by a correlated ID.
	// The boolean result is false, if no such correlation exists.
	FindCorrelation(context.Context, FindCorrelationCmd) (CorrelationInstance, bool, error)

	// GetNodeInstanceVariables gets the local variables of an active node instance.
	GetNodeInstanceVariables(context.Context, GetNodeInstanceVariablesCmd) (map[string]Data, error)

	// GetProcessInstance gets an active or ended process instance.
	GetProcessInstance(context.Context, GetProcessInstanceCmd) (ProcessInstance, error)

	// GetProcessVariables gets variables of an active or ended process instance.
	GetProcessVariables(context.Context, GetProcessVariablesCmd) (map[string]Data, error)

	// GetUserTask gets an active or ended user task.
	GetUserTask(context.Context, GetUserTaskCmd) (UserTask, error)

	// QueryProcessInstances queries active and, if requested, ended process instances.
	QueryProcessInstances(context.Context, ProcessInstanceCriteria, QueryOptions) ([]ProcessInstance, error)

	// QueryUserTasks queries active and, if requested, ended user tasks.
	QueryUserTasks(context.Context, UserTaskCriteria, QueryOptions) ([]UserTask, error)

	// ReleaseUserTask releases a reserved user task, so that it can be claimed again.
	ReleaseUserTask(context.Context, ReleaseUserTaskCmd) (UserTask, error)

	// RemoveListener removes a listener, added before. It returns false, if no such listener exists.
	RemoveListener(int) bool

	// ResumeProcessInstance resumes a suspended process instance.
	ResumeProcessInstance(context.Context, ResumeProcessInstanceCmd) (ProcessInstance, error)

	// ResumeUserTask resumes a suspended user task to its previous state.
	ResumeUserTask(context.Context, ResumeUserTaskCmd) (UserTask, error)

	// RetryProcessInstance retries the failed node instance of a process instance in state [InstanceError].
	RetryProcessInstance(context.Context, RetryProcessInstanceCmd) (ProcessInstance, error)

	// SetProcessVariables sets or deletes variables of an active process instance.
	SetProcessVariables(context.Context, SetProcessVariablesCmd) error

	// SetTime increases the engine's time for testing purposes.
	SetTime(context.Context, SetTimeCmd) error

	// SignalProcessInstance delivers a signal to all node instances of a process instance, which wait for the event type.
	//
	// The delivery is best-effort: a failing node instance does not prevent the delivery to other node instances.
	// Errors of single node instances are reported as part of the [SignalResult].
	SignalProcessInstance(context.Context, SignalProcessInstanceCmd) (SignalResult, error)

	// SkipUserTask skips a skippable user task and continues the owning process instance.
	SkipUserTask(context.Context, SkipUserTaskCmd) (UserTask, error)

	// StartProcessInstance creates and starts an instance of a registered process.
	//
	// If no start node matches the trigger, an error of type [ErrorInvalidStartNode] is returned, unless the process is dynamic.
	StartProcessInstance(context.Context, StartProcessInstanceCmd) (ProcessInstance, error)

	// StartUserTask starts the work on a new or reserved user task.
	StartUserTask(context.Context, StartUserTaskCmd) (UserTask, error)

	// SuspendProcessInstance suspends an active process instance.
	SuspendProcessInstance(context.Context, SuspendProcessInstanceCmd) (ProcessInstance, error)

	// SuspendUserTask suspends a reserved or in progress user task.
	SuspendUserTask(context.Context, SuspendUserTaskCmd) (UserTask, error)

	// TriggerTimer is the callback of a job service, invoked when a timer job fires.
	//
	// Callbacks for unknown, ended or not active process instances as well as unknown timers are dropped without error.
	TriggerTimer(context.Context, TriggerTimerCmd) error

	// UpdateUserTask applies multiple field updates to a user task, using a single store call.
	UpdateUserTask(context.Context, UpdateUserTaskCmd) (UserTask, error)

	// Shutdown shuts the engine down.
	Shutdown()
}

// Evaluator evaluates conditions of connections, leaving a gateway.
type Evaluator interface {
	// Evaluate evaluates a condition, using the variables that are visible for the gateway's node instance.
	Evaluate(condition string, variables map[string]Data) (bool, error)
}

// TaskHandler executes the logic of a task node synchronously.
//
// Returned variables are written as outcome of the node instance.
// If an error is returned, the process instance ends up in state [InstanceError].
type TaskHandler func(ctx context.Context, task TaskContext) (map[string]*Data, error)

// TaskContext provides information about the node instance, a [TaskHandler] is executed for.
type TaskContext struct {
	ProcessInstanceId string
	NodeInstanceId    string
	NodeId            string
	Metadata          map[string]string
	Variables         map[string]Data // Variables, visible for the node instance.
}

// Options are common configuration options that are shared between engine implementations.
type Options struct {
	DefaultQueryLimit      int                    // Default limit for queries, executed without an explicit limit.
	Encryption             Encryption             // Encryption is needed for the encryption and decryption of sensitive variables.
	EngineId               string                 // ID of the engine.
	Evaluator              Evaluator              // Evaluator of gateway conditions - if nil, HCL expressions are evaluated.
	JobExecutorEnabled     bool                   // Enables or disables the engine's job executor.
	JobExecutorInterval    time.Duration          // Interval between execution of due jobs.
	JobExecutorLimit       int                    // Maximum number of due jobs to execute at once.
	JobExecutorParallelism int                    // Maximum number of due jobs that are fired in parallel.
	JobService             JobService             // External job service - if nil, the built-in job service is used.
	Logger                 *zap.Logger            // Logger - if nil, nothing is logged.
	Processes              []*model.Process       // Process definitions, registered when the engine is created.
	SnapshotEncoding       SnapshotEncoding       // Encoding of process instance snapshots.
	StepLimit              int                    // Maximum number of node activations per operation.
	TaskHandlers           map[string]TaskHandler // Task handlers by name - see node attribute handler.

	OnJobExecutionFailure func(Job, error)        // Called when a fired job could not be handled.
	OnNodeError           func(NodeInstanceError) // Called when a node instance fails to process a signal.
}

func (o Options) Validate() error {
	if strings.TrimSpace(o.EngineId) == "" {
		return errors.New("engine ID must not be empty or blank")
	}
	if o.JobExecutorInterval.Milliseconds() < 100 {
		return errors.New("job executor interval must be greater than or equal to 100 ms")
	}
	if o.JobExecutorLimit < 1 {
		return errors.New("job executor limit must be greater than or equal to 1")
	}
	if o.JobExecutorLimit > 1000 {
		return errors.New("job executor limit must be less than or equal to 1000")
	}
	if o.JobExecutorParallelism < 1 {
		return errors.New("job executor parallelism must be greater than or equal to 1")
	}
	if o.SnapshotEncoding == 0 {
		return errors.New("snapshot encoding must be set")
	}
	if o.StepLimit < 1 {
		return errors.New("step limit must be greater than or equal to 1")
	}
	return nil
}

// NewOptions returns options with defaults, shared by all engine implementations.
func NewOptions() Options {
	return Options{
		DefaultQueryLimit:      1000,
		EngineId:               DefaultEngineId,
		JobExecutorEnabled:     true,
		JobExecutorInterval:    time.Second,
		JobExecutorLimit:       100,
		JobExecutorParallelism: 4,
		SnapshotEncoding:       SnapshotEncodingCbor,
		StepLimit:              10000,
	}
}

// QueryOptions are used to limit or offset query results.
// The zero value does not affect a query.
type QueryOptions struct {
	// Limit specifies the maximum number of results to return.
	// If Limit <= 0, the option's DefaultQueryLimit is applied.
	Limit int
	// Offset specifies the number of results to skip, before returning any result.
	// If Offset <= 0, no results are skipped.
	Offset int
}

type Error struct {
	Type   ErrorType
	Title  string
	Detail string
	Causes []ErrorCause
}

func (e Error) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s: %s: %s", e.Type, e.Title, e.Detail))

	for _, cause := range e.Causes {
		sb.WriteRune('\n')
		sb.WriteString(cause.String())
	}

	return sb.String()
}

// IsErrorType reports whether err is an [Error] of the given type.
func IsErrorType(err error, errorType ErrorType) bool {
	var engineErr Error
	if errors.As(err, &engineErr) {
		return engineErr.Type == errorType
	}
	return false
}

type ErrorType int

const (
	ErrorBug ErrorType = iota + 1
	ErrorConflict
	ErrorInvalidStartNode
	ErrorNoActiveScope
	ErrorNodeExecution
	ErrorNotFound
	ErrorPersistence
	ErrorProcessModel
	ErrorQuery
	ErrorValidation
)

func MapErrorType(s string) ErrorType {
	switch s {
	case "BUG":
		return ErrorBug
	case "CONFLICT":
		return ErrorConflict
	case "INVALID_START_NODE":
		return ErrorInvalidStartNode
	case "NO_ACTIVE_SCOPE":
		return ErrorNoActiveScope
	case "NODE_EXECUTION":
		return ErrorNodeExecution
	case "NOT_FOUND":
		return ErrorNotFound
	case "PERSISTENCE":
		return ErrorPersistence
	case "PROCESS_MODEL":
		return ErrorProcessModel
	case "QUERY":
		return ErrorQuery
	case "VALIDATION":
		return ErrorValidation
	default:
		return 0
	}
}

func (v ErrorType) String() string {
	switch v {
	case ErrorBug:
		return "BUG"
	case ErrorConflict:
		return "CONFLICT"
	case ErrorInvalidStartNode:
		return "INVALID_START_NODE"
	case ErrorNoActiveScope:
		return "NO_ACTIVE_SCOPE"
	case ErrorNodeExecution:
		return "NODE_EXECUTION"
	case ErrorNotFound:
		return "NOT_FOUND"
	case ErrorPersistence:
		return "PERSISTENCE"
	case ErrorProcessModel:
		return "PROCESS_MODEL"
	case ErrorQuery:
		return "QUERY"
	case ErrorValidation:
		return "VALIDATION"
	default:
		return "UNKNOWN"
	}
}

// A cause of a process model or validation [Error] like an unknown connection target or an invalid timer.
type ErrorCause struct {
	Pointer string // A pointer, locating the invalid node, connection or command field.
	Type    string // Type indicator.
	Detail  string // Human-readable, detailed information about the cause.
}

func (e ErrorCause) String() string {
	return fmt.Sprintf("%s: %s: %s", e.Type, e.Pointer, e.Detail)
}
