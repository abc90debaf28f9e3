package internal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// processInstance is the in-memory form of a process instance, restored from a snapshot for the duration of one operation.
type processInstance struct {
	id                   string
	parentId             string
	parentNodeInstanceId string
	rootId               string

	process *model.Process

	businessKey    string
	correlation    engine.Correlation
	correlationKey string
	createdAt      time.Time
	endedAt        *time.Time
	err            *engine.ProcessInstanceError
	referenceId    string
	state          engine.InstanceState
	updatedAt      time.Time

	variables     *variableScope
	nodeInstances []*nodeInstance // active node instances, ordered by activation
	pending       []token         // tokens, not processed due to an error

	revision int
}

func (pi *processInstance) ProcessInstance() engine.ProcessInstance {
	nodeInstances := make([]engine.NodeInstance, len(pi.nodeInstances))
	for i, ni := range pi.nodeInstances {
		nodeInstances[i] = ni.NodeInstance()
	}

	var processInstanceError *engine.ProcessInstanceError
	if pi.err != nil {
		e := *pi.err
		processInstanceError = &e
	}

	return engine.ProcessInstance{
		Id: pi.id,

		ParentId:             pi.parentId,
		ParentNodeInstanceId: pi.parentNodeInstanceId,
		RootId:               pi.rootId,

		ProcessId:      pi.process.Id,
		ProcessVersion: pi.process.Version,

		BusinessKey:    pi.businessKey,
		CorrelationKey: pi.correlationKey,
		CreatedAt:      pi.createdAt,
		EndedAt:        pi.endedAt,
		Error:          processInstanceError,
		NodeInstances:  nodeInstances,
		ReferenceId:    pi.referenceId,
		State:          pi.state,
		UpdatedAt:      pi.updatedAt,
	}
}

func (pi *processInstance) nodeInstanceById(id string) *nodeInstance {
	for _, ni := range pi.nodeInstances {
		if ni.id == id {
			return ni
		}
	}
	return nil
}

func (pi *processInstance) nodeInstanceByTimerId(timerId string) *nodeInstance {
	for _, ni := range pi.nodeInstances {
		if ni.timer != nil && ni.timer.Id == timerId {
			return ni
		}
	}
	return nil
}

// joinInstance returns the node instance of a joining gateway, which waits for further tokens.
func (pi *processInstance) joinInstance(node *model.Node) *nodeInstance {
	for _, ni := range pi.nodeInstances {
		if ni.node == node && ni.arrivals != nil && ni.state == engine.NodeInstanceActive {
			return ni
		}
	}
	return nil
}

func (pi *processInstance) removeNodeInstance(ni *nodeInstance) bool {
	i := slices.Index(pi.nodeInstances, ni)
	if i == -1 {
		return false
	}
	pi.nodeInstances = slices.Delete(pi.nodeInstances, i, i+1)
	return true
}

func (pi *processInstance) String() string {
	return pi.id
}

// timers returns all node instances with a pending timer.
func (pi *processInstance) timers() []*nodeInstance {
	var nodeInstances []*nodeInstance
	for _, ni := range pi.nodeInstances {
		if ni.timer != nil {
			nodeInstances = append(nodeInstances, ni)
		}
	}
	return nodeInstances
}

// nodeInstance is the runtime activation record of a node.
type nodeInstance struct {
	id        string
	node      *model.Node
	createdAt time.Time
	state     engine.NodeInstanceState

	variables *variableScope

	arrivals        map[string]int // joining gateway: number of tokens per incoming connection
	childInstanceId string         // sub process
	timer           *timerInstance // timer
	userTaskId      string         // user task
}

func (ni *nodeInstance) NodeInstance() engine.NodeInstance {
	nodeInstance := engine.NodeInstance{
		Id:     ni.id,
		NodeId: ni.node.Id,
		Type:   ni.node.Type,

		ChildInstanceId: ni.childInstanceId,
		CreatedAt:       ni.createdAt,
		State:           ni.state,
		UserTaskId:      ni.userTaskId,
	}
	if ni.timer != nil {
		nodeInstance.TimerId = ni.timer.Id
	}
	return nodeInstance
}

func (ni *nodeInstance) String() string {
	return fmt.Sprintf("%s(%s)", ni.id, ni.node.Id)
}

// token moves control along a connection to a node. A token without connection activates a node directly.
type token struct {
	node       *model.Node
	connection *model.Connection
}

// childStart describes a process instance, started by a sub process node.
type childStart struct {
	id                   string
	parentId             string
	parentNodeInstanceId string // empty, if the parent does not wait for the child
	rootId               string
	process              *model.Process
	variables            map[string]*engine.Data
}

func newProcessInstance(id string, process *model.Process, now time.Time) *processInstance {
	return &processInstance{
		id:        id,
		process:   process,
		createdAt: now,
		state:     engine.InstancePending,
		updatedAt: now,
		variables: newVariableScope(id),
	}
}

func requireInstanceState(title string, pi *processInstance, states ...engine.InstanceState) error {
	if slices.Contains(states, pi.state) {
		return nil
	}
	return engine.Error{
		Type:   engine.ErrorConflict,
		Title:  title,
		Detail: fmt.Sprintf("process instance %s is %s", pi.id, pi.state),
	}
}

func requireNodeInstance(title string, pi *processInstance, nodeInstanceId string) (*nodeInstance, error) {
	ni := pi.nodeInstanceById(nodeInstanceId)
	if ni == nil {
		return nil, engine.Error{
			Type:   engine.ErrorNotFound,
			Title:  title,
			Detail: fmt.Sprintf("process instance %s has no active node instance %s", pi.id, nodeInstanceId),
		}
	}
	return ni, nil
}

func (r *Runtime) AbortProcessInstance(ctx context.Context, cmd engine.AbortProcessInstanceCmd) (engine.ProcessInstance, error) {
	if err := r.validate("failed to abort process instance", cmd); err != nil {
		return engine.ProcessInstance{}, err
	}
	return r.abortProcessInstance(ctx, cmd.Id, true)
}

// abortProcessInstance cancels all node instances and ends a process instance in state ABORTED.
// An ended process instance is returned without further side effects.
func (r *Runtime) abortProcessInstance(ctx context.Context, id string, notifyParent bool) (engine.ProcessInstance, error) {
	pi, err := r.transition(ctx, id, func(ec *execution) error {
		if ec.pi.state.IsEnded() {
			return errNoChange
		}

		ec.skipParent = !notifyParent

		ec.terminate(nil)
		ec.pi.pending = nil
		ec.pi.err = nil
		ec.end(engine.InstanceAborted)
		return nil
	})
	if err != nil {
		return engine.ProcessInstance{}, err
	}

	r.logger.Debug("process instance aborted", zap.String("processInstanceId", pi.id))
	return pi.ProcessInstance(), nil
}

func (r *Runtime) CompleteNodeInstance(ctx context.Context, cmd engine.CompleteNodeInstanceCmd) (engine.ProcessInstance, error) {
	const title = "failed to complete node instance"
	if err := r.validate(title, cmd); err != nil {
		return engine.ProcessInstance{}, err
	}

	pi, err := r.transition(ctx, cmd.ProcessInstanceId, func(ec *execution) error {
		if err := requireInstanceState(title, ec.pi, engine.InstanceActive); err != nil {
			return err
		}

		ni, err := requireNodeInstance(title, ec.pi, cmd.NodeInstanceId)
		if err != nil {
			return err
		}
		if ni.state != engine.NodeInstanceActive || ni.arrivals != nil {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  title,
				Detail: fmt.Sprintf("node instance %s cannot be completed", ni),
			}
		}

		if err := ec.setVariables(ni, cmd.Variables); err != nil {
			return err
		}

		if err := ec.leave(ni, nil); err != nil {
			ec.fail(ni, err)
			return nil
		}

		ec.run()
		return nil
	})
	if err != nil {
		return engine.ProcessInstance{}, err
	}
	return pi.ProcessInstance(), nil
}

func (r *Runtime) FailNodeInstance(ctx context.Context, cmd engine.FailNodeInstanceCmd) (engine.ProcessInstance, error) {
	const title = "failed to fail node instance"
	if err := r.validate(title, cmd); err != nil {
		return engine.ProcessInstance{}, err
	}

	pi, err := r.transition(ctx, cmd.ProcessInstanceId, func(ec *execution) error {
		if err := requireInstanceState(title, ec.pi, engine.InstanceActive); err != nil {
			return err
		}

		ni, err := requireNodeInstance(title, ec.pi, cmd.NodeInstanceId)
		if err != nil {
			return err
		}

		ec.fail(ni, errors.New(cmd.Cause))
		return nil
	})
	if err != nil {
		return engine.ProcessInstance{}, err
	}
	return pi.ProcessInstance(), nil
}

func (r *Runtime) GetNodeInstanceVariables(_ context.Context, cmd engine.GetNodeInstanceVariablesCmd) (map[string]engine.Data, error) {
	const title = "failed to get node instance variables"
	if err := r.validate(title, cmd); err != nil {
		return nil, err
	}

	pi, _, _, err := r.load(title, cmd.ProcessInstanceId)
	if err != nil {
		return nil, err
	}

	ni, err := requireNodeInstance(title, pi, cmd.NodeInstanceId)
	if err != nil {
		return nil, err
	}

	return selectVariables(ni.variables, cmd.Names), nil
}

func (r *Runtime) GetProcessInstance(_ context.Context, cmd engine.GetProcessInstanceCmd) (engine.ProcessInstance, error) {
	const title = "failed to get process instance"
	if err := r.validate(title, cmd); err != nil {
		return engine.ProcessInstance{}, err
	}

	pi, _, _, err := r.load(title, cmd.Id)
	if err != nil {
		return engine.ProcessInstance{}, err
	}
	return pi.ProcessInstance(), nil
}

func (r *Runtime) GetProcessVariables(_ context.Context, cmd engine.GetProcessVariablesCmd) (map[string]engine.Data, error) {
	const title = "failed to get process variables"
	if err := r.validate(title, cmd); err != nil {
		return nil, err
	}

	pi, _, _, err := r.load(title, cmd.ProcessInstanceId)
	if err != nil {
		return nil, err
	}

	return selectVariables(pi.variables, cmd.Names), nil
}

func selectVariables(scope *variableScope, names []string) map[string]engine.Data {
	if len(names) == 0 {
		return scope.all()
	}

	variables := make(map[string]engine.Data, len(names))
	for _, name := range names {
		if data, ok := scope.get(name); ok {
			variables[name] = data
		}
	}
	return variables
}

func (r *Runtime) ResumeProcessInstance(ctx context.Context, cmd engine.ResumeProcessInstanceCmd) (engine.ProcessInstance, error) {
	const title = "failed to resume process instance"
	if err := r.validate(title, cmd); err != nil {
		return engine.ProcessInstance{}, err
	}

	pi, err := r.transition(ctx, cmd.Id, func(ec *execution) error {
		if err := requireInstanceState(title, ec.pi, engine.InstanceSuspended); err != nil {
			return err
		}

		ec.setState(engine.InstanceActive)

		ec.queue = ec.pi.pending
		ec.pi.pending = nil
		ec.run()
		return nil
	})
	if err != nil {
		return engine.ProcessInstance{}, err
	}
	return pi.ProcessInstance(), nil
}

// RetryProcessInstance activates the failed node instance again and continues with the tokens, retained when the process instance failed.
func (r *Runtime) RetryProcessInstance(ctx context.Context, cmd engine.RetryProcessInstanceCmd) (engine.ProcessInstance, error) {
	const title = "failed to retry process instance"
	if err := r.validate(title, cmd); err != nil {
		return engine.ProcessInstance{}, err
	}

	pi, err := r.transition(ctx, cmd.Id, func(ec *execution) error {
		if err := requireInstanceState(title, ec.pi, engine.InstanceError); err != nil {
			return err
		}

		var failed *nodeInstance
		if ec.pi.err != nil && ec.pi.err.NodeInstanceId != "" {
			failed = ec.pi.nodeInstanceById(ec.pi.err.NodeInstanceId)
		}

		ec.pi.err = nil
		ec.setState(engine.InstanceActive)

		ec.queue = ec.pi.pending
		ec.pi.pending = nil

		if failed != nil {
			behaviorOf(failed.node.Type).cancel(ec, failed)
			failed.state = engine.NodeInstanceActive

			if failure := ec.execute(failed); failure != nil {
				return nil
			}
		}

		ec.run()
		return nil
	})
	if err != nil {
		return engine.ProcessInstance{}, err
	}
	return pi.ProcessInstance(), nil
}

func (r *Runtime) SetProcessVariables(ctx context.Context, cmd engine.SetProcessVariablesCmd) error {
	const title = "failed to set process variables"
	if err := r.validate(title, cmd); err != nil {
		return err
	}

	_, err := r.transition(ctx, cmd.ProcessInstanceId, func(ec *execution) error {
		if ec.pi.state.IsEnded() {
			return requireInstanceState(title, ec.pi, engine.InstanceActive, engine.InstanceSuspended, engine.InstanceError)
		}

		if err := ec.setVariables(nil, cmd.Variables); err != nil {
			return err
		}
		if !ec.changed {
			return errNoChange
		}
		return nil
	})
	return err
}

func (r *Runtime) StartProcessInstance(ctx context.Context, cmd engine.StartProcessInstanceCmd) (engine.ProcessInstance, error) {
	const title = "failed to start process instance"
	if err := r.validate(title, cmd); err != nil {
		return engine.ProcessInstance{}, err
	}

	process, err := r.definitions.get(cmd.ProcessId, cmd.Version)
	if err != nil {
		return engine.ProcessInstance{}, err
	}

	pi := newProcessInstance(uuid.NewString(), process, r.now())
	pi.businessKey = cmd.BusinessKey
	pi.correlation = cmd.Correlation
	pi.referenceId = cmd.ReferenceId

	if err := r.startProcessInstance(ctx, title, pi, cmd.Trigger, cmd.Variables); err != nil {
		return engine.ProcessInstance{}, err
	}
	return pi.ProcessInstance(), nil
}

// startProcessInstance activates the start nodes, selected by a trigger, and all auto start nodes of a new process instance.
//
// Without a matching start node, a process instance of a dynamic process stays active without any node instance.
// For other processes, an error of type [engine.ErrorInvalidStartNode] is returned and nothing is persisted.
func (r *Runtime) startProcessInstance(ctx context.Context, title string, pi *processInstance, trigger string, variables map[string]*engine.Data) error {
	process := pi.process

	for _, variable := range process.Variables {
		if variable.HasTag(model.TagRequired) && variables[variable.Name] == nil {
			return engine.Error{
				Type:   engine.ErrorValidation,
				Title:  title,
				Detail: fmt.Sprintf("required variable %s is not set", variable.Name),
				Causes: []engine.ErrorCause{{Pointer: "/variables/" + variable.Name, Type: "required", Detail: "is required"}},
			}
		}
	}

	startNodes := process.StartNodes(trigger)
	autoStartNodes := process.AutoStartNodes()

	if len(startNodes) == 0 && !process.Dynamic && (trigger != "" || len(autoStartNodes) == 0) {
		return engine.Error{
			Type:   engine.ErrorInvalidStartNode,
			Title:  title,
			Detail: fmt.Sprintf("process %s has no start node for trigger %q", process, trigger),
		}
	}

	unlock := r.locks.lock(pi.id)

	ec := r.newExecution(ctx, pi)
	pi.createdAt = ec.now

	if len(pi.correlation) != 0 {
		correlation, err := r.correlations.Create(pi.correlation, pi.id)
		if err != nil {
			unlock()
			return err
		}
		pi.correlationKey = correlation.EncodedKey
	}

	ec.setState(engine.InstanceActive)
	ec.emit(engine.Event{Type: engine.EventProcessInstanceStarted})

	if err := ec.setVariables(nil, variables); err != nil {
		unlock()
		r.correlations.DeleteByCorrelatedId(pi.id)
		return err
	}

	if len(startNodes) != 0 || trigger == "" {
		for _, node := range startNodes {
			ec.enqueue(node, nil)
		}
		for _, node := range autoStartNodes {
			ec.enqueue(node, nil)
		}
	}

	ec.run()

	persisted, err := r.persist(ec, nil)
	unlock()

	if !persisted {
		r.correlations.DeleteByCorrelatedId(pi.id)
		return err
	}

	r.runEffects(ec)

	r.logger.Debug("process instance started",
		zap.String("processInstanceId", pi.id),
		zap.Stringer("process", process),
		zap.Stringer("state", pi.state),
	)
	return err
}

func (r *Runtime) SuspendProcessInstance(ctx context.Context, cmd engine.SuspendProcessInstanceCmd) (engine.ProcessInstance, error) {
	const title = "failed to suspend process instance"
	if err := r.validate(title, cmd); err != nil {
		return engine.ProcessInstance{}, err
	}

	pi, err := r.transition(ctx, cmd.Id, func(ec *execution) error {
		if err := requireInstanceState(title, ec.pi, engine.InstanceActive); err != nil {
			return err
		}

		ec.setState(engine.InstanceSuspended)

		for _, ni := range ec.pi.timers() {
			ec.unregisterTimer(ni.timer.Id)
		}
		return nil
	})
	if err != nil {
		return engine.ProcessInstance{}, err
	}
	return pi.ProcessInstance(), nil
}
