package internal

import (
	"fmt"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"github.com/google/uuid"
)

// nodeBehavior defines how a node instance of a specific node type is activated, signaled and canceled.
type nodeBehavior struct {
	// activate performs the entry action of a node instance.
	// If the node instance completes synchronously, true is returned together with the connections to follow.
	// nil connections mean all outgoing connections.
	activate func(*execution, *nodeInstance) ([]*model.Connection, bool, error)
	// signal determines if a waiting node instance consumes an event type.
	signal func(*execution, *nodeInstance, string) bool
	// cancel releases external resources of a node instance. It must be safe to call multiple times.
	cancel func(*execution, *nodeInstance)
}

func behaviorOf(nodeType model.NodeType) nodeBehavior {
	switch nodeType {
	case model.NodeEnd:
		return nodeBehavior{activate: activateEnd, signal: signalNone, cancel: cancelNone}
	case model.NodeEvent:
		return nodeBehavior{activate: activateWaiting, signal: signalEventType, cancel: cancelNone}
	case model.NodeGateway:
		return nodeBehavior{activate: activateGateway, signal: signalNone, cancel: cancelNone}
	case model.NodeStart:
		return nodeBehavior{activate: activateStart, signal: signalNone, cancel: cancelNone}
	case model.NodeSubProcess:
		return nodeBehavior{activate: activateSubProcess, signal: signalNone, cancel: cancelSubProcess}
	case model.NodeTask:
		return nodeBehavior{activate: activateTask, signal: signalEventType, cancel: cancelNone}
	case model.NodeTimer:
		return nodeBehavior{activate: activateTimer, signal: signalNone, cancel: cancelTimer}
	case model.NodeUserTask:
		return nodeBehavior{activate: activateUserTask, signal: signalNone, cancel: cancelUserTask}
	default:
		return nodeBehavior{activate: activateUnsupported, signal: signalNone, cancel: cancelNone}
	}
}

func activateEnd(ec *execution, ni *nodeInstance) ([]*model.Connection, bool, error) {
	if ni.node.Terminate {
		ec.terminate(ni)
	}
	return nil, true, nil
}

func activateStart(_ *execution, _ *nodeInstance) ([]*model.Connection, bool, error) {
	return nil, true, nil
}

// activateTask executes the task handler of a node, if specified. Otherwise, the node instance waits for its event type.
func activateTask(ec *execution, ni *nodeInstance) ([]*model.Connection, bool, error) {
	if ni.node.Handler == "" {
		return nil, false, nil
	}

	handler, ok := ec.r.options.TaskHandlers[ni.node.Handler]
	if !ok {
		return nil, false, fmt.Errorf("task handler %s is not registered", ni.node.Handler)
	}

	outcome, err := handler(ec.ctx, engine.TaskContext{
		ProcessInstanceId: ec.pi.id,
		NodeInstanceId:    ni.id,
		NodeId:            ni.node.Id,
		Metadata:          ni.node.Metadata,
		Variables:         ec.visibleVariables(ni),
	})
	if err != nil {
		return nil, false, fmt.Errorf("task handler %s failed: %v", ni.node.Handler, err)
	}

	if err := ec.setVariables(ni, outcome); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

func activateWaiting(_ *execution, _ *nodeInstance) ([]*model.Connection, bool, error) {
	return nil, false, nil
}

func activateSubProcess(ec *execution, ni *nodeInstance) ([]*model.Connection, bool, error) {
	child, err := ec.r.definitions.get(ni.node.ProcessRef, ni.node.Version)
	if err != nil {
		return nil, false, err
	}

	variables := make(map[string]*engine.Data, len(ni.node.Inputs))
	for localName, name := range ni.node.Inputs {
		if data, ok := ec.variable(ni, name); ok {
			variables[localName] = &engine.Data{Encoding: data.Encoding, Value: data.Value}
		}
	}

	ni.childInstanceId = uuid.NewString()

	start := childStart{
		id:        ni.childInstanceId,
		parentId:  ec.pi.id,
		rootId:    ec.pi.rootId,
		process:   child,
		variables: variables,
	}
	if start.rootId == "" {
		start.rootId = ec.pi.id
	}
	if ni.node.IsWaiting() {
		start.parentNodeInstanceId = ni.id
	}

	ec.afterUnlock(func(r *Runtime) error {
		return r.startChild(ec.ctx, start)
	})

	if !ni.node.IsWaiting() {
		ni.childInstanceId = ""
		return nil, true, nil
	}
	return nil, false, nil
}

func activateTimer(ec *execution, ni *nodeInstance) ([]*model.Connection, bool, error) {
	if ni.node.Timer == nil {
		return nil, false, fmt.Errorf("timer node %s has no timer definition", ni.node.Id)
	}

	ni.timer = &timerInstance{
		Id:             uuid.NewString(),
		NodeInstanceId: ni.id,
		ActivatedAt:    ec.now,
		RepeatLimit:    normalizeRepeatLimit(ni.node.Timer.RepeatLimit),
	}

	ec.registerTimer(ni)
	return nil, false, nil
}

func activateUserTask(ec *execution, ni *nodeInstance) ([]*model.Connection, bool, error) {
	definition := ni.node.UserTask
	if definition == nil {
		definition = &model.UserTask{}
	}

	name := definition.TaskName
	if name == "" {
		name = ni.node.Name
	}
	if name == "" {
		name = ni.node.Id
	}

	inputs := make(map[string]*engine.Data, len(ni.node.Inputs))
	for localName := range ni.node.Inputs {
		if data, ok := ni.variables.get(localName); ok {
			inputs[localName] = &engine.Data{Encoding: data.Encoding, Value: data.Value}
		}
	}

	userTask := &engine.UserTask{
		Id: uuid.NewString(),

		NodeId:            ni.node.Id,
		NodeInstanceId:    ni.id,
		ProcessInstanceId: ec.pi.id,

		ActualOwner:     definition.Assignee,
		CreatedAt:       ec.now,
		Description:     definition.Description,
		Inputs:          inputs,
		Name:            name,
		PotentialOwners: definition.PotentialOwners,
		Priority:        definition.Priority,
		Skippable:       definition.Skippable,
		State:           engine.UserTaskNew,
		UpdatedAt:       ec.now,
	}
	if userTask.ActualOwner != "" {
		userTask.State = engine.UserTaskReserved
	}

	ni.userTaskId = userTask.Id

	if err := ec.mirrorUserTask(ni, userTask); err != nil {
		return nil, false, err
	}

	ec.createdUserTasks = append(ec.createdUserTasks, userTask)
	return nil, false, nil
}

func activateUnsupported(_ *execution, ni *nodeInstance) ([]*model.Connection, bool, error) {
	return nil, false, fmt.Errorf("node type %s is not supported", ni.node.Type)
}

func cancelNone(_ *execution, _ *nodeInstance) {
}

func cancelSubProcess(ec *execution, ni *nodeInstance) {
	if ni.childInstanceId == "" {
		return
	}

	childId := ni.childInstanceId
	ni.childInstanceId = ""

	ec.afterUnlock(func(r *Runtime) error {
		_, err := r.abortProcessInstance(ec.ctx, childId, false)
		return err
	})
}

func cancelTimer(ec *execution, ni *nodeInstance) {
	if ni.timer == nil {
		return
	}

	ec.unregisterTimer(ni.timer.Id)
	ni.timer = nil
}

func cancelUserTask(ec *execution, ni *nodeInstance) {
	if ni.userTaskId == "" {
		return
	}

	ec.abortedUserTasks = append(ec.abortedUserTasks, ni.userTaskId)
	ni.userTaskId = ""
}

func signalEventType(_ *execution, ni *nodeInstance, eventType string) bool {
	return ni.node.EventType != "" && ni.node.EventType == eventType
}

func signalNone(_ *execution, _ *nodeInstance, _ string) bool {
	return false
}
