package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// execution is a single, in-memory transition of a process instance.
//
// It is created, after the process instance has been locked and loaded.
// Events and side effects on external collaborators (job service, other process instances) are collected and run after the process instance has been persisted and unlocked.
type execution struct {
	ctx context.Context
	r   *Runtime
	pi  *processInstance
	now time.Time

	queue      []token
	steps      int
	completed  bool // true, if at least one node instance has been completed
	changed    bool // true, if at least one variable has been changed
	skipParent bool // true, if the parent process instance must not be notified about the end

	createdUserTasks []*engine.UserTask
	abortedUserTasks []string
	events           []engine.Event
	effects          []func(*Runtime) error
}

func (ec *execution) afterUnlock(effect func(*Runtime) error) {
	ec.effects = append(ec.effects, effect)
}

// emit buffers an event. Listeners are notified, when the transition has been persisted.
func (ec *execution) emit(event engine.Event) {
	ec.events = append(ec.events, ec.event(event))
}

// event stamps an event with the time and the current state of the process instance.
func (ec *execution) event(event engine.Event) engine.Event {
	event.Time = ec.now
	event.ProcessId = ec.pi.process.Id
	event.ProcessInstanceId = ec.pi.id
	event.State = ec.pi.state
	return event
}

func (ec *execution) enqueue(node *model.Node, connection *model.Connection) {
	ec.queue = append(ec.queue, token{node: node, connection: connection})
}

func (ec *execution) newNodeInstance(node *model.Node) (*nodeInstance, error) {
	ni := &nodeInstance{
		id:        uuid.NewString(),
		node:      node,
		createdAt: ec.now,
		state:     engine.NodeInstanceActive,
	}
	ni.variables = newVariableScope(ni.id)

	ec.pi.nodeInstances = append(ec.pi.nodeInstances, ni)

	ec.emit(engine.Event{
		Type:           engine.EventNodeInstanceActivated,
		NodeId:         node.Id,
		NodeInstanceId: ni.id,
	})

	// input mapping: local variable name -> variable name of the enclosing scope
	for localName, name := range node.Inputs {
		data, ok := ec.pi.variables.get(name)
		if !ok {
			continue
		}
		if err := ec.setVariable(ni, localName, &data); err != nil {
			return ni, err
		}
	}

	return ni, nil
}

// run processes all queued tokens, until the queue is empty or a node instance failed.
func (ec *execution) run() *engine.NodeInstanceError {
	for {
		for len(ec.queue) != 0 {
			if ec.pi.state != engine.InstanceActive {
				return nil
			}

			if ec.steps >= ec.r.options.StepLimit {
				return ec.fail(nil, fmt.Errorf("step limit of %d exceeded", ec.r.options.StepLimit))
			}
			ec.steps++

			t := ec.queue[0]
			ec.queue = ec.queue[1:]

			if failure := ec.arrive(t); failure != nil {
				return failure
			}
		}

		fired, failure := ec.fireInclusiveJoins()
		if failure != nil {
			return failure
		}
		if !fired {
			break
		}
	}

	ec.checkCompletion()
	return nil
}

// arrive moves a token to a node. Joining gateways collect tokens, all other nodes are activated.
func (ec *execution) arrive(t token) *engine.NodeInstanceError {
	if !isJoin(t.node) {
		ni, err := ec.newNodeInstance(t.node)
		if err != nil {
			return ec.fail(ni, err)
		}
		return ec.execute(ni)
	}

	ni := ec.pi.joinInstance(t.node)
	if ni == nil {
		var err error
		if ni, err = ec.newNodeInstance(t.node); err != nil {
			return ec.fail(ni, err)
		}
		ni.arrivals = make(map[string]int)
	}

	if t.connection != nil {
		ni.arrivals[t.connection.String()]++
	}

	if t.node.Gateway == model.GatewayAnd && ec.isJoinComplete(ni) {
		ni.arrivals = nil
		return ec.execute(ni)
	}
	return nil
}

// execute activates a node instance and leaves it, if it completes synchronously.
func (ec *execution) execute(ni *nodeInstance) *engine.NodeInstanceError {
	connections, done, err := behaviorOf(ni.node.Type).activate(ec, ni)
	if err != nil {
		return ec.fail(ni, err)
	}
	if !done {
		return nil
	}
	if err := ec.leave(ni, connections); err != nil {
		return ec.fail(ni, err)
	}
	return nil
}

// fireInclusiveJoins activates inclusive joins, which cannot receive further tokens.
func (ec *execution) fireInclusiveJoins() (bool, *engine.NodeInstanceError) {
	if ec.pi.state != engine.InstanceActive {
		return false, nil
	}

	for _, ni := range ec.pi.nodeInstances {
		if ni.arrivals == nil || ni.node.Gateway != model.GatewayOr || !ec.isJoinComplete(ni) {
			continue
		}

		ni.arrivals = nil
		return true, ec.execute(ni)
	}
	return false, nil
}

// leave completes a node instance and moves tokens along the given connections.
// If connections is nil, all outgoing connections of the node are followed.
func (ec *execution) leave(ni *nodeInstance, connections []*model.Connection) error {
	// output mapping: variable name of the enclosing scope -> local variable name
	for name, localName := range ni.node.Outputs {
		data, ok := ni.variables.get(localName)
		if !ok {
			continue
		}
		if err := ec.setVariable(nil, name, &data); err != nil {
			return err
		}
	}

	behaviorOf(ni.node.Type).cancel(ec, ni)

	if !ec.pi.removeNodeInstance(ni) {
		return nil // already terminated
	}

	ec.completed = true

	ec.emit(engine.Event{
		Type:           engine.EventNodeInstanceCompleted,
		NodeId:         ni.node.Id,
		NodeInstanceId: ni.id,
	})

	if connections == nil {
		connections = ni.node.Outgoing
	}
	for _, connection := range connections {
		if connection.Target != nil {
			ec.enqueue(connection.Target, connection)
		}
	}
	return nil
}

// cancel cancels an active node instance and releases its external resources.
func (ec *execution) cancel(ni *nodeInstance) {
	behaviorOf(ni.node.Type).cancel(ec, ni)

	if !ec.pi.removeNodeInstance(ni) {
		return
	}

	ec.emit(engine.Event{
		Type:           engine.EventNodeInstanceCanceled,
		NodeId:         ni.node.Id,
		NodeInstanceId: ni.id,
	})
}

// terminate cancels all node instances except the terminating one and drops all queued tokens.
func (ec *execution) terminate(terminating *nodeInstance) {
	for _, ni := range append([]*nodeInstance(nil), ec.pi.nodeInstances...) {
		if ni != terminating {
			ec.cancel(ni)
		}
	}
	ec.queue = nil
}

// fail freezes a node instance and the process instance in state ERROR. Unprocessed tokens are retained for a retry.
func (ec *execution) fail(ni *nodeInstance, cause error) *engine.NodeInstanceError {
	failure := engine.NodeInstanceError{
		ProcessInstanceId: ec.pi.id,
		Error:             cause.Error(),
		Fatal:             true,
	}

	if ni != nil {
		ni.state = engine.NodeInstanceFailed

		failure.NodeId = ni.node.Id
		failure.NodeInstanceId = ni.id
	}

	ec.pi.err = &engine.ProcessInstanceError{NodeInstanceId: failure.NodeInstanceId, Cause: failure.Error}
	ec.pi.pending = append(ec.pi.pending, ec.queue...)
	ec.queue = nil

	ec.setState(engine.InstanceError)

	ec.emit(engine.Event{
		Type:           engine.EventNodeInstanceFailed,
		NodeId:         failure.NodeId,
		NodeInstanceId: failure.NodeInstanceId,
	})

	ec.r.logger.Warn("node instance failed",
		zap.String("processInstanceId", ec.pi.id),
		zap.String("nodeInstanceId", failure.NodeInstanceId),
		zap.String("nodeId", failure.NodeId),
		zap.String("cause", failure.Error),
	)

	ec.reportNodeError(failure)
	return &failure
}

func (ec *execution) reportNodeError(failure engine.NodeInstanceError) {
	if onNodeError := ec.r.options.OnNodeError; onNodeError != nil {
		onNodeError(failure)
	}
}

func (ec *execution) checkCompletion() {
	if ec.pi.state != engine.InstanceActive || !ec.completed {
		return
	}
	if len(ec.pi.nodeInstances) != 0 || len(ec.queue) != 0 {
		return
	}
	ec.end(engine.InstanceCompleted)
}

// end ends the process instance. The snapshot is archived, when the process instance is persisted.
func (ec *execution) end(state engine.InstanceState) {
	ec.setState(state)

	endedAt := ec.now
	ec.pi.endedAt = &endedAt

	ec.emit(engine.Event{Type: engine.EventProcessInstanceEnded})

	if ec.pi.parentNodeInstanceId == "" || ec.skipParent {
		return
	}

	parentId := ec.pi.parentId
	parentNodeInstanceId := ec.pi.parentNodeInstanceId
	childId := ec.pi.id

	if state == engine.InstanceCompleted {
		variables := ec.pi.variables.all()
		ec.afterUnlock(func(r *Runtime) error {
			return r.completeSubProcess(ec.ctx, parentId, parentNodeInstanceId, childId, variables)
		})
	} else {
		ec.afterUnlock(func(r *Runtime) error {
			return r.failSubProcess(ec.ctx, parentId, parentNodeInstanceId, childId)
		})
	}
}

func (ec *execution) setState(state engine.InstanceState) {
	if ec.pi.state == state {
		return
	}
	ec.pi.state = state
	ec.emit(engine.Event{Type: engine.EventProcessInstanceStateChanged})
}

// registerTimer schedules the job of a timer, after the process instance has been persisted.
func (ec *execution) registerTimer(ni *nodeInstance) {
	description := timerJobDescription(ec.pi, ni)
	ec.afterUnlock(func(r *Runtime) error {
		return r.timers.register(ec.ctx, description)
	})
}

func (ec *execution) unregisterTimer(timerId string) {
	ec.afterUnlock(func(r *Runtime) error {
		return r.timers.unregister(ec.ctx, timerId)
	})
}
