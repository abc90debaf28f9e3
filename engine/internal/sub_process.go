package internal

import (
	"context"
	"fmt"

	"github.com/gclaussn/go-procengine/engine"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// startChild starts the child process instance of a sub process node.
// If the child cannot be started, the waiting sub process node instance fails.
func (r *Runtime) startChild(ctx context.Context, start childStart) error {
	pi := newProcessInstance(start.id, start.process, r.now())
	pi.parentId = start.parentId
	pi.parentNodeInstanceId = start.parentNodeInstanceId
	pi.rootId = start.rootId

	err := r.startProcessInstance(ctx, "failed to start child process instance", pi, "", start.variables)
	if err == nil || pi.revision != 0 || start.parentNodeInstanceId == "" {
		return err
	}

	_, failErr := r.transition(ctx, start.parentId, func(ec *execution) error {
		ni := ec.pi.nodeInstanceById(start.parentNodeInstanceId)
		if ni == nil || ni.childInstanceId != start.id || ec.pi.state.IsEnded() {
			return errNoChange
		}

		ni.childInstanceId = ""
		ec.fail(ni, fmt.Errorf("failed to start child process instance: %v", err))
		return nil
	})
	return multierr.Append(err, failErr)
}

// completeSubProcess completes the waiting sub process node instance of a completed child.
//
// Variables of the child are mapped to local variables of the node instance, as specified by the node's outputs.
// If the parent is not active, the node instance is completed anyway and its successors are retained until the parent is resumed or retried.
func (r *Runtime) completeSubProcess(ctx context.Context, parentId string, parentNodeInstanceId string, childId string, variables map[string]engine.Data) error {
	_, err := r.transition(ctx, parentId, func(ec *execution) error {
		ni := ec.pi.nodeInstanceById(parentNodeInstanceId)
		if ni == nil || ni.childInstanceId != childId || ec.pi.state.IsEnded() {
			return errNoChange
		}

		ni.childInstanceId = ""

		for _, localName := range ni.node.Outputs {
			data, ok := variables[localName]
			if !ok {
				continue
			}
			if err := ec.setLocalVariable(ni, localName, &data); err != nil {
				ec.fail(ni, err)
				return nil
			}
		}

		if err := ec.leave(ni, nil); err != nil {
			ec.fail(ni, err)
			return nil
		}

		if ec.pi.state != engine.InstanceActive {
			ec.pi.pending = append(ec.pi.pending, ec.queue...)
			ec.queue = nil
			return nil
		}

		ec.run()
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug("sub process completed",
		zap.String("processInstanceId", parentId),
		zap.String("nodeInstanceId", parentNodeInstanceId),
		zap.String("childInstanceId", childId),
	)
	return nil
}

// failSubProcess fails the waiting sub process node instance of an aborted child.
func (r *Runtime) failSubProcess(ctx context.Context, parentId string, parentNodeInstanceId string, childId string) error {
	_, err := r.transition(ctx, parentId, func(ec *execution) error {
		ni := ec.pi.nodeInstanceById(parentNodeInstanceId)
		if ni == nil || ni.childInstanceId != childId || ec.pi.state.IsEnded() {
			return errNoChange
		}

		ni.childInstanceId = ""
		ec.fail(ni, fmt.Errorf("child process instance %s has been aborted", childId))
		return nil
	})
	return err
}
