package internal

import (
	"context"

	"github.com/gclaussn/go-procengine/engine"
	"go.uber.org/zap"
)

// SignalProcessInstance delivers an event to all waiting node instances, which consume the event type.
//
// Node instances are signaled one after another, in activation order. A payload, which cannot be written, is reported as non-fatal error and the node instance keeps waiting.
// A failure, while leaving a node instance, is fatal and stops the delivery.
// For a dynamic process, nodes without incoming connections, named like the event type, are activated additionally.
func (r *Runtime) SignalProcessInstance(ctx context.Context, cmd engine.SignalProcessInstanceCmd) (engine.SignalResult, error) {
	const title = "failed to signal process instance"
	if err := r.validate(title, cmd); err != nil {
		return engine.SignalResult{}, err
	}

	id := cmd.Id
	if id == "" {
		instance, ok, err := r.correlations.Find(cmd.Correlation)
		if err != nil {
			return engine.SignalResult{}, engine.Error{Type: engine.ErrorBug, Title: title, Detail: err.Error()}
		}
		if !ok {
			r.logger.Debug("no process instance correlated", zap.String("eventType", cmd.EventType))
			return engine.SignalResult{}, nil
		}
		id = instance.CorrelatedId
	}

	var result engine.SignalResult

	pi, err := r.transition(ctx, id, func(ec *execution) error {
		if err := requireInstanceState(title, ec.pi, engine.InstanceActive); err != nil {
			return err
		}

		result.Delivered = 0
		result.Errors = nil

		var waiting []*nodeInstance
		for _, ni := range ec.pi.nodeInstances {
			if ni.state == engine.NodeInstanceActive && ni.arrivals == nil && behaviorOf(ni.node.Type).signal(ec, ni, cmd.EventType) {
				waiting = append(waiting, ni)
			}
		}

		for _, ni := range waiting {
			if ec.pi.state != engine.InstanceActive {
				break
			}
			if ec.pi.nodeInstanceById(ni.id) == nil {
				continue // terminated by a previously signaled node instance
			}

			if err := ec.setVariables(ni, cmd.Payload); err != nil {
				failure := engine.NodeInstanceError{
					ProcessInstanceId: ec.pi.id,
					NodeInstanceId:    ni.id,
					NodeId:            ni.node.Id,
					Error:             err.Error(),
				}
				ec.reportNodeError(failure)
				result.Errors = append(result.Errors, failure)
				continue
			}

			if err := ec.leave(ni, nil); err != nil {
				result.Errors = append(result.Errors, *ec.fail(ni, err))
				break
			}

			result.Delivered++

			if failure := ec.run(); failure != nil {
				result.Errors = append(result.Errors, *failure)
				break
			}
		}

		if ec.pi.process.Dynamic && ec.pi.state == engine.InstanceActive {
			nodes := ec.pi.process.NodesByName(cmd.EventType)
			if len(nodes) != 0 {
				if err := ec.setVariables(nil, cmd.Payload); err != nil {
					result.Errors = append(result.Errors, engine.NodeInstanceError{
						ProcessInstanceId: ec.pi.id,
						Error:             err.Error(),
					})
				} else {
					for _, node := range nodes {
						ec.enqueue(node, nil)
					}
					result.Delivered += len(nodes)

					if failure := ec.run(); failure != nil {
						result.Errors = append(result.Errors, *failure)
					}
				}
			}
		}

		if result.Delivered == 0 && ec.pi.state == engine.InstanceActive {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return engine.SignalResult{}, err
	}

	result.ProcessInstance = pi.ProcessInstance()
	result.Success = result.Delivered != 0

	r.logger.Debug("process instance signaled",
		zap.String("processInstanceId", pi.id),
		zap.String("eventType", cmd.EventType),
		zap.Int("delivered", result.Delivered),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}
