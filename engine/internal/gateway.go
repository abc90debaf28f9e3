package internal

import (
	"fmt"

	"github.com/gclaussn/go-procengine/model"
)

// activateGateway selects the outgoing connections of a gateway.
//
//   - AND: all outgoing connections
//   - XOR: first connection with a true condition, the default connection otherwise
//   - OR: all connections with a true condition, the default connection otherwise
//
// Joining is done before a gateway is activated - see execution#arrive.
func activateGateway(ec *execution, ni *nodeInstance) ([]*model.Connection, bool, error) {
	node := ni.node

	if node.Gateway == model.GatewayAnd || len(node.Outgoing) <= 1 {
		return nil, true, nil
	}

	var (
		selected          []*model.Connection
		defaultConnection *model.Connection
	)

	variables := ec.visibleVariables(ni)
	for _, connection := range node.Outgoing {
		if connection.Default {
			defaultConnection = connection
			continue
		}
		if connection.Condition == "" {
			selected = append(selected, connection)
		} else {
			ok, err := ec.r.evaluator.Evaluate(connection.Condition, variables)
			if err != nil {
				return nil, false, fmt.Errorf("failed to evaluate condition of connection %s: %v", connection, err)
			}
			if ok {
				selected = append(selected, connection)
			}
		}

		if node.Gateway == model.GatewayXor && len(selected) != 0 {
			break
		}
	}

	if len(selected) == 0 && defaultConnection != nil {
		selected = append(selected, defaultConnection)
	}
	if len(selected) == 0 {
		return nil, false, fmt.Errorf("%s gateway %s has no connection to follow", node.Gateway, node.Id)
	}

	return selected, true, nil
}

// isJoin determines if a gateway waits for tokens of multiple incoming connections.
func isJoin(node *model.Node) bool {
	if node.Type != model.NodeGateway || len(node.Incoming) <= 1 {
		return false
	}
	return node.Gateway == model.GatewayAnd || node.Gateway == model.GatewayOr
}

// isJoinComplete determines if a joining gateway can be activated.
//
// A parallel join requires a token for each incoming connection.
// An inclusive join requires that no other active node instance can reach the gateway anymore.
func (ec *execution) isJoinComplete(ni *nodeInstance) bool {
	switch ni.node.Gateway {
	case model.GatewayAnd:
		for _, connection := range ni.node.Incoming {
			if ni.arrivals[connection.String()] == 0 {
				return false
			}
		}
		return true
	case model.GatewayOr:
		for _, other := range ec.pi.nodeInstances {
			if other == ni {
				continue
			}
			if other.node == ni.node || ec.r.definitions.graphOf(ec.pi.process).canReach(other.node, ni.node) {
				return false
			}
		}
		for _, t := range ec.queue {
			if ec.r.definitions.graphOf(ec.pi.process).canReach(t.node, ni.node) {
				return false
			}
		}
		return true
	default:
		return true
	}
}
