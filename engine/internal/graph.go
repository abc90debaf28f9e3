package internal

import (
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
)

// validateProcess validates if a linked process definition can be executed.
// If the process is invalid, causes are returned.
func validateProcess(process *model.Process) []engine.ErrorCause {
	var causes []engine.ErrorCause

	if process.Id == "" {
		causes = append(causes, engine.ErrorCause{Pointer: "/id", Type: "process", Detail: "is required"})
	}
	if process.Version == "" {
		causes = append(causes, engine.ErrorCause{Pointer: "/version", Type: "process", Detail: "is required"})
	}
	if len(process.Nodes) == 0 {
		causes = append(causes, engine.ErrorCause{Pointer: "/nodes", Type: "process", Detail: "process has no nodes"})
	}

	variableNames := make(map[string]bool, len(process.Variables))
	for _, variable := range process.Variables {
		pointer := fmt.Sprintf("/variables/%s", variable.Name)
		if !RegexpVariableName.MatchString(variable.Name) {
			causes = append(causes, engine.ErrorCause{
				Pointer: pointer,
				Type:    "variable",
				Detail:  fmt.Sprintf("variable name %q must match regex %s", variable.Name, RegexpVariableName),
			})
		}
		if variableNames[variable.Name] {
			causes = append(causes, engine.ErrorCause{
				Pointer: pointer,
				Type:    "variable",
				Detail:  fmt.Sprintf("variable %s is declared multiple times", variable.Name),
			})
		}
		variableNames[variable.Name] = true

		for _, tag := range variable.Tags {
			switch tag {
			case model.TagReadonly, model.TagRequired, model.TagSensitive:
			default:
				causes = append(causes, engine.ErrorCause{
					Pointer: pointer,
					Type:    "variable",
					Detail:  fmt.Sprintf("variable %s has unknown tag %s", variable.Name, tag),
				})
			}
		}
	}

	var hasStartNode bool

	nodeIds := make(map[string]bool, len(process.Nodes))
	for i, node := range process.Nodes {
		pointer := nodePointer(node)

		if node.Id == "" {
			causes = append(causes, engine.ErrorCause{
				Pointer: fmt.Sprintf("/nodes/%d", i),
				Type:    "node",
				Detail:  fmt.Sprintf("node of type %s has no ID", node.Type),
			})
		} else if nodeIds[node.Id] {
			causes = append(causes, engine.ErrorCause{
				Pointer: pointer,
				Type:    "node",
				Detail:  fmt.Sprintf("node ID %s is not unique", node.Id),
			})
		}
		nodeIds[node.Id] = true

		if node.Type == model.NodeStart || node.AutoStart {
			hasStartNode = true
		}

		causes = append(causes, validateNode(node)...)

		for localName, name := range node.Inputs {
			if !RegexpVariableName.MatchString(localName) || !RegexpVariableName.MatchString(name) {
				causes = append(causes, engine.ErrorCause{
					Pointer: pointer + "/inputs",
					Type:    "mapping",
					Detail:  fmt.Sprintf("input mapping %s <- %s must use variable names, matching regex %s", localName, name, RegexpVariableName),
				})
			}
		}
		for name, localName := range node.Outputs {
			if !RegexpVariableName.MatchString(localName) || !RegexpVariableName.MatchString(name) {
				causes = append(causes, engine.ErrorCause{
					Pointer: pointer + "/outputs",
					Type:    "mapping",
					Detail:  fmt.Sprintf("output mapping %s <- %s must use variable names, matching regex %s", name, localName, RegexpVariableName),
				})
			}
		}
	}

	if !hasStartNode && !process.Dynamic {
		causes = append(causes, engine.ErrorCause{
			Pointer: "/nodes",
			Type:    "process",
			Detail:  "process has no start node and is not dynamic",
		})
	}

	for _, connection := range process.Connections {
		pointer := fmt.Sprintf("/connections/%s", connection)

		if connection.Source == nil {
			causes = append(causes, engine.ErrorCause{
				Pointer: pointer,
				Type:    "connection",
				Detail:  fmt.Sprintf("connection %s has no source node %s", connection, connection.From),
			})
		}
		if connection.Target == nil {
			causes = append(causes, engine.ErrorCause{
				Pointer: pointer,
				Type:    "connection",
				Detail:  fmt.Sprintf("connection %s has no target node %s", connection, connection.To),
			})
		}

		if connection.Condition != "" {
			if err := validateCondition(connection.Condition); err != nil {
				causes = append(causes, engine.ErrorCause{
					Pointer: pointer,
					Type:    "condition",
					Detail:  fmt.Sprintf("condition of connection %s is invalid: %v", connection, err),
				})
			}
		}

		if connection.Source == nil {
			continue
		}
		isForking := connection.Source.Type == model.NodeGateway && connection.Source.Gateway != model.GatewayAnd
		if (connection.Condition != "" || connection.Default) && !isForking {
			causes = append(causes, engine.ErrorCause{
				Pointer: pointer,
				Type:    "connection",
				Detail:  fmt.Sprintf("connection %s must leave a XOR or OR gateway to have a condition or be a default", connection),
			})
		}
	}

	return causes
}

func validateNode(node *model.Node) []engine.ErrorCause {
	var causes []engine.ErrorCause

	pointer := nodePointer(node)

	switch node.Type {
	case model.NodeEvent:
		if node.EventType == "" {
			causes = append(causes, engine.ErrorCause{
				Pointer: pointer,
				Type:    "node",
				Detail:  fmt.Sprintf("event node %s has no event type", node.Id),
			})
		}
	case model.NodeGateway:
		if node.Gateway == 0 {
			causes = append(causes, engine.ErrorCause{
				Pointer: pointer,
				Type:    "node",
				Detail:  fmt.Sprintf("gateway node %s has no gateway type", node.Id),
			})
		}

		var defaults int
		for _, connection := range node.Outgoing {
			if connection.Default {
				defaults++
			}
		}
		if defaults > 1 {
			causes = append(causes, engine.ErrorCause{
				Pointer: pointer,
				Type:    "node",
				Detail:  fmt.Sprintf("gateway node %s has %d default connections", node.Id, defaults),
			})
		}
	case model.NodeSubProcess:
		if node.ProcessRef == "" {
			causes = append(causes, engine.ErrorCause{
				Pointer: pointer,
				Type:    "node",
				Detail:  fmt.Sprintf("sub process node %s has no process reference", node.Id),
			})
		}
	case model.NodeTimer:
		if node.Timer == nil {
			causes = append(causes, engine.ErrorCause{
				Pointer: pointer,
				Type:    "timer",
				Detail:  fmt.Sprintf("timer node %s has no timer", node.Id),
			})
		} else if err := validateTimer(*node.Timer); err != nil {
			causes = append(causes, engine.ErrorCause{
				Pointer: pointer,
				Type:    "timer",
				Detail:  fmt.Sprintf("timer of node %s is invalid: %v", node.Id, err),
			})
		}
	case 0:
		causes = append(causes, engine.ErrorCause{
			Pointer: pointer,
			Type:    "node",
			Detail:  fmt.Sprintf("node %s has no type", node.Id),
		})
	}

	if node.Type != model.NodeStart && node.Trigger != "" {
		causes = append(causes, engine.ErrorCause{
			Pointer: pointer,
			Type:    "node",
			Detail:  fmt.Sprintf("node %s must be a start node to have a trigger", node.Id),
		})
	}

	return causes
}

func validateTimer(timer model.Timer) error {
	if timer.Cycle != "" && !gronx.IsValid(timer.Cycle) {
		return fmt.Errorf("cycle %s is not a valid cron expression", timer.Cycle)
	}

	if _, err := evaluateTimer(timer, time.Now()); err != nil {
		return err
	}

	if normalizeRepeatLimit(timer.RepeatLimit) != 1 {
		if _, err := nextTimerTick(timer, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

func nodePointer(node *model.Node) string {
	return fmt.Sprintf("/nodes/%s", node.Id)
}

func newGraph(process *model.Process) *graph {
	return &graph{process: process, reachable: make(map[*model.Node]map[*model.Node]bool)}
}

// graph answers reachability questions of a process definition, required to join inclusive gateways.
// Results are computed once per source node.
type graph struct {
	process *model.Process

	mutex     sync.Mutex
	reachable map[*model.Node]map[*model.Node]bool // source -> nodes, reachable via outgoing connections
}

// canReach determines if a token at node from can arrive at node to.
func (g *graph) canReach(from *model.Node, to *model.Node) bool {
	if from == to {
		return true
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	reachable, ok := g.reachable[from]
	if !ok {
		reachable = make(map[*model.Node]bool)

		queue := []*model.Node{from}
		for len(queue) != 0 {
			node := queue[0]
			queue = queue[1:]

			for _, connection := range node.Outgoing {
				target := connection.Target
				if target == nil || reachable[target] {
					continue
				}
				reachable[target] = true
				queue = append(queue, target)
			}
		}

		g.reachable[from] = reachable
	}

	return reachable[to]
}
