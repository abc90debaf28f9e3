package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// NodeType describes the different node types of a process definition.
type NodeType int

const (
	NodeEnd NodeType = iota + 1
	NodeEvent
	NodeGateway
	NodeStart
	NodeSubProcess
	NodeTask
	NodeTimer
	NodeUserTask
)

func MapNodeType(s string) NodeType {
	switch s {
	case "END":
		return NodeEnd
	case "EVENT":
		return NodeEvent
	case "GATEWAY":
		return NodeGateway
	case "START":
		return NodeStart
	case "SUB_PROCESS":
		return NodeSubProcess
	case "TASK":
		return NodeTask
	case "TIMER":
		return NodeTimer
	case "USER_TASK":
		return NodeUserTask
	default:
		return 0
	}
}

func (v NodeType) MarshalJSON() ([]byte, error) {
	s := v.String()
	if s == "" {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", s)), nil
}

func (v NodeType) MarshalYAML() (any, error) {
	return v.String(), nil
}

func (v NodeType) String() string {
	switch v {
	case NodeEnd:
		return "END"
	case NodeEvent:
		return "EVENT"
	case NodeGateway:
		return "GATEWAY"
	case NodeStart:
		return "START"
	case NodeSubProcess:
		return "SUB_PROCESS"
	case NodeTask:
		return "TASK"
	case NodeTimer:
		return "TIMER"
	case NodeUserTask:
		return "USER_TASK"
	default:
		return ""
	}
}

func (v *NodeType) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) > 2 {
		s = s[1 : len(s)-1]
		*v = MapNodeType(s)
	}
	if *v == 0 {
		return fmt.Errorf("invalid node type data %s", s)
	}
	return nil
}

func (v *NodeType) UnmarshalYAML(value *yaml.Node) error {
	*v = MapNodeType(value.Value)
	if *v == 0 {
		return fmt.Errorf("line %d: invalid node type %q", value.Line, value.Value)
	}
	return nil
}

// GatewayType describes the behavior of a gateway node.
type GatewayType int

const (
	GatewayAnd GatewayType = iota + 1 // parallel: all outgoing connections, joins all incoming connections
	GatewayOr                         // inclusive: all outgoing connections with a true condition
	GatewayXor                        // exclusive: first outgoing connection with a true condition
)

func MapGatewayType(s string) GatewayType {
	switch s {
	case "AND":
		return GatewayAnd
	case "OR":
		return GatewayOr
	case "XOR":
		return GatewayXor
	default:
		return 0
	}
}

func (v GatewayType) MarshalYAML() (any, error) {
	return v.String(), nil
}

func (v GatewayType) String() string {
	switch v {
	case GatewayAnd:
		return "AND"
	case GatewayOr:
		return "OR"
	case GatewayXor:
		return "XOR"
	default:
		return ""
	}
}

func (v *GatewayType) UnmarshalYAML(value *yaml.Node) error {
	*v = MapGatewayType(value.Value)
	if *v == 0 {
		return fmt.Errorf("line %d: invalid gateway type %q", value.Line, value.Value)
	}
	return nil
}
