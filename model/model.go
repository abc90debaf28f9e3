package model

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// New reads a process definition from YAML and links its nodes and connections.
func New(yamlReader io.Reader) (*Process, error) {
	decoder := yaml.NewDecoder(yamlReader)
	decoder.KnownFields(true)

	var process Process
	if err := decoder.Decode(&process); err != nil {
		if err == io.EOF {
			return nil, errors.New("YAML is empty")
		}
		return nil, fmt.Errorf("failed to decode YAML: %v", err)
	}

	process.Link()
	return &process, nil
}

// NewFromDir reads all process definitions (*.yaml and *.yml files) of a directory, ordered by file name.
func NewFromDir(dir string) ([]*Process, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %v", dir, err)
	}

	var processes []*Process
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		name := filepath.Join(dir, entry.Name())
		process, err := newFromFile(name)
		if err != nil {
			return nil, err
		}

		processes = append(processes, process)
	}

	return processes, nil
}

func newFromFile(name string) (*Process, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %v", name, err)
	}

	defer file.Close()

	process, err := New(file)
	if err != nil {
		return nil, fmt.Errorf("file %s: %v", name, err)
	}
	return process, nil
}

// Process is an immutable process definition: an ordered graph of nodes and connections.
type Process struct {
	Id      string `yaml:"id"`
	Version string `yaml:"version"`
	Name    string `yaml:"name,omitempty"`

	// Dynamic allows the ad-hoc activation of nodes without incoming connections, by signaling a node's name.
	Dynamic bool `yaml:"dynamic,omitempty"`

	Variables   []*Variable   `yaml:"variables,omitempty"`
	Nodes       []*Node       `yaml:"nodes"`
	Connections []*Connection `yaml:"connections,omitempty"`
}

// AutoStartNodes returns all nodes that are activated when a process instance is started.
func (p *Process) AutoStartNodes() []*Node {
	var nodes []*Node
	for _, node := range p.Nodes {
		if node.AutoStart {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// Link resolves the incoming and outgoing connections of all nodes.
// Connections with an unknown source or target stay unresolved.
func (p *Process) Link() {
	for _, node := range p.Nodes {
		node.Incoming = nil
		node.Outgoing = nil
	}

	for _, connection := range p.Connections {
		connection.Source = p.NodeById(connection.From)
		connection.Target = p.NodeById(connection.To)

		if connection.Source != nil {
			connection.Source.Outgoing = append(connection.Source.Outgoing, connection)
		}
		if connection.Target != nil {
			connection.Target.Incoming = append(connection.Target.Incoming, connection)
		}
	}
}

func (p *Process) NodeById(id string) *Node {
	for _, node := range p.Nodes {
		if node.Id == id {
			return node
		}
	}
	return nil
}

// NodesByName returns all nodes without incoming connections, which have a specific name.
func (p *Process) NodesByName(name string) []*Node {
	var nodes []*Node
	for _, node := range p.Nodes {
		if node.Name == name && len(node.Incoming) == 0 && node.Type != NodeStart {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// StartNodes returns all start nodes, triggered by a specific trigger. An empty trigger selects none start nodes.
func (p *Process) StartNodes(trigger string) []*Node {
	var nodes []*Node
	for _, node := range p.Nodes {
		if node.Type == NodeStart && node.Trigger == trigger {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

func (p *Process) VariableByName(name string) *Variable {
	for _, variable := range p.Variables {
		if variable.Name == name {
			return variable
		}
	}
	return nil
}

func (p *Process) String() string {
	return fmt.Sprintf("%s:%s", p.Id, p.Version)
}

// Variable declares a process variable.
type Variable struct {
	Name     string   `yaml:"name"`
	Encoding string   `yaml:"encoding,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
}

func (v *Variable) HasTag(tag string) bool {
	return slices.Contains(v.Tags, tag)
}

const (
	TagReadonly  = "readonly"  // variable can only be set once
	TagRequired  = "required"  // variable must be set, when a process instance is started
	TagSensitive = "sensitive" // variable value is encrypted, when a process instance snapshot is written
)

type Node struct {
	Id   string   `yaml:"id"`
	Type NodeType `yaml:"type"`
	Name string   `yaml:"name,omitempty"`

	AutoStart bool   `yaml:"autoStart,omitempty"` // activated when a process instance is started
	Trigger   string `yaml:"trigger,omitempty"`   // start: name of the trigger, empty for a none start node
	EventType string `yaml:"eventType,omitempty"` // task, event: type of the signal to wait for

	Gateway   GatewayType `yaml:"gateway,omitempty"`
	Terminate bool        `yaml:"terminate,omitempty"` // end: cancel all other node instances
	Handler   string      `yaml:"handler,omitempty"`   // task: name of a task handler, executed synchronously

	Timer *Timer `yaml:"timer,omitempty"`

	ProcessRef string `yaml:"processRef,omitempty"` // sub process: ID of the process to start
	Version    string `yaml:"version,omitempty"`    // sub process: version of the process to start
	Wait       *bool  `yaml:"wait,omitempty"`       // sub process: wait for the completion of the child, default true

	UserTask *UserTask `yaml:"userTask,omitempty"`

	Inputs   map[string]string `yaml:"inputs,omitempty"`  // local variable name -> variable name of the enclosing scope
	Outputs  map[string]string `yaml:"outputs,omitempty"` // variable name of the enclosing scope -> local variable name
	Metadata map[string]string `yaml:"metadata,omitempty"`

	Incoming []*Connection `yaml:"-"`
	Outgoing []*Connection `yaml:"-"`
}

// IsWaiting determines if a sub process node waits for the completion of the started child process instance.
func (n *Node) IsWaiting() bool {
	return n.Wait == nil || *n.Wait
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.Id, n.Type)
}

type Connection struct {
	Id        string `yaml:"id,omitempty"`
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Condition string `yaml:"condition,omitempty"` // evaluated, when the source is a forking XOR or OR gateway
	Default   bool   `yaml:"default,omitempty"`   // taken, when no condition evaluates to true

	Source *Node `yaml:"-"`
	Target *Node `yaml:"-"`
}

func (c *Connection) String() string {
	if c.Id != "" {
		return c.Id
	}
	return fmt.Sprintf("%s->%s", c.From, c.To)
}

// Timer defines when and how often a timer node is triggered.
//
// The first trigger is determined by Time, Delay or Cycle. Subsequent triggers are determined by Period or Cycle.
type Timer struct {
	Time        time.Time `yaml:"time,omitempty"`
	Delay       string    `yaml:"delay,omitempty"`       // ISO 8601 duration
	Cycle       string    `yaml:"cycle,omitempty"`       // cron expression
	Period      string    `yaml:"period,omitempty"`      // ISO 8601 duration
	RepeatLimit int       `yaml:"repeatLimit,omitempty"` // number of triggers - 0 means 1, -1 means unbounded
}

type UserTask struct {
	TaskName        string   `yaml:"taskName,omitempty"`
	Description     string   `yaml:"description,omitempty"`
	Priority        int      `yaml:"priority,omitempty"`
	Assignee        string   `yaml:"assignee,omitempty"`
	PotentialOwners []string `yaml:"potentialOwners,omitempty"`
	Skippable       bool     `yaml:"skippable,omitempty"`
}
