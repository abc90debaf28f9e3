package model

// NewBuilder creates a builder for programmatic process definitions.
func NewBuilder(id string, version string) *Builder {
	return &Builder{process: &Process{Id: id, Version: version}}
}

type Builder struct {
	process *Process
}

// Build links nodes and connections and returns the process definition.
func (b *Builder) Build() *Process {
	b.process.Link()
	return b.process
}

func (b *Builder) Connect(from string, to string) *Builder {
	b.process.Connections = append(b.process.Connections, &Connection{From: from, To: to})
	return b
}

func (b *Builder) ConnectIf(from string, to string, condition string) *Builder {
	b.process.Connections = append(b.process.Connections, &Connection{From: from, To: to, Condition: condition})
	return b
}

func (b *Builder) ConnectDefault(from string, to string) *Builder {
	b.process.Connections = append(b.process.Connections, &Connection{From: from, To: to, Default: true})
	return b
}

func (b *Builder) Dynamic() *Builder {
	b.process.Dynamic = true
	return b
}

func (b *Builder) End(id string, customizers ...func(*Node)) *Builder {
	return b.Node(&Node{Id: id, Type: NodeEnd}, customizers...)
}

func (b *Builder) Event(id string, eventType string, customizers ...func(*Node)) *Builder {
	return b.Node(&Node{Id: id, Type: NodeEvent, EventType: eventType}, customizers...)
}

func (b *Builder) Gateway(id string, gatewayType GatewayType, customizers ...func(*Node)) *Builder {
	return b.Node(&Node{Id: id, Type: NodeGateway, Gateway: gatewayType}, customizers...)
}

// Node adds a node. Customizers can be used to set additional node attributes.
func (b *Builder) Node(node *Node, customizers ...func(*Node)) *Builder {
	for _, customizer := range customizers {
		customizer(node)
	}
	b.process.Nodes = append(b.process.Nodes, node)
	return b
}

func (b *Builder) Start(id string, customizers ...func(*Node)) *Builder {
	return b.Node(&Node{Id: id, Type: NodeStart}, customizers...)
}

func (b *Builder) SubProcess(id string, processRef string, version string, customizers ...func(*Node)) *Builder {
	return b.Node(&Node{Id: id, Type: NodeSubProcess, ProcessRef: processRef, Version: version}, customizers...)
}

func (b *Builder) Task(id string, eventType string, customizers ...func(*Node)) *Builder {
	return b.Node(&Node{Id: id, Type: NodeTask, EventType: eventType}, customizers...)
}

func (b *Builder) Timer(id string, timer Timer, customizers ...func(*Node)) *Builder {
	return b.Node(&Node{Id: id, Type: NodeTimer, Timer: &timer}, customizers...)
}

func (b *Builder) UserTask(id string, userTask UserTask, customizers ...func(*Node)) *Builder {
	return b.Node(&Node{Id: id, Type: NodeUserTask, UserTask: &userTask}, customizers...)
}

func (b *Builder) Variable(name string, tags ...string) *Builder {
	b.process.Variables = append(b.process.Variables, &Variable{Name: name, Tags: tags})
	return b
}
