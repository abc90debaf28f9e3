package internal

import (
	"fmt"
	"slices"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
)

func newVariableScope(id string) *variableScope {
	return &variableScope{id: id, values: make(map[string]engine.Data)}
}

// variableScope is a named variable container, which preserves the insertion order of its variables.
type variableScope struct {
	id     string // ID of the owning process or node instance
	names  []string
	values map[string]engine.Data
}

func (s *variableScope) all() map[string]engine.Data {
	values := make(map[string]engine.Data, len(s.values))
	for name, data := range s.values {
		values[name] = data
	}
	return values
}

func (s *variableScope) delete(name string) {
	if _, ok := s.values[name]; !ok {
		return
	}
	delete(s.values, name)
	s.names = slices.DeleteFunc(s.names, func(v string) bool { return v == name })
}

func (s *variableScope) get(name string) (engine.Data, bool) {
	data, ok := s.values[name]
	return data, ok
}

func (s *variableScope) has(name string) bool {
	_, ok := s.values[name]
	return ok
}

func (s *variableScope) put(name string, data engine.Data) {
	if _, ok := s.values[name]; !ok {
		s.names = append(s.names, name)
	}
	s.values[name] = data
}

// scope determines the scope, a variable is written to.
//
// A variable is written to the node instance, if it exists there or if the node declares it as input.
// Otherwise, the process instance scope is used.
func (ec *execution) scope(ni *nodeInstance, name string) (*variableScope, error) {
	if ec.pi == nil || ec.pi.variables == nil {
		return nil, engine.Error{
			Type:   engine.ErrorNoActiveScope,
			Title:  "failed to resolve variable scope",
			Detail: fmt.Sprintf("variable %s cannot be accessed without an active process instance", name),
		}
	}

	if ni != nil {
		if ni.variables.has(name) {
			return ni.variables, nil
		}
		if _, ok := ni.node.Inputs[name]; ok {
			return ni.variables, nil
		}
	}
	return ec.pi.variables, nil
}

// setVariable sets or, if data is nil, deletes a variable, visible for a node instance.
// A change is emitted, before it is applied.
func (ec *execution) setVariable(ni *nodeInstance, name string, data *engine.Data) error {
	scope, err := ec.scope(ni, name)
	if err != nil {
		return err
	}
	return ec.setScopedVariable(ni, scope, name, data)
}

// setLocalVariable sets or, if data is nil, deletes a variable of a node instance, regardless of the scope rule.
func (ec *execution) setLocalVariable(ni *nodeInstance, name string, data *engine.Data) error {
	return ec.setScopedVariable(ni, ni.variables, name, data)
}

func (ec *execution) setScopedVariable(ni *nodeInstance, scope *variableScope, name string, data *engine.Data) error {
	var tags []string
	if scope == ec.pi.variables {
		if variable := ec.pi.process.VariableByName(name); variable != nil {
			tags = variable.Tags
		}
	}

	old, exists := scope.get(name)

	if data == nil {
		if !exists {
			return nil
		}
		if slices.Contains(tags, model.TagRequired) {
			return variableError(name, "required variable cannot be deleted")
		}
		if slices.Contains(tags, model.TagReadonly) {
			return variableError(name, "readonly variable cannot be deleted")
		}
	} else if exists {
		if old.Encoding == data.Encoding && old.Value == data.Value {
			return nil
		}
		if slices.Contains(tags, model.TagReadonly) {
			return variableError(name, "readonly variable cannot be changed")
		}
	}

	change := engine.VariableChange{
		Name:    name,
		ScopeId: scope.id,
		Tags:    tags,
	}
	if exists {
		oldValue := old
		change.OldValue = &oldValue
	}
	if data != nil {
		newValue := *data
		change.NewValue = &newValue
	}

	event := engine.Event{Type: engine.EventVariableChanged, Variable: &change}
	if ni != nil {
		event.NodeId = ni.node.Id
		event.NodeInstanceId = ni.id
	}
	ec.emit(event)

	if data == nil {
		scope.delete(name)
	} else {
		scope.put(name, engine.Data{Encoding: data.Encoding, Value: data.Value})
	}

	ec.changed = true
	return nil
}

// setVariables sets or deletes multiple variables in a stable order.
func (ec *execution) setVariables(ni *nodeInstance, variables map[string]*engine.Data) error {
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if err := ec.setVariable(ni, name, variables[name]); err != nil {
			return err
		}
	}
	return nil
}

// variable resolves a variable, visible for a node instance: node instance scope first, process instance scope second.
func (ec *execution) variable(ni *nodeInstance, name string) (engine.Data, bool) {
	if ni != nil {
		if data, ok := ni.variables.get(name); ok {
			return data, true
		}
	}
	return ec.pi.variables.get(name)
}

// visibleVariables returns all variables, visible for a node instance. Local variables shadow process variables.
func (ec *execution) visibleVariables(ni *nodeInstance) map[string]engine.Data {
	variables := ec.pi.variables.all()
	if ni != nil {
		for name, data := range ni.variables.values {
			variables[name] = data
		}
	}
	return variables
}

func variableError(name string, detail string) error {
	return engine.Error{
		Type:   engine.ErrorValidation,
		Title:  "failed to set variable",
		Detail: fmt.Sprintf("variable %s: %s", name, detail),
	}
}
