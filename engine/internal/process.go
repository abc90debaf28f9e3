package internal

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"gopkg.in/yaml.v3"
)

func newDefinitions() *definitions {
	return &definitions{
		processes: make(map[string]*definition),
		versions:  make(map[string][]string),
	}
}

// definitions is the registry of process definitions. Registered definitions are immutable.
type definitions struct {
	mutex     sync.RWMutex
	processes map[string]*definition // id:version -> definition
	versions  map[string][]string    // id -> versions in registration order
}

type definition struct {
	process   *model.Process
	createdAt time.Time
	graph     *graph
}

func (d *definition) Process() engine.Process {
	return engine.Process{
		Id:      d.process.Id,
		Version: d.process.Version,

		CreatedAt: d.createdAt,
		Dynamic:   d.process.Dynamic,
		Name:      d.process.Name,
		NodeCount: len(d.process.Nodes),

		Definition: d.process,
	}
}

// get returns a registered process. If version is empty, the latest registered version is returned.
func (d *definitions) get(id string, version string) (*model.Process, error) {
	def, err := d.getDefinition(id, version)
	if err != nil {
		return nil, err
	}
	return def.process, nil
}

func (d *definitions) getDefinition(id string, version string) (*definition, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if version == "" {
		versions := d.versions[id]
		if len(versions) == 0 {
			return nil, engine.Error{
				Type:   engine.ErrorNotFound,
				Title:  "failed to get process",
				Detail: fmt.Sprintf("process %s is not registered", id),
			}
		}
		version = versions[len(versions)-1]
	}

	def, ok := d.processes[processKey(id, version)]
	if !ok {
		return nil, engine.Error{
			Type:   engine.ErrorNotFound,
			Title:  "failed to get process",
			Detail: fmt.Sprintf("process %s:%s is not registered", id, version),
		}
	}
	return def, nil
}

// graphOf returns the graph of a registered process.
func (d *definitions) graphOf(process *model.Process) *graph {
	d.mutex.RLock()
	def, ok := d.processes[processKey(process.Id, process.Version)]
	d.mutex.RUnlock()

	if ok && def.process == process {
		return def.graph
	}
	return newGraph(process)
}

// register validates and registers a process definition.
// Registering an equal definition again returns the existing process. A different definition with the same ID and version is a conflict.
func (d *definitions) register(process *model.Process, now time.Time) (engine.Process, error) {
	process.Link()

	if causes := validateProcess(process); len(causes) != 0 {
		return engine.Process{}, engine.Error{
			Type:   engine.ErrorProcessModel,
			Title:  "failed to create process",
			Detail: fmt.Sprintf("process %s is invalid", process),
			Causes: causes,
		}
	}

	b, err := yaml.Marshal(process)
	if err != nil {
		return engine.Process{}, engine.Error{
			Type:   engine.ErrorBug,
			Title:  "failed to create process",
			Detail: fmt.Sprintf("failed to marshal process %s: %v", process, err),
		}
	}

	key := processKey(process.Id, process.Version)

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if existing, ok := d.processes[key]; ok {
		existingYaml, err := yaml.Marshal(existing.process)
		if err == nil && bytes.Equal(b, existingYaml) {
			return existing.Process(), nil
		}
		return engine.Process{}, engine.Error{
			Type:   engine.ErrorConflict,
			Title:  "failed to create process",
			Detail: fmt.Sprintf("process %s is already registered with a different definition", process),
		}
	}

	def := &definition{process: process, createdAt: now, graph: newGraph(process)}
	d.processes[key] = def
	d.versions[process.Id] = append(d.versions[process.Id], process.Version)

	return def.Process(), nil
}

// values returns all registered processes, ordered by ID and registration.
func (d *definitions) values() []engine.Process {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	ids := make([]string, 0, len(d.versions))
	for id := range d.versions {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var processes []engine.Process
	for _, id := range ids {
		for _, version := range d.versions[id] {
			processes = append(processes, d.processes[processKey(id, version)].Process())
		}
	}
	return processes
}

func processKey(id string, version string) string {
	return fmt.Sprintf("%s:%s", id, version)
}

func parseProcess(s string) (*model.Process, error) {
	process, err := model.New(strings.NewReader(s))
	if err != nil {
		return nil, engine.Error{
			Type:   engine.ErrorProcessModel,
			Title:  "failed to create process",
			Detail: fmt.Sprintf("YAML is invalid: %v", err),
		}
	}
	return process, nil
}
