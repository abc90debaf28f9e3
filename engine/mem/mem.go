package mem

import (
	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/engine/internal"
)

func New(customizers ...func(*Options)) (engine.Engine, error) {
	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	return internal.NewRuntime(options.Common, newMemStore())
}

func NewOptions() Options {
	common := engine.NewOptions()
	common.JobExecutorEnabled = false

	return Options{
		Common: common,
	}
}

type Options struct {
	Common engine.Options // Common engine options.
}

func (o Options) Validate() error {
	return o.Common.Validate()
}

func newMemStore() *memStore {
	return &memStore{
		processInstances: newSnapshotRepository("process instance"),
		userTasks:        newSnapshotRepository("user task"),
	}
}

type memStore struct {
	processInstances *snapshotRepository
	userTasks        *snapshotRepository
}

func (s *memStore) ProcessInstances() internal.SnapshotRepository {
	return s.processInstances
}

func (s *memStore) UserTasks() internal.SnapshotRepository {
	return s.userTasks
}

func (s *memStore) Close() error {
	return nil
}
