package internal

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
)

func newTestStore() *testStore {
	return &testStore{
		processInstances: newTestRepository(),
		userTasks:        newTestRepository(),
	}
}

// testStore is a store, which counts the calls of its repositories.
type testStore struct {
	processInstances *testRepository
	userTasks        *testRepository
	closed           bool
}

func (s *testStore) ProcessInstances() SnapshotRepository {
	return s.processInstances
}

func (s *testStore) UserTasks() SnapshotRepository {
	return s.userTasks
}

func (s *testStore) Close() error {
	s.closed = true
	return nil
}

func newTestRepository() *testRepository {
	return &testRepository{
		active:   make(map[string]Snapshot),
		archived: make(map[string]Snapshot),
	}
}

var errStoreUnavailable = errors.New("store unavailable")

type testRepository struct {
	mutex    sync.Mutex
	active   map[string]Snapshot
	archived map[string]Snapshot

	creates int
	updates int
	removes int

	// number of upcoming calls, which fail with errStoreUnavailable
	createFailures int
	updateFailures int
	removeFailures int
}

func (r *testRepository) failCreates(n int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.createFailures = n
}

func (r *testRepository) failUpdates(n int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.updateFailures = n
}

func (r *testRepository) failRemoves(n int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.removeFailures = n
}

func (r *testRepository) Create(snapshot *Snapshot) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.createFailures > 0 {
		r.createFailures--
		return errStoreUnavailable
	}

	if _, ok := r.active[snapshot.Id]; ok {
		return NewConflictError("failed to create snapshot", snapshot)
	}

	snapshot.Revision = 1
	r.active[snapshot.Id] = *snapshot
	r.creates++
	return nil
}

func (r *testRepository) FindById(id string) (*Snapshot, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if snapshot, ok := r.active[id]; ok {
		return &snapshot, nil
	}
	return nil, nil
}

func (r *testRepository) Remove(snapshot *Snapshot) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.removeFailures > 0 {
		r.removeFailures--
		return errStoreUnavailable
	}

	stored, ok := r.active[snapshot.Id]
	if !ok || stored.Revision != snapshot.Revision {
		return NewConflictError("failed to remove snapshot", snapshot)
	}

	snapshot.Revision++
	delete(r.active, snapshot.Id)
	r.archived[snapshot.Id] = *snapshot
	r.removes++
	return nil
}

func (r *testRepository) Update(snapshot *Snapshot) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.updateFailures > 0 {
		r.updateFailures--
		return errStoreUnavailable
	}

	stored, ok := r.active[snapshot.Id]
	if !ok || stored.Revision != snapshot.Revision {
		return NewConflictError("failed to update snapshot", snapshot)
	}

	snapshot.Revision++
	r.active[snapshot.Id] = *snapshot
	r.updates++
	return nil
}

func (r *testRepository) Values() ([]*Snapshot, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return sortedSnapshots(r.active), nil
}

func (r *testRepository) FindArchivedById(id string) (*Snapshot, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if snapshot, ok := r.archived[id]; ok {
		return &snapshot, nil
	}
	return nil, nil
}

func (r *testRepository) ArchivedValues() ([]*Snapshot, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return sortedSnapshots(r.archived), nil
}

func sortedSnapshots(snapshots map[string]Snapshot) []*Snapshot {
	results := make([]*Snapshot, 0, len(snapshots))
	for _, snapshot := range snapshots {
		s := snapshot
		results = append(results, &s)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Id < results[j].Id
	})
	return results
}

func mustCreateRuntime(t *testing.T, customizers ...func(*engine.Options)) (*Runtime, *testStore) {
	options := engine.NewOptions()
	options.JobExecutorEnabled = false

	for _, customizer := range customizers {
		customizer(&options)
	}

	store := newTestStore()

	r, err := NewRuntime(options, store)
	if err != nil {
		t.Fatalf("failed to create runtime: %v", err)
	}

	t.Cleanup(r.Shutdown)
	return r, store
}

func mustCreateProcess(t *testing.T, r *Runtime, process *model.Process) engine.Process {
	result, err := r.CreateProcess(context.Background(), engine.CreateProcessCmd{Definition: process})
	if err != nil {
		t.Fatalf("failed to create process %s: %v", process, err)
	}
	return result
}

func mustStartProcessInstance(t *testing.T, r *Runtime, cmd engine.StartProcessInstanceCmd) engine.ProcessInstance {
	pi, err := r.StartProcessInstance(context.Background(), cmd)
	if err != nil {
		t.Fatalf("failed to start process instance: %v", err)
	}
	return pi
}

func mustGetProcessVariables(t *testing.T, r *Runtime, processInstanceId string) map[string]engine.Data {
	variables, err := r.GetProcessVariables(context.Background(), engine.GetProcessVariablesCmd{ProcessInstanceId: processInstanceId})
	if err != nil {
		t.Fatalf("failed to get process variables: %v", err)
	}
	return variables
}

func mustSetTime(t *testing.T, r *Runtime, d time.Duration) {
	if err := r.SetTime(context.Background(), engine.SetTimeCmd{Time: r.now().Add(d)}); err != nil {
		t.Fatalf("failed to set time: %v", err)
	}
}

func mustFindUserTask(t *testing.T, r *Runtime, processInstanceId string) engine.UserTask {
	userTasks, err := r.QueryUserTasks(context.Background(), engine.UserTaskCriteria{ProcessInstanceId: processInstanceId}, engine.QueryOptions{})
	if err != nil {
		t.Fatalf("failed to query user tasks: %v", err)
	}
	if len(userTasks) != 1 {
		t.Fatalf("expected one user task, but got %d", len(userTasks))
	}
	return userTasks[0]
}

func orderProcess() *model.Process {
	return model.NewBuilder("order", "1").
		Start("S").
		Task("T", "task-done").
		End("E").
		Connect("S", "T").
		Connect("T", "E").
		Build()
}
