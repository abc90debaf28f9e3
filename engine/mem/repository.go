package mem

import (
	"slices"
	"strings"
	"sync"

	"github.com/gclaussn/go-procengine/engine/internal"
)

func newSnapshotRepository(kind string) *snapshotRepository {
	return &snapshotRepository{
		kind:     kind,
		active:   make(map[string]internal.Snapshot),
		archived: make(map[string]internal.Snapshot),
	}
}

// snapshotRepository keeps copies of snapshots, so that callers cannot modify stored data.
type snapshotRepository struct {
	kind string

	mutex    sync.RWMutex
	active   map[string]internal.Snapshot
	archived map[string]internal.Snapshot
}

func (r *snapshotRepository) Create(snapshot *internal.Snapshot) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.active[snapshot.Id]; ok {
		return internal.NewConflictError("failed to create "+r.kind, snapshot)
	}

	snapshot.Revision = 1
	r.active[snapshot.Id] = copySnapshot(snapshot)
	return nil
}

func (r *snapshotRepository) FindById(id string) (*internal.Snapshot, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if snapshot, ok := r.active[id]; ok {
		s := copySnapshot(&snapshot)
		return &s, nil
	}
	return nil, nil
}

func (r *snapshotRepository) Remove(snapshot *internal.Snapshot) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored, ok := r.active[snapshot.Id]
	if !ok || stored.Revision != snapshot.Revision {
		return internal.NewConflictError("failed to remove "+r.kind, snapshot)
	}

	snapshot.Revision++
	delete(r.active, snapshot.Id)
	r.archived[snapshot.Id] = copySnapshot(snapshot)
	return nil
}

func (r *snapshotRepository) Update(snapshot *internal.Snapshot) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored, ok := r.active[snapshot.Id]
	if !ok || stored.Revision != snapshot.Revision {
		return internal.NewConflictError("failed to update "+r.kind, snapshot)
	}

	snapshot.Revision++
	r.active[snapshot.Id] = copySnapshot(snapshot)
	return nil
}

func (r *snapshotRepository) Values() ([]*internal.Snapshot, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return values(r.active), nil
}

func (r *snapshotRepository) FindArchivedById(id string) (*internal.Snapshot, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if snapshot, ok := r.archived[id]; ok {
		s := copySnapshot(&snapshot)
		return &s, nil
	}
	return nil, nil
}

func (r *snapshotRepository) ArchivedValues() ([]*internal.Snapshot, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return values(r.archived), nil
}

func copySnapshot(snapshot *internal.Snapshot) internal.Snapshot {
	s := *snapshot
	s.Data = slices.Clone(snapshot.Data)
	return s
}

// values returns copies of all snapshots, ordered by ID.
func values(snapshots map[string]internal.Snapshot) []*internal.Snapshot {
	results := make([]*internal.Snapshot, 0, len(snapshots))
	for _, snapshot := range snapshots {
		s := copySnapshot(&snapshot)
		results = append(results, &s)
	}
	slices.SortFunc(results, func(a *internal.Snapshot, b *internal.Snapshot) int {
		return strings.Compare(a.Id, b.Id)
	})
	return results
}
