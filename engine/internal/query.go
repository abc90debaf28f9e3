package internal

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"go.uber.org/zap"
)

// snapshotQuery selects the snapshots of a repository, which match the criteria columns.
// Archived snapshots are included on demand.
type snapshotQuery struct {
	parentId  string
	processId string
	state     string

	includeArchived bool
}

func (q snapshotQuery) matches(snapshot *Snapshot) bool {
	if q.parentId != "" && snapshot.ParentId != q.parentId {
		return false
	}
	if q.processId != "" && snapshot.ProcessId != q.processId {
		return false
	}
	if q.state != "" && snapshot.State != q.state {
		return false
	}
	return true
}

func (q snapshotQuery) execute(repository SnapshotRepository) ([]*Snapshot, error) {
	snapshots, err := repository.Values()
	if err != nil {
		return nil, err
	}

	if q.includeArchived {
		archived, err := repository.ArchivedValues()
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, archived...)
	}

	var matches []*Snapshot
	for _, snapshot := range snapshots {
		if q.matches(snapshot) {
			matches = append(matches, snapshot)
		}
	}
	return matches, nil
}

// page orders results by creation time and ID, before offset and limit are applied.
func page[T any](results []T, options engine.QueryOptions, defaultLimit int, key func(T) (time.Time, string)) []T {
	slices.SortFunc(results, func(a T, b T) int {
		createdAtA, idA := key(a)
		createdAtB, idB := key(b)
		if c := createdAtA.Compare(createdAtB); c != 0 {
			return c
		}
		return strings.Compare(idA, idB)
	})

	if options.Offset > 0 {
		if options.Offset >= len(results) {
			return results[:0]
		}
		results = results[options.Offset:]
	}

	limit := options.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (r *Runtime) QueryProcessInstances(_ context.Context, criteria engine.ProcessInstanceCriteria, options engine.QueryOptions) ([]engine.ProcessInstance, error) {
	const title = "failed to query process instances"

	q := snapshotQuery{
		parentId:        criteria.ParentId,
		processId:       criteria.ProcessId,
		includeArchived: criteria.IncludeEnded || criteria.State.IsEnded(),
	}
	if criteria.State != 0 {
		q.state = criteria.State.String()
	}

	snapshots, err := q.execute(r.store.ProcessInstances())
	if err != nil {
		return nil, persistenceError(title, err)
	}

	results := make([]engine.ProcessInstance, 0, len(snapshots))
	for _, snapshot := range snapshots {
		pi, err := r.read(snapshot)
		if err != nil {
			r.logger.Warn("failed to read process instance", zap.String("processInstanceId", snapshot.Id), zap.Error(err))
			continue
		}
		if criteria.BusinessKey != "" && pi.businessKey != criteria.BusinessKey {
			continue
		}
		results = append(results, pi.ProcessInstance())
	}

	return page(results, options, r.options.DefaultQueryLimit, func(pi engine.ProcessInstance) (time.Time, string) {
		return pi.CreatedAt, pi.Id
	}), nil
}

func (r *Runtime) QueryUserTasks(_ context.Context, criteria engine.UserTaskCriteria, options engine.QueryOptions) ([]engine.UserTask, error) {
	const title = "failed to query user tasks"

	q := snapshotQuery{
		parentId:        criteria.ProcessInstanceId,
		includeArchived: criteria.IncludeTerminated || criteria.State.IsTerminal(),
	}
	if criteria.State != 0 {
		q.state = criteria.State.String()
	}

	snapshots, err := q.execute(r.store.UserTasks())
	if err != nil {
		return nil, persistenceError(title, err)
	}

	results := make([]engine.UserTask, 0, len(snapshots))
	for _, snapshot := range snapshots {
		userTask, err := r.marshaller.readUserTask(snapshot.Data)
		if err != nil {
			r.logger.Warn("failed to read user task", zap.String("userTaskId", snapshot.Id), zap.Error(err))
			continue
		}
		if criteria.ActualOwner != "" && userTask.ActualOwner != criteria.ActualOwner {
			continue
		}
		results = append(results, *userTask)
	}

	return page(results, options, r.options.DefaultQueryLimit, func(userTask engine.UserTask) (time.Time, string) {
		return userTask.CreatedAt, userTask.Id
	}), nil
}
