package internal

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/gclaussn/go-procengine/engine"
	"go.uber.org/zap"
)

// names of node instance variables, a user task is mirrored to
const (
	UserTaskVariableActorId     = "ActorId"
	UserTaskVariableDescription = "Description"
	UserTaskVariablePriority    = "Priority"
	UserTaskVariableTaskName    = "TaskName"
)

var userTaskVariables = []string{
	UserTaskVariableActorId,
	UserTaskVariableDescription,
	UserTaskVariablePriority,
	UserTaskVariableTaskName,
}

// mirrorUserTask writes the fields and custom data of a user task as local variables of its node instance.
func (ec *execution) mirrorUserTask(ni *nodeInstance, userTask *engine.UserTask, removedData ...string) error {
	mirrored := map[string]*engine.Data{
		UserTaskVariablePriority: engine.JSON(strconv.Itoa(userTask.Priority)),
		UserTaskVariableTaskName: engine.Text(userTask.Name),
	}
	if userTask.ActualOwner != "" {
		mirrored[UserTaskVariableActorId] = engine.Text(userTask.ActualOwner)
	} else {
		mirrored[UserTaskVariableActorId] = nil
	}
	if userTask.Description != "" {
		mirrored[UserTaskVariableDescription] = engine.Text(userTask.Description)
	} else {
		mirrored[UserTaskVariableDescription] = nil
	}

	for name, data := range userTask.Data {
		mirrored[name] = data
	}
	for _, name := range removedData {
		if _, ok := userTask.Data[name]; !ok {
			mirrored[name] = nil
		}
	}

	names := make([]string, 0, len(mirrored))
	for name := range mirrored {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if err := ec.setLocalVariable(ni, name, mirrored[name]); err != nil {
			return err
		}
	}
	return nil
}

// userTaskHandle changes a locked user task.
//
// A non-batched handle persists each change immediately. A batched handle collects changes, until it is flushed.
// Before a change is persisted, it is mirrored to the owning process instance.
type userTaskHandle struct {
	ctx      context.Context
	r        *Runtime
	snapshot *Snapshot
	userTask *engine.UserTask

	batched     bool
	changed     bool
	removedData []string
	cause       string // failure cause
}

func (h *userTaskHandle) set(change func(*engine.UserTask)) error {
	change(h.userTask)
	h.userTask.UpdatedAt = h.r.now()
	h.changed = true

	if h.batched {
		return nil
	}
	return h.flush()
}

func (h *userTaskHandle) setActualOwner(userId string) error {
	return h.set(func(userTask *engine.UserTask) {
		userTask.ActualOwner = userId
	})
}

func (h *userTaskHandle) setData(name string, data *engine.Data) error {
	return h.set(func(userTask *engine.UserTask) {
		if data == nil {
			delete(userTask.Data, name)
			h.removedData = append(h.removedData, name)
			return
		}
		if userTask.Data == nil {
			userTask.Data = make(map[string]*engine.Data)
		}
		userTask.Data[name] = &engine.Data{Encoding: data.Encoding, Value: data.Value}
	})
}

func (h *userTaskHandle) setDescription(description string) error {
	return h.set(func(userTask *engine.UserTask) {
		userTask.Description = description
	})
}

func (h *userTaskHandle) setName(name string) error {
	return h.set(func(userTask *engine.UserTask) {
		userTask.Name = name
	})
}

func (h *userTaskHandle) setOutputs(outputs map[string]*engine.Data) error {
	return h.set(func(userTask *engine.UserTask) {
		userTask.Outputs = outputs
	})
}

func (h *userTaskHandle) setPriority(priority int) error {
	return h.set(func(userTask *engine.UserTask) {
		userTask.Priority = priority
	})
}

// setState changes the state of a user task. Suspending a user task retains its previous state.
func (h *userTaskHandle) setState(state engine.UserTaskState) error {
	return h.set(func(userTask *engine.UserTask) {
		if state == engine.UserTaskSuspended {
			userTask.PreviousState = userTask.State
		} else {
			userTask.PreviousState = 0
		}
		userTask.State = state
	})
}

// flush mirrors all collected changes to the owning process instance and persists the user task once.
// A terminated user task is removed and archived. A detached user task of an aborted process instance is archived as aborted.
func (h *userTaskHandle) flush() error {
	if !h.changed {
		return nil
	}

	notification, err := h.r.notifyUserTask(h.ctx, h.userTask, h.removedData, h.cause)
	if err != nil {
		return err
	}
	if notification.aborted {
		h.userTask.PreviousState = 0
		h.userTask.State = engine.UserTaskAborted
	}

	h.changed = false
	h.removedData = nil

	data, err := h.r.marshaller.writeUserTask(h.userTask)
	if err != nil {
		return engine.Error{Type: engine.ErrorBug, Title: "failed to persist user task", Detail: err.Error()}
	}

	snapshot := &Snapshot{
		Id:        h.userTask.Id,
		ParentId:  h.userTask.ProcessInstanceId,
		ProcessId: h.snapshot.ProcessId,
		State:     h.userTask.State.String(),
		Revision:  h.snapshot.Revision,

		CreatedAt: h.userTask.CreatedAt,
		UpdatedAt: h.userTask.UpdatedAt,

		Data: data,
	}

	repository := h.r.store.UserTasks()
	if h.userTask.State.IsTerminal() {
		err = repository.Remove(snapshot)
	} else {
		err = repository.Update(snapshot)
	}
	if err != nil {
		return persistenceError("failed to persist user task", err)
	}

	h.snapshot = snapshot

	if notification.event != nil {
		h.r.listeners.notify(*notification.event)
	}
	return nil
}

// userTaskNotification is the result of mirroring a user task change to the owning process instance.
type userTaskNotification struct {
	aborted bool          // true, if the owning process instance has been aborted
	event   *engine.Event // delivered, after the user task has been persisted
}

// notifyUserTask mirrors a user task change to the owning process instance.
// A terminated user task completes or fails its node instance.
//
// A user task is detached, if its node instance has moved on without it. This is the case, when the user task could not be persisted after a previous notification or when it could not be aborted.
// Terminating a detached user task changes the user task only.
func (r *Runtime) notifyUserTask(ctx context.Context, userTask *engine.UserTask, removedData []string, cause string) (userTaskNotification, error) {
	var notification userTaskNotification

	_, err := r.transition(ctx, userTask.ProcessInstanceId, func(ec *execution) error {
		pi := ec.pi

		ni := pi.nodeInstanceById(userTask.NodeInstanceId)
		if pi.state.IsEnded() || ni == nil || ni.userTaskId != userTask.Id {
			if userTask.State.IsTerminal() {
				notification.aborted = pi.state == engine.InstanceAborted
				return errNoChange
			}
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "failed to update user task",
				Detail: fmt.Sprintf("node instance %s of user task %s is not active", userTask.NodeInstanceId, userTask.Id),
			}
		}

		terminal := userTask.State.IsTerminal()
		if pi.state != engine.InstanceActive && (terminal || pi.state != engine.InstanceSuspended) {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "failed to update user task",
				Detail: fmt.Sprintf("process instance %s is %s", pi.id, pi.state),
			}
		}

		if err := ec.mirrorUserTask(ni, userTask, removedData...); err != nil {
			return err
		}

		event := ec.event(engine.Event{
			Type:           engine.EventUserTaskChanged,
			NodeId:         ni.node.Id,
			NodeInstanceId: ni.id,
			UserTaskId:     userTask.Id,
		})
		notification.event = &event

		switch userTask.State {
		case engine.UserTaskCompleted:
			ni.userTaskId = ""
			if err := ec.setVariables(ni, userTask.Outputs); err != nil {
				return err
			}
			if err := ec.leave(ni, nil); err != nil {
				ec.fail(ni, err)
				return nil
			}
			ec.run()
		case engine.UserTaskFailed:
			ni.userTaskId = ""
			ec.fail(ni, fmt.Errorf("user task %s failed: %s", userTask.Id, cause))
		case engine.UserTaskSkipped:
			ni.userTaskId = ""
			if err := ec.leave(ni, nil); err != nil {
				ec.fail(ni, err)
				return nil
			}
			ec.run()
		default:
			if !ec.changed {
				return errNoChange
			}
		}
		return nil
	})
	if err != nil {
		return userTaskNotification{}, err
	}
	return notification, nil
}

// withUserTask locks and loads a live user task, before it is changed via a handle.
func (r *Runtime) withUserTask(ctx context.Context, title string, id string, batched bool, change func(*userTaskHandle) error) (engine.UserTask, error) {
	unlock := r.userTaskLocks.lock(id)
	defer unlock()

	repository := r.store.UserTasks()

	snapshot, err := repository.FindById(id)
	if err != nil {
		return engine.UserTask{}, persistenceError(title, err)
	}
	if snapshot == nil {
		archived, err := repository.FindArchivedById(id)
		if err != nil {
			return engine.UserTask{}, persistenceError(title, err)
		}
		if archived != nil {
			return engine.UserTask{}, engine.Error{
				Type:   engine.ErrorConflict,
				Title:  title,
				Detail: fmt.Sprintf("user task %s is terminated: %s", id, archived.State),
			}
		}
		return engine.UserTask{}, engine.Error{
			Type:   engine.ErrorNotFound,
			Title:  title,
			Detail: fmt.Sprintf("user task %s could not be found", id),
		}
	}

	userTask, err := r.marshaller.readUserTask(snapshot.Data)
	if err != nil {
		return engine.UserTask{}, engine.Error{Type: engine.ErrorBug, Title: title, Detail: err.Error()}
	}

	h := &userTaskHandle{
		ctx:      ctx,
		r:        r,
		snapshot: snapshot,
		userTask: userTask,
		batched:  batched,
	}

	if err := change(h); err != nil {
		return engine.UserTask{}, err
	}
	if err := h.flush(); err != nil {
		return engine.UserTask{}, err
	}

	r.logger.Debug("user task changed",
		zap.String("userTaskId", userTask.Id),
		zap.String("processInstanceId", userTask.ProcessInstanceId),
		zap.Stringer("state", userTask.State),
	)

	return *h.userTask, nil
}

func (r *Runtime) ClaimUserTask(ctx context.Context, cmd engine.ClaimUserTaskCmd) (engine.UserTask, error) {
	const title = "failed to claim user task"
	if err := r.validate(title, cmd); err != nil {
		return engine.UserTask{}, err
	}

	return r.withUserTask(ctx, title, cmd.Id, false, func(h *userTaskHandle) error {
		if err := requireUserTaskState(title, h.userTask, engine.UserTaskNew); err != nil {
			return err
		}
		if err := requirePotentialOwner(title, h.userTask, cmd.UserId); err != nil {
			return err
		}
		if err := h.setActualOwner(cmd.UserId); err != nil {
			return err
		}
		return h.setState(engine.UserTaskReserved)
	})
}

func (r *Runtime) CompleteUserTask(ctx context.Context, cmd engine.CompleteUserTaskCmd) (engine.UserTask, error) {
	const title = "failed to complete user task"
	if err := r.validate(title, cmd); err != nil {
		return engine.UserTask{}, err
	}

	return r.withUserTask(ctx, title, cmd.Id, true, func(h *userTaskHandle) error {
		if err := requireUserTaskState(title, h.userTask, engine.UserTaskInProgress); err != nil {
			return err
		}
		if err := requireActualOwner(title, h.userTask, cmd.UserId); err != nil {
			return err
		}
		if err := h.setOutputs(cmd.Outputs); err != nil {
			return err
		}
		return h.setState(engine.UserTaskCompleted)
	})
}

func (r *Runtime) DelegateUserTask(ctx context.Context, cmd engine.DelegateUserTaskCmd) (engine.UserTask, error) {
	const title = "failed to delegate user task"
	if err := r.validate(title, cmd); err != nil {
		return engine.UserTask{}, err
	}

	return r.withUserTask(ctx, title, cmd.Id, false, func(h *userTaskHandle) error {
		if err := requireUserTaskState(title, h.userTask, engine.UserTaskReserved, engine.UserTaskInProgress); err != nil {
			return err
		}
		if err := requireActualOwner(title, h.userTask, cmd.UserId); err != nil {
			return err
		}
		if err := requirePotentialOwner(title, h.userTask, cmd.TargetUserId); err != nil {
			return err
		}
		return h.setActualOwner(cmd.TargetUserId)
	})
}

func (r *Runtime) FailUserTask(ctx context.Context, cmd engine.FailUserTaskCmd) (engine.UserTask, error) {
	const title = "failed to fail user task"
	if err := r.validate(title, cmd); err != nil {
		return engine.UserTask{}, err
	}

	return r.withUserTask(ctx, title, cmd.Id, true, func(h *userTaskHandle) error {
		if err := requireUserTaskState(title, h.userTask, engine.UserTaskInProgress); err != nil {
			return err
		}
		if err := requireActualOwner(title, h.userTask, cmd.UserId); err != nil {
			return err
		}
		h.cause = cmd.Cause
		return h.setState(engine.UserTaskFailed)
	})
}

func (r *Runtime) GetUserTask(_ context.Context, cmd engine.GetUserTaskCmd) (engine.UserTask, error) {
	const title = "failed to get user task"
	if err := r.validate(title, cmd); err != nil {
		return engine.UserTask{}, err
	}

	repository := r.store.UserTasks()

	snapshot, err := repository.FindById(cmd.Id)
	if err != nil {
		return engine.UserTask{}, persistenceError(title, err)
	}
	if snapshot == nil {
		if snapshot, err = repository.FindArchivedById(cmd.Id); err != nil {
			return engine.UserTask{}, persistenceError(title, err)
		}
	}
	if snapshot == nil {
		return engine.UserTask{}, engine.Error{
			Type:   engine.ErrorNotFound,
			Title:  title,
			Detail: fmt.Sprintf("user task %s could not be found", cmd.Id),
		}
	}

	userTask, err := r.marshaller.readUserTask(snapshot.Data)
	if err != nil {
		return engine.UserTask{}, engine.Error{Type: engine.ErrorBug, Title: title, Detail: err.Error()}
	}
	return *userTask, nil
}

func (r *Runtime) ReleaseUserTask(ctx context.Context, cmd engine.ReleaseUserTaskCmd) (engine.UserTask, error) {
	const title = "failed to release user task"
	if err := r.validate(title, cmd); err != nil {
		return engine.UserTask{}, err
	}

	return r.withUserTask(ctx, title, cmd.Id, false, func(h *userTaskHandle) error {
		if err := requireUserTaskState(title, h.userTask, engine.UserTaskReserved); err != nil {
			return err
		}
		if err := requireActualOwner(title, h.userTask, cmd.UserId); err != nil {
			return err
		}
		if err := h.setActualOwner(""); err != nil {
			return err
		}
		return h.setState(engine.UserTaskNew)
	})
}

func (r *Runtime) ResumeUserTask(ctx context.Context, cmd engine.ResumeUserTaskCmd) (engine.UserTask, error) {
	const title = "failed to resume user task"
	if err := r.validate(title, cmd); err != nil {
		return engine.UserTask{}, err
	}

	return r.withUserTask(ctx, title, cmd.Id, false, func(h *userTaskHandle) error {
		if err := requireUserTaskState(title, h.userTask, engine.UserTaskSuspended); err != nil {
			return err
		}
		if err := requireActualOwner(title, h.userTask, cmd.UserId); err != nil {
			return err
		}
		return h.setState(h.userTask.PreviousState)
	})
}

func (r *Runtime) SkipUserTask(ctx context.Context, cmd engine.SkipUserTaskCmd) (engine.UserTask, error) {
	const title = "failed to skip user task"
	if err := r.validate(title, cmd); err != nil {
		return engine.UserTask{}, err
	}

	return r.withUserTask(ctx, title, cmd.Id, true, func(h *userTaskHandle) error {
		if !h.userTask.Skippable {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  title,
				Detail: fmt.Sprintf("user task %s is not skippable", h.userTask.Id),
			}
		}
		if err := requireUserTaskState(title, h.userTask, engine.UserTaskNew, engine.UserTaskReserved, engine.UserTaskInProgress); err != nil {
			return err
		}
		if err := requireOwner(title, h.userTask, cmd.UserId); err != nil {
			return err
		}
		return h.setState(engine.UserTaskSkipped)
	})
}

func (r *Runtime) StartUserTask(ctx context.Context, cmd engine.StartUserTaskCmd) (engine.UserTask, error) {
	const title = "failed to start user task"
	if err := r.validate(title, cmd); err != nil {
		return engine.UserTask{}, err
	}

	return r.withUserTask(ctx, title, cmd.Id, false, func(h *userTaskHandle) error {
		if err := requireUserTaskState(title, h.userTask, engine.UserTaskNew, engine.UserTaskReserved); err != nil {
			return err
		}

		if h.userTask.State == engine.UserTaskNew {
			if err := requirePotentialOwner(title, h.userTask, cmd.UserId); err != nil {
				return err
			}
			if err := h.setActualOwner(cmd.UserId); err != nil {
				return err
			}
		} else if err := requireActualOwner(title, h.userTask, cmd.UserId); err != nil {
			return err
		}

		return h.setState(engine.UserTaskInProgress)
	})
}

func (r *Runtime) SuspendUserTask(ctx context.Context, cmd engine.SuspendUserTaskCmd) (engine.UserTask, error) {
	const title = "failed to suspend user task"
	if err := r.validate(title, cmd); err != nil {
		return engine.UserTask{}, err
	}

	return r.withUserTask(ctx, title, cmd.Id, false, func(h *userTaskHandle) error {
		if err := requireUserTaskState(title, h.userTask, engine.UserTaskReserved, engine.UserTaskInProgress); err != nil {
			return err
		}
		if err := requireActualOwner(title, h.userTask, cmd.UserId); err != nil {
			return err
		}
		return h.setState(engine.UserTaskSuspended)
	})
}

func (r *Runtime) UpdateUserTask(ctx context.Context, cmd engine.UpdateUserTaskCmd) (engine.UserTask, error) {
	const title = "failed to update user task"
	if err := r.validate(title, cmd); err != nil {
		return engine.UserTask{}, err
	}

	for name := range cmd.Data {
		if slices.Contains(userTaskVariables, name) {
			return engine.UserTask{}, engine.Error{
				Type:   engine.ErrorValidation,
				Title:  title,
				Detail: fmt.Sprintf("data %s conflicts with a mirrored user task field", name),
				Causes: []engine.ErrorCause{{Pointer: "/data/" + name, Type: "reserved", Detail: "is reserved"}},
			}
		}
	}

	return r.withUserTask(ctx, title, cmd.Id, true, func(h *userTaskHandle) error {
		if err := requireOwner(title, h.userTask, cmd.UserId); err != nil {
			return err
		}

		if cmd.ActualOwner != nil {
			if *cmd.ActualOwner != "" {
				if err := requirePotentialOwner(title, h.userTask, *cmd.ActualOwner); err != nil {
					return err
				}
			}
			if err := h.setActualOwner(*cmd.ActualOwner); err != nil {
				return err
			}
		}

		names := make([]string, 0, len(cmd.Data))
		for name := range cmd.Data {
			names = append(names, name)
		}
		slices.Sort(names)

		for _, name := range names {
			if err := h.setData(name, cmd.Data[name]); err != nil {
				return err
			}
		}

		if cmd.Description != nil {
			if err := h.setDescription(*cmd.Description); err != nil {
				return err
			}
		}
		if cmd.Name != nil {
			if err := h.setName(*cmd.Name); err != nil {
				return err
			}
		}
		if cmd.Priority != nil {
			if err := h.setPriority(*cmd.Priority); err != nil {
				return err
			}
		}
		return nil
	})
}

func requireActualOwner(title string, userTask *engine.UserTask, userId string) error {
	if userTask.ActualOwner == userId {
		return nil
	}
	return engine.Error{
		Type:   engine.ErrorConflict,
		Title:  title,
		Detail: fmt.Sprintf("user %s is not the actual owner of user task %s", userId, userTask.Id),
	}
}

// requireOwner checks the actual owner of a user task or, if the user task has none, its potential owners.
func requireOwner(title string, userTask *engine.UserTask, userId string) error {
	if userTask.ActualOwner != "" {
		return requireActualOwner(title, userTask, userId)
	}
	return requirePotentialOwner(title, userTask, userId)
}

// requirePotentialOwner checks if a user can own a user task. A user task without potential owners can be owned by any user.
func requirePotentialOwner(title string, userTask *engine.UserTask, userId string) error {
	if len(userTask.PotentialOwners) == 0 || slices.Contains(userTask.PotentialOwners, userId) {
		return nil
	}
	return engine.Error{
		Type:   engine.ErrorConflict,
		Title:  title,
		Detail: fmt.Sprintf("user %s is not a potential owner of user task %s", userId, userTask.Id),
	}
}

func requireUserTaskState(title string, userTask *engine.UserTask, states ...engine.UserTaskState) error {
	if slices.Contains(states, userTask.State) {
		return nil
	}
	return engine.Error{
		Type:   engine.ErrorConflict,
		Title:  title,
		Detail: fmt.Sprintf("user task %s is %s", userTask.Id, userTask.State),
	}
}
