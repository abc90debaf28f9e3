package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// errNoChange is returned by a transition, which did not change the process instance. The process instance is not persisted.
var errNoChange = errors.New("no change")

// NewRuntime creates the engine implementation, shared by all backends, on top of a store.
//
// Process definitions of the options are registered and active process instances are recovered: correlations are restored and timers are registered again.
func NewRuntime(options engine.Options, store Store) (*Runtime, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	marshaller, err := newMarshaller(options.SnapshotEncoding, options.Encryption)
	if err != nil {
		return nil, err
	}

	evaluator := options.Evaluator
	if evaluator == nil {
		evaluator = &hclEvaluator{}
	}

	r := Runtime{
		options: options,
		logger:  logger.With(zap.String("engineId", options.EngineId)),
		store:   store,

		correlations:  NewCorrelationService(),
		definitions:   newDefinitions(),
		evaluator:     evaluator,
		listeners:     &listenerRegistry{},
		locks:         newLockMap(),
		marshaller:    marshaller,
		userTaskLocks: newLockMap(),
	}

	jobService := options.JobService
	if jobService == nil {
		r.jobs = newJobScheduler(r.now)
		jobService = r.jobs
	}

	r.timers = newTimerBridge(jobService, r.logger)

	var errs error
	for _, process := range options.Processes {
		if _, err := r.createProcess(engine.CreateProcessCmd{Definition: process}); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return nil, errs
	}

	if err := r.recover(); err != nil {
		return nil, err
	}

	if r.jobs != nil && options.JobExecutorEnabled {
		r.jobExecutor = NewJobExecutor(&r, options.JobExecutorInterval, options.JobExecutorLimit)
		r.jobExecutor.Execute()
	}

	return &r, nil
}

var _ engine.Engine = &Runtime{}

// Runtime implements [engine.Engine].
type Runtime struct {
	options engine.Options
	logger  *zap.Logger
	store   Store

	correlations  *CorrelationService
	definitions   *definitions
	evaluator     engine.Evaluator
	jobExecutor   *JobExecutor
	jobs          *jobScheduler // nil, if an external job service is used
	listeners     *listenerRegistry
	locks         *lockMap // process instance ID -> lock
	marshaller    *marshaller
	timers        *timerBridge
	userTaskLocks *lockMap // user task ID -> lock

	offsetMutex sync.RWMutex
	offset      time.Duration

	shutdownOnce sync.Once
}

// now returns the engine's time, which can be increased for testing purposes.
func (r *Runtime) now() time.Time {
	r.offsetMutex.RLock()
	defer r.offsetMutex.RUnlock()
	return time.Now().UTC().Add(r.offset).Truncate(time.Millisecond)
}

func (r *Runtime) validate(title string, cmd any) error {
	err := validateCmd(title, cmd)
	logValidation(r.logger, err)
	return err
}

// recover restores the correlations and timers of all active process instances.
// A process instance, which cannot be read, is logged and skipped.
func (r *Runtime) recover() error {
	snapshots, err := r.store.ProcessInstances().Values()
	if err != nil {
		return persistenceError("failed to recover process instances", err)
	}

	var recovered int
	for _, snapshot := range snapshots {
		pi, err := r.read(snapshot)
		if err != nil {
			r.logger.Error("failed to recover process instance", zap.String("processInstanceId", snapshot.Id), zap.Error(err))
			continue
		}

		r.restoreCorrelation(pi)

		if pi.state == engine.InstanceActive {
			for _, ni := range pi.timers() {
				if err := r.timers.register(context.Background(), timerJobDescription(pi, ni)); err != nil {
					r.logger.Error("failed to register timer", zap.String("processInstanceId", pi.id), zap.Error(err))
				}
			}
		}

		recovered++
	}

	r.logger.Info("process instances recovered", zap.Int("count", recovered))
	return nil
}

// read restores a process instance from a snapshot and attaches it to its process definition.
func (r *Runtime) read(snapshot *Snapshot) (*processInstance, error) {
	data, err := r.marshaller.readProcessInstanceData(snapshot.Data)
	if err != nil {
		return nil, err
	}

	process, err := r.definitions.get(data.ProcessId, data.ProcessVersion)
	if err != nil {
		return nil, err
	}

	pi, err := r.marshaller.readProcessInstance(snapshot.Data, process)
	if err != nil {
		return nil, err
	}

	pi.revision = snapshot.Revision
	return pi, nil
}

// load reads an active or, if not found, an archived process instance.
// The boolean result is true, if the process instance is archived.
func (r *Runtime) load(title string, id string) (*processInstance, *Snapshot, bool, error) {
	repository := r.store.ProcessInstances()

	archived := false

	snapshot, err := repository.FindById(id)
	if err != nil {
		return nil, nil, false, persistenceError(title, err)
	}
	if snapshot == nil {
		snapshot, err = repository.FindArchivedById(id)
		if err != nil {
			return nil, nil, false, persistenceError(title, err)
		}
		archived = true
	}
	if snapshot == nil {
		return nil, nil, false, engine.Error{
			Type:   engine.ErrorNotFound,
			Title:  title,
			Detail: fmt.Sprintf("process instance %s could not be found", id),
		}
	}

	pi, err := r.read(snapshot)
	if err != nil {
		if _, ok := err.(engine.Error); ok {
			return nil, nil, false, err
		}
		return nil, nil, false, engine.Error{Type: engine.ErrorBug, Title: title, Detail: err.Error()}
	}

	if !archived {
		r.restoreCorrelation(pi)
	}

	return pi, snapshot, archived, nil
}

func (r *Runtime) restoreCorrelation(pi *processInstance) {
	if len(pi.correlation) == 0 {
		return
	}
	if _, err := r.correlations.Create(pi.correlation, pi.id); err != nil {
		r.logger.Warn("failed to restore correlation", zap.String("processInstanceId", pi.id), zap.Error(err))
	}
}

func (r *Runtime) newExecution(ctx context.Context, pi *processInstance) *execution {
	return &execution{ctx: ctx, r: r, pi: pi, now: r.now()}
}

// transition locks, loads, changes and persists a process instance.
// Collected side effects are run, after the process instance has been unlocked.
//
// If change returns an error, the in-memory changes are discarded.
// If change returns errNoChange or the process instance is archived, nothing is persisted.
func (r *Runtime) transition(ctx context.Context, id string, change func(*execution) error) (*processInstance, error) {
	const title = "failed to load process instance"

	unlock := r.locks.lock(id)

	pi, snapshot, archived, err := r.load(title, id)
	if err != nil {
		unlock()
		return nil, err
	}

	ec := r.newExecution(ctx, pi)

	err = change(ec)
	if err == errNoChange || (err == nil && archived) {
		unlock()
		return pi, nil
	}
	if err != nil {
		unlock()
		return nil, err
	}

	persisted, err := r.persist(ec, snapshot)
	unlock()

	if !persisted {
		return nil, err
	}

	r.runEffects(ec)
	return pi, err
}

// persist creates, updates or, if ended, removes the snapshot of a process instance.
// User tasks, created by the transition, are stored before the snapshot, since a snapshot must not refer to a missing user task.
// If the snapshot cannot be written, these user tasks are aborted again. Aborted user tasks are removed afterwards.
//
// The boolean result is false, if the process instance has not been persisted.
func (r *Runtime) persist(ec *execution, snapshot *Snapshot) (bool, error) {
	const title = "failed to persist process instance"

	pi := ec.pi
	pi.updatedAt = ec.now

	data, err := r.marshaller.writeProcessInstance(pi)
	if err != nil {
		return false, engine.Error{Type: engine.ErrorBug, Title: title, Detail: err.Error()}
	}

	createdUserTaskIds := make([]string, 0, len(ec.createdUserTasks))
	for _, userTask := range ec.createdUserTasks {
		if err := r.createUserTask(pi, userTask); err != nil {
			r.rollbackUserTasks(pi, createdUserTaskIds, ec.now)
			return false, persistenceError("failed to persist user tasks", err)
		}
		createdUserTaskIds = append(createdUserTaskIds, userTask.Id)
	}

	s := Snapshot{
		Id:        pi.id,
		ParentId:  pi.parentId,
		ProcessId: pi.process.Id,
		State:     pi.state.String(),

		CreatedAt: pi.createdAt,
		UpdatedAt: pi.updatedAt,

		Data: data,
	}

	repository := r.store.ProcessInstances()
	if snapshot == nil {
		if err = repository.Create(&s); err == nil && pi.state.IsEnded() {
			// ended within the start transition
			err = repository.Remove(&s)
		}
	} else if pi.state.IsEnded() {
		s.Revision = snapshot.Revision
		err = repository.Remove(&s)
	} else {
		s.Revision = snapshot.Revision
		err = repository.Update(&s)
	}
	if err != nil {
		r.rollbackUserTasks(pi, createdUserTaskIds, ec.now)
		return false, persistenceError(title, err)
	}

	pi.revision = s.Revision

	if pi.state.IsEnded() {
		r.correlations.DeleteByCorrelatedId(pi.id)
	}

	var errs error
	for _, userTaskId := range ec.abortedUserTasks {
		errs = multierr.Append(errs, r.abortUserTask(userTaskId, ec.now))
	}
	if errs != nil {
		r.logger.Error("failed to persist user tasks", zap.String("processInstanceId", pi.id), zap.Error(errs))
		return true, persistenceError("failed to persist user tasks", errs)
	}

	return true, nil
}

// rollbackUserTasks aborts user tasks of a transition, which could not be persisted.
func (r *Runtime) rollbackUserTasks(pi *processInstance, ids []string, now time.Time) {
	for _, id := range ids {
		if err := r.abortUserTask(id, now); err != nil {
			r.logger.Error("failed to roll back user task",
				zap.String("processInstanceId", pi.id),
				zap.String("userTaskId", id),
				zap.Error(err),
			)
		}
	}
}

func (r *Runtime) createUserTask(pi *processInstance, userTask *engine.UserTask) error {
	data, err := r.marshaller.writeUserTask(userTask)
	if err != nil {
		return err
	}

	return r.store.UserTasks().Create(&Snapshot{
		Id:        userTask.Id,
		ParentId:  pi.id,
		ProcessId: pi.process.Id,
		State:     userTask.State.String(),

		CreatedAt: userTask.CreatedAt,
		UpdatedAt: userTask.UpdatedAt,

		Data: data,
	})
}

// abortUserTask aborts and archives a live user task. An unknown or already terminated user task is ignored.
func (r *Runtime) abortUserTask(id string, now time.Time) error {
	repository := r.store.UserTasks()

	snapshot, err := repository.FindById(id)
	if err != nil || snapshot == nil {
		return err
	}

	userTask, err := r.marshaller.readUserTask(snapshot.Data)
	if err != nil {
		return err
	}

	userTask.PreviousState = 0
	userTask.State = engine.UserTaskAborted
	userTask.UpdatedAt = now

	data, err := r.marshaller.writeUserTask(userTask)
	if err != nil {
		return err
	}

	snapshot.State = userTask.State.String()
	snapshot.UpdatedAt = now
	snapshot.Data = data

	return repository.Remove(snapshot)
}

// runEffects notifies listeners about the events of a persisted transition and runs its side effects.
// Timers of an active process instance are registered, if not already done.
func (r *Runtime) runEffects(ec *execution) {
	for _, event := range ec.events {
		r.listeners.notify(event)
	}

	for _, effect := range ec.effects {
		if err := effect(r); err != nil {
			r.logger.Error("failed to run effect", zap.String("processInstanceId", ec.pi.id), zap.Error(err))
		}
	}

	if ec.pi.state != engine.InstanceActive {
		return
	}

	for _, ni := range ec.pi.timers() {
		if r.timers.isRegistered(ni.timer.Id) {
			continue
		}
		if err := r.timers.register(ec.ctx, timerJobDescription(ec.pi, ni)); err != nil {
			r.logger.Error("failed to register timer", zap.String("processInstanceId", ec.pi.id), zap.Error(err))
		}
	}
}

func (r *Runtime) AddListener(listener engine.Listener) int {
	return r.listeners.add(listener)
}

func (r *Runtime) CreateProcess(_ context.Context, cmd engine.CreateProcessCmd) (engine.Process, error) {
	return r.createProcess(cmd)
}

func (r *Runtime) createProcess(cmd engine.CreateProcessCmd) (engine.Process, error) {
	const title = "failed to create process"
	if err := r.validate(title, cmd); err != nil {
		return engine.Process{}, err
	}

	if cmd.Definition == nil {
		definition, err := parseProcess(cmd.Yaml)
		if err != nil {
			return engine.Process{}, err
		}
		cmd.Definition = definition
	}

	if r.options.Encryption.IsZero() {
		if err := requireNoSensitiveVariables(cmd.Definition); err != nil {
			return engine.Process{}, err
		}
	}

	process, err := r.definitions.register(cmd.Definition, r.now())
	if err != nil {
		return engine.Process{}, err
	}

	r.logger.Info("process created", zap.Stringer("process", process))
	return process, nil
}

func requireNoSensitiveVariables(process *model.Process) error {
	for _, variable := range process.Variables {
		if variable.HasTag(model.TagSensitive) {
			return engine.Error{
				Type:   engine.ErrorProcessModel,
				Title:  "failed to create process",
				Detail: fmt.Sprintf("process %s declares sensitive variable %s, but no encryption is configured", process, variable.Name),
			}
		}
	}
	return nil
}

func (r *Runtime) FindCorrelation(_ context.Context, cmd engine.FindCorrelationCmd) (engine.CorrelationInstance, bool, error) {
	const title = "failed to find correlation"
	if err := r.validate(title, cmd); err != nil {
		return engine.CorrelationInstance{}, false, err
	}

	if cmd.CorrelatedId != "" {
		instance, ok := r.correlations.FindByCorrelatedId(cmd.CorrelatedId)
		return instance, ok, nil
	}

	instance, ok, err := r.correlations.Find(cmd.Correlation)
	if err != nil {
		return engine.CorrelationInstance{}, false, engine.Error{Type: engine.ErrorBug, Title: title, Detail: err.Error()}
	}
	return instance, ok, nil
}

func (r *Runtime) RemoveListener(id int) bool {
	return r.listeners.remove(id)
}

func (r *Runtime) SetTime(_ context.Context, cmd engine.SetTimeCmd) error {
	const title = "failed to set time"
	if err := r.validate(title, cmd); err != nil {
		return err
	}

	r.offsetMutex.Lock()
	defer r.offsetMutex.Unlock()

	now := time.Now().UTC().Add(r.offset).Truncate(time.Millisecond)
	t := cmd.Time.UTC().Truncate(time.Millisecond)
	if t.Before(now) {
		return engine.Error{
			Type:   engine.ErrorConflict,
			Title:  title,
			Detail: fmt.Sprintf("time %s is before engine time %s", t, now),
		}
	}

	r.offset += t.Sub(now)
	return nil
}

func (r *Runtime) Shutdown() {
	r.shutdownOnce.Do(func() {
		if r.jobExecutor != nil {
			r.jobExecutor.Stop()
		}

		if err := r.store.Close(); err != nil {
			r.logger.Error("failed to close store", zap.Error(err))
		}

		_ = r.logger.Sync()
	})
}
