package internal

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newJobScheduler(now func() time.Time) *jobScheduler {
	return &jobScheduler{now: now, jobs: make(map[string]*scheduledJob)}
}

// jobScheduler is the built-in, in-memory job service.
//
// Jobs are not durable. After a restart, jobs are scheduled again, when the active process instances are recovered.
type jobScheduler struct {
	now func() time.Time

	mutex sync.Mutex
	jobs  map[string]*scheduledJob
}

type scheduledJob struct {
	job     engine.Job
	timer   model.Timer
	running bool // returned by due, but neither acknowledged nor released
}

func (s *jobScheduler) Cancel(_ context.Context, jobId string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.jobs[jobId]; !ok {
		return false, nil
	}
	delete(s.jobs, jobId)
	return true, nil
}

func (s *jobScheduler) Schedule(_ context.Context, description engine.JobDescription) (string, error) {
	var (
		dueAt time.Time
		err   error
	)
	if description.FireCount == 0 {
		dueAt, err = evaluateTimer(description.Timer, description.StartAt)
	} else {
		dueAt, err = nextTimerTick(description.Timer, description.StartAt)
	}
	if err != nil {
		return "", err
	}

	job := engine.Job{
		Id: uuid.NewString(),

		ProcessInstanceId: description.ProcessInstanceId,
		NodeInstanceId:    description.NodeInstanceId,
		TimerId:           description.TimerId,

		CreatedAt:   s.now(),
		DueAt:       dueAt,
		FireCount:   description.FireCount,
		RepeatLimit: normalizeRepeatLimit(description.Timer.RepeatLimit),
	}

	s.mutex.Lock()
	s.jobs[job.Id] = &scheduledJob{job: job, timer: description.Timer}
	s.mutex.Unlock()

	return job.Id, nil
}

// due returns due jobs, ordered by due date, and marks them as running.
// A running job is not returned again, until it is acknowledged or released.
func (s *jobScheduler) due(limit int) []engine.Job {
	now := s.now()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	var dueJobs []*scheduledJob
	for _, scheduled := range s.jobs {
		if !scheduled.running && !scheduled.job.DueAt.After(now) {
			dueJobs = append(dueJobs, scheduled)
		}
	}

	slices.SortFunc(dueJobs, func(a *scheduledJob, b *scheduledJob) int {
		if c := a.job.DueAt.Compare(b.job.DueAt); c != 0 {
			return c
		}
		return a.job.CreatedAt.Compare(b.job.CreatedAt)
	})

	if len(dueJobs) > limit {
		dueJobs = dueJobs[:limit]
	}

	jobs := make([]engine.Job, len(dueJobs))
	for i, scheduled := range dueJobs {
		scheduled.running = true
		jobs[i] = scheduled.job
	}

	return jobs
}

// acknowledge advances a running job, after its fire has been handled.
// A job, which fired for the last time, is removed. The result is true, if the job has been removed by the acknowledgement.
// Acknowledging a canceled job is a no-op.
func (s *jobScheduler) acknowledge(jobId string, logger *zap.Logger) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	scheduled, ok := s.jobs[jobId]
	if !ok {
		return false
	}

	if scheduled.job.Remaining() == 0 {
		delete(s.jobs, jobId)
		return true
	}

	nextDueAt, err := nextTimerTick(scheduled.timer, scheduled.job.DueAt)
	if err != nil {
		logger.Error("failed to determine next due date", zap.Stringer("job", scheduled.job), zap.Error(err))
		delete(s.jobs, jobId)
		return true
	}

	triggeredAt := s.now()
	scheduled.job.DueAt = nextDueAt
	scheduled.job.FireCount++
	scheduled.job.LastTriggeredAt = &triggeredAt
	scheduled.running = false
	return false
}

// release returns a running job, whose fire could not be handled, unchanged. It is due again with the next execution.
func (s *jobScheduler) release(jobId string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if scheduled, ok := s.jobs[jobId]; ok {
		scheduled.running = false
	}
}

func (s *jobScheduler) size() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.jobs)
}

func NewJobExecutor(e engine.Engine, interval time.Duration, jobLimit int) *JobExecutor {
	tickerCtx, tickerCancel := context.WithCancel(context.Background())

	return &JobExecutor{
		engine:   e,
		jobLimit: jobLimit,

		tickerCtx:    tickerCtx,
		tickerCancel: tickerCancel,
		ticker:       time.NewTicker(interval),
	}
}

// JobExecutor periodically executes due jobs of the built-in job service.
type JobExecutor struct {
	engine   engine.Engine
	jobLimit int

	tickerCtx    context.Context
	tickerCancel context.CancelFunc
	ticker       *time.Ticker
}

func (e *JobExecutor) Execute() {
	go func() {
		for {
			select {
			case <-e.ticker.C:
				_, _ = e.engine.ExecuteJobs(e.tickerCtx, engine.ExecuteJobsCmd{Limit: e.jobLimit})
			case <-e.tickerCtx.Done():
				return
			}
		}
	}()
}

func (e *JobExecutor) Stop() {
	e.ticker.Stop()
	e.tickerCancel()
}

// ExecuteJobs fires due jobs of the built-in job service. Jobs of different process instances are fired in parallel.
//
// A job is only advanced, after its fire has been persisted. A job, which could not be handled, stays due and is reported via the OnJobExecutionFailure option.
func (r *Runtime) ExecuteJobs(ctx context.Context, cmd engine.ExecuteJobsCmd) ([]engine.Job, error) {
	if err := r.validate("failed to execute jobs", cmd); err != nil {
		return nil, err
	}

	if r.jobs == nil {
		return nil, nil
	}

	jobs := r.jobs.due(cmd.Limit)
	if len(jobs) == 0 {
		return jobs, nil
	}

	var (
		g     errgroup.Group
		mutex sync.Mutex
		errs  error
	)

	g.SetLimit(r.options.JobExecutorParallelism)

	for _, job := range jobs {
		g.Go(func() error {
			err := r.TriggerTimer(ctx, engine.TriggerTimerCmd{
				ProcessInstanceId: job.ProcessInstanceId,
				TimerId:           job.TimerId,
				Remaining:         job.Remaining(),
			})
			if err == nil {
				if r.jobs.acknowledge(job.Id, r.logger) {
					r.timers.forget(job.TimerId, job.Id)
				}
				return nil
			}

			r.jobs.release(job.Id)

			r.logger.Error("failed to execute job", zap.Stringer("job", job), zap.Error(err))
			if onJobExecutionFailure := r.options.OnJobExecutionFailure; onJobExecutionFailure != nil {
				onJobExecutionFailure(job, err)
			}

			mutex.Lock()
			errs = multierr.Append(errs, err)
			mutex.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	r.logger.Debug("jobs executed", zap.Int("count", len(jobs)))
	return jobs, errs
}
