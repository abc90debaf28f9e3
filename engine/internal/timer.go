package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"go.uber.org/zap"
)

// timerInstance is the state of a timer node instance, which is part of a process instance snapshot.
type timerInstance struct {
	Id             string `json:"id"`
	NodeInstanceId string `json:"nodeInstanceId"`

	ActivatedAt     time.Time  `json:"activatedAt"`
	FireCount       int        `json:"fireCount"`
	LastTriggeredAt *time.Time `json:"lastTriggeredAt,omitempty"`
	RepeatLimit     int        `json:"repeatLimit"` // -1 means unbounded
}

// normalizeRepeatLimit maps a repeat limit of 0 to a single fire. All negative values mean unbounded.
func normalizeRepeatLimit(repeatLimit int) int {
	if repeatLimit == 0 {
		return 1
	}
	if repeatLimit < 0 {
		return -1
	}
	return repeatLimit
}

func timerJobDescription(pi *processInstance, ni *nodeInstance) engine.JobDescription {
	timer := *ni.node.Timer
	timer.RepeatLimit = ni.timer.RepeatLimit

	startAt := ni.timer.ActivatedAt
	if ni.timer.LastTriggeredAt != nil {
		startAt = *ni.timer.LastTriggeredAt
	}

	return engine.JobDescription{
		ProcessInstanceId: pi.id,
		NodeInstanceId:    ni.id,
		TimerId:           ni.timer.Id,

		FireCount: ni.timer.FireCount,
		StartAt:   startAt,
		Timer:     timer,
	}
}

// evaluateTimer determines the first due date of a timer, relative to a start time.
func evaluateTimer(timer model.Timer, start time.Time) (time.Time, error) {
	if !timer.Time.IsZero() {
		// must be UTC and truncated to millis, like the engine's time
		return timer.Time.UTC().Truncate(time.Millisecond), nil
	} else if timer.Delay != "" {
		delay, err := engine.NewISO8601Duration(timer.Delay)
		if err != nil {
			return time.Time{}, err
		}
		return delay.Calculate(start), nil
	} else if timer.Cycle != "" {
		return gronx.NextTickAfter(timer.Cycle, start, false)
	} else if timer.Period != "" {
		return nextTimerTick(timer, start)
	} else {
		return time.Time{}, errors.New("must specify a time, delay, cycle or period")
	}
}

// nextTimerTick determines the due date of a repeated fire, relative to the previous due date.
func nextTimerTick(timer model.Timer, prev time.Time) (time.Time, error) {
	if timer.Period != "" {
		period, err := engine.NewISO8601Duration(timer.Period)
		if err != nil {
			return time.Time{}, err
		}
		if !period.IsPositive() {
			return time.Time{}, fmt.Errorf("period %s must be positive", timer.Period)
		}
		return period.Calculate(prev), nil
	} else if timer.Cycle != "" {
		return gronx.NextTickAfter(timer.Cycle, prev, false)
	} else if timer.Delay != "" {
		delay, err := engine.NewISO8601Duration(timer.Delay)
		if err != nil {
			return time.Time{}, err
		}
		if !delay.IsPositive() {
			return time.Time{}, fmt.Errorf("delay %s must be positive to be repeated", timer.Delay)
		}
		return delay.Calculate(prev), nil
	} else {
		return time.Time{}, errors.New("repeated timer must specify a period, cycle or delay")
	}
}

func newTimerBridge(jobService engine.JobService, logger *zap.Logger) *timerBridge {
	return &timerBridge{
		jobService: jobService,
		logger:     logger,

		jobIds: make(map[string]string),
		locks:  newLockMap(),
	}
}

// timerBridge registers timers of process instances as jobs of a job service.
//
// Registration is idempotent per timer ID, since timers are registered again whenever a process instance is loaded.
type timerBridge struct {
	jobService engine.JobService
	logger     *zap.Logger

	mutex  sync.RWMutex
	jobIds map[string]string // timer ID -> job ID

	locks *lockMap
}

func (b *timerBridge) isRegistered(timerId string) bool {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	_, ok := b.jobIds[timerId]
	return ok
}

func (b *timerBridge) register(ctx context.Context, description engine.JobDescription) error {
	unlock := b.locks.lock(description.TimerId)
	defer unlock()

	if b.isRegistered(description.TimerId) {
		return nil
	}

	jobId, err := b.jobService.Schedule(ctx, description)
	if err != nil {
		return fmt.Errorf("failed to schedule job for timer %s: %v", description.TimerId, err)
	}

	b.mutex.Lock()
	b.jobIds[description.TimerId] = jobId
	b.mutex.Unlock()

	b.logger.Debug("timer registered",
		zap.String("processInstanceId", description.ProcessInstanceId),
		zap.String("timerId", description.TimerId),
		zap.String("jobId", jobId),
	)
	return nil
}

// unregister cancels the job of a timer. Unregistering an unknown timer is a no-op.
func (b *timerBridge) unregister(ctx context.Context, timerId string) error {
	unlock := b.locks.lock(timerId)
	defer unlock()

	b.mutex.Lock()
	jobId, ok := b.jobIds[timerId]
	delete(b.jobIds, timerId)
	b.mutex.Unlock()

	if !ok {
		return nil
	}

	if _, err := b.jobService.Cancel(ctx, jobId); err != nil {
		return fmt.Errorf("failed to cancel job %s of timer %s: %v", jobId, timerId, err)
	}

	b.logger.Debug("timer unregistered", zap.String("timerId", timerId), zap.String("jobId", jobId))
	return nil
}

// forget drops the registration of a timer, whose job has already been removed by the job service.
// A registration, which refers to another job, is kept.
func (b *timerBridge) forget(timerId string, jobId string) {
	unlock := b.locks.lock(timerId)
	defer unlock()

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.jobIds[timerId] == jobId {
		delete(b.jobIds, timerId)
	}
}

// TriggerTimer handles the fire of a timer job.
//
// A fire, which does not fire the final time, activates the successors of the timer node, while the node instance keeps waiting.
// The final fire completes the timer node instance.
// A fire of a timer, which does not exist anymore, is stale: the job is unregistered and nothing changes.
func (r *Runtime) TriggerTimer(ctx context.Context, cmd engine.TriggerTimerCmd) error {
	const title = "failed to trigger timer"
	if err := r.validate(title, cmd); err != nil {
		return err
	}

	stale := false

	_, err := r.transition(ctx, cmd.ProcessInstanceId, func(ec *execution) error {
		if ec.pi.state != engine.InstanceActive {
			// timers of a suspended or failed process instance are registered again, when it is resumed or retried
			stale = ec.pi.state.IsEnded()
			return errNoChange
		}

		ni := ec.pi.nodeInstanceByTimerId(cmd.TimerId)
		if ni == nil || ni.state != engine.NodeInstanceActive {
			stale = true
			return errNoChange
		}

		timer := ni.timer
		timer.FireCount++
		triggeredAt := ec.now
		timer.LastTriggeredAt = &triggeredAt

		ec.emit(engine.Event{
			Type:           engine.EventTimerTriggered,
			NodeId:         ni.node.Id,
			NodeInstanceId: ni.id,
		})

		if cmd.Remaining == 0 || (timer.RepeatLimit > 0 && timer.FireCount >= timer.RepeatLimit) {
			if err := ec.leave(ni, nil); err != nil {
				ec.fail(ni, err)
				return nil
			}
		} else {
			for _, connection := range ni.node.Outgoing {
				if connection.Target != nil {
					ec.enqueue(connection.Target, connection)
				}
			}
		}

		ec.run()
		return nil
	})
	if err != nil {
		if e, ok := err.(engine.Error); !ok || e.Type != engine.ErrorNotFound {
			return err
		}
		stale = true
	}

	if stale {
		r.logger.Debug("stale timer fired",
			zap.String("processInstanceId", cmd.ProcessInstanceId),
			zap.String("timerId", cmd.TimerId),
		)
		return r.timers.unregister(ctx, cmd.TimerId)
	}
	return nil
}
