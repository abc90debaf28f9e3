package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/gclaussn/go-procengine/model"
)

// JobService schedules timer jobs on behalf of an engine.
//
// When a job fires, the job service must call [Engine.TriggerTimer] with the process instance ID, the timer ID and the number of remaining fires.
// After the final fire (remaining = 0), a job must not fire again.
type JobService interface {
	// Schedule schedules a job and returns its ID.
	Schedule(context.Context, JobDescription) (string, error)

	// Cancel cancels a scheduled job. It returns false, if no such job exists.
	Cancel(ctx context.Context, jobId string) (bool, error)
}

// JobDescription describes a timer job.
type JobDescription struct {
	ProcessInstanceId string
	NodeInstanceId    string
	TimerId           string

	FireCount int         // Number of fires, before the timer has been registered.
	StartAt   time.Time   // Point in time, the timer has been activated or fired the last time.
	Timer     model.Timer // Timer definition. RepeatLimit is normalized: -1 means unbounded.
}

// Job is a timer job of the built-in job service.
type Job struct {
	Id string `json:"id"`

	ProcessInstanceId string `json:"processInstanceId"`
	NodeInstanceId    string `json:"nodeInstanceId"`
	TimerId           string `json:"timerId"`

	CreatedAt       time.Time  `json:"createdAt"`
	DueAt           time.Time  `json:"dueAt"`
	FireCount       int        `json:"fireCount"`
	LastTriggeredAt *time.Time `json:"lastTriggeredAt,omitempty"`
	RepeatLimit     int        `json:"repeatLimit"` // Total number of fires, -1 means unbounded.
}

// Remaining returns the number of remaining fires, after the job fired the next time.
func (v Job) Remaining() int {
	if v.RepeatLimit < 0 {
		return -1
	}
	return v.RepeatLimit - v.FireCount - 1
}

func (v Job) String() string {
	return fmt.Sprintf("%s(%s/%s)", v.Id, v.ProcessInstanceId, v.TimerId)
}
