package cli

import (
	"fmt"
	"time"

	"github.com/gclaussn/go-procengine/engine"
)

// instanceStateValue is a custom flag value for a process instance state.
type instanceStateValue engine.InstanceState

func (v *instanceStateValue) Set(s string) error {
	instanceState := engine.MapInstanceState(s)
	if instanceState == 0 {
		return fmt.Errorf("invalid instance state %s", s)
	}

	*v = instanceStateValue(instanceState)
	return nil
}

func (v instanceStateValue) String() string {
	return engine.InstanceState(v).String()
}

func (v instanceStateValue) Type() string {
	return "instanceState"
}

// userTaskStateValue is a custom flag value for a user task state.
type userTaskStateValue engine.UserTaskState

func (v *userTaskStateValue) Set(s string) error {
	userTaskState := engine.MapUserTaskState(s)
	if userTaskState == 0 {
		return fmt.Errorf("invalid user task state %s", s)
	}

	*v = userTaskStateValue(userTaskState)
	return nil
}

func (v userTaskStateValue) String() string {
	return engine.UserTaskState(v).String()
}

func (v userTaskStateValue) Type() string {
	return "userTaskState"
}

type timeValue time.Time

func (v *timeValue) Set(s string) error {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}

	*v = timeValue(t)
	return nil
}

func (v timeValue) String() string {
	if time.Time(v).IsZero() {
		return ""
	}
	return time.Time(v).Format(time.RFC3339)
}

func (v timeValue) Type() string {
	return "time"
}
