package test

import (
	"context"
	"testing"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"github.com/stretchr/testify/assert"
)

func TestUserTask(t *testing.T) {
	assert := assert.New(t)

	process := model.NewBuilder("review", "1").
		Start("S").
		UserTask("U", model.UserTask{
			TaskName:        "Review",
			PotentialOwners: []string{"alice", "bob"},
			Skippable:       true,
		}).
		End("E").
		Connect("S", "U").
		Connect("U", "E").
		Build()

	engines, engineTypes := mustCreateEngines(t)
	for i, e := range engines {
		mustCreateProcess(t, e, process)

		t.Run(engineTypes[i]+"complete", func(t *testing.T) {
			piAssert := engine.AssertStart(t, e, engine.StartProcessInstanceCmd{ProcessId: "review"})

			piAssert.IsWaitingAt("U")

			userTask := piAssert.UserTask()
			assert.Equal(engine.UserTaskNew, userTask.State)
			assert.Equal("Review", userTask.Name)
			assert.Equal([]string{"alice", "bob"}, userTask.PotentialOwners)

			_, err := e.ClaimUserTask(context.Background(), engine.ClaimUserTaskCmd{Id: userTask.Id, UserId: "carol"})
			assert.IsType(engine.Error{}, err)

			claimed, err := e.ClaimUserTask(context.Background(), engine.ClaimUserTaskCmd{Id: userTask.Id, UserId: "alice"})
			assert.Nil(err)
			assert.Equal(engine.UserTaskReserved, claimed.State)
			assert.Equal("alice", claimed.ActualOwner)

			started, err := e.StartUserTask(context.Background(), engine.StartUserTaskCmd{Id: userTask.Id, UserId: "alice"})
			assert.Nil(err)
			assert.Equal(engine.UserTaskInProgress, started.State)

			suspended, err := e.SuspendUserTask(context.Background(), engine.SuspendUserTaskCmd{Id: userTask.Id, UserId: "alice"})
			assert.Nil(err)
			assert.Equal(engine.UserTaskSuspended, suspended.State)

			resumed, err := e.ResumeUserTask(context.Background(), engine.ResumeUserTaskCmd{Id: userTask.Id, UserId: "alice"})
			assert.Nil(err)
			assert.Equal(engine.UserTaskInProgress, resumed.State)

			completed, err := e.CompleteUserTask(context.Background(), engine.CompleteUserTaskCmd{
				Id:      userTask.Id,
				Outputs: map[string]*engine.Data{"approved": engine.JSON("true")},
				UserId:  "alice",
			})
			assert.Nil(err)
			assert.Equal(engine.UserTaskCompleted, completed.State)

			piAssert.IsCompleted()
			piAssert.HasProcessVariable("approved", "true")

			archived, err := e.GetUserTask(context.Background(), engine.GetUserTaskCmd{Id: userTask.Id})
			assert.Nil(err)
			assert.Equal(engine.UserTaskCompleted, archived.State)
		})

		t.Run(engineTypes[i]+"skip", func(t *testing.T) {
			piAssert := engine.AssertStart(t, e, engine.StartProcessInstanceCmd{ProcessId: "review"})

			piAssert.IsWaitingAt("U")
			userTask := piAssert.UserTask()

			skipped, err := e.SkipUserTask(context.Background(), engine.SkipUserTaskCmd{Id: userTask.Id, UserId: "bob"})
			assert.Nil(err)
			assert.Equal(engine.UserTaskSkipped, skipped.State)

			piAssert.IsCompleted()
		})

		t.Run(engineTypes[i]+"abort process instance aborts user task", func(t *testing.T) {
			piAssert := engine.AssertStart(t, e, engine.StartProcessInstanceCmd{ProcessId: "review"})

			piAssert.IsWaitingAt("U")
			userTask := piAssert.UserTask()

			_, err := e.AbortProcessInstance(context.Background(), engine.AbortProcessInstanceCmd{Id: piAssert.ProcessInstance().Id})
			assert.Nil(err)

			aborted, err := e.GetUserTask(context.Background(), engine.GetUserTaskCmd{Id: userTask.Id})
			assert.Nil(err)
			assert.Equal(engine.UserTaskAborted, aborted.State)
		})

		t.Run(engineTypes[i]+"query", func(t *testing.T) {
			piAssert := engine.AssertStart(t, e, engine.StartProcessInstanceCmd{ProcessId: "review"})
			id := piAssert.ProcessInstance().Id

			results, err := e.QueryUserTasks(context.Background(), engine.UserTaskCriteria{ProcessInstanceId: id}, engine.QueryOptions{})
			assert.Nil(err)
			assert.Len(results, 1)
			assert.Equal(engine.UserTaskNew, results[0].State)

			results, err = e.QueryUserTasks(context.Background(), engine.UserTaskCriteria{
				ProcessInstanceId: id,
				State:             engine.UserTaskReserved,
			}, engine.QueryOptions{})
			assert.Nil(err)
			assert.Empty(results)
		})
	}
}
