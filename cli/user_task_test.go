package cli

import (
	"testing"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"github.com/stretchr/testify/assert"
)

func TestUserTaskCmd(t *testing.T) {
	assert := assert.New(t)

	e := mustCreateEngine(t)
	defer e.Shutdown()

	mustCreateProcess(t, e, model.NewBuilder("review", "1").
		Start("S").
		UserTask("U", model.UserTask{
			TaskName:        "Review",
			PotentialOwners: []string{"alice", "bob"},
		}).
		End("E").
		Connect("S", "U").
		Connect("U", "E").
		Build())

	t.Run("complete", func(t *testing.T) {
		// given
		processInstance := mustStartProcessInstance(t, e, "review")
		userTaskId := processInstance.NodeInstancesByNodeId("U")[0].UserTaskId

		output := mustExecute(t, e, []string{"user-task", "query", "--process-instance-id", processInstance.Id})
		assert.Contains(output, userTaskId)
		assert.Contains(output, "Review")
		assert.Contains(output, "NEW")

		// when
		assert.Equal("RESERVED", mustExecute(t, e, []string{"user-task", "claim", "--id", userTaskId, "--user-id", "alice"}))
		assert.Equal("IN_PROGRESS", mustExecute(t, e, []string{"user-task", "start", "--id", userTaskId, "--user-id", "alice"}))

		output = mustExecute(t, e, []string{
			"user-task", "complete",
			"--id", userTaskId,
			"--user-id", "alice",
			"--output", `approved={"encoding":"json","value":"true"}`,
		})

		// then
		assert.Equal("COMPLETED", output)

		output = mustExecute(t, e, []string{"process-instance", "get-variables", "--id", processInstance.Id})
		assert.Contains(output, "approved")
	})

	t.Run("claim by other user fails", func(t *testing.T) {
		processInstance := mustStartProcessInstance(t, e, "review")
		userTaskId := processInstance.NodeInstancesByNodeId("U")[0].UserTaskId

		_, err := execute(e, []string{"user-task", "claim", "--id", userTaskId, "--user-id", "carol"})
		assert.IsType(engine.Error{}, err)
	})

	t.Run("delegate and release", func(t *testing.T) {
		processInstance := mustStartProcessInstance(t, e, "review")
		userTaskId := processInstance.NodeInstancesByNodeId("U")[0].UserTaskId

		mustExecute(t, e, []string{"user-task", "claim", "--id", userTaskId, "--user-id", "alice"})
		mustExecute(t, e, []string{"user-task", "delegate", "--id", userTaskId, "--user-id", "alice", "--target-user-id", "bob"})

		output := mustExecute(t, e, []string{"user-task", "get", "--id", userTaskId})
		assert.Contains(output, `"actualOwner": "bob"`)

		assert.Equal("NEW", mustExecute(t, e, []string{"user-task", "release", "--id", userTaskId, "--user-id", "bob"}))
	})

	t.Run("update", func(t *testing.T) {
		processInstance := mustStartProcessInstance(t, e, "review")
		userTaskId := processInstance.NodeInstancesByNodeId("U")[0].UserTaskId

		output := mustExecute(t, e, []string{
			"user-task", "update",
			"--id", userTaskId,
			"--name", "Review order",
			"--priority", "5",
			"--user-id", "bob",
		})
		assert.Contains(output, `"name": "Review order"`)
		assert.Contains(output, `"priority": 5`)

		_, err := execute(e, []string{"user-task", "update", "--id", userTaskId, "--priority", "1", "--user-id", "carol"})
		assert.IsType(engine.Error{}, err)
	})
}
