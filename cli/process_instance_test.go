package cli

import (
	"testing"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"github.com/stretchr/testify/assert"
)

func TestProcessInstanceCmd(t *testing.T) {
	assert := assert.New(t)

	e := mustCreateEngine(t)
	defer e.Shutdown()

	mustCreateProcess(t, e, model.NewBuilder("order", "1").
		Start("S").
		Task("T", "shipped").
		End("E").
		Connect("S", "T").
		Connect("T", "E").
		Build())

	t.Run("start and signal", func(t *testing.T) {
		// given
		id := mustExecute(t, e, []string{
			"process-instance", "start",
			"--process-id", "order",
			"--business-key", "order-1",
			"--variable", `amount={"encoding":"json","value":"100"}`,
		})
		assert.NotEmpty(id)

		output := mustExecute(t, e, []string{"process-instance", "get-variables", "--id", id})
		assert.Contains(output, "amount")
		assert.Contains(output, "100")

		output = mustExecute(t, e, []string{"process-instance", "query", "--business-key", "order-1"})
		assert.Contains(output, id)
		assert.Contains(output, "ACTIVE")

		// when
		output = mustExecute(t, e, []string{"process-instance", "signal", "--id", id, "--event-type", "shipped"})

		// then
		assert.Equal("COMPLETED: delivered 1", output)

		output = mustExecute(t, e, []string{"process-instance", "get", "--id", id})
		assert.Contains(output, `"state": "COMPLETED"`)
	})

	t.Run("signal by correlation", func(t *testing.T) {
		// given
		mustExecute(t, e, []string{
			"process-instance", "start",
			"--process-id", "order",
			"--correlation", "orderId=o-2",
		})

		// when
		output := mustExecute(t, e, []string{
			"process-instance", "signal",
			"--correlation", "orderId=o-2",
			"--event-type", "shipped",
		})

		// then
		assert.Equal("COMPLETED: delivered 1", output)
	})

	t.Run("suspend resume abort", func(t *testing.T) {
		id := mustExecute(t, e, []string{"process-instance", "start", "--process-id", "order"})

		mustExecute(t, e, []string{"process-instance", "suspend", "--id", id})

		_, err := execute(e, []string{"process-instance", "signal", "--id", id, "--event-type", "shipped"})
		assert.IsType(engine.Error{}, err)

		mustExecute(t, e, []string{"process-instance", "resume", "--id", id})

		output := mustExecute(t, e, []string{"process-instance", "abort", "--id", id})
		assert.Equal("ABORTED", output)
	})

	t.Run("set variables", func(t *testing.T) {
		id := mustExecute(t, e, []string{
			"process-instance", "start",
			"--process-id", "order",
			"--variable", `a={"encoding":"text","value":"x"}`,
		})

		mustExecute(t, e, []string{
			"process-instance", "set-variables",
			"--id", id,
			"--variable", "a=",
			"--variable", `b={"encoding":"text","value":"y"}`,
		})

		output := mustExecute(t, e, []string{"process-instance", "get-variables", "--id", id})
		assert.NotContains(output, "\na ")
		assert.Contains(output, "b ")
	})

	t.Run("start fails when process not exists", func(t *testing.T) {
		_, err := execute(e, []string{"process-instance", "start", "--process-id", "not-existing"})
		assert.IsType(engine.Error{}, err)
	})

	t.Run("signal requires id or correlation", func(t *testing.T) {
		_, err := execute(e, []string{"process-instance", "signal", "--event-type", "shipped"})
		assert.Error(err)
	})
}
