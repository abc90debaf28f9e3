package test

import (
	"context"
	"testing"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"github.com/stretchr/testify/assert"
)

func TestSubProcess(t *testing.T) {
	assert := assert.New(t)

	child := model.NewBuilder("child", "1").
		Start("S").
		Task("T", "child-done").
		End("E").
		Connect("S", "T").
		Connect("T", "E").
		Build()

	parent := model.NewBuilder("parent", "1").
		Start("S").
		SubProcess("P", "child", "", func(node *model.Node) {
			node.Inputs = map[string]string{"input": "value"}
			node.Outputs = map[string]string{"output": "result"}
		}).
		End("E").
		Connect("S", "P").
		Connect("P", "E").
		Build()

	engines, engineTypes := mustCreateEngines(t)
	for i, e := range engines {
		mustCreateProcess(t, e, child)
		mustCreateProcess(t, e, parent)

		t.Run(engineTypes[i]+"complete", func(t *testing.T) {
			piAssert := engine.AssertStart(t, e, engine.StartProcessInstanceCmd{
				ProcessId: "parent",
				Variables: map[string]*engine.Data{"value": engine.Text("in")},
			})

			piAssert.IsWaitingAt("P")
			childId := piAssert.NodeInstance().ChildInstanceId
			assert.NotEmpty(childId)

			childAssert := engine.Assert(t, e, mustGetProcessInstance(t, e, childId))
			childAssert.HasState(engine.InstanceActive)
			childAssert.HasProcessVariable("input", "in")

			childInstance := childAssert.ProcessInstance()
			assert.Equal(piAssert.ProcessInstance().Id, childInstance.ParentId)

			childAssert.IsWaitingAt("T")
			childAssert.Signal("child-done", map[string]*engine.Data{"result": engine.Text("out")})
			childAssert.IsCompleted()

			piAssert.IsCompleted()
			piAssert.HasProcessVariable("output", "out")
		})

		t.Run(engineTypes[i]+"abort parent aborts child", func(t *testing.T) {
			piAssert := engine.AssertStart(t, e, engine.StartProcessInstanceCmd{ProcessId: "parent"})

			piAssert.IsWaitingAt("P")
			childId := piAssert.NodeInstance().ChildInstanceId

			_, err := e.AbortProcessInstance(context.Background(), engine.AbortProcessInstanceCmd{Id: piAssert.ProcessInstance().Id})
			assert.Nil(err)

			assert.Equal(engine.InstanceAborted, mustGetProcessInstance(t, e, childId).State)
		})

		t.Run(engineTypes[i]+"query children", func(t *testing.T) {
			piAssert := engine.AssertStart(t, e, engine.StartProcessInstanceCmd{ProcessId: "parent"})
			id := piAssert.ProcessInstance().Id

			results, err := e.QueryProcessInstances(context.Background(), engine.ProcessInstanceCriteria{ParentId: id}, engine.QueryOptions{})
			assert.Nil(err)
			assert.Len(results, 1)
			assert.Equal("child", results[0].ProcessId)

			_, err = e.AbortProcessInstance(context.Background(), engine.AbortProcessInstanceCmd{Id: id})
			assert.Nil(err)
		})
	}
}
