package test

import (
	"context"
	"testing"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"github.com/stretchr/testify/assert"
)

func orderProcess() *model.Process {
	return model.NewBuilder("order", "1").
		Start("S").
		Task("T", "task-done").
		End("E").
		Connect("S", "T").
		Connect("T", "E").
		Build()
}

func TestProcessInstance(t *testing.T) {
	assert := assert.New(t)

	engines, engineTypes := mustCreateEngines(t)
	for i, e := range engines {
		mustCreateProcess(t, e, orderProcess())

		t.Run(engineTypes[i]+"complete", func(t *testing.T) {
			piAssert := engine.AssertStart(t, e, engine.StartProcessInstanceCmd{
				ProcessId:   "order",
				BusinessKey: "order-1",
			})

			piAssert.IsWaitingAt("T")
			piAssert.Signal("task-done", map[string]*engine.Data{"result": engine.Text("ok")})

			piAssert.IsCompleted()
			piAssert.HasProcessVariable("result", "ok")

			processInstance := piAssert.ProcessInstance()
			assert.Equal("order-1", processInstance.BusinessKey)
			assert.NotNil(processInstance.EndedAt)
		})

		t.Run(engineTypes[i]+"complete node instance", func(t *testing.T) {
			piAssert := engine.AssertStart(t, e, engine.StartProcessInstanceCmd{ProcessId: "order"})

			piAssert.IsWaitingAt("T")
			piAssert.Complete(map[string]*engine.Data{"result": engine.Text("manual")})

			piAssert.IsCompleted()
		})

		t.Run(engineTypes[i]+"signal by correlation", func(t *testing.T) {
			correlation := engine.Correlation{"orderId": "1"}

			piAssert := engine.AssertStart(t, e, engine.StartProcessInstanceCmd{
				ProcessId:   "order",
				Correlation: correlation,
			})

			instance, ok, err := e.FindCorrelation(context.Background(), engine.FindCorrelationCmd{Correlation: correlation})
			assert.Nil(err)
			assert.True(ok)
			assert.Equal(piAssert.ProcessInstance().Id, instance.CorrelatedId)

			result, err := e.SignalProcessInstance(context.Background(), engine.SignalProcessInstanceCmd{
				Correlation: correlation,
				EventType:   "task-done",
			})
			assert.Nil(err)
			assert.True(result.Success)

			piAssert.IsCompleted()

			_, ok, err = e.FindCorrelation(context.Background(), engine.FindCorrelationCmd{Correlation: correlation})
			assert.Nil(err)
			assert.False(ok)
		})

		t.Run(engineTypes[i]+"abort is idempotent", func(t *testing.T) {
			piAssert := engine.AssertStart(t, e, engine.StartProcessInstanceCmd{ProcessId: "order"})
			id := piAssert.ProcessInstance().Id

			aborted, err := e.AbortProcessInstance(context.Background(), engine.AbortProcessInstanceCmd{Id: id})
			assert.Nil(err)
			assert.Equal(engine.InstanceAborted, aborted.State)
			assert.Empty(aborted.NodeInstances)

			abortedAgain, err := e.AbortProcessInstance(context.Background(), engine.AbortProcessInstanceCmd{Id: id})
			assert.Nil(err)
			assert.Equal(engine.InstanceAborted, abortedAgain.State)
			assert.NotNil(abortedAgain.EndedAt)
		})

		t.Run(engineTypes[i]+"returns error when no start node matches", func(t *testing.T) {
			_, err := e.StartProcessInstance(context.Background(), engine.StartProcessInstanceCmd{
				ProcessId:   "order",
				BusinessKey: "invalid-start",
				Trigger:     "unknown",
			})
			assert.IsType(engine.Error{}, err)
			assert.Equal(engine.ErrorInvalidStartNode, err.(engine.Error).Type)

			results, err := e.QueryProcessInstances(context.Background(), engine.ProcessInstanceCriteria{
				BusinessKey:  "invalid-start",
				IncludeEnded: true,
			}, engine.QueryOptions{})
			assert.Nil(err)
			assert.Empty(results)
		})

		t.Run(engineTypes[i]+"returns error when process instance is suspended", func(t *testing.T) {
			piAssert := engine.AssertStart(t, e, engine.StartProcessInstanceCmd{ProcessId: "order"})
			id := piAssert.ProcessInstance().Id

			suspended, err := e.SuspendProcessInstance(context.Background(), engine.SuspendProcessInstanceCmd{Id: id})
			assert.Nil(err)
			assert.Equal(engine.InstanceSuspended, suspended.State)

			_, err = e.SignalProcessInstance(context.Background(), engine.SignalProcessInstanceCmd{Id: id, EventType: "task-done"})
			assert.IsType(engine.Error{}, err)
			assert.Equal(engine.ErrorConflict, err.(engine.Error).Type)

			resumed, err := e.ResumeProcessInstance(context.Background(), engine.ResumeProcessInstanceCmd{Id: id})
			assert.Nil(err)
			assert.Equal(engine.InstanceActive, resumed.State)

			piAssert.IsWaitingAt("T")
			piAssert.Signal("task-done")
			piAssert.IsCompleted()
		})
	}
}

func TestDynamicProcess(t *testing.T) {
	assert := assert.New(t)

	dynamicProcess := model.NewBuilder("dynamic", "1").
		Dynamic().
		Start("startReview", func(node *model.Node) { node.Trigger = "review" }).
		Start("startShip", func(node *model.Node) { node.Trigger = "ship" }).
		Task("review", "reviewed").
		Task("ship", "shipped").
		Connect("startReview", "review").
		Connect("startShip", "ship").
		Build()

	engines, engineTypes := mustCreateEngines(t)
	for i, e := range engines {
		mustCreateProcess(t, e, dynamicProcess)

		t.Run(engineTypes[i]+"start by trigger", func(t *testing.T) {
			piAssert := engine.AssertStart(t, e, engine.StartProcessInstanceCmd{
				ProcessId: "dynamic",
				Trigger:   "review",
			})

			piAssert.IsWaitingAt("review")
			piAssert.IsNotWaitingAt("ship")
			piAssert.Signal("reviewed")
			piAssert.IsCompleted()
		})

		t.Run(engineTypes[i]+"no matching start node", func(t *testing.T) {
			processInstance, err := e.StartProcessInstance(context.Background(), engine.StartProcessInstanceCmd{
				ProcessId: "dynamic",
				Trigger:   "nonexistent",
			})
			assert.Nil(err)
			assert.Equal(engine.InstanceActive, processInstance.State)
			assert.Empty(processInstance.NodeInstances)
		})
	}
}

func TestSensitiveVariable(t *testing.T) {
	assert := assert.New(t)

	process := model.NewBuilder("login", "1").
		Variable("password", model.TagSensitive).
		Start("S").
		Task("T", "checked").
		End("E").
		Connect("S", "T").
		Connect("T", "E").
		Build()

	engines, engineTypes := mustCreateEngines(t)
	for i, e := range engines {
		mustCreateProcess(t, e, process)

		t.Run(engineTypes[i], func(t *testing.T) {
			piAssert := engine.AssertStart(t, e, engine.StartProcessInstanceCmd{
				ProcessId: "login",
				Variables: map[string]*engine.Data{"password": engine.Text("s3cr3t")},
			})

			piAssert.HasProcessVariable("password", "s3cr3t")

			err := e.SetProcessVariables(context.Background(), engine.SetProcessVariablesCmd{
				ProcessInstanceId: piAssert.ProcessInstance().Id,
				Variables:         map[string]*engine.Data{"password": engine.Text("changed")},
			})
			assert.Nil(err)

			piAssert.HasProcessVariable("password", "changed")

			piAssert.IsWaitingAt("T")
			piAssert.Signal("checked")
			piAssert.IsCompleted()
		})
	}
}
