package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"testing"
	"time"
)

// Assert creates an assert for an existing process instance.
func Assert(t *testing.T, e Engine, processInstance ProcessInstance) *ProcessInstanceAssert {
	return &ProcessInstanceAssert{t: t, e: e, processInstanceId: processInstance.Id}
}

// AssertStart starts a process instance and creates an assert for it.
func AssertStart(t *testing.T, e Engine, cmd StartProcessInstanceCmd) *ProcessInstanceAssert {
	processInstance, err := e.StartProcessInstance(context.Background(), cmd)
	if err != nil {
		t.Fatalf("failed to start process instance of %s: %v", cmd.ProcessId, err)
	}
	return Assert(t, e, processInstance)
}

type ProcessInstanceAssert struct {
	t *testing.T
	e Engine

	processInstanceId string
	nodeInstanceId    string
	nodeId            string
}

// Complete completes the node instance, selected via IsWaitingAt.
func (a *ProcessInstanceAssert) Complete(variables ...map[string]*Data) {
	if a.nodeInstanceId == "" {
		a.Fatalf("call IsWaitingAt first")
	}

	_, err := a.e.CompleteNodeInstance(context.Background(), CompleteNodeInstanceCmd{
		ProcessInstanceId: a.processInstanceId,
		NodeInstanceId:    a.nodeInstanceId,
		Variables:         mergeVariables(variables),
	})
	if err != nil {
		a.Fatalf("failed to complete node instance %s of node %s: %v", a.nodeInstanceId, a.nodeId, err)
	}

	a.nodeId = ""
	a.nodeInstanceId = ""
}

// ExecuteJobs increases the engine's time, relative to the last update of the process instance, and executes all due jobs.
func (a *ProcessInstanceAssert) ExecuteJobs(d time.Duration) []Job {
	t := a.ProcessInstance().UpdatedAt.Add(d)
	if err := a.e.SetTime(context.Background(), SetTimeCmd{Time: t}); err != nil && !IsErrorType(err, ErrorConflict) {
		a.Fatalf("failed to set time: %v", err)
	}

	jobs, err := a.e.ExecuteJobs(context.Background(), ExecuteJobsCmd{Limit: 100})
	if err != nil {
		a.Fatalf("failed to execute jobs: %v", err)
	}

	return jobs
}

func (a *ProcessInstanceAssert) Fatalf(format string, args ...any) {
	data := map[string]string{
		"Error Trace": string(debug.Stack()),
		"Error":       fmt.Sprintf(format, args...),
		"Test":        a.t.Name(),
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("\n%s: %s", k, data[k]))
	}

	a.t.Fatal(sb.String())
}

func (a *ProcessInstanceAssert) HasNoProcessVariable(name string) {
	if _, ok := a.processVariables()[name]; ok {
		a.Fatalf("expected process instance to have no variable %s, but has", name)
	}
}

// HasProcessVariable asserts that a process variable exists and, if provided, has the expected value.
func (a *ProcessInstanceAssert) HasProcessVariable(name string, expectedValue ...string) {
	data, ok := a.processVariables()[name]
	if !ok {
		a.Fatalf("expected process instance to have variable %s, but has not", name)
	}
	if len(expectedValue) != 0 && data.Value != expectedValue[0] {
		a.Fatalf("expected variable %s to have value %s, but has %s", name, expectedValue[0], data.Value)
	}
}

func (a *ProcessInstanceAssert) HasState(expected InstanceState) {
	if actual := a.ProcessInstance().State; actual != expected {
		a.Fatalf("expected process instance to be in state %s, but is %s", expected, actual)
	}
}

func (a *ProcessInstanceAssert) IsCompleted() {
	processInstance := a.ProcessInstance()
	if processInstance.State != InstanceCompleted {
		a.Fatalf("expected process instance to be completed, but is %s", processInstance.State)
	}
	if len(processInstance.NodeInstances) != 0 {
		a.Fatalf("expected completed process instance to have no node instances, but has %d", len(processInstance.NodeInstances))
	}
}

func (a *ProcessInstanceAssert) IsNotWaitingAt(nodeId string) {
	if nodeInstances := a.ProcessInstance().NodeInstancesByNodeId(nodeId); len(nodeInstances) != 0 {
		a.Fatalf("expected process instance not to be waiting at %s: active node instances found: %d", nodeId, len(nodeInstances))
	}
}

// IsWaitingAt asserts that a node has an active node instance and selects it for subsequent calls.
func (a *ProcessInstanceAssert) IsWaitingAt(nodeId string) {
	processInstance := a.ProcessInstance()

	nodeInstances := processInstance.NodeInstancesByNodeId(nodeId)
	if len(nodeInstances) != 0 {
		a.nodeId = nodeId
		a.nodeInstanceId = nodeInstances[0].Id
		return
	}

	active := make([]string, len(processInstance.NodeInstances))
	for i, nodeInstance := range processInstance.NodeInstances {
		active[i] = nodeInstance.NodeId
	}

	a.Fatalf("expected process instance to be waiting at %s: no active node instance found\nactive nodes: %s", nodeId, strings.Join(active, ", "))
}

// NodeInstance returns the node instance, selected via IsWaitingAt.
func (a *ProcessInstanceAssert) NodeInstance() NodeInstance {
	if a.nodeInstanceId == "" {
		a.Fatalf("call IsWaitingAt first")
	}

	nodeInstance, ok := a.ProcessInstance().NodeInstanceById(a.nodeInstanceId)
	if !ok {
		a.Fatalf("expected node instance %s of node %s to be active, but is not", a.nodeInstanceId, a.nodeId)
	}
	return nodeInstance
}

func (a *ProcessInstanceAssert) ProcessInstance() ProcessInstance {
	processInstance, err := a.e.GetProcessInstance(context.Background(), GetProcessInstanceCmd{Id: a.processInstanceId})
	if err != nil {
		a.Fatalf("failed to get process instance: %v", err)
	}
	return processInstance
}

// Signal signals the process instance and asserts that at least one node instance progressed.
func (a *ProcessInstanceAssert) Signal(eventType string, payload ...map[string]*Data) SignalResult {
	result, err := a.e.SignalProcessInstance(context.Background(), SignalProcessInstanceCmd{
		Id:        a.processInstanceId,
		EventType: eventType,
		Payload:   mergeVariables(payload),
	})
	if err != nil {
		a.Fatalf("failed to signal %s: %v", eventType, err)
	}
	if !result.Success {
		a.Fatalf("expected signal %s to be consumed, but was not: %v", eventType, result.Errors)
	}

	a.nodeId = ""
	a.nodeInstanceId = ""
	return result
}

// UserTask returns the user task of the node instance, selected via IsWaitingAt.
func (a *ProcessInstanceAssert) UserTask() UserTask {
	nodeInstance := a.NodeInstance()
	if nodeInstance.UserTaskId == "" {
		a.Fatalf("expected node instance %s of node %s to have a user task", a.nodeInstanceId, a.nodeId)
	}

	userTask, err := a.e.GetUserTask(context.Background(), GetUserTaskCmd{Id: nodeInstance.UserTaskId})
	if err != nil {
		a.Fatalf("failed to get user task: %v", err)
	}
	return userTask
}

func (a *ProcessInstanceAssert) processVariables() map[string]Data {
	variables, err := a.e.GetProcessVariables(context.Background(), GetProcessVariablesCmd{
		ProcessInstanceId: a.processInstanceId,
	})
	if err != nil {
		a.Fatalf("failed to get process variables: %v", err)
	}
	return variables
}

func mergeVariables(variables []map[string]*Data) map[string]*Data {
	if len(variables) == 0 {
		return nil
	}

	merged := make(map[string]*Data)
	for _, v := range variables {
		for name, data := range v {
			merged[name] = data
		}
	}
	return merged
}
