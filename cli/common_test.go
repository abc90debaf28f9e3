package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/engine/mem"
	"github.com/gclaussn/go-procengine/model"
)

func mustCreateEngine(t *testing.T) engine.Engine {
	e, err := mem.New()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e
}

func mustCreateProcess(t *testing.T, e engine.Engine, process *model.Process) {
	if _, err := e.CreateProcess(context.Background(), engine.CreateProcessCmd{Definition: process}); err != nil {
		t.Fatalf("failed to create process %s: %v", process.Id, err)
	}
}

// mustExecute executes a command and returns its trimmed output.
func mustExecute(t *testing.T, e engine.Engine, args []string) string {
	output, err := execute(e, args)
	if err != nil {
		t.Fatalf("failed to execute %v: %v", args, err)
	}
	return output
}

func execute(e engine.Engine, args []string) (string, error) {
	rootCmd := newRootCmd(&Cli{e: e})
	rootCmd.PersistentPostRun = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func mustStartProcessInstance(t *testing.T, e engine.Engine, processId string) engine.ProcessInstance {
	processInstance, err := e.StartProcessInstance(context.Background(), engine.StartProcessInstanceCmd{ProcessId: processId})
	if err != nil {
		t.Fatalf("failed to start process instance: %v", err)
	}
	return processInstance
}
