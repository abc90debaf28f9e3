package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const orderYaml = `
id: order
version: "1"
nodes:
  - id: S
    type: START
  - id: T
    type: TASK
    eventType: task-done
  - id: E
    type: END
connections:
  - from: S
    to: T
  - from: T
    to: E
`

func TestNewEngine(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "order.yaml"), []byte(orderYaml), 0o600); err != nil {
		t.Fatalf("failed to write definition: %v", err)
	}

	processes, err := model.NewFromDir(dir)
	if err != nil {
		t.Fatalf("failed to read definitions: %v", err)
	}

	tests := map[string]Options{
		"bolt":   {Backend: backendBolt, BoltPath: filepath.Join(t.TempDir(), "test.db")},
		"mem":    {Backend: backendMem},
		"sqlite": {Backend: backendSqlite, SqliteDataSourceName: ":memory:"},
	}

	for name, options := range tests {
		t.Run(name, func(t *testing.T) {
			common := engine.NewOptions()
			common.JobExecutorEnabled = false
			common.Processes = processes

			e, err := newEngine(options, common)
			if err != nil {
				t.Fatalf("failed to create engine: %v", err)
			}

			defer e.Shutdown()

			piAssert := engine.AssertStart(t, e, engine.StartProcessInstanceCmd{ProcessId: "order"})
			piAssert.IsWaitingAt("T")
			piAssert.Signal("task-done")
			piAssert.IsCompleted()
		})
	}

	t.Run("returns error when backend is not supported", func(t *testing.T) {
		_, err := newEngine(Options{Backend: "redis"}, engine.NewOptions())
		assert.NotNil(err)
	})
}

func TestEventLogger(t *testing.T) {
	assert := assert.New(t)

	core, logs := observer.New(zapcore.DebugLevel)

	common := engine.NewOptions()
	common.JobExecutorEnabled = false

	e, err := newEngine(Options{Backend: backendMem}, common)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	defer e.Shutdown()

	e.AddListener(newEventLogger(zap.New(core)))

	process := model.NewBuilder("order", "1").
		Start("S").
		Task("T", "task-done").
		Connect("S", "T").
		Build()

	if _, err := e.CreateProcess(context.Background(), engine.CreateProcessCmd{Definition: process}); err != nil {
		t.Fatalf("failed to create process: %v", err)
	}

	engine.AssertStart(t, e, engine.StartProcessInstanceCmd{ProcessId: "order"})

	started := logs.FilterMessage(engine.EventProcessInstanceStarted.String()).All()
	assert.Len(started, 1)
	assert.Equal("order", started[0].ContextMap()["processId"])

	activated := logs.FilterMessage(engine.EventNodeInstanceActivated.String()).All()
	assert.NotEmpty(activated)
}
