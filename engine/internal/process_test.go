package internal

import (
	"context"
	"testing"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"github.com/stretchr/testify/assert"
)

const orderProcessYaml = `
id: order
version: "2"
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

func TestDefinitions(t *testing.T) {
	assert := assert.New(t)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	defs := newDefinitions()

	process, err := defs.register(orderProcess(), now)
	assert.Nil(err)
	assert.Equal("order", process.Id)
	assert.Equal("1", process.Version)
	assert.Equal(now, process.CreatedAt)
	assert.Equal(3, process.NodeCount)

	t.Run("register equal definition", func(t *testing.T) {
		existing, err := defs.register(orderProcess(), now.Add(time.Hour))
		assert.Nil(err)
		assert.Equal(now, existing.CreatedAt)
	})

	t.Run("returns error when definition differs", func(t *testing.T) {
		different := model.NewBuilder("order", "1").
			Start("S").
			End("E").
			Connect("S", "E").
			Build()

		_, err := defs.register(different, now)
		assert.IsType(engine.Error{}, err)
		assert.Equal(engine.ErrorConflict, err.(engine.Error).Type)
	})

	t.Run("returns error when definition is invalid", func(t *testing.T) {
		invalid := model.NewBuilder("invalid", "1").
			Event("E", "").
			Build()

		_, err := defs.register(invalid, now)
		assert.IsType(engine.Error{}, err)
		assert.Equal(engine.ErrorProcessModel, err.(engine.Error).Type)
		assert.NotEmpty(err.(engine.Error).Causes)
	})

	t.Run("get latest version", func(t *testing.T) {
		v2, err := parseProcess(orderProcessYaml)
		if err != nil {
			t.Fatalf("failed to parse process: %v", err)
		}
		if _, err := defs.register(v2, now); err != nil {
			t.Fatalf("failed to register process: %v", err)
		}

		latest, err := defs.get("order", "")
		assert.Nil(err)
		assert.Equal("2", latest.Version)

		v1, err := defs.get("order", "1")
		assert.Nil(err)
		assert.Equal("1", v1.Version)
	})

	t.Run("returns error when process is not registered", func(t *testing.T) {
		_, err := defs.get("unknown", "")
		assert.IsType(engine.Error{}, err)
		assert.Equal(engine.ErrorNotFound, err.(engine.Error).Type)

		_, err = defs.get("order", "3")
		assert.IsType(engine.Error{}, err)
		assert.Equal(engine.ErrorNotFound, err.(engine.Error).Type)
	})

	t.Run("values", func(t *testing.T) {
		if _, err := defs.register(userTaskProcess(), now); err != nil {
			t.Fatalf("failed to register process: %v", err)
		}

		processes := defs.values()
		assert.Len(processes, 3)
		assert.Equal("order:1", processKey(processes[0].Id, processes[0].Version))
		assert.Equal("order:2", processKey(processes[1].Id, processes[1].Version))
		assert.Equal("review:1", processKey(processes[2].Id, processes[2].Version))
	})
}

func TestParseProcess(t *testing.T) {
	assert := assert.New(t)

	t.Run("returns error when YAML is invalid", func(t *testing.T) {
		_, err := parseProcess("id: [")
		assert.IsType(engine.Error{}, err)
		assert.Equal(engine.ErrorProcessModel, err.(engine.Error).Type)
	})
}

func TestCreateProcess(t *testing.T) {
	assert := assert.New(t)

	t.Run("from YAML", func(t *testing.T) {
		r, _ := mustCreateRuntime(t)

		process, err := r.CreateProcess(context.Background(), engine.CreateProcessCmd{Yaml: orderProcessYaml})
		assert.Nil(err)
		assert.Equal("2", process.Version)

		assert.Len(r.definitions.values(), 1)
	})

	t.Run("returns error when sensitive variable is declared without encryption", func(t *testing.T) {
		r, _ := mustCreateRuntime(t)

		process := model.NewBuilder("sensitive", "1").
			Start("S").
			End("E").
			Connect("S", "E").
			Variable("password", model.TagSensitive).
			Build()

		_, err := r.CreateProcess(context.Background(), engine.CreateProcessCmd{Definition: process})
		assert.IsType(engine.Error{}, err)
		assert.Equal(engine.ErrorProcessModel, err.(engine.Error).Type)
	})
}
