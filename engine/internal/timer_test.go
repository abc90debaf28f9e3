package internal

import (
	"context"
	"testing"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNormalizeRepeatLimit(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(1, normalizeRepeatLimit(0))
	assert.Equal(3, normalizeRepeatLimit(3))
	assert.Equal(-1, normalizeRepeatLimit(-1))
	assert.Equal(-1, normalizeRepeatLimit(-5))
}

func TestEvaluateTimer(t *testing.T) {
	assert := assert.New(t)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("time", func(t *testing.T) {
		berlin := time.FixedZone("CET", 3600)

		dueAt, err := evaluateTimer(model.Timer{Time: time.Date(2026, 1, 2, 1, 0, 0, 123456789, berlin)}, start)
		assert.Nil(err)
		assert.Equal(time.Date(2026, 1, 2, 0, 0, 0, 123000000, time.UTC), dueAt)
	})

	t.Run("delay", func(t *testing.T) {
		dueAt, err := evaluateTimer(model.Timer{Delay: "PT1M"}, start)
		assert.Nil(err)
		assert.Equal(start.Add(time.Minute), dueAt)
	})

	t.Run("cycle", func(t *testing.T) {
		dueAt, err := evaluateTimer(model.Timer{Cycle: "*/5 * * * *"}, start)
		assert.Nil(err)
		assert.Equal(start.Add(5*time.Minute), dueAt)
	})

	t.Run("period", func(t *testing.T) {
		dueAt, err := evaluateTimer(model.Timer{Period: "PT1H"}, start)
		assert.Nil(err)
		assert.Equal(start.Add(time.Hour), dueAt)
	})

	t.Run("returns error when timer is empty", func(t *testing.T) {
		_, err := evaluateTimer(model.Timer{}, start)
		assert.NotNil(err)
	})

	t.Run("returns error when delay is invalid", func(t *testing.T) {
		_, err := evaluateTimer(model.Timer{Delay: "1 minute"}, start)
		assert.NotNil(err)
	})
}

func TestNextTimerTick(t *testing.T) {
	assert := assert.New(t)

	prev := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)

	dueAt, err := nextTimerTick(model.Timer{Delay: "PT1M", Period: "PT1H"}, prev)
	assert.Nil(err)
	assert.Equal(prev.Add(time.Hour), dueAt)

	dueAt, err = nextTimerTick(model.Timer{Cycle: "*/5 * * * *"}, prev)
	assert.Nil(err)
	assert.Equal(prev.Add(5*time.Minute), dueAt)

	dueAt, err = nextTimerTick(model.Timer{Delay: "PT1M"}, prev)
	assert.Nil(err)
	assert.Equal(prev.Add(time.Minute), dueAt)

	t.Run("returns error when timer cannot be repeated", func(t *testing.T) {
		_, err := nextTimerTick(model.Timer{Time: prev}, prev)
		assert.NotNil(err)
	})
}

func TestTimerBridge(t *testing.T) {
	assert := assert.New(t)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	scheduler := newJobScheduler(func() time.Time { return now })
	bridge := newTimerBridge(scheduler, zap.NewNop())

	description := engine.JobDescription{
		ProcessInstanceId: "pi-1",
		NodeInstanceId:    "ni-1",
		TimerId:           "timer-1",
		StartAt:           now,
		Timer:             model.Timer{Delay: "PT1M"},
	}

	t.Run("register is idempotent", func(t *testing.T) {
		assert.Nil(bridge.register(context.Background(), description))
		assert.Nil(bridge.register(context.Background(), description))

		assert.True(bridge.isRegistered("timer-1"))
		assert.Equal(1, scheduler.size())
	})

	t.Run("unregister", func(t *testing.T) {
		assert.Nil(bridge.unregister(context.Background(), "timer-1"))

		assert.False(bridge.isRegistered("timer-1"))
		assert.Equal(0, scheduler.size())
	})

	t.Run("unregister unknown timer", func(t *testing.T) {
		assert.Nil(bridge.unregister(context.Background(), "timer-2"))
	})

	t.Run("returns error when timer is invalid", func(t *testing.T) {
		invalid := description
		invalid.TimerId = "timer-3"
		invalid.Timer = model.Timer{}

		assert.NotNil(bridge.register(context.Background(), invalid))
		assert.False(bridge.isRegistered("timer-3"))
	})
}
