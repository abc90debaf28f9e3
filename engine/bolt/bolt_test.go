package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/engine/internal"
	"github.com/gclaussn/go-procengine/engine/internal/storetest"
	"github.com/gclaussn/go-procengine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestStore(t *testing.T) {
	suite.Run(t, &storetest.StoreSuite{
		NewStore: func() (internal.Store, error) {
			return openBoltStore(filepath.Join(t.TempDir(), "test.db"), time.Second)
		},
	})
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	t.Run("returns error when path is empty", func(t *testing.T) {
		_, err := New("")
		assert.NotNil(err)
	})

	t.Run("returns error when timeout is not positive", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "test.db"), func(o *Options) {
			o.Timeout = 0
		})
		assert.NotNil(err)
	})
}

func TestRecover(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "test.db")

	process := model.NewBuilder("wait", "1").
		Start("S").
		Event("W", "go").
		End("E").
		Connect("S", "W").
		Connect("W", "E").
		Build()

	customizer := func(o *Options) {
		o.Common.JobExecutorEnabled = false
		o.Common.Processes = []*model.Process{process}
	}

	// given
	e1, err := New(path, customizer)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	pi, err := e1.StartProcessInstance(context.Background(), engine.StartProcessInstanceCmd{
		ProcessId:   "wait",
		Correlation: engine.Correlation{"orderId": "1"},
	})
	if err != nil {
		t.Fatalf("failed to start process instance: %v", err)
	}

	e1.Shutdown()

	// when
	e2, err := New(path, customizer)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer e2.Shutdown()

	result, err := e2.SignalProcessInstance(context.Background(), engine.SignalProcessInstanceCmd{
		Correlation: engine.Correlation{"orderId": "1"},
		EventType:   "go",
	})

	// then
	assert.Nil(err)
	assert.True(result.Success)
	assert.Equal(pi.Id, result.ProcessInstance.Id)
	assert.Equal(engine.InstanceCompleted, result.ProcessInstance.State)

	completed, err := e2.GetProcessInstance(context.Background(), engine.GetProcessInstanceCmd{Id: pi.Id})
	assert.Nil(err)
	assert.Equal(engine.InstanceCompleted, completed.State)
}
