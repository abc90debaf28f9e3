package mem

import (
	"context"
	"testing"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/engine/internal"
	"github.com/gclaussn/go-procengine/engine/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestStore(t *testing.T) {
	suite.Run(t, &storetest.StoreSuite{
		NewStore: func() (internal.Store, error) {
			return newMemStore(), nil
		},
	})
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	t.Run("returns error when options are invalid", func(t *testing.T) {
		_, err := New(func(o *Options) {
			o.Common.EngineId = ""
		})
		assert.NotNil(err)
	})
}

func TestSetTime(t *testing.T) {
	assert := assert.New(t)

	e := mustCreateEngine(t)
	defer e.Shutdown()

	t.Run("returns error when time is before engine time", func(t *testing.T) {
		err := e.SetTime(context.Background(), engine.SetTimeCmd{Time: time.Now().Add(-time.Hour)})
		assert.IsTypef(engine.Error{}, err, "expected engine error")

		engineErr := err.(engine.Error)
		assert.Equal(engine.ErrorConflict, engineErr.Type)
	})

	t.Run("set time", func(t *testing.T) {
		// given
		newTime := time.Now().Add(time.Hour).UTC()

		// when
		err := e.SetTime(context.Background(), engine.SetTimeCmd{Time: newTime})

		// then
		assert.Nil(err)

		// when called again
		time.Sleep(10 * time.Millisecond)
		err = e.SetTime(context.Background(), engine.SetTimeCmd{Time: newTime})

		// then
		assert.IsTypef(engine.Error{}, err, "expected engine error")

		engineErr := err.(engine.Error)
		assert.Equal(engine.ErrorConflict, engineErr.Type)
	})
}

func mustCreateEngine(t *testing.T) engine.Engine {
	e, err := New()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e
}
