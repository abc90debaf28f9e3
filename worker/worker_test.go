package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/engine/mem"
	"github.com/gclaussn/go-procengine/model"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	assert := assert.New(t)

	_, err := New(func(o *Options) {
		o.DefaultEncoding = "xml"
	})
	assert.EqualError(err, "default decoder is nil")

	_, err = New(func(o *Options) {
		o.Decoders["xml"] = jsonDecoder{}
		o.DefaultEncoding = "xml"
	})
	assert.EqualError(err, "default encoder is nil")
}

func TestRegister(t *testing.T) {
	assert := assert.New(t)

	w, err := New()
	if err != nil {
		t.Fatalf("failed to create worker: %v", err)
	}

	handler := func(tc TaskContext) error { return nil }

	assert.NoError(w.Register("a", handler))
	assert.EqualError(w.Register("a", handler), "handler a is already registered")
	assert.EqualError(w.Register(" ", handler), "handler name must not be empty or blank")
	assert.EqualError(w.Register("b", nil), "handler b is nil")

	assert.Len(w.TaskHandlers(), 1)

	_, err = w.Execute(context.Background(), "c", engine.TaskContext{})
	assert.EqualError(err, "no handler registered for c")
}

func TestEncodeVariables(t *testing.T) {
	assert := assert.New(t)

	w, err := New()
	if err != nil {
		t.Fatalf("failed to create worker: %v", err)
	}

	variables := Variables{}
	variables.Put("a", map[string]int{"x": 1})
	variables.PutText("b", 42)
	variables.Delete("c")

	encoded, err := w.EncodeVariables(variables)
	assert.NoError(err)
	assert.Equal(&engine.Data{Encoding: "json", Value: `{"x":1}`}, encoded["a"])
	assert.Equal(&engine.Data{Encoding: "text", Value: "42"}, encoded["b"])
	assert.Contains(encoded, "c")
	assert.Nil(encoded["c"])

	variables.PutEncoded("d", "xml", "<d/>")

	_, err = w.EncodeVariables(variables)
	assert.EqualError(err, "failed to encode variable d: no encoder registered for xml")
}

func TestWorker(t *testing.T) {
	assert := assert.New(t)

	w, err := New()
	if err != nil {
		t.Fatalf("failed to create worker: %v", err)
	}

	type order struct {
		Amount int    `json:"amount"`
		Item   string `json:"item"`
	}

	_ = w.Register("charge", func(tc TaskContext) error {
		var o order
		if err := tc.Variable("order", &o); err != nil {
			return err
		}
		if o.Amount > 1000 {
			return errors.New("limit exceeded")
		}

		tc.Outcome().PutText("receipt", o.Item)
		return nil
	})

	e, err := mem.New(func(o *mem.Options) {
		o.Common.TaskHandlers = w.TaskHandlers()
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	defer e.Shutdown()

	process := model.NewBuilder("order", "1").
		Start("S").
		Task("C", "", func(node *model.Node) {
			node.Handler = "charge"
		}).
		End("E").
		Connect("S", "C").
		Connect("C", "E").
		Build()

	if _, err := e.CreateProcess(context.Background(), engine.CreateProcessCmd{Definition: process}); err != nil {
		t.Fatalf("failed to create process: %v", err)
	}

	t.Run("completes", func(t *testing.T) {
		// given
		variables := Variables{}
		variables.Put("order", order{Amount: 10, Item: "book"})

		// when
		processInstance, err := w.StartProcessInstance(context.Background(), e, engine.StartProcessInstanceCmd{ProcessId: "order"}, variables)

		// then
		assert.NoError(err)
		assert.Equal(engine.InstanceCompleted, processInstance.State)

		processVariables, err := e.GetProcessVariables(context.Background(), engine.GetProcessVariablesCmd{
			ProcessInstanceId: processInstance.Id,
			Names:             []string{"receipt"},
		})
		assert.NoError(err)
		assert.Equal(engine.Data{Encoding: "text", Value: "book"}, processVariables["receipt"])
	})

	t.Run("fails", func(t *testing.T) {
		// given
		variables := Variables{}
		variables.Put("order", order{Amount: 5000, Item: "car"})

		// when
		processInstance, err := w.StartProcessInstance(context.Background(), e, engine.StartProcessInstanceCmd{ProcessId: "order"}, variables)

		// then
		assert.NoError(err)
		assert.Equal(engine.InstanceError, processInstance.State)
		if assert.NotNil(processInstance.Error) {
			assert.Contains(processInstance.Error.Cause, "limit exceeded")
		}
	})
}
