package worker

import (
	"testing"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/stretchr/testify/assert"
)

func TestVariables(t *testing.T) {
	assert := assert.New(t)

	variables := Variables{}

	// when
	variables.Put("a", "va")
	variables.Put("", "ignored")
	variables.Put("nil", nil)
	variables.PutText("b", 42)
	variables.Delete("c")

	// then
	assert.Len(variables, 3)
	assert.Equal(typedValue{v: "va"}, variables["a"])
	assert.Equal(typedValue{encoding: TextEncoding, v: 42}, variables["b"])
	assert.Equal(typedValue{}, variables["c"])

	// when
	variables.PutEncoded("c", "custom", "vc")

	// then
	assert.Equal(typedValue{encoding: "custom", v: "vc"}, variables["c"])
}

func TestDecode(t *testing.T) {
	assert := assert.New(t)

	w, err := New()
	if err != nil {
		t.Fatalf("failed to create worker: %v", err)
	}

	t.Run("json", func(t *testing.T) {
		var value []int
		assert.NoError(w.decode(engine.Data{Encoding: "json", Value: "[1,2]"}, &value))
		assert.Equal([]int{1, 2}, value)
	})

	t.Run("default encoding", func(t *testing.T) {
		var value map[string]string
		assert.NoError(w.decode(engine.Data{Value: `{"a":"b"}`}, &value))
		assert.Equal(map[string]string{"a": "b"}, value)
	})

	t.Run("text", func(t *testing.T) {
		var value string
		assert.NoError(w.decode(engine.Data{Encoding: "text", Value: "plain"}, &value))
		assert.Equal("plain", value)
	})

	t.Run("returns error when encoding is unknown", func(t *testing.T) {
		var value string
		assert.EqualError(w.decode(engine.Data{Encoding: "xml", Value: "<a/>"}, &value), "no decoder registered for xml")
	})

	t.Run("encoded value is decoded", func(t *testing.T) {
		// given
		type order struct {
			Amount int `json:"amount"`
		}

		data, err := w.encode(typedValue{v: order{Amount: 10}})
		assert.NoError(err)

		// when
		var decoded order
		err = w.decode(*data, &decoded)

		// then
		assert.NoError(err)
		assert.Equal(order{Amount: 10}, decoded)
	})
}
