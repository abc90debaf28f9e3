package internal

import (
	"testing"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/stretchr/testify/assert"
)

func TestEncodeCorrelation(t *testing.T) {
	assert := assert.New(t)

	a, err := EncodeCorrelation(engine.Correlation{"a": "1", "b": "2", "c": "3"})
	assert.Nil(err)

	b, err := EncodeCorrelation(engine.Correlation{"c": "3", "a": "1", "b": "2"})
	assert.Nil(err)

	c, err := EncodeCorrelation(engine.Correlation{"a": "1", "b": "2", "c": "4"})
	assert.Nil(err)

	assert.Equal(a, b)
	assert.NotEqual(a, c)
	assert.Len(a, 64)
}

func TestCorrelationService(t *testing.T) {
	assert := assert.New(t)

	s := NewCorrelationService()

	correlation := engine.Correlation{"orderId": "1"}

	t.Run("create", func(t *testing.T) {
		instance, err := s.Create(correlation, "pi-1")
		assert.Nil(err)
		assert.Equal("pi-1", instance.CorrelatedId)
		assert.Equal(correlation, instance.Correlation)
		assert.NotEmpty(instance.EncodedKey)

		found, ok, err := s.Find(engine.Correlation{"orderId": "1"})
		assert.Nil(err)
		assert.True(ok)
		assert.Equal(instance, found)

		reverse, ok := s.FindByCorrelatedId("pi-1")
		assert.True(ok)
		assert.Equal(instance, reverse)
	})

	t.Run("create again", func(t *testing.T) {
		_, err := s.Create(correlation, "pi-1")
		assert.Nil(err)
	})

	t.Run("returns error when correlation is used by another ID", func(t *testing.T) {
		_, err := s.Create(correlation, "pi-2")
		assert.IsType(engine.Error{}, err)
		assert.Equal(engine.ErrorConflict, err.(engine.Error).Type)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Nil(s.Delete(correlation))

		_, ok, err := s.Find(correlation)
		assert.Nil(err)
		assert.False(ok)

		_, ok = s.FindByCorrelatedId("pi-1")
		assert.False(ok)

		assert.Nil(s.Delete(correlation))
	})

	t.Run("delete by correlated ID", func(t *testing.T) {
		_, err := s.Create(correlation, "pi-3")
		assert.Nil(err)

		s.DeleteByCorrelatedId("pi-3")
		s.DeleteByCorrelatedId("pi-3")

		_, ok, err := s.Find(correlation)
		assert.Nil(err)
		assert.False(ok)
	})

	t.Run("create replaces previous correlation of ID", func(t *testing.T) {
		_, err := s.Create(engine.Correlation{"orderId": "4"}, "pi-4")
		assert.Nil(err)
		_, err = s.Create(engine.Correlation{"orderId": "5"}, "pi-4")
		assert.Nil(err)

		_, ok, _ := s.Find(engine.Correlation{"orderId": "4"})
		assert.False(ok)

		instance, ok := s.FindByCorrelatedId("pi-4")
		assert.True(ok)
		assert.Equal(engine.Correlation{"orderId": "5"}, instance.Correlation)
	})
}
