package internal

import (
	"sync"
	"testing"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/stretchr/testify/assert"
)

func TestLockMap(t *testing.T) {
	assert := assert.New(t)

	m := newLockMap()

	var (
		wg      sync.WaitGroup
		counter int
	)

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock := m.lock("a")
			defer unlock()

			counter++
		}()
	}

	wg.Wait()

	assert.Equal(100, counter)
	assert.Equal(0, m.size())

	t.Run("different IDs", func(t *testing.T) {
		unlockA := m.lock("a")
		unlockB := m.lock("b")
		assert.Equal(2, m.size())

		unlockA()
		unlockB()
		assert.Equal(0, m.size())
	})
}

func TestListenerRegistry(t *testing.T) {
	assert := assert.New(t)

	r := &listenerRegistry{}

	var a, b int
	idA := r.add(func(engine.Event) { a++ })
	idB := r.add(func(engine.Event) { b++ })
	assert.NotEqual(idA, idB)

	r.notify(engine.Event{})
	assert.Equal(1, a)
	assert.Equal(1, b)

	assert.True(r.remove(idA))
	assert.False(r.remove(idA))

	r.notify(engine.Event{})
	assert.Equal(1, a)
	assert.Equal(2, b)
}
