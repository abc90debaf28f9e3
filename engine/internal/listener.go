package internal

import (
	"sync"

	"github.com/gclaussn/go-procengine/engine"
)

type listenerEntry struct {
	id       int
	listener engine.Listener
}

// listenerRegistry is a lock protected registry. Listeners are notified using a copy of the registered listeners.
type listenerRegistry struct {
	mutex   sync.RWMutex
	entries []listenerEntry
	nextId  int
}

func (r *listenerRegistry) add(listener engine.Listener) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.nextId++

	entries := make([]listenerEntry, len(r.entries), len(r.entries)+1)
	copy(entries, r.entries)
	r.entries = append(entries, listenerEntry{id: r.nextId, listener: listener})

	return r.nextId
}

func (r *listenerRegistry) notify(event engine.Event) {
	r.mutex.RLock()
	entries := r.entries
	r.mutex.RUnlock()

	for _, entry := range entries {
		entry.listener(event)
	}
}

func (r *listenerRegistry) remove(id int) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, entry := range r.entries {
		if entry.id != id {
			continue
		}

		entries := make([]listenerEntry, 0, len(r.entries)-1)
		entries = append(entries, r.entries[:i]...)
		entries = append(entries, r.entries[i+1:]...)
		r.entries = entries
		return true
	}

	return false
}
