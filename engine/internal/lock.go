package internal

import "sync"

func newLockMap() *lockMap {
	return &lockMap{locks: make(map[string]*idLock)}
}

// lockMap serializes operations per ID, while operations on different IDs run in parallel.
// A lock is removed, when no goroutine holds or waits for it anymore.
type lockMap struct {
	mutex sync.Mutex
	locks map[string]*idLock
}

type idLock struct {
	mutex sync.Mutex
	refs  int
}

// lock acquires the lock of an ID and returns a function that releases it.
func (m *lockMap) lock(id string) func() {
	m.mutex.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &idLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mutex.Unlock()

	l.mutex.Lock()

	return func() {
		l.mutex.Unlock()

		m.mutex.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.mutex.Unlock()
	}
}

func (m *lockMap) size() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.locks)
}
