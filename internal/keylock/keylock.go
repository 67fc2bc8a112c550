// Package keylock provides per-key critical sections so that operations on
// distinct cache keys or sessions never contend on a single global lock.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex serializes callers holding the same key. Locks for keys with no
// waiters are released from the table to keep it bounded.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New creates an empty keyed mutex.
func New() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Lock acquires the critical section for key, blocking while another caller
// holds it.
func (m *KeyedMutex) Lock(key string) {
	m.mu.Lock()
	e := m.locks[key]
	if e == nil {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()
	e.mu.Lock()
}

// Unlock releases the critical section for key.
func (m *KeyedMutex) Unlock(key string) {
	m.mu.Lock()
	e := m.locks[key]
	if e == nil {
		m.mu.Unlock()
		panic("keylock: unlock of unheld key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
	e.mu.Unlock()
}
