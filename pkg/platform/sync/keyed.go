package sync

import (
	"sync"
)

// KeyedMutex provides an independent mutex per key. Unlike a fixed shard
// array, distinct keys never contend with each other, so a TryLock failure
// always means the same key is genuinely held. The engine uses it keyed by
// tenant id to guard audit cycles.
//
// Entries are reference-counted and removed when the last holder or waiter
// releases, so the registry does not grow with the key space.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until the lock for key is acquired.
func (m *KeyedMutex) Lock(key string) {
	m.mu.Lock()
	l := m.entry(key)
	l.refs++
	m.mu.Unlock()
	l.mu.Lock()
}

// TryLock attempts to acquire the lock for key without blocking and reports
// whether it succeeded. Callers that fail to acquire must not Unlock.
func (m *KeyedMutex) TryLock(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.entry(key)
	if !l.mu.TryLock() {
		return false
	}
	l.refs++
	return true
}

// Unlock releases the lock for key. Unlocking a key that is not held panics,
// same as sync.Mutex.
func (m *KeyedMutex) Unlock(key string) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		m.mu.Unlock()
		panic("sync: Unlock of unheld key " + key)
	}
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
	l.mu.Unlock()
}

// entry returns the lock for key, creating it if absent. Callers hold m.mu.
func (m *KeyedMutex) entry(key string) *keyLock {
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	return l
}
