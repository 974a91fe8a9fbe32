package engine

import "sync"

// LockManager serializes whole-document mutation sessions. Containers
// within a session still run concurrently; two sessions against the
// same document never interleave.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutation lock for a document, creating it on first
// use. Locks are never discarded within the process lifetime.
func (m *LockManager) Lock(documentID string) {
	m.mu.Lock()
	l, ok := m.locks[documentID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[documentID] = l
	}
	m.mu.Unlock()
	l.Lock()
}

// Unlock releases a document's mutation lock.
func (m *LockManager) Unlock(documentID string) {
	m.mu.Lock()
	l := m.locks[documentID]
	m.mu.Unlock()
	if l != nil {
		l.Unlock()
	}
}
