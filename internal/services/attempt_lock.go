package services

import "sync"

// attemptLocks serializes work on a deployment attempt within this process
type attemptLocks struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newAttemptLocks() *attemptLocks {
	return &attemptLocks{active: make(map[string]struct{})}
}

func (l *attemptLocks) TryLock(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.active[id]; busy {
		return false
	}
	l.active[id] = struct{}{}
	return true
}

func (l *attemptLocks) Unlock(id string) {
	l.mu.Lock()
	delete(l.active, id)
	l.mu.Unlock()
}
