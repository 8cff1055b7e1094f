package manager

import "sync"

// nameLocks hands out one mutex per module name. Entries are never removed;
// the set is bounded by the number of module names ever seen.
type nameLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *nameLocks) get(name string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	return m
}

func (l *nameLocks) lock(name string) (unlock func()) {
	m := l.get(name)
	m.Lock()
	return m.Unlock
}

// tryLock is lock for callers that would rather skip a busy module.
func (l *nameLocks) tryLock(name string) (unlock func(), ok bool) {
	m := l.get(name)
	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}
