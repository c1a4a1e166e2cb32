package schedule

import "sync"

// Locks hands out one mutex per key so that a busy-check and the write it
// gates can run atomically for a single user while different users proceed
// in parallel. Mutexes are created on demand and kept for the process
// lifetime; the key space (user ids) is small enough that no eviction is
// needed.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{locks: map[string]*sync.Mutex{}}
}

func (l *Locks) lock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

// Do runs fn while holding the mutex for key.
func (l *Locks) Do(key string, fn func() error) error {
	m := l.lock(key)
	m.Lock()
	defer m.Unlock()
	return fn()
}
