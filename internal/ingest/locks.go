package ingest

import "sync"

// Locks hands out one mutex per journal. The zero value is ready to use.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Lock blocks until the journal's mutex is held and returns its unlock func.
func (l *Locks) Lock(journalID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[journalID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[journalID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
