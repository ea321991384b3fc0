package engine

import (
	"sync"

	"github.com/roach88/seiql/internal/ir"
)

// addressLocks serializes executions per database address. Entries are
// reference counted and removed when the last holder or waiter leaves.
type addressLocks struct {
	mu      sync.Mutex
	entries map[ir.Address]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newAddressLocks() *addressLocks {
	return &addressLocks{entries: make(map[ir.Address]*lockEntry)}
}

// lock blocks until addr is free and returns the matching unlock.
func (l *addressLocks) lock(addr ir.Address) func() {
	l.mu.Lock()
	e, ok := l.entries[addr]
	if !ok {
		e = &lockEntry{}
		l.entries[addr] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, addr)
		}
		l.mu.Unlock()
	}
}

// size returns the number of addresses currently held or awaited.
func (l *addressLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
