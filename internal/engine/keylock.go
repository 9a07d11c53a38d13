package engine

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// keyLock is a table of mutexes keyed by string. Entries are reference
// counted and removed when the last holder or waiter releases them, so the
// table only holds keys that are currently in use.
type keyLock struct {
	entries *xsync.Map[string, *keyEntry]
}

type keyEntry struct {
	mu   sync.Mutex
	refs int // guarded by the map's per-key Compute
}

func newKeyLock() *keyLock {
	return &keyLock{entries: xsync.NewMap[string, *keyEntry]()}
}

// Lock blocks until key is held and returns the function that releases it.
func (k *keyLock) Lock(key string) (unlock func()) {
	entry, _ := k.entries.Compute(key, func(e *keyEntry, loaded bool) (*keyEntry, xsync.ComputeOp) {
		if !loaded {
			e = &keyEntry{}
		}
		e.refs++
		return e, xsync.UpdateOp
	})

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			k.entries.Compute(key, func(e *keyEntry, loaded bool) (*keyEntry, xsync.ComputeOp) {
				e.refs--
				if e.refs == 0 {
					return nil, xsync.DeleteOp
				}
				return e, xsync.UpdateOp
			})
		})
	}
}

// Len returns the number of keys currently held or awaited.
func (k *keyLock) Len() int {
	return k.entries.Size()
}
