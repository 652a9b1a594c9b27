package ledger

import (
	"sort"
	"sync"
)

// keyLocks hands out one mutex per (owner, key). Entries are reference
// counted and dropped once nobody holds or waits on them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

func lockID(ownerScope, key string) string {
	return ownerScope + "\x00" + key
}

// lock blocks until (ownerScope, key) is held and returns its release func.
func (k *keyLocks) lock(ownerScope, key string) func() {
	id := lockID(ownerScope, key)

	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

// lockPair holds two keys, always acquiring them in sorted order.
func (k *keyLocks) lockPair(ownerScope, a, b string) func() {
	if a == b {
		return k.lock(ownerScope, a)
	}

	keys := []string{a, b}
	sort.Strings(keys)

	first := k.lock(ownerScope, keys[0])
	second := k.lock(ownerScope, keys[1])
	return func() {
		second()
		first()
	}
}

// size is the number of live lock entries.
func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
