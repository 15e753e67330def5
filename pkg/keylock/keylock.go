// Package keylock provides per-key mutual exclusion so that read-modify-write
// sequences against the same record are serialized without a global lock.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyLock hands out one mutex per key. Entries are reclaimed once the last
// holder releases, so the map stays bounded by the number of in-flight keys.
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty KeyLock.
func New() *KeyLock {
	return &KeyLock{entries: make(map[string]*entry)}
}

// Lock blocks until the lock for key is held by the caller.
func (k *KeyLock) Lock(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the lock for key. It must pair with a prior Lock on the
// same key from the same goroutine.
func (k *KeyLock) Unlock(key string) {
	k.mu.Lock()
	e := k.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}
