// Package keylock provides per-key mutual exclusion without a global lock.
package keylock

import "sync"

// entry is a per-key mutex with the number of goroutines holding or
// waiting for it.
type entry struct {
	mu       sync.Mutex
	refCount int
}

// KeyLock hands out one mutex per key, created on demand and dropped once no
// goroutine holds or waits for it, so the table only grows with contention.
//
//	unlock := kl.Lock("acme")
//	defer unlock()
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New creates an empty KeyLock.
func New() *KeyLock {
	return &KeyLock{locks: make(map[string]*entry)}
}

// Lock acquires the exclusive lock for key and returns the function that
// releases it. The returned function must be called exactly once.
func (kl *KeyLock) Lock(key string) func() {
	e := kl.acquire(key)
	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			kl.release(key)
		})
	}
}

// TryLock acquires the lock for key only if it is free. On success it returns
// the release function and true.
func (kl *KeyLock) TryLock(key string) (func(), bool) {
	e := kl.acquire(key)
	if !e.mu.TryLock() {
		kl.release(key)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			kl.release(key)
		})
	}, true
}

func (kl *KeyLock) acquire(key string) *entry {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	e, ok := kl.locks[key]
	if !ok {
		e = &entry{}
		kl.locks[key] = e
	}
	e.refCount++
	return e
}

// release decrements the reference count and drops the entry when unused.
func (kl *KeyLock) release(key string) {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	e, ok := kl.locks[key]
	if !ok {
		return
	}
	e.refCount--
	if e.refCount == 0 {
		delete(kl.locks, key)
	}
}

// Len returns the number of keys currently held or waited on.
func (kl *KeyLock) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}
