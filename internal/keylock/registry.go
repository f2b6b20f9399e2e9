package keylock

import (
	"slices"
	"sync"
)

// PoolCapacity is the maximum number of idle locks kept for reuse.
const PoolCapacity = 20

type item struct {
	lock *sync.RWMutex
	refs int
}

// Registry hands out one reader/writer lock per key.
// The zero value is not usable; create one with New.
type Registry[K comparable] struct {
	mu    sync.Mutex
	items map[K]*item
	pool  []*sync.RWMutex

	// hash orders keys for LockAll.
	hash func(K) int

	// collision serializes batches containing distinct keys with equal hashes.
	collision sync.Mutex
}

// New creates a registry. hash must be deterministic; it defines the order in
// which LockAll acquires the locks of a batch.
func New[K comparable](hash func(K) int) *Registry[K] {
	return &Registry[K]{
		items: map[K]*item{},
		pool:  make([]*sync.RWMutex, 0, PoolCapacity),
		hash:  hash,
	}
}

// RLock acquires the read lock of key.
func (r *Registry[K]) RLock(key K) {
	r.acquire(key).RLock()
}

// RUnlock releases the read lock of key.
func (r *Registry[K]) RUnlock(key K) {
	r.release(key, (*sync.RWMutex).RUnlock)
}

// Lock acquires the write lock of key.
func (r *Registry[K]) Lock(key K) {
	r.acquire(key).Lock()
}

// Unlock releases the write lock of key.
func (r *Registry[K]) Unlock(key K) {
	r.release(key, (*sync.RWMutex).Unlock)
}

// LockAll acquires the write locks of all keys and returns a function that
// releases them. Duplicated keys are locked once.
//
// Locks are taken in ascending hash order, so two batches sharing keys always
// contend in the same order. Distinct keys with an equal hash have no defined
// order between them; a batch containing such keys holds the collision mutex
// for its whole lifetime, which serializes it against every other such batch.
func (r *Registry[K]) LockAll(keys []K) (unlock func()) {
	type hashed struct {
		key  K
		hash int
	}

	seen := make(map[K]struct{}, len(keys))
	batch := make([]hashed, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		batch = append(batch, hashed{key: k, hash: r.hash(k)})
	}
	slices.SortStableFunc(batch, func(a, b hashed) int {
		switch {
		case a.hash < b.hash:
			return -1
		case a.hash > b.hash:
			return 1
		default:
			return 0
		}
	})

	collides := false
	for i := 1; i < len(batch); i++ {
		if batch[i-1].hash == batch[i].hash {
			collides = true
			break
		}
	}
	if collides {
		r.collision.Lock()
	}

	for _, h := range batch {
		r.Lock(h.key)
	}
	return func() {
		for i := len(batch) - 1; i >= 0; i-- {
			r.Unlock(batch[i].key)
		}
		if collides {
			r.collision.Unlock()
		}
	}
}

// Len returns the number of keys that currently have a lock.
func (r *Registry[K]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Pooled returns the number of idle locks available for reuse.
func (r *Registry[K]) Pooled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pool)
}

// acquire registers interest in key and returns its lock without locking it.
func (r *Registry[K]) acquire(key K) *sync.RWMutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[key]
	if !ok {
		it = &item{lock: r.take()}
		r.items[key] = it
	}
	it.refs++
	return it.lock
}

// release unlocks key with unlock and recycles its lock once no one refers to it.
func (r *Registry[K]) release(key K, unlock func(*sync.RWMutex)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[key]
	if !ok {
		panic("keylock: unlock of unlocked key")
	}
	unlock(it.lock)
	it.refs--
	if it.refs == 0 {
		delete(r.items, key)
		r.put(it.lock)
	}
}

func (r *Registry[K]) take() *sync.RWMutex {
	if l := len(r.pool); l != 0 {
		m := r.pool[l-1]
		r.pool[l-1] = nil
		r.pool = r.pool[:l-1]
		return m
	}
	return &sync.RWMutex{}
}

func (r *Registry[K]) put(m *sync.RWMutex) {
	if len(r.pool) < PoolCapacity {
		r.pool = append(r.pool, m)
	}
}
