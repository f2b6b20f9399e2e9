// Package table provides the primary key to entry map of the cache.
//
// The map is split into buckets, each guarded by its own reader/writer lock, so
// operations on keys of different buckets never contend. Callers lock a bucket
// explicitly and use its accessors while holding the lock; this lets a caller
// keep the bucket locked across related changes made elsewhere.
package table

import "sync"

// DefaultBucketsSize is the default number of buckets.
var DefaultBucketsSize = 64

// Bucket is one partition of the table. Its accessors require the caller to
// hold the embedded lock: RLock for Get, Len and Keys; Lock for Put and Delete.
type Bucket[K comparable, E any] struct {
	sync.RWMutex
	m map[K]E
}

// Get returns the entry stored for key.
func (b *Bucket[K, E]) Get(key K) (E, bool) {
	e, ok := b.m[key]
	return e, ok
}

// Put stores e for key.
func (b *Bucket[K, E]) Put(key K, e E) {
	b.m[key] = e
}

// Delete removes key.
func (b *Bucket[K, E]) Delete(key K) {
	delete(b.m, key)
}

// Len returns the number of entries in the bucket.
func (b *Bucket[K, E]) Len() int {
	return len(b.m)
}

// Keys returns a snapshot of the keys in the bucket.
func (b *Bucket[K, E]) Keys() []K {
	keys := make([]K, 0, len(b.m))
	for k := range b.m {
		keys = append(keys, k)
	}
	return keys
}

// Table is a bucketed map.
type Table[K comparable, E any] struct {
	buckets []*Bucket[K, E]
	hash    func(K) int
}

// New creates a table with the given number of buckets.
// The number of buckets must be a natural number.
func New[K comparable, E any](hash func(K) int, bucketsSize int) *Table[K, E] {
	if bucketsSize <= 0 {
		panic("bucketsSize must be natural number")
	}
	buckets := make([]*Bucket[K, E], bucketsSize)
	for i := range buckets {
		buckets[i] = &Bucket[K, E]{m: map[K]E{}}
	}
	return &Table[K, E]{buckets: buckets, hash: hash}
}

// Bucket returns the bucket that owns key.
func (t *Table[K, E]) Bucket(key K) *Bucket[K, E] {
	return t.buckets[t.IndexOf(key)]
}

// IndexOf returns the position of the bucket that owns key.
func (t *Table[K, E]) IndexOf(key K) int {
	if len(t.buckets) == 1 {
		return 0
	}
	index := t.hash(key) % len(t.buckets)
	if index < 0 {
		index *= -1
	}
	return index
}

// BucketAt returns the i-th bucket.
func (t *Table[K, E]) BucketAt(i int) *Bucket[K, E] {
	return t.buckets[i]
}

// NumBuckets returns the number of buckets.
func (t *Table[K, E]) NumBuckets() int {
	return len(t.buckets)
}

// Len returns the number of entries. Buckets are read one at a time, so the
// result is not a snapshot under concurrent writes.
func (t *Table[K, E]) Len() int {
	n := 0
	for _, b := range t.buckets {
		b.RLock()
		n += b.Len()
		b.RUnlock()
	}
	return n
}

// Keys returns the keys of all buckets, read one bucket at a time.
func (t *Table[K, E]) Keys() []K {
	var keys []K
	for _, b := range t.buckets {
		b.RLock()
		keys = append(keys, b.Keys()...)
		b.RUnlock()
	}
	return keys
}
