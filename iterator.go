package expiringcache

import (
	"context"
	"iter"
)

// Iterator walks the entries of a cache one table bucket at a time.
// Entries added or removed during the walk may or may not be visited.
// Visiting an entry counts as an access.
type Iterator[K KeyConstraint, V ValueConstraint] struct {
	cache  *Cache[K, V]
	ctx    context.Context
	bucket int
	keys   []K
	pos    int

	current Entry[K, V]
	valid   bool
	err     error
}

// Iterator returns an iterator positioned before the first entry.
func (c *Cache[K, V]) Iterator(ctx context.Context) *Iterator[K, V] {
	return &Iterator[K, V]{cache: c, ctx: ctx}
}

// Next advances to the next unexpired entry. It returns false when there are
// no more entries or when the cache is closed, in which case Err returns ErrNotOpen.
func (it *Iterator[K, V]) Next() bool {
	it.valid = false
	c := it.cache
	if err := c.checkOpen(); err != nil {
		it.err = err
		return false
	}
	c.cleanUp(it.ctx)

	for {
		for it.pos < len(it.keys) {
			key := it.keys[it.pos]
			it.pos++

			var events eventBatch[K, V]
			c.locks.RLock(key)
			v, ok := c.access(key, &events)
			c.locks.RUnlock(key)
			if err := c.dispatch(it.ctx, &events); err != nil {
				it.err = joinErrors(it.err, err)
			}
			if ok {
				c.stats.hit(1)
				it.current = Entry[K, V]{Key: key, Value: v}
				it.valid = true
				return true
			}
		}

		if it.bucket >= c.table.NumBuckets() {
			it.keys = nil
			return false
		}
		b := c.table.BucketAt(it.bucket)
		it.bucket++
		b.RLock()
		it.keys = b.Keys()
		b.RUnlock()
		it.pos = 0
	}
}

// Entry returns the current entry.
func (it *Iterator[K, V]) Entry() Entry[K, V] {
	return it.current
}

// Key returns the key of the current entry.
func (it *Iterator[K, V]) Key() K {
	return it.current.Key
}

// Value returns the value of the current entry.
func (it *Iterator[K, V]) Value() V {
	return it.current.Value
}

// Remove removes the current entry like Cache.Remove does.
// It returns ErrInvalidState if Next was not called or the entry was already removed.
func (it *Iterator[K, V]) Remove() error {
	if !it.valid {
		return ErrInvalidState
	}
	it.valid = false
	_, err := it.cache.Remove(it.ctx, it.current.Key)
	return err
}

// Err returns the error that stopped the iteration or listener failures seen during it.
func (it *Iterator[K, V]) Err() error {
	return it.err
}

// All returns an iterator over the unexpired entries.
func (c *Cache[K, V]) All(ctx context.Context) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		it := c.Iterator(ctx)
		for it.Next() {
			if !yield(it.Key(), it.Value()) {
				return
			}
		}
	}
}
