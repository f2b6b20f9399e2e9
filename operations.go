package expiringcache

import (
	"context"

	"github.com/karupanerura/expiring-cache/internal/panicutil"
)

// Get returns the value for key. On a miss with read-through enabled, the
// value is loaded from the Loader and stored.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V
	if err := c.checkKey(key); err != nil {
		return zero, false, err
	}
	c.cleanUp(ctx)
	defer c.cleanUp(ctx)

	var events eventBatch[K, V]
	c.locks.RLock(key)
	v, ok := c.access(key, &events)
	c.locks.RUnlock(key)
	err := c.dispatch(ctx, &events)
	if ok {
		c.stats.hit(1)
		return v, true, err
	}
	c.stats.miss(1)
	if !c.options.readThrough {
		return zero, false, err
	}

	v, ok, lerr := c.loadThrough(ctx, key)
	return v, ok, joinErrors(err, lerr)
}

// ContainsKey reports whether key has an unexpired entry. It does not load
// and does not count as an access.
func (c *Cache[K, V]) ContainsKey(ctx context.Context, key K) (bool, error) {
	if err := c.checkKey(key); err != nil {
		return false, err
	}
	c.cleanUp(ctx)

	c.locks.RLock(key)
	defer c.locks.RUnlock(key)

	b := c.table.Bucket(key)
	b.RLock()
	defer b.RUnlock()

	e, ok := b.Get(key)
	return ok && e.expiresAt > c.now(), nil
}

// Put stores value under key.
func (c *Cache[K, V]) Put(ctx context.Context, key K, value V) error {
	if err := c.checkEntry(key, value); err != nil {
		return err
	}
	return c.withLock(ctx, key, func(events *eventBatch[K, V]) error {
		if err := c.writeThrough(ctx, key, value); err != nil {
			return err
		}
		c.store(key, value, events)
		return nil
	})
}

// GetAndPut stores value under key and returns the previous value.
func (c *Cache[K, V]) GetAndPut(ctx context.Context, key K, value V) (V, bool, error) {
	var old V
	var existed bool
	if err := c.checkEntry(key, value); err != nil {
		return old, false, err
	}
	err := c.withLock(ctx, key, func(events *eventBatch[K, V]) error {
		if err := c.writeThrough(ctx, key, value); err != nil {
			return err
		}
		old, existed = c.store(key, value, events)
		return nil
	})
	c.countLookup(existed)
	return old, existed, err
}

// PutIfAbsent stores value under key only if key has no unexpired entry.
// It reports whether the value was stored.
func (c *Cache[K, V]) PutIfAbsent(ctx context.Context, key K, value V) (bool, error) {
	if err := c.checkEntry(key, value); err != nil {
		return false, err
	}
	var stored bool
	err := c.withLock(ctx, key, func(events *eventBatch[K, V]) error {
		if _, ok := c.peek(key, events); ok {
			return nil
		}
		if err := c.writeThrough(ctx, key, value); err != nil {
			return err
		}
		c.store(key, value, events)
		stored = true
		return nil
	})
	return stored, err
}

// Remove removes key. It reports whether an unexpired entry was removed.
// With a Writer, the key is deleted from the external store even if it is not cached.
func (c *Cache[K, V]) Remove(ctx context.Context, key K) (bool, error) {
	if err := c.checkKey(key); err != nil {
		return false, err
	}
	var removed bool
	err := c.withLock(ctx, key, func(events *eventBatch[K, V]) error {
		if err := c.deleteThrough(ctx, key); err != nil {
			return err
		}
		_, removed = c.delete(key, events)
		return nil
	})
	return removed, err
}

// RemoveIfEquals removes key only if its current value equals expected.
func (c *Cache[K, V]) RemoveIfEquals(ctx context.Context, key K, expected V) (bool, error) {
	if err := c.checkEntry(key, expected); err != nil {
		return false, err
	}
	var removed bool
	err := c.withLock(ctx, key, func(events *eventBatch[K, V]) error {
		current, ok := c.peek(key, events)
		if !ok {
			c.stats.miss(1)
			return nil
		}
		c.stats.hit(1)
		if !c.options.equal(current, expected) {
			c.touch(key, events)
			return nil
		}
		if err := c.deleteThrough(ctx, key); err != nil {
			return err
		}
		_, removed = c.delete(key, events)
		return nil
	})
	return removed, err
}

// GetAndRemove removes key and returns the removed value.
func (c *Cache[K, V]) GetAndRemove(ctx context.Context, key K) (V, bool, error) {
	var old V
	var existed bool
	if err := c.checkKey(key); err != nil {
		return old, false, err
	}
	err := c.withLock(ctx, key, func(events *eventBatch[K, V]) error {
		if err := c.deleteThrough(ctx, key); err != nil {
			return err
		}
		old, existed = c.delete(key, events)
		return nil
	})
	c.countLookup(existed)
	return old, existed, err
}

// Replace stores value under key only if key has an unexpired entry.
// If the entry expires while the Writer runs, nothing is stored and Replace reports false.
func (c *Cache[K, V]) Replace(ctx context.Context, key K, value V) (bool, error) {
	if err := c.checkEntry(key, value); err != nil {
		return false, err
	}
	var replaced bool
	err := c.withLock(ctx, key, func(events *eventBatch[K, V]) error {
		if _, ok := c.peek(key, events); !ok {
			c.stats.miss(1)
			return nil
		}
		c.stats.hit(1)
		if err := c.writeThrough(ctx, key, value); err != nil {
			return err
		}
		_, replaced = c.update(key, value, events)
		return nil
	})
	return replaced, err
}

// ReplaceIfEquals stores value under key only if the current value equals expected.
func (c *Cache[K, V]) ReplaceIfEquals(ctx context.Context, key K, expected, value V) (bool, error) {
	if err := c.checkEntry(key, value); err != nil {
		return false, err
	}
	if isNil(expected) {
		return false, c.checkEntry(key, expected)
	}
	var replaced bool
	err := c.withLock(ctx, key, func(events *eventBatch[K, V]) error {
		current, ok := c.peek(key, events)
		if !ok {
			c.stats.miss(1)
			return nil
		}
		c.stats.hit(1)
		if !c.options.equal(current, expected) {
			c.touch(key, events)
			return nil
		}
		if err := c.writeThrough(ctx, key, value); err != nil {
			return err
		}
		_, replaced = c.update(key, value, events)
		return nil
	})
	return replaced, err
}

// GetAndReplace stores value under key only if key has an unexpired entry,
// and returns the previous value.
func (c *Cache[K, V]) GetAndReplace(ctx context.Context, key K, value V) (V, bool, error) {
	var old V
	var existed bool
	if err := c.checkEntry(key, value); err != nil {
		return old, false, err
	}
	err := c.withLock(ctx, key, func(events *eventBatch[K, V]) error {
		if _, ok := c.peek(key, events); !ok {
			return nil
		}
		if err := c.writeThrough(ctx, key, value); err != nil {
			return err
		}
		old, existed = c.update(key, value, events)
		return nil
	})
	c.countLookup(existed)
	return old, existed, err
}

// Clear removes every entry without firing events, counting statistics or calling the Writer.
func (c *Cache[K, V]) Clear() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.clear()
	c.logger.Debug().Msg("cleared")
	c.stats.size(0)
	return nil
}

func (c *Cache[K, V]) countLookup(hit bool) {
	if hit {
		c.stats.hit(1)
	} else {
		c.stats.miss(1)
	}
}

// writeThrough hands the entry to the Writer. The caller holds the write lock of key.
func (c *Cache[K, V]) writeThrough(ctx context.Context, key K, value V) error {
	if c.options.writer == nil {
		return nil
	}
	err := panicutil.Guard("writer", func() error {
		return c.options.writer.Write(ctx, &Entry[K, V]{Key: key, Value: value})
	})
	if err != nil {
		return &WriterError[K]{Keys: []K{key}, Err: err}
	}
	return nil
}

// deleteThrough deletes key with the Writer. The caller holds the write lock of key.
func (c *Cache[K, V]) deleteThrough(ctx context.Context, key K) error {
	if c.options.writer == nil {
		return nil
	}
	err := panicutil.Guard("writer", func() error {
		return c.options.writer.Delete(ctx, key)
	})
	if err != nil {
		return &WriterError[K]{Keys: []K{key}, Err: err}
	}
	return nil
}
