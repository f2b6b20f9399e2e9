package expiringcache

import (
	"context"
	"slices"

	"github.com/karupanerura/expiring-cache/internal/panicutil"
)

// loadThrough loads key after a miss. The key is locked for writing, so
// concurrent misses on the same key load once and the others see the stored value.
func (c *Cache[K, V]) loadThrough(ctx context.Context, key K) (V, bool, error) {
	var v V
	var found bool
	err := c.withLock(ctx, key, func(events *eventBatch[K, V]) error {
		var ok bool
		if v, ok = c.access(key, events); ok {
			found = true
			return nil
		}

		loaded, ok, err := c.load(ctx, key)
		if err != nil || !ok {
			return err
		}
		c.storeLoaded(key, loaded, events)
		v, found = loaded, true
		return nil
	})
	return v, found, err
}

// storeLoaded stores a loaded value. Loaded values are not written through.
// The caller holds the write lock of key.
func (c *Cache[K, V]) storeLoaded(key K, value V, events *eventBatch[K, V]) {
	c.store(key, value, events)
}

// load calls the Loader. A nil value from the Loader is treated as absent.
func (c *Cache[K, V]) load(ctx context.Context, key K) (V, bool, error) {
	var v V
	var ok bool
	err := panicutil.Guard("loader", func() (err error) {
		v, ok, err = c.options.loader.Load(ctx, key)
		return
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("load failed")
		return v, false, &LoaderError[K]{Keys: []K{key}, Err: err}
	}
	if !ok || isNil(v) {
		var zero V
		return zero, false, nil
	}
	return v, true, nil
}

// loadAll calls the Loader for keys. Values for keys that were not requested,
// and nil values, are dropped.
func (c *Cache[K, V]) loadAll(ctx context.Context, keys []K) (map[K]V, error) {
	var loaded map[K]V
	err := panicutil.Guard("loader", func() (err error) {
		loaded, err = c.options.loader.LoadAll(ctx, keys)
		return
	})
	if err != nil {
		c.logger.Warn().Err(err).Int("keys", len(keys)).Msg("load failed")
		return nil, &LoaderError[K]{Keys: keys, Err: err}
	}

	result := make(map[K]V, len(keys))
	for _, key := range keys {
		if v, ok := loaded[key]; ok && !isNil(v) {
			result[key] = v
		}
	}
	return result, nil
}

// GetAll returns the unexpired values of keys. With read-through enabled,
// the missing keys are loaded in one Loader call and stored.
// Keys without a value are omitted from the result.
func (c *Cache[K, V]) GetAll(ctx context.Context, keys []K) (map[K]V, error) {
	if err := c.checkKeys(keys); err != nil {
		return nil, err
	}
	keys = uniqueKeys(keys)
	c.cleanUp(ctx)
	defer c.cleanUp(ctx)

	result := make(map[K]V, len(keys))
	var missing []K
	var events eventBatch[K, V]
	for _, key := range keys {
		c.locks.RLock(key)
		v, ok := c.access(key, &events)
		c.locks.RUnlock(key)
		if ok {
			result[key] = v
		} else {
			missing = append(missing, key)
		}
	}
	c.stats.hit(len(result))
	c.stats.miss(len(missing))
	err := c.dispatch(ctx, &events)
	if len(missing) == 0 || !c.options.readThrough {
		return result, err
	}

	lerr := c.withLocks(ctx, missing, func(events *eventBatch[K, V]) error {
		var toLoad []K
		for _, key := range missing {
			if v, ok := c.access(key, events); ok {
				result[key] = v
			} else {
				toLoad = append(toLoad, key)
			}
		}
		if len(toLoad) == 0 {
			return nil
		}

		loaded, err := c.loadAll(ctx, toLoad)
		if err != nil {
			return err
		}
		for _, key := range toLoad {
			if v, ok := loaded[key]; ok {
				c.storeLoaded(key, v, events)
				result[key] = v
			}
		}
		return nil
	})
	return result, joinErrors(err, lerr)
}

// LoadAll loads keys from the Loader in the background and stores the values.
// Keys that have an unexpired entry are skipped unless replaceExisting is set.
// onDone, if not nil, is called with the outcome once the load finishes;
// it is called right away with ErrNotOpen, ErrNoLoader or ErrInvalidArgument
// if the load cannot start.
func (c *Cache[K, V]) LoadAll(ctx context.Context, keys []K, replaceExisting bool, onDone func(error)) {
	done := func(err error) {
		if onDone != nil {
			onDone(err)
		}
	}
	if err := c.checkKeys(keys); err != nil {
		done(err)
		return
	}
	if c.options.loader == nil {
		done(ErrNoLoader)
		return
	}

	keys = uniqueKeys(keys)
	task := func() {
		err := c.loadAllAndStore(ctx, keys, replaceExisting)
		if err != nil {
			c.logger.Warn().Err(err).Int("keys", len(keys)).Msg("background load failed")
		}
		done(err)
	}
	if c.options.executor != nil {
		c.options.executor.Go(task)
		return
	}

	c.closing.RLock()
	defer c.closing.RUnlock()
	if c.closed.Load() {
		done(ErrNotOpen)
		return
	}
	c.tasks.Go(task)
}

func (c *Cache[K, V]) loadAllAndStore(ctx context.Context, keys []K, replaceExisting bool) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.withLocks(ctx, keys, func(events *eventBatch[K, V]) error {
		toLoad := keys
		if !replaceExisting {
			toLoad = slices.DeleteFunc(slices.Clone(keys), func(key K) bool {
				_, ok := c.peek(key, events)
				return ok
			})
		}
		if len(toLoad) == 0 {
			return nil
		}

		loaded, err := c.loadAll(ctx, toLoad)
		if err != nil {
			return err
		}
		for _, key := range toLoad {
			if v, ok := loaded[key]; ok {
				c.storeLoaded(key, v, events)
			}
		}
		return nil
	})
}

// uniqueKeys drops repeated keys, keeping the first occurrence of each.
func uniqueKeys[K KeyConstraint](keys []K) []K {
	seen := make(map[K]struct{}, len(keys))
	return slices.DeleteFunc(slices.Clone(keys), func(key K) bool {
		if _, ok := seen[key]; ok {
			return true
		}
		seen[key] = struct{}{}
		return false
	})
}
