package expiringcache

import (
	"context"
	"fmt"

	"github.com/karupanerura/expiring-cache/internal/panicutil"
)

// PutAll stores every entry of m. With a Writer, the entries are written in
// one call first and only the entries the Writer acknowledged are stored; the
// others are reported by a *WriterError.
func (c *Cache[K, V]) PutAll(ctx context.Context, m map[K]V) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	keys := make([]K, 0, len(m))
	for key, value := range m {
		if isNil(key) {
			return fmt.Errorf("%w: key is nil", ErrInvalidArgument)
		}
		if isNil(value) {
			return fmt.Errorf("%w: value is nil", ErrInvalidArgument)
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}

	return c.withLocks(ctx, keys, func(events *eventBatch[K, V]) error {
		entries := make([]*Entry[K, V], 0, len(keys))
		for _, key := range keys {
			entries = append(entries, &Entry[K, V]{Key: key, Value: m[key]})
		}

		written, err := c.writeAllThrough(ctx, entries)
		for _, e := range written {
			c.store(e.Key, e.Value, events)
		}
		return err
	})
}

// RemoveAll removes keys. With a Writer, the keys are deleted in one call
// first and only the keys the Writer acknowledged are removed; the others are
// reported by a *WriterError.
func (c *Cache[K, V]) RemoveAll(ctx context.Context, keys []K) error {
	if err := c.checkKeys(keys); err != nil {
		return err
	}
	keys = uniqueKeys(keys)
	if len(keys) == 0 {
		return nil
	}

	return c.withLocks(ctx, keys, func(events *eventBatch[K, V]) error {
		deleted, err := c.deleteAllThrough(ctx, keys)
		for _, key := range deleted {
			c.delete(key, events)
		}
		return err
	})
}

// RemoveEverything removes every entry the way RemoveAll does, with events,
// statistics and Writer calls. Entries added concurrently may survive.
func (c *Cache[K, V]) RemoveEverything(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.RemoveAll(ctx, c.table.Keys())
}

// writeAllThrough hands entries to the Writer and returns the acknowledged ones.
func (c *Cache[K, V]) writeAllThrough(ctx context.Context, entries []*Entry[K, V]) ([]*Entry[K, V], error) {
	if c.options.writer == nil {
		return entries, nil
	}

	var unwritten []*Entry[K, V]
	err := panicutil.Guard("writer", func() (err error) {
		unwritten, err = c.options.writer.WriteAll(ctx, entries)
		return
	})
	if err == nil && len(unwritten) == 0 {
		return entries, nil
	}
	if err != nil && unwritten == nil {
		unwritten = entries
	}
	if err == nil {
		err = ErrWriteRejected
	}

	rejected := make(map[K]struct{}, len(unwritten))
	keys := make([]K, 0, len(unwritten))
	for _, e := range unwritten {
		if _, ok := rejected[e.Key]; !ok {
			rejected[e.Key] = struct{}{}
			keys = append(keys, e.Key)
		}
	}
	written := make([]*Entry[K, V], 0, len(entries)-len(rejected))
	for _, e := range entries {
		if _, ok := rejected[e.Key]; !ok {
			written = append(written, e)
		}
	}
	c.logger.Warn().Err(err).Int("unwritten", len(keys)).Msg("write failed")
	return written, &WriterError[K]{Keys: keys, Err: err}
}

// deleteAllThrough deletes keys with the Writer and returns the acknowledged ones.
func (c *Cache[K, V]) deleteAllThrough(ctx context.Context, keys []K) ([]K, error) {
	if c.options.writer == nil {
		return keys, nil
	}

	var undeleted []K
	err := panicutil.Guard("writer", func() (err error) {
		undeleted, err = c.options.writer.DeleteAll(ctx, keys)
		return
	})
	if err == nil && len(undeleted) == 0 {
		return keys, nil
	}
	if err != nil && undeleted == nil {
		undeleted = keys
	}
	if err == nil {
		err = ErrWriteRejected
	}

	rejected := make(map[K]struct{}, len(undeleted))
	for _, key := range undeleted {
		rejected[key] = struct{}{}
	}
	deleted := make([]K, 0, len(keys))
	failed := make([]K, 0, len(rejected))
	for _, key := range keys {
		if _, ok := rejected[key]; ok {
			failed = append(failed, key)
		} else {
			deleted = append(deleted, key)
		}
	}
	c.logger.Warn().Err(err).Int("undeleted", len(failed)).Msg("delete failed")
	return deleted, &WriterError[K]{Keys: failed, Err: err}
}
