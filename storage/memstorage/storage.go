package memstorage

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	expiringcache "github.com/karupanerura/expiring-cache"
	"github.com/karupanerura/expiring-cache/internal/table"
	"github.com/karupanerura/expiring-cache/storage"
)

var (
	_ expiringcache.Loader[uint8, struct{}] = (*Storage[uint8, struct{}])(nil)
	_ expiringcache.Writer[uint8, struct{}] = (*Storage[uint8, struct{}])(nil)
)

// Storage is an in-memory system of record.
type Storage[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint] struct {
	table   *table.Table[K, V]
	options options[K, V]

	loads   atomic.Int64
	writes  atomic.Int64
	deletes atomic.Int64
}

// NewInMemoryStorage creates a new in-memory storage.
// The storage can be distributed across multiple buckets for improved performance and scalability.
// The storage uses a hash function to distribute the keys across the buckets.
func NewInMemoryStorage[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint](opts ...Option[K, V]) *Storage[K, V] {
	options := defaultOptions[K, V]()
	for _, opt := range opts {
		opt.apply(&options)
	}
	options.complete()

	return &Storage[K, V]{
		table:   table.New[K, V](options.hashKey, options.bucketsSize),
		options: options,
	}
}

// lockBuckets locks the buckets owning keys in ascending bucket order and
// returns the function that unlocks them.
func (s *Storage[K, V]) lockBuckets(keys []K, write bool) func() {
	indexes := make([]int, 0, len(keys))
	for _, key := range keys {
		indexes = append(indexes, s.table.IndexOf(key))
	}
	slices.Sort(indexes)
	indexes = slices.Compact(indexes)

	for _, i := range indexes {
		if write {
			s.table.BucketAt(i).Lock()
		} else {
			s.table.BucketAt(i).RLock()
		}
	}
	return func() {
		for _, i := range indexes {
			if write {
				s.table.BucketAt(i).Unlock()
			} else {
				s.table.BucketAt(i).RUnlock()
			}
		}
	}
}

// Load returns a copy of the value stored for key.
func (s *Storage[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	if err := ctx.Err(); err != nil {
		var zero V
		return zero, false, err
	}
	s.loads.Add(1)

	b := s.table.Bucket(key)
	b.RLock()
	defer b.RUnlock()

	v, ok := b.Get(key)
	if !ok {
		var zero V
		return zero, false, nil
	}
	return s.options.cloner.CloneValue(v), true, nil
}

// LoadAll returns copies of the values stored for keys, read under one consistent view.
func (s *Storage[K, V]) LoadAll(ctx context.Context, keys []K) (map[K]V, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.loads.Add(int64(len(keys)))

	unlock := s.lockBuckets(keys, false)
	defer unlock()

	result := make(map[K]V, len(keys))
	for _, key := range keys {
		if v, ok := s.table.Bucket(key).Get(key); ok {
			result[key] = s.options.cloner.CloneValue(v)
		}
	}
	return result, nil
}

// Write stores a copy of the entry value.
func (s *Storage[K, V]) Write(ctx context.Context, entry *expiringcache.Entry[K, V]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.options.reject(entry.Key) {
		return fmt.Errorf("%w: key %v is rejected", storage.ErrWrite, entry.Key)
	}

	b := s.table.Bucket(entry.Key)
	b.Lock()
	defer b.Unlock()

	b.Put(entry.Key, s.options.cloner.CloneValue(entry.Value))
	s.writes.Add(1)
	return nil
}

// WriteAll stores copies of the entry values and returns the rejected entries.
func (s *Storage[K, V]) WriteAll(ctx context.Context, entries []*expiringcache.Entry[K, V]) ([]*expiringcache.Entry[K, V], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := make([]K, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	unlock := s.lockBuckets(keys, true)
	defer unlock()

	var unwritten []*expiringcache.Entry[K, V]
	for _, e := range entries {
		if s.options.reject(e.Key) {
			unwritten = append(unwritten, e)
			continue
		}
		s.table.Bucket(e.Key).Put(e.Key, s.options.cloner.CloneValue(e.Value))
		s.writes.Add(1)
	}
	return unwritten, nil
}

// Delete removes key. Deleting a missing key succeeds.
func (s *Storage[K, V]) Delete(ctx context.Context, key K) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.options.reject(key) {
		return fmt.Errorf("%w: key %v is rejected", storage.ErrDelete, key)
	}

	b := s.table.Bucket(key)
	b.Lock()
	defer b.Unlock()

	b.Delete(key)
	s.deletes.Add(1)
	return nil
}

// DeleteAll removes keys and returns the rejected keys.
func (s *Storage[K, V]) DeleteAll(ctx context.Context, keys []K) ([]K, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := s.lockBuckets(keys, true)
	defer unlock()

	var undeleted []K
	for _, key := range keys {
		if s.options.reject(key) {
			undeleted = append(undeleted, key)
			continue
		}
		s.table.Bucket(key).Delete(key)
		s.deletes.Add(1)
	}
	return undeleted, nil
}

// Len returns the number of stored values.
func (s *Storage[K, V]) Len() int {
	return s.table.Len()
}

// Loads returns the number of keys requested from the storage.
func (s *Storage[K, V]) Loads() int64 {
	return s.loads.Load()
}

// Writes returns the number of values the storage accepted.
func (s *Storage[K, V]) Writes() int64 {
	return s.writes.Load()
}

// Deletes returns the number of keys the storage deleted.
func (s *Storage[K, V]) Deletes() int64 {
	return s.deletes.Load()
}
