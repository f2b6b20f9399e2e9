package expiringcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-reflect"
	"github.com/karupanerura/expiring-cache/expiry"
	"github.com/karupanerura/expiring-cache/internal/cleanup"
	"github.com/karupanerura/expiring-cache/internal/evictionindex"
	"github.com/karupanerura/expiring-cache/internal/keylock"
	"github.com/karupanerura/expiring-cache/internal/table"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// entry is the stored form of a cache entry.
// value, expiresAt and handle are guarded by the lock of the table bucket that owns key.
type entry[K KeyConstraint, V ValueConstraint] struct {
	key       K
	value     V
	expiresAt int64
	handle    evictionindex.Handle
}

type bucket[K KeyConstraint, V ValueConstraint] = table.Bucket[K, *entry[K, V]]

// Cache is a concurrent in-memory cache whose entries expire according to an
// expiry.Policy. Expired entries are removed lazily by the operations
// themselves; the cache runs no background goroutine for that.
//
// Locks are taken in this order: key locks, the cleanup policy, a table
// bucket, the eviction index. Loader, Writer and EventListener are never
// called while a table bucket or the cleanup policy is locked, and listeners
// are called after the key locks are released.
type Cache[K KeyConstraint, V ValueConstraint] struct {
	name      string
	options   options[K, V]
	conv      converter[V]
	listeners []*listenerRegistration[K, V]
	logger    zerolog.Logger

	table  *table.Table[K, *entry[K, V]]
	policy *cleanup.Policy[*entry[K, V]]
	locks  *keylock.Registry[K]
	stats  counters

	// closing orders LoadAll task registration before Close waits for the tasks.
	closing sync.RWMutex
	closed  atomic.Bool
	tasks   conc.WaitGroup
}

// New creates a cache.
// Key types other than strings, booleans, numbers and fmt.Stringer need WithKeyHash.
func New[K KeyConstraint, V ValueConstraint](opts ...Option[K, V]) *Cache[K, V] {
	o := defaultOptions[K, V]()
	for _, opt := range opts {
		opt.apply(&o)
	}
	o.complete()

	c := &Cache[K, V]{
		name:      o.name,
		options:   o,
		conv:      converter[V]{cloner: o.cloner},
		listeners: o.listeners,
		logger:    o.logger.With().Str("cache", o.name).Logger(),
		table:     table.New[K, *entry[K, V]](o.hashKey, o.bucketsSize),
		policy:    cleanup.New[*entry[K, V]](o.maxSize),
		locks:     keylock.New(o.hashKey),
	}
	c.stats.metrics = o.metrics
	c.stats.enabled.Store(o.statisticsEnabled)
	return c
}

// Name returns the name of the cache.
func (c *Cache[K, V]) Name() string {
	return c.name
}

// IsClosed reports whether Close has been called.
func (c *Cache[K, V]) IsClosed() bool {
	return c.closed.Load()
}

// Len returns the number of entries, including expired entries that were not cleaned up yet.
func (c *Cache[K, V]) Len() int {
	return c.policy.Len()
}

// MaxSize returns the maximum number of entries, 0 when the cache is bounded by time only.
func (c *Cache[K, V]) MaxSize() int {
	return c.policy.MaxSize()
}

// SetMaxSize changes the maximum number of entries and evicts the entries
// closest to expiration if the cache is now over the limit.
// A value of 0 or less makes the cache bounded by time only.
func (c *Cache[K, V]) SetMaxSize(ctx context.Context, maxSize int) error {
	if c.closed.Load() {
		return ErrNotOpen
	}
	c.policy.SetMaxSize(maxSize)
	c.logger.Debug().Int("maxSize", c.policy.MaxSize()).Msg("max size changed")
	c.cleanUp(ctx)
	return nil
}

// Close closes the cache. It waits for background loads started by LoadAll
// unless a custom Executor is used, drops every entry, closes the Loader,
// Writer and listeners that implement io.Closer, and calls the close hooks.
// Every operation on a closed cache returns ErrNotOpen. Closing twice is a no-op.
//
// Operations that passed their open check before Close still run to completion
// and may leave entries behind the clear. Those entries are unreachable, as
// every later call fails with ErrNotOpen.
func (c *Cache[K, V]) Close() error {
	c.closing.Lock()
	swapped := c.closed.CompareAndSwap(false, true)
	c.closing.Unlock()
	if !swapped {
		return nil
	}
	c.tasks.Wait()
	c.clear()

	var errs []error
	closeIfCloser := func(v any) {
		if closer, ok := v.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if c.options.loader != nil {
		closeIfCloser(c.options.loader)
	}
	if c.options.writer != nil {
		closeIfCloser(c.options.writer)
	}
	for _, reg := range c.listeners {
		closeIfCloser(reg.listener)
	}
	for _, hook := range c.options.closeHooks {
		hook(c.name)
	}

	c.logger.Debug().Msg("cache closed")
	return errors.Join(errs...)
}

func (c *Cache[K, V]) now() int64 {
	return c.options.clock.Now().UnixNano()
}

func (c *Cache[K, V]) checkOpen() error {
	if c.closed.Load() {
		return ErrNotOpen
	}
	return nil
}

func (c *Cache[K, V]) checkKey(key K) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if isNil(key) {
		return fmt.Errorf("%w: key is nil", ErrInvalidArgument)
	}
	return nil
}

func (c *Cache[K, V]) checkEntry(key K, value V) error {
	if err := c.checkKey(key); err != nil {
		return err
	}
	if isNil(value) {
		return fmt.Errorf("%w: value is nil", ErrInvalidArgument)
	}
	return nil
}

func (c *Cache[K, V]) checkKeys(keys []K) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	for _, key := range keys {
		if isNil(key) {
			return fmt.Errorf("%w: key is nil", ErrInvalidArgument)
		}
	}
	return nil
}

// isNil reports whether v is nil or a nil pointer, map, slice, function, channel or interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}

// CleanUp evicts the entries that expired by now without waiting for the next
// operation to do it. Listener failures are logged like in any cleanup pass.
func (c *Cache[K, V]) CleanUp(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.cleanUp(ctx)
	return nil
}

// cleanUp runs a cleanup pass if one is due and dispatches the resulting
// expired events. Listener failures are logged, not returned: they do not belong
// to the operation that happened to trigger the pass.
// It must be called without key locks held.
func (c *Cache[K, V]) cleanUp(ctx context.Context) {
	now := c.now()
	if !c.policy.Due(now) {
		return
	}

	var events eventBatch[K, V]
	n := c.policy.CleanUp(now, cleanup.EvictorFunc[*entry[K, V]](func(e *entry[K, V], reason cleanup.Reason, now int64) bool {
		return c.evict(&events, e, reason, now)
	}))
	if n == 0 {
		return
	}
	c.logger.Debug().Int("evicted", n).Int("size", c.policy.Len()).Msg("cleaned up")
	c.stats.size(c.policy.Len())
	_ = c.dispatch(ctx, &events)
}

// evict removes e on behalf of a cleanup pass. It takes the bucket lock but
// no key lock, and backs off if e was replaced or pushed back meanwhile.
func (c *Cache[K, V]) evict(events *eventBatch[K, V], e *entry[K, V], reason cleanup.Reason, now int64) bool {
	b := c.table.Bucket(e.key)
	b.Lock()
	defer b.Unlock()

	if cur, ok := b.Get(e.key); !ok || cur != e {
		return false
	}
	if reason == cleanup.ReasonExpired && e.expiresAt > now {
		return false
	}
	c.unlinkLocked(b, e)
	c.expired(events, e.key, e.value)
	if reason == cleanup.ReasonCapacity {
		c.stats.evict(EvictCapacity)
	} else {
		c.stats.evict(EvictExpired)
	}
	return true
}

// unlinkLocked removes e from the table and the index.
// The caller holds the write lock of b.
func (c *Cache[K, V]) unlinkLocked(b *bucket[K, V], e *entry[K, V]) {
	c.policy.Remove(e.handle)
	b.Delete(e.key)
}

// expireLocked evicts an entry found expired by an operation.
// The caller holds the write lock of b.
func (c *Cache[K, V]) expireLocked(b *bucket[K, V], e *entry[K, V], events *eventBatch[K, V]) {
	c.unlinkLocked(b, e)
	c.expired(events, e.key, e.value)
	c.stats.evict(EvictExpired)
}

// createLocked adds a new entry stamped with the creation expiry.
// It reports false when the entry expired on creation, in which case nothing is stored.
// The caller holds the write lock of b.
func (c *Cache[K, V]) createLocked(b *bucket[K, V], key K, value V, now int64, events *eventBatch[K, V]) bool {
	d, ok := c.options.expiry.ForCreation()
	if !ok {
		d, ok = expiry.Eternal, true
	}
	at, action := c.policy.Expiration(d, ok, now)
	if action == cleanup.Expire {
		c.expired(events, key, value)
		return false
	}

	e := &entry[K, V]{key: key, value: value, expiresAt: at}
	e.handle = c.policy.Insert(e, at)
	b.Put(key, e)
	c.created(events, key, value)
	return true
}

// updateLocked replaces the value of e and applies the update expiry.
// It reports false when the entry expired on update and was evicted.
// The caller holds the write lock of b.
func (c *Cache[K, V]) updateLocked(b *bucket[K, V], e *entry[K, V], value V, now int64, events *eventBatch[K, V]) bool {
	old := e.value
	e.value = value

	d, ok := c.options.expiry.ForUpdate()
	at, action := c.policy.Expiration(d, ok, now)
	switch action {
	case cleanup.Expire:
		c.expireLocked(b, e, events)
		return false
	case cleanup.Set:
		e.expiresAt = at
		c.policy.Relocate(e.handle, at)
	}
	c.updated(events, e.key, value, old)
	return true
}

// accessLocked applies the access expiry to e.
// It reports false when the entry expired on access and was evicted.
// The caller holds the write lock of b.
func (c *Cache[K, V]) accessLocked(b *bucket[K, V], e *entry[K, V], now int64, events *eventBatch[K, V]) bool {
	d, ok := c.options.expiry.ForAccess()
	at, action := c.policy.Expiration(d, ok, now)
	switch action {
	case cleanup.Expire:
		c.expireLocked(b, e, events)
		return false
	case cleanup.Set:
		e.expiresAt = at
		c.policy.Relocate(e.handle, at)
	}
	return true
}

// liveLocked returns the unexpired entry for key, evicting it if it expired.
// The caller holds the write lock of b.
func (c *Cache[K, V]) liveLocked(b *bucket[K, V], key K, now int64, events *eventBatch[K, V]) (*entry[K, V], bool) {
	e, ok := b.Get(key)
	if !ok {
		return nil, false
	}
	if e.expiresAt <= now {
		c.expireLocked(b, e, events)
		return nil, false
	}
	return e, true
}

// access looks up key and applies the access expiry. The caller holds a key lock.
func (c *Cache[K, V]) access(key K, events *eventBatch[K, V]) (V, bool) {
	var zero V
	now := c.now()

	b := c.table.Bucket(key)
	b.Lock()
	defer b.Unlock()

	e, ok := c.liveLocked(b, key, now, events)
	if !ok || !c.accessLocked(b, e, now, events) {
		return zero, false
	}
	return c.conv.fromInternal(e.value), true
}

// peek looks up key without applying the access expiry. The caller holds a key lock.
func (c *Cache[K, V]) peek(key K, events *eventBatch[K, V]) (V, bool) {
	var zero V
	now := c.now()

	b := c.table.Bucket(key)
	b.Lock()
	defer b.Unlock()

	e, ok := c.liveLocked(b, key, now, events)
	if !ok {
		return zero, false
	}
	return c.conv.fromInternal(e.value), true
}

// touch applies the access expiry to key if it is present. The caller holds a key lock.
func (c *Cache[K, V]) touch(key K, events *eventBatch[K, V]) {
	now := c.now()

	b := c.table.Bucket(key)
	b.Lock()
	defer b.Unlock()

	if e, ok := c.liveLocked(b, key, now, events); ok {
		c.accessLocked(b, e, now, events)
	}
}

// store puts value under key, creating or updating the entry. value is in
// caller form. It reports the previous value if there was one.
// The caller holds the write lock of key.
func (c *Cache[K, V]) store(key K, value V, events *eventBatch[K, V]) (old V, existed bool) {
	internal := c.conv.toInternal(value)
	now := c.now()

	b := c.table.Bucket(key)
	b.Lock()
	defer b.Unlock()

	e, ok := c.liveLocked(b, key, now, events)
	if !ok {
		if c.createLocked(b, key, internal, now, events) {
			c.stats.put()
		}
		return old, false
	}

	old = c.conv.fromInternal(e.value)
	if c.updateLocked(b, e, internal, now, events) {
		c.stats.put()
	}
	return old, true
}

// update replaces the value of key only if key still has an unexpired entry,
// which may not hold anymore after a slow Writer call. It reports the
// previous value and whether there was an entry to update.
// The caller holds the write lock of key.
func (c *Cache[K, V]) update(key K, value V, events *eventBatch[K, V]) (old V, existed bool) {
	internal := c.conv.toInternal(value)
	now := c.now()

	b := c.table.Bucket(key)
	b.Lock()
	defer b.Unlock()

	e, ok := c.liveLocked(b, key, now, events)
	if !ok {
		return old, false
	}
	old = c.conv.fromInternal(e.value)
	if c.updateLocked(b, e, internal, now, events) {
		c.stats.put()
	}
	return old, true
}

// delete removes key. It reports the removed value if there was one.
// The caller holds the write lock of key.
func (c *Cache[K, V]) delete(key K, events *eventBatch[K, V]) (old V, existed bool) {
	now := c.now()

	b := c.table.Bucket(key)
	b.Lock()
	defer b.Unlock()

	e, ok := c.liveLocked(b, key, now, events)
	if !ok {
		return old, false
	}
	c.unlinkLocked(b, e)
	c.removed(events, key, e.value)
	c.stats.remove()
	return c.conv.fromInternal(e.value), true
}

// clear drops every entry without events, statistics or writer calls.
func (c *Cache[K, V]) clear() {
	for i := range c.table.NumBuckets() {
		b := c.table.BucketAt(i)
		b.Lock()
		for _, key := range b.Keys() {
			e, _ := b.Get(key)
			c.unlinkLocked(b, e)
		}
		b.Unlock()
	}
}

// withLock runs fn with the write lock of key, then dispatches the events fn
// produced. A cleanup pass runs before and after.
func (c *Cache[K, V]) withLock(ctx context.Context, key K, fn func(events *eventBatch[K, V]) error) error {
	c.cleanUp(ctx)
	defer c.cleanUp(ctx)

	var events eventBatch[K, V]
	err := func() error {
		c.locks.Lock(key)
		defer c.locks.Unlock(key)
		return fn(&events)
	}()
	return joinErrors(err, c.dispatch(ctx, &events))
}

// withLocks is withLock for a batch of keys. Keys are locked in a canonical
// order so that overlapping batches cannot deadlock.
func (c *Cache[K, V]) withLocks(ctx context.Context, keys []K, fn func(events *eventBatch[K, V]) error) error {
	c.cleanUp(ctx)
	defer c.cleanUp(ctx)

	var events eventBatch[K, V]
	err := func() error {
		unlock := c.locks.LockAll(keys)
		defer unlock()
		return fn(&events)
	}()
	return joinErrors(err, c.dispatch(ctx, &events))
}
