package singleflightloader

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	expiringcache "github.com/karupanerura/expiring-cache"
	"github.com/karupanerura/expiring-cache/internal/panicutil"
)

var errGoexit = errors.New("runtime.Goexit is called")

// SingleFlightLoader is an expiringcache.Loader that shares one in-flight call
// to the underlying loader among all concurrent requests for the same key.
// The flight runs with a background context, so a canceled caller does not
// cancel the load for the others.
type SingleFlightLoader[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint] struct {
	source  expiringcache.Loader[K, V]
	cloner  expiringcache.ValueCloner[V]
	context func() context.Context
	flights atomic.Int64

	mu        sync.Mutex
	waitlists map[K][]chan result[V]
}

var _ expiringcache.Loader[uint8, struct{}] = (*SingleFlightLoader[uint8, struct{}])(nil)

// NewSingleFlightLoader creates a new SingleFlightLoader instance.
func NewSingleFlightLoader[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint](source expiringcache.Loader[K, V], opts ...Option[K, V]) *SingleFlightLoader[K, V] {
	loader := &SingleFlightLoader[K, V]{
		source:    source,
		cloner:    nil,
		context:   context.Background,
		waitlists: map[K][]chan result[V]{},
	}
	for _, o := range opts {
		o.apply(loader)
	}
	if loader.cloner == nil {
		loader.cloner = expiringcache.DefaultValueCloner[V]()
	}
	return loader
}

type result[V any] struct {
	value V
	found bool
	err   error
}

// Flights returns the number of calls made to the underlying loader.
func (l *SingleFlightLoader[K, V]) Flights() int64 {
	return l.flights.Load()
}

// Load returns the value of key, joining the in-flight load of key if there is one.
func (l *SingleFlightLoader[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	ch := l.registerKey(key)
	select {
	case r := <-ch:
		if r.err != nil {
			if r.err == errGoexit {
				runtime.Goexit()
			}
			var zero V
			return zero, false, r.err
		}
		return r.value, r.found, nil
	case <-ctx.Done():
		go func() {
			<-ch
		}()
		var zero V
		return zero, false, ctx.Err()
	}
}

// registerKey registers a key and returns a channel to receive the result.
func (l *SingleFlightLoader[K, V]) registerKey(key K) chan result[V] {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan result[V], 1)
	l.waitlists[key] = append(l.waitlists[key], ch)
	if len(l.waitlists[key]) == 1 {
		l.flights.Add(1)
		go l.loadKey(l.context(), key)
	}
	return ch
}

// loadKey loads a value from the underlying loader and hands it to the waiters.
func (l *SingleFlightLoader[K, V]) loadKey(ctx context.Context, key K) {
	dds := panicutil.DoubleDeferSandwich{
		Op: "loader",
		OnGoexit: func() {
			l.throwErrors([]K{key}, errGoexit)
		},
	}

	var value V
	var found bool
	if err := dds.Invoke(func() (err error) {
		value, found, err = l.source.Load(ctx, key)
		return
	}); err != nil {
		l.throwErrors([]K{key}, err)
		return
	}
	l.sendValues([]K{key}, func(K) (V, bool) { return value, found })
}

// LoadAll returns the values of keys. Keys already in flight join those
// flights; the rest are loaded with one call to the underlying loader.
func (l *SingleFlightLoader[K, V]) LoadAll(ctx context.Context, keys []K) (map[K]V, error) {
	channels := l.registerKeys(keys)
	return l.awaitChannels(ctx, keys, channels)
}

// awaitChannels waits for the channels to receive the results and returns the found values.
func (l *SingleFlightLoader[K, V]) awaitChannels(ctx context.Context, keys []K, channels []chan result[V]) (map[K]V, error) {
	values := make(map[K]V, len(channels))

	var lastErr error
	for i, ch := range channels {
		select {
		case r := <-ch:
			if r.err != nil {
				lastErr = r.err
				if r.err == errGoexit {
					runtime.Goexit()
				}
				continue
			}
			if r.found {
				values[keys[i]] = r.value
			}
		case <-ctx.Done():
			offset := i
			go func() {
				for _, ch := range channels[offset:] {
					<-ch
				}
			}()
			return nil, ctx.Err()
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return values, nil
}

// registerKeys registers keys and returns channels to receive the results.
// Duplicate keys get their own channels but are loaded once.
func (l *SingleFlightLoader[K, V]) registerKeys(keys []K) []chan result[V] {
	l.mu.Lock()
	defer l.mu.Unlock()

	targetKeys := make([]K, 0, len(keys))
	channels := make([]chan result[V], len(keys))
	for i, key := range keys {
		ch := make(chan result[V], 1)
		l.waitlists[key] = append(l.waitlists[key], ch)
		if len(l.waitlists[key]) == 1 {
			targetKeys = append(targetKeys, key)
		}
		channels[i] = ch
	}
	if len(targetKeys) != 0 {
		l.flights.Add(1)
		go l.loadKeys(l.context(), targetKeys)
	}
	return channels
}

// loadKeys loads values from the underlying loader and hands them to the waiters.
func (l *SingleFlightLoader[K, V]) loadKeys(ctx context.Context, keys []K) {
	dds := panicutil.DoubleDeferSandwich{
		Op: "loader",
		OnGoexit: func() {
			l.throwErrors(keys, errGoexit)
		},
	}

	var values map[K]V
	if err := dds.Invoke(func() (err error) {
		values, err = l.source.LoadAll(ctx, keys)
		return
	}); err != nil {
		l.throwErrors(keys, err)
		return
	}
	l.sendValues(keys, func(key K) (V, bool) {
		v, ok := values[key]
		return v, ok
	})
}

// sendValues sends the values to the waiting channels.
func (l *SingleFlightLoader[K, V]) sendValues(keys []K, lookup func(K) (V, bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		value, found := lookup(k)
		for i, wl := range l.waitlists[k] {
			v := value
			if found && i != 0 {
				// note: we clone the value only if it is not the first receiver
				// to avoid unnecessary cloning when there are multiple receivers.
				v = l.cloner.CloneValue(v)
			}
			wl <- result[V]{value: v, found: found}
			close(wl)
		}
		delete(l.waitlists, k)
	}
}

// throwErrors sends an error to the waiting channels.
func (l *SingleFlightLoader[K, V]) throwErrors(keys []K, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		for _, wl := range l.waitlists[k] {
			wl <- result[V]{err: err}
			close(wl)
		}
		delete(l.waitlists, k)
	}
}
