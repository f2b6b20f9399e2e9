package expiringcache

import (
	"context"

	"github.com/karupanerura/expiring-cache/internal/panicutil"
	"github.com/sourcegraph/conc/pool"
)

// EventType is the kind of an entry event.
type EventType int

const (
	// EventCreated is fired when an entry is added, by a put or by a load.
	EventCreated EventType = iota
	// EventUpdated is fired when the value of an existing entry is replaced.
	EventUpdated
	// EventRemoved is fired when an entry is removed explicitly.
	EventRemoved
	// EventExpired is fired when an entry is evicted because it expired or
	// because the cache exceeded its maximum size.
	EventExpired

	numEventTypes = iota
)

// String implements fmt.Stringer.
func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	case EventExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Event describes a change of an entry.
type Event[K KeyConstraint, V ValueConstraint] struct {
	// Type is the kind of the change.
	Type EventType

	// Key is the key of the entry.
	Key K

	// Value is the new value for created and updated events, and the last
	// value for removed and expired events.
	Value V

	// OldValue is the previous value. It is set for updated and removed events.
	OldValue V

	// HasOldValue reports whether OldValue is set.
	HasOldValue bool
}

type listenerRegistration[K KeyConstraint, V ValueConstraint] struct {
	listener EventListener[K, V]
	types    [numEventTypes]bool
}

func (r *listenerRegistration[K, V]) accepts(t EventType) bool {
	return r.types[t]
}

// eventBatch collects the events produced while key locks are held.
type eventBatch[K KeyConstraint, V ValueConstraint] struct {
	events [numEventTypes][]*Event[K, V]
}

func (b *eventBatch[K, V]) add(e *Event[K, V]) {
	b.events[e.Type] = append(b.events[e.Type], e)
}

func (b *eventBatch[K, V]) empty() bool {
	for _, events := range b.events {
		if len(events) != 0 {
			return false
		}
	}
	return true
}

func (c *Cache[K, V]) created(b *eventBatch[K, V], key K, value V) {
	if len(c.listeners) == 0 {
		return
	}
	b.add(&Event[K, V]{Type: EventCreated, Key: key, Value: c.conv.fromInternal(value)})
}

func (c *Cache[K, V]) updated(b *eventBatch[K, V], key K, value, old V) {
	if len(c.listeners) == 0 {
		return
	}
	b.add(&Event[K, V]{Type: EventUpdated, Key: key, Value: c.conv.fromInternal(value), OldValue: c.conv.fromInternal(old), HasOldValue: true})
}

func (c *Cache[K, V]) removed(b *eventBatch[K, V], key K, old V) {
	if len(c.listeners) == 0 {
		return
	}
	old = c.conv.fromInternal(old)
	b.add(&Event[K, V]{Type: EventRemoved, Key: key, Value: old, OldValue: old, HasOldValue: true})
}

func (c *Cache[K, V]) expired(b *eventBatch[K, V], key K, value V) {
	if len(c.listeners) == 0 {
		return
	}
	b.add(&Event[K, V]{Type: EventExpired, Key: key, Value: c.conv.fromInternal(value)})
}

// dispatch delivers the batch to the listeners, one call per listener and
// event type, in the order created, updated, removed, expired.
// It must be called without key locks held.
func (c *Cache[K, V]) dispatch(ctx context.Context, b *eventBatch[K, V]) error {
	if b.empty() {
		return nil
	}

	var errs []error
	for t, events := range b.events {
		if len(events) == 0 {
			continue
		}

		typ := EventType(t)
		p := pool.New().WithErrors()
		for _, reg := range c.listeners {
			if !reg.accepts(typ) {
				continue
			}
			p.Go(func() error {
				return panicutil.Guard("listener", func() error {
					return reg.listener.OnEvents(ctx, events)
				})
			})
		}
		if err := p.Wait(); err != nil {
			c.logger.Warn().Err(err).Stringer("type", typ).Int("events", len(events)).Msg("listener failed")
			errs = append(errs, &ListenerError{Type: typ, Err: err})
		}
	}
	return joinErrors(errs...)
}
