package expiringcache

import (
	"context"
)

// KeyConstraint is an interface for key constraints.
type KeyConstraint interface {
	comparable
}

// ValueConstraint is an interface for value constraints.
type ValueConstraint interface {
	any
}

// Entry is a key-value pair.
type Entry[K KeyConstraint, V ValueConstraint] struct {
	// Key is the key of the entry.
	Key K

	// Value is the value associated with the key.
	Value V
}

// Loader is an interface for loading values from an external source on a cache miss.
// Implementations must be thread-safe.
type Loader[K KeyConstraint, V ValueConstraint] interface {
	// Load retrieves a value by its key.
	// It returns false if the source does not have a value for the key.
	Load(context.Context, K) (V, bool, error)

	// LoadAll retrieves values by multiple keys.
	// Keys the source does not have must be omitted from the result.
	// Keys that were not requested are ignored by the cache.
	LoadAll(context.Context, []K) (map[K]V, error)
}

// Writer is an interface for propagating mutations to an external store.
// The cache calls the writer before it applies a mutation, and does not apply
// the mutation when the writer fails.
// Implementations must be thread-safe.
type Writer[K KeyConstraint, V ValueConstraint] interface {
	// Write stores an entry.
	Write(context.Context, *Entry[K, V]) error

	// WriteAll stores multiple entries.
	// It returns the entries that were not written. If the error is not nil and
	// the returned slice is nil, none of the entries are treated as written.
	WriteAll(context.Context, []*Entry[K, V]) ([]*Entry[K, V], error)

	// Delete removes a key.
	Delete(context.Context, K) error

	// DeleteAll removes multiple keys.
	// It returns the keys that were not deleted. If the error is not nil and
	// the returned slice is nil, none of the keys are treated as deleted.
	DeleteAll(context.Context, []K) ([]K, error)
}

// EventListener is an interface for receiving entry events.
// Events are delivered after the mutation is visible and after the cache has
// released its locks, so listeners may call back into the cache.
type EventListener[K KeyConstraint, V ValueConstraint] interface {
	// OnEvents receives a batch of events of the same EventType.
	OnEvents(context.Context, []*Event[K, V]) error
}

// EventListenerFunc is a function type that implements the EventListener interface.
type EventListenerFunc[K KeyConstraint, V ValueConstraint] func(context.Context, []*Event[K, V]) error

// OnEvents calls the function.
func (f EventListenerFunc[K, V]) OnEvents(ctx context.Context, events []*Event[K, V]) error {
	return f(ctx, events)
}

// Executor runs background tasks such as LoadAll.
type Executor interface {
	Go(func())
}

// Metrics receives statistics signals while statistics are enabled.
// Implementations must be thread-safe.
type Metrics interface {
	Hit()
	Miss()
	Put()
	Remove()
	Evict(EvictReason)
	Size(int)
}

// NoopMetrics is a Metrics that discards every signal.
type NoopMetrics struct{}

var _ Metrics = NoopMetrics{}

func (NoopMetrics) Hit()              {}
func (NoopMetrics) Miss()             {}
func (NoopMetrics) Put()              {}
func (NoopMetrics) Remove()           {}
func (NoopMetrics) Evict(EvictReason) {}
func (NoopMetrics) Size(int)          {}
