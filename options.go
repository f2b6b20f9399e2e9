package expiringcache

import (
	"github.com/karupanerura/expiring-cache/expiry"
	"github.com/karupanerura/expiring-cache/internal/keyhash"
	"github.com/karupanerura/expiring-cache/internal/table"
	"github.com/rs/zerolog"
)

// Option is the interface for the options of the Cache.
type Option[K KeyConstraint, V ValueConstraint] interface {
	apply(*options[K, V])
}

type optionFunc[K KeyConstraint, V ValueConstraint] func(*options[K, V])

func (f optionFunc[K, V]) apply(o *options[K, V]) {
	f(o)
}

// WithName sets the name of the cache. The name is used in logs and by the manager.
func WithName[K KeyConstraint, V ValueConstraint](name string) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.name = name
	})
}

// WithClock sets the clock to the cache.
// The default clock is SystemClock.
func WithClock[K KeyConstraint, V ValueConstraint](clock Clock) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.clock = clock
	})
}

// WithExpiryPolicy sets the expiry policy to the cache.
// The default policy is expiry.EternalPolicy.
func WithExpiryPolicy[K KeyConstraint, V ValueConstraint](policy expiry.Policy) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.expiry = policy
	})
}

// WithMaxSize bounds the number of entries. When the cache grows beyond the
// bound, the entries closest to expiration are evicted first.
// A value of 0 or less means the cache is bounded by time only, which is the default.
func WithMaxSize[K KeyConstraint, V ValueConstraint](maxSize int) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.maxSize = maxSize
	})
}

// WithLoader sets the loader to the cache and enables read-through.
func WithLoader[K KeyConstraint, V ValueConstraint](loader Loader[K, V]) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.loader = loader
		o.readThrough = loader != nil
	})
}

// WithReadThrough toggles read-through. When it is disabled, the loader is
// only used by LoadAll.
func WithReadThrough[K KeyConstraint, V ValueConstraint](enabled bool) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.readThrough = enabled
	})
}

// WithWriter sets the writer to the cache and enables write-through.
func WithWriter[K KeyConstraint, V ValueConstraint](writer Writer[K, V]) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.writer = writer
	})
}

// WithListener registers a listener for the given event types.
// If no types are given, the listener receives every type.
func WithListener[K KeyConstraint, V ValueConstraint](listener EventListener[K, V], types ...EventType) Option[K, V] {
	reg := &listenerRegistration[K, V]{listener: listener}
	if len(types) == 0 {
		for i := range reg.types {
			reg.types[i] = true
		}
	}
	for _, t := range types {
		if t < 0 || int(t) >= len(reg.types) {
			panic("unknown event type")
		}
		reg.types[t] = true
	}
	return optionFunc[K, V](func(o *options[K, V]) {
		o.listeners = append(o.listeners, reg)
	})
}

// WithStoreByValue makes the cache store copies of the values. Values are
// cloned when stored and when returned, so later mutations on either side are
// not visible to the other. A nil cloner selects DefaultValueCloner.
// By default the cache stores references.
func WithStoreByValue[K KeyConstraint, V ValueConstraint](cloner ValueCloner[V]) Option[K, V] {
	if cloner == nil {
		cloner = DefaultValueCloner[V]()
	}
	return optionFunc[K, V](func(o *options[K, V]) {
		o.cloner = cloner
	})
}

// WithValueEqual sets the function used by the conditional operations to
// compare values. The default is reflect.DeepEqual.
func WithValueEqual[K KeyConstraint, V ValueConstraint](equal func(a, b V) bool) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.equal = equal
	})
}

// WithStatisticsEnabled toggles statistics. They are disabled by default.
func WithStatisticsEnabled[K KeyConstraint, V ValueConstraint](enabled bool) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.statisticsEnabled = enabled
	})
}

// WithMetrics sets the sink that receives statistics signals.
// It also enables statistics.
func WithMetrics[K KeyConstraint, V ValueConstraint](metrics Metrics) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.metrics = metrics
		o.statisticsEnabled = true
	})
}

// WithLogger sets the logger to the cache.
// The default logger discards everything.
func WithLogger[K KeyConstraint, V ValueConstraint](logger zerolog.Logger) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.logger = logger
	})
}

// WithExecutor sets the executor for background tasks.
// By default the cache runs them on its own goroutines and waits for them on Close.
func WithExecutor[K KeyConstraint, V ValueConstraint](executor Executor) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.executor = executor
	})
}

// WithKeyHash sets the key hash function to the cache.
// It decides the table bucket and the lock order of batch operations.
func WithKeyHash[K KeyConstraint, V ValueConstraint](f func(K) int) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.hashKey = f
	})
}

// WithBucketsSize sets the number of buckets in the table.
// The number of buckets must be a natural number.
func WithBucketsSize[K KeyConstraint, V ValueConstraint](bucketsSize int) Option[K, V] {
	if bucketsSize <= 0 {
		panic("bucketSize must be natural number")
	}
	return optionFunc[K, V](func(o *options[K, V]) {
		o.bucketsSize = bucketsSize
	})
}

// WithCloseHook registers a function called with the cache name once the cache is closed.
func WithCloseHook[K KeyConstraint, V ValueConstraint](hook func(name string)) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.closeHooks = append(o.closeHooks, hook)
	})
}

type options[K KeyConstraint, V ValueConstraint] struct {
	name              string
	clock             Clock
	expiry            expiry.Policy
	maxSize           int
	loader            Loader[K, V]
	readThrough       bool
	writer            Writer[K, V]
	listeners         []*listenerRegistration[K, V]
	cloner            ValueCloner[V]
	equal             func(a, b V) bool
	statisticsEnabled bool
	metrics           Metrics
	logger            zerolog.Logger
	executor          Executor
	hashKey           func(K) int
	bucketsSize       int
	closeHooks        []func(name string)
}

func defaultOptions[K KeyConstraint, V ValueConstraint]() options[K, V] {
	return options[K, V]{
		clock:       SystemClock,
		expiry:      expiry.EternalPolicy{},
		equal:       defaultValueEqual[V],
		metrics:     NoopMetrics{},
		logger:      zerolog.Nop(),
		bucketsSize: table.DefaultBucketsSize,
	}
}

func (o *options[K, V]) complete() {
	if o.clock == nil {
		o.clock = SystemClock
	}
	if o.expiry == nil {
		o.expiry = expiry.EternalPolicy{}
	}
	if o.equal == nil {
		o.equal = defaultValueEqual[V]
	}
	if o.metrics == nil {
		o.metrics = NoopMetrics{}
	}
	if o.hashKey == nil {
		o.hashKey = keyhash.For[K]()
	}
	if o.loader == nil {
		o.readThrough = false
	}
}
