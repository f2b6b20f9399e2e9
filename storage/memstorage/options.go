package memstorage

import (
	expiringcache "github.com/karupanerura/expiring-cache"
	"github.com/karupanerura/expiring-cache/internal/keyhash"
)

// DefaultBucketsSize is the default number of buckets in the storage.
var DefaultBucketsSize = 256

// Option is the interface for the options of the in-memory storage.
type Option[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint] interface {
	apply(*options[K, V])
}

type optionFunc[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint] func(*options[K, V])

func (f optionFunc[K, V]) apply(o *options[K, V]) {
	f(o)
}

// WithKeyHash sets the key hash function to the storage.
func WithKeyHash[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint](f func(K) int) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.hashKey = f
	})
}

// WithBucketsSize sets the number of buckets in the storage.
// The number of buckets must be a natural number.
func WithBucketsSize[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint](bucketsSize int) Option[K, V] {
	if bucketsSize <= 0 {
		panic("bucketSize must be natural number")
	}
	return optionFunc[K, V](func(o *options[K, V]) {
		o.bucketsSize = bucketsSize
	})
}

// WithCloner sets the value cloner to the storage.
// Values are cloned when they are written and when they are loaded.
func WithCloner[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint](cloner expiringcache.ValueCloner[V]) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.cloner = cloner
	})
}

// WithRejectFunc sets a function that decides which keys the storage refuses to write or delete.
// Refused keys are reported back as unwritten or undeleted.
func WithRejectFunc[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint](reject func(K) bool) Option[K, V] {
	return optionFunc[K, V](func(o *options[K, V]) {
		o.reject = reject
	})
}

type options[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint] struct {
	hashKey     func(K) int
	bucketsSize int
	cloner      expiringcache.ValueCloner[V]
	reject      func(K) bool
}

func defaultOptions[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint]() options[K, V] {
	return options[K, V]{
		bucketsSize: DefaultBucketsSize,
		reject:      func(K) bool { return false },
	}
}

func (o *options[K, V]) complete() {
	if o.hashKey == nil {
		o.hashKey = keyhash.For[K]()
	}
	if o.cloner == nil {
		o.cloner = expiringcache.DefaultValueCloner[V]()
	}
}
