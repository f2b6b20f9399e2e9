package singleflightloader

import (
	"context"

	expiringcache "github.com/karupanerura/expiring-cache"
)

// Option is the interface for the options of the SingleFlightLoader.
type Option[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint] interface {
	apply(*SingleFlightLoader[K, V])
}

type optionFunc[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint] func(*SingleFlightLoader[K, V])

func (f optionFunc[K, V]) apply(l *SingleFlightLoader[K, V]) {
	f(l)
}

// WithCloner sets the value cloner to the loader.
// The default value cloner is expiringcache.DefaultValueCloner.
func WithCloner[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint](cloner expiringcache.ValueCloner[V]) Option[K, V] {
	return optionFunc[K, V](func(l *SingleFlightLoader[K, V]) {
		l.cloner = cloner
	})
}

// WithBackgroundContextProvider sets the context provider to the loader.
// The provider must return a new context for each call.
// The default context provider is context.Background.
func WithBackgroundContextProvider[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint](provider func() context.Context) Option[K, V] {
	return optionFunc[K, V](func(l *SingleFlightLoader[K, V]) {
		l.context = provider
	})
}
