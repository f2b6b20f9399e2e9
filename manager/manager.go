// Package manager keeps named caches and controls their lifecycle.
//
// A cache created through a Manager is registered under its name until it is
// closed, whether by Destroy, by Manager.Close or by calling Close on the
// cache itself.
package manager

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	expiringcache "github.com/karupanerura/expiring-cache"
	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned by operations on a closed Manager.
	ErrClosed = errors.New("manager is closed")
	// ErrTypeMismatch is returned when a name is registered with other key or value types.
	ErrTypeMismatch = errors.New("cache is registered with other types")
	// ErrNotFound is returned by Destroy for an unknown name.
	ErrNotFound = errors.New("cache is not found")
)

type closer interface {
	Close() error
}

type registration struct {
	cache closer
}

// Manager is a registry of named caches. It is safe for concurrent use.
type Manager struct {
	logger zerolog.Logger

	mu     sync.Mutex
	caches map[string]*registration
	closed bool
}

// Option is the interface for the options of the Manager.
type Option interface {
	apply(*Manager)
}

type optionFunc func(*Manager)

func (f optionFunc) apply(m *Manager) {
	f(m)
}

// WithLogger sets the logger to the manager.
// Caches created by the manager log with it too, unless their options set another logger.
func WithLogger(logger zerolog.Logger) Option {
	return optionFunc(func(m *Manager) {
		m.logger = logger
	})
}

// New creates an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		logger: zerolog.Nop(),
		caches: map[string]*registration{},
	}
	for _, o := range opts {
		o.apply(m)
	}
	return m
}

// GetOrCreate returns the cache registered under name, or creates and
// registers one with opts. The options of an existing cache are not compared;
// only its key and value types must match.
func GetOrCreate[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint](m *Manager, name string, opts ...expiringcache.Option[K, V]) (*expiringcache.Cache[K, V], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if r, ok := m.caches[name]; ok {
		c, ok := r.cache.(*expiringcache.Cache[K, V])
		if !ok {
			return nil, fmt.Errorf("%w: %q is %T", ErrTypeMismatch, name, r.cache)
		}
		return c, nil
	}

	r := &registration{}
	opts = append([]expiringcache.Option[K, V]{
		expiringcache.WithLogger[K, V](m.logger),
	}, opts...)
	opts = append(opts,
		expiringcache.WithName[K, V](name),
		expiringcache.WithCloseHook[K, V](func(name string) { m.release(name, r) }),
	)
	c := expiringcache.New(opts...)
	r.cache = c
	m.caches[name] = r
	m.logger.Debug().Str("cache", name).Msg("cache created")
	return c, nil
}

// Lookup returns the cache registered under name.
// It returns false if there is none or if it has other key or value types.
func Lookup[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint](m *Manager, name string) (*expiringcache.Cache[K, V], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.caches[name]
	if !ok {
		return nil, false
	}
	c, ok := r.cache.(*expiringcache.Cache[K, V])
	return c, ok
}

// release unregisters r once its cache is closed.
func (m *Manager) release(name string, r *registration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.caches[name] == r {
		delete(m.caches, name)
		m.logger.Debug().Str("cache", name).Msg("cache released")
	}
}

// Names returns the sorted names of the registered caches.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Destroy closes the cache registered under name and unregisters it.
func (m *Manager) Destroy(name string) error {
	m.mu.Lock()
	r, ok := m.caches[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return r.cache.Close()
}

// Close closes every registered cache. Later GetOrCreate calls return ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	caches := make([]closer, 0, len(m.caches))
	for _, r := range m.caches {
		caches = append(caches, r.cache)
	}
	m.mu.Unlock()

	var errs []error
	for _, c := range caches {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsClosed reports whether Close was called.
func (m *Manager) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
