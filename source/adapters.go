package source

import (
	"context"

	expiringcache "github.com/karupanerura/expiring-cache"
)

// LintLoader is a loader that is used for linting purposes.
// It wraps a loader and panics when the loader breaks the Loader contract.
type LintLoader[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint] struct {
	Loader expiringcache.Loader[K, V]

	// IsNil reports whether a loaded value is nil.
	// If nil, values are never treated as nil.
	IsNil func(V) bool
}

var _ expiringcache.Loader[uint8, struct{}] = (*LintLoader[uint8, struct{}])(nil)

// Load loads the value associated with the given key from the loader.
// It checks that a found value is not nil and that a missing value is the zero value.
func (l *LintLoader[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	v, ok, err := l.Loader.Load(ctx, key)
	if err != nil {
		return v, false, err
	}
	if ok && l.IsNil != nil && l.IsNil(v) {
		panic("found value must not be nil")
	}
	return v, ok, nil
}

// LoadAll loads multiple values from the loader.
// It checks that the result only contains requested keys and no nil values.
func (l *LintLoader[K, V]) LoadAll(ctx context.Context, keys []K) (map[K]V, error) {
	values, err := l.Loader.LoadAll(ctx, keys)
	if err != nil {
		return nil, err
	}

	requested := make(map[K]struct{}, len(keys))
	for _, key := range keys {
		requested[key] = struct{}{}
	}
	for key, v := range values {
		if _, ok := requested[key]; !ok {
			panic("result contains a key that was not requested")
		}
		if l.IsNil != nil && l.IsNil(v) {
			panic("found value must not be nil")
		}
	}
	return values, nil
}

// FunctionsLoader is a loader that uses functions to load the values.
type FunctionsLoader[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint] struct {
	// LoadFunc is a function that loads a value by key.
	// It returns false if the key is not found.
	LoadFunc func(context.Context, K) (V, bool, error)

	// LoadAllFunc is a function that loads multiple values by keys.
	// Missing keys must be omitted from the result.
	// If nil, LoadAll calls LoadFunc for each key.
	LoadAllFunc func(context.Context, []K) (map[K]V, error)
}

var _ expiringcache.Loader[uint8, struct{}] = (*FunctionsLoader[uint8, struct{}])(nil)

// Load calls the LoadFunc function to load the value associated with the given key.
func (l *FunctionsLoader[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	return l.LoadFunc(ctx, key)
}

// LoadAll calls the LoadAllFunc function to load multiple values.
// Without LoadAllFunc, it calls LoadFunc for each key and stops at the first error.
func (l *FunctionsLoader[K, V]) LoadAll(ctx context.Context, keys []K) (map[K]V, error) {
	if l.LoadAllFunc != nil {
		return l.LoadAllFunc(ctx, keys)
	}

	values := make(map[K]V, len(keys))
	for _, key := range keys {
		v, ok, err := l.LoadFunc(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			values[key] = v
		}
	}
	return values, nil
}

// LoadAllFunctionLoader is a loader that uses a function to load multiple values.
type LoadAllFunctionLoader[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint] func(context.Context, []K) (map[K]V, error)

var _ expiringcache.Loader[uint8, struct{}] = (LoadAllFunctionLoader[uint8, struct{}])(nil)

// Load calls the function with the single key.
func (l LoadAllFunctionLoader[K, V]) Load(ctx context.Context, key K) (V, bool, error) {
	values, err := l(ctx, []K{key})
	if err != nil {
		var zero V
		return zero, false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// LoadAll calls the function.
func (l LoadAllFunctionLoader[K, V]) LoadAll(ctx context.Context, keys []K) (map[K]V, error) {
	return l(ctx, keys)
}
