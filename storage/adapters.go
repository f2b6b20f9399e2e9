package storage

import (
	"context"
	"errors"
	"fmt"

	expiringcache "github.com/karupanerura/expiring-cache"
)

var _ expiringcache.Writer[uint8, struct{}] = (*SilentErrorWriter[uint8, struct{}])(nil)

// SilentErrorWriter is a decorator for an expiringcache.Writer that silently handles
// errors during operations. Instead of propagating the error, it calls the provided OnError function,
// so the cache applies the mutation even when the system of record refused it.
type SilentErrorWriter[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint] struct {
	// Writer is the underlying writer that this decorator wraps.
	Writer expiringcache.Writer[K, V]

	// OnError is a function that is called when an error occurs during an operation.
	// The error is passed to the function as an argument.
	OnError func(error)
}

func (w *SilentErrorWriter[K, V]) report(err error) {
	if err != nil && w.OnError != nil {
		w.OnError(err)
	}
}

// Write stores the entry with the underlying writer.
// The method itself always returns nil.
func (w *SilentErrorWriter[K, V]) Write(ctx context.Context, entry *expiringcache.Entry[K, V]) error {
	w.report(w.Writer.Write(ctx, entry))
	return nil
}

// WriteAll stores the entries with the underlying writer.
// Rejected entries without an error are reported as ErrWrite.
// The method itself always acknowledges every entry.
func (w *SilentErrorWriter[K, V]) WriteAll(ctx context.Context, entries []*expiringcache.Entry[K, V]) ([]*expiringcache.Entry[K, V], error) {
	unwritten, err := w.Writer.WriteAll(ctx, entries)
	if err == nil && len(unwritten) != 0 {
		err = fmt.Errorf("%w: %d entries rejected", ErrWrite, len(unwritten))
	}
	w.report(err)
	return nil, nil
}

// Delete deletes the key with the underlying writer.
// The method itself always returns nil.
func (w *SilentErrorWriter[K, V]) Delete(ctx context.Context, key K) error {
	w.report(w.Writer.Delete(ctx, key))
	return nil
}

// DeleteAll deletes the keys with the underlying writer.
// Rejected keys without an error are reported as ErrDelete.
// The method itself always acknowledges every key.
func (w *SilentErrorWriter[K, V]) DeleteAll(ctx context.Context, keys []K) ([]K, error) {
	undeleted, err := w.Writer.DeleteAll(ctx, keys)
	if err == nil && len(undeleted) != 0 {
		err = fmt.Errorf("%w: %d keys rejected", ErrDelete, len(undeleted))
	}
	w.report(err)
	return nil, nil
}

var _ expiringcache.Writer[uint8, struct{}] = (*FunctionsWriter[uint8, struct{}])(nil)

// FunctionsWriter is an expiringcache.Writer implementation that uses functions to perform the write operations.
// A nil WriteFunc or DeleteFunc succeeds without doing anything.
// A nil WriteAllFunc or DeleteAllFunc falls back to WriteFunc or DeleteFunc for each item.
type FunctionsWriter[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint] struct {
	// WriteFunc stores a single entry.
	WriteFunc func(context.Context, *expiringcache.Entry[K, V]) error

	// WriteAllFunc stores multiple entries and returns the entries it did not store.
	WriteAllFunc func(context.Context, []*expiringcache.Entry[K, V]) ([]*expiringcache.Entry[K, V], error)

	// DeleteFunc deletes a single key.
	DeleteFunc func(context.Context, K) error

	// DeleteAllFunc deletes multiple keys and returns the keys it did not delete.
	DeleteAllFunc func(context.Context, []K) ([]K, error)
}

// Write calls the WriteFunc function to store the given entry.
func (w *FunctionsWriter[K, V]) Write(ctx context.Context, entry *expiringcache.Entry[K, V]) error {
	if w.WriteFunc == nil {
		return nil
	}
	return w.WriteFunc(ctx, entry)
}

// WriteAll calls the WriteAllFunc function to store multiple entries.
func (w *FunctionsWriter[K, V]) WriteAll(ctx context.Context, entries []*expiringcache.Entry[K, V]) ([]*expiringcache.Entry[K, V], error) {
	if w.WriteAllFunc != nil {
		return w.WriteAllFunc(ctx, entries)
	}

	var unwritten []*expiringcache.Entry[K, V]
	var errs []error
	for _, entry := range entries {
		if err := w.Write(ctx, entry); err != nil {
			unwritten = append(unwritten, entry)
			errs = append(errs, fmt.Errorf("%w: key %v: %w", ErrWrite, entry.Key, err))
		}
	}
	return unwritten, errors.Join(errs...)
}

// Delete calls the DeleteFunc function to delete the given key.
func (w *FunctionsWriter[K, V]) Delete(ctx context.Context, key K) error {
	if w.DeleteFunc == nil {
		return nil
	}
	return w.DeleteFunc(ctx, key)
}

// DeleteAll calls the DeleteAllFunc function to delete multiple keys.
func (w *FunctionsWriter[K, V]) DeleteAll(ctx context.Context, keys []K) ([]K, error) {
	if w.DeleteAllFunc != nil {
		return w.DeleteAllFunc(ctx, keys)
	}

	var undeleted []K
	var errs []error
	for _, key := range keys {
		if err := w.Delete(ctx, key); err != nil {
			undeleted = append(undeleted, key)
			errs = append(errs, fmt.Errorf("%w: key %v: %w", ErrDelete, key, err))
		}
	}
	return undeleted, errors.Join(errs...)
}
