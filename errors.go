package expiringcache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when a key, value or other argument is nil or otherwise invalid.
	ErrInvalidArgument = errors.New("expiringcache: invalid argument")

	// ErrNotOpen is returned by every operation after the cache is closed.
	ErrNotOpen = errors.New("expiringcache: cache is closed")

	// ErrInvalidState is returned when an operation is used out of order, such as
	// Iterator.Remove before Iterator.Next.
	ErrInvalidState = errors.New("expiringcache: invalid state")

	// ErrNoLoader is returned by LoadAll when the cache has no Loader.
	ErrNoLoader = errors.New("expiringcache: no loader configured")

	// ErrWriteRejected is the cause of a WriterError when the writer reported
	// unwritten entries without an error.
	ErrWriteRejected = errors.New("expiringcache: writer did not acknowledge all entries")

	// ErrLoader matches every *LoaderError with errors.Is.
	ErrLoader = errors.New("expiringcache: loader failure")

	// ErrWriter matches every *WriterError with errors.Is.
	ErrWriter = errors.New("expiringcache: writer failure")

	// ErrListener matches every *ListenerError with errors.Is.
	ErrListener = errors.New("expiringcache: listener failure")
)

// LoaderError is returned when the Loader fails or panics.
// The cache is left unchanged for Keys.
type LoaderError[K KeyConstraint] struct {
	Keys []K
	Err  error
}

func (e *LoaderError[K]) Error() string {
	return fmt.Sprintf("expiringcache: loader failure for %d key(s): %v", len(e.Keys), e.Err)
}

func (e *LoaderError[K]) Unwrap() error {
	return e.Err
}

func (e *LoaderError[K]) Is(target error) bool {
	return target == ErrLoader
}

// WriterError is returned when the Writer fails, panics or rejects entries.
// Keys lists the keys whose mutation was not applied to the cache.
type WriterError[K KeyConstraint] struct {
	Keys []K
	Err  error
}

func (e *WriterError[K]) Error() string {
	return fmt.Sprintf("expiringcache: writer failure for %d key(s): %v", len(e.Keys), e.Err)
}

func (e *WriterError[K]) Unwrap() error {
	return e.Err
}

func (e *WriterError[K]) Is(target error) bool {
	return target == ErrWriter
}

// ListenerError is returned when one or more listeners of an event type fail or panic.
// The mutation that produced the events has already been applied.
type ListenerError struct {
	Type EventType
	Err  error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("expiringcache: listener failure on %s events: %v", e.Type, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}

func (e *ListenerError) Is(target error) bool {
	return target == ErrListener
}

// joinErrors is errors.Join that returns a lone error as is.
func joinErrors(errs ...error) error {
	var found error
	n := 0
	for _, err := range errs {
		if err != nil {
			found = err
			n++
		}
	}
	switch n {
	case 0:
		return nil
	case 1:
		return found
	default:
		return errors.Join(errs...)
	}
}
