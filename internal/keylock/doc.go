// Package keylock provides reader/writer locks keyed by cache key.
//
// A lock exists only while some goroutine holds or waits for it. Bookkeeping is
// serialized by a master mutex that is never held while blocking on a key lock,
// so contention on one key does not delay other keys. Released locks are kept in
// a small free pool and reused.
package keylock
