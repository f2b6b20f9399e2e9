// Package cleanup implements the lazy expiration engine of the cache.
//
// A Policy owns the eviction index and a watermark holding the soonest known
// expiration. The cache calls CleanUp around every operation: when nothing is
// due the call is a single atomic load and compare, otherwise the due entries
// are handed to the Evictor under the policy mutex. No goroutine is started.
//
// Two strategies exist. The time-based strategy (max size 0) only removes
// expired entries; the size-bounded strategy additionally removes the entries
// closest to expiration until the index fits the configured size.
package cleanup
