// Package memstorage provides an in-memory system of record that implements both
// the expiringcache.Loader and expiringcache.Writer interfaces.
//
// The storage can be distributed across multiple buckets for improved performance and
// concurrency. It supports various configuration options like custom key hashing, bucket sizing,
// value cloning strategies and rejecting writes for selected keys.
//
// Entries never expire; expiration is the business of the cache in front of the storage.
package memstorage
