// Package source provides adapters for implementing the expiringcache.Loader interface.
//
// These adapters make it easier to plug functions and external data sources into a cache
// with read-through, and to check that a Loader follows the contract.
package source
