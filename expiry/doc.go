// Package expiry provides the policies that decide how long cache entries live.
//
// A Policy is consulted by the cache when an entry is created, accessed or updated.
// Each method returns the Duration to apply, or false to leave the current
// expiration unchanged. A Zero duration expires the entry immediately and an
// Eternal duration makes it never expire.
//
// The standard policies mirror the usual cache expiry strategies:
//
//   - EternalPolicy: entries never expire
//   - CreatedPolicy: entries expire a fixed time after creation
//   - AccessedPolicy: the expiration is pushed back on every access
//   - ModifiedPolicy: the expiration is pushed back on every update
//   - TouchedPolicy: the expiration is pushed back on every access and update
//
// FunctionsPolicy adapts plain functions to the Policy interface.
package expiry
