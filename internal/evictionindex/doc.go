// Package evictionindex provides a concurrent sorted list of cache items keyed by
// their expiration time.
//
// The list is ordered by descending key: the head holds the farthest expiration
// and the tail the soonest one, so the next item to expire is available in O(1).
// Nodes are stored in an arena and addressed by a generational Handle, which makes
// removal O(1) and lets Update relocate a node by scanning only from its neighbors.
package evictionindex
