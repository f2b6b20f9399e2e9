package evictionindex

import (
	"iter"
	"sync"
	"sync/atomic"
)

// nilSlot marks the absence of a neighbor (or of head/tail).
const nilSlot = -1

// Handle addresses a node in the index.
// The zero Handle never refers to a linked node.
type Handle struct {
	slot int
	gen  uint32
}

// IsZero reports whether the handle is the zero value.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

type node[T any] struct {
	item   T
	key    int64
	prev   int
	next   int
	gen    uint32
	linked bool
}

// Index is a doubly linked list of items sorted by descending key.
// The head holds the largest key, the tail the smallest one.
// Nodes live in an arena and link to each other by slot number, so a Handle
// stays valid across arena growth and a stale Handle is detected by its generation.
type Index[T any] struct {
	mu    sync.Mutex
	nodes []node[T]
	free  []int
	head  int
	tail  int
	size  atomic.Int64
}

// New creates an empty index.
func New[T any]() *Index[T] {
	return &Index[T]{head: nilSlot, tail: nilSlot}
}

// Len returns the number of linked nodes. It does not take the index lock.
func (x *Index[T]) Len() int {
	return int(x.size.Load())
}

// Insert links a new node holding item with the given sort key.
// Among nodes with an equal key the new node is placed nearest to the head.
func (x *Index[T]) Insert(item T, key int64) Handle {
	x.mu.Lock()
	defer x.mu.Unlock()

	s := x.alloc(item, key)
	x.linkForward(s, x.head)
	x.size.Add(1)
	return Handle{slot: s, gen: x.nodes[s].gen}
}

// Update sets the sort key of the node and moves it to its sorted position.
// The scan starts at the neighbor the node is out of order with, so the cost
// is bounded by the distance actually moved.
// It returns false if the handle does not refer to a linked node.
func (x *Index[T]) Update(h Handle, key int64) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.validLocked(h) {
		return false
	}
	n := &x.nodes[h.slot]
	n.key = key

	prev, next := n.prev, n.next
	switch {
	case prev != nilSlot && x.nodes[prev].key < key:
		x.unlink(h.slot)
		x.linkBackward(h.slot, prev)
	case next != nilSlot && x.nodes[next].key > key:
		x.unlink(h.slot)
		x.linkForward(h.slot, next)
	}
	return true
}

// Remove unlinks the node and releases its slot.
// It returns false if the handle does not refer to a linked node.
func (x *Index[T]) Remove(h Handle) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.validLocked(h) {
		return false
	}
	x.unlink(h.slot)
	x.release(h.slot)
	x.size.Add(-1)
	return true
}

// Contains reports whether the handle refers to a linked node.
func (x *Index[T]) Contains(h Handle) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.validLocked(h)
}

// Key returns the sort key of the node.
func (x *Index[T]) Key(h Handle) (int64, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.validLocked(h) {
		return 0, false
	}
	return x.nodes[h.slot].key, true
}

// PeekSoonest returns the tail item, which has the smallest key.
func (x *Index[T]) PeekSoonest() (item T, key int64, ok bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.tail == nilSlot {
		return item, 0, false
	}
	n := &x.nodes[x.tail]
	return n.item, n.key, true
}

// Ascending yields a snapshot of the items from the tail (smallest key) to the head.
func (x *Index[T]) Ascending() iter.Seq2[T, int64] {
	x.mu.Lock()
	items := make([]T, 0, x.Len())
	keys := make([]int64, 0, x.Len())
	for s := x.tail; s != nilSlot; s = x.nodes[s].prev {
		items = append(items, x.nodes[s].item)
		keys = append(keys, x.nodes[s].key)
	}
	x.mu.Unlock()

	return func(yield func(T, int64) bool) {
		for i := range items {
			if !yield(items[i], keys[i]) {
				return
			}
		}
	}
}

// Keys returns the keys from the head to the tail.
func (x *Index[T]) Keys() []int64 {
	x.mu.Lock()
	defer x.mu.Unlock()

	keys := make([]int64, 0, x.Len())
	for s := x.head; s != nilSlot; s = x.nodes[s].next {
		keys = append(keys, x.nodes[s].key)
	}
	return keys
}

func (x *Index[T]) validLocked(h Handle) bool {
	if h.gen == 0 || h.slot < 0 || h.slot >= len(x.nodes) {
		return false
	}
	n := &x.nodes[h.slot]
	return n.linked && n.gen == h.gen
}

func (x *Index[T]) alloc(item T, key int64) int {
	if l := len(x.free); l != 0 {
		s := x.free[l-1]
		x.free = x.free[:l-1]
		n := &x.nodes[s]
		n.item = item
		n.key = key
		return s
	}
	x.nodes = append(x.nodes, node[T]{item: item, key: key, gen: 1, prev: nilSlot, next: nilSlot})
	return len(x.nodes) - 1
}

func (x *Index[T]) release(s int) {
	var zero T
	n := &x.nodes[s]
	n.item = zero
	n.gen++
	if n.gen == 0 {
		n.gen = 1
	}
	x.free = append(x.free, s)
}

// linkForward walks from start toward the tail and links s before the first
// node whose key is not greater than the key of s.
func (x *Index[T]) linkForward(s, start int) {
	key := x.nodes[s].key
	cur := start
	for cur != nilSlot && x.nodes[cur].key > key {
		cur = x.nodes[cur].next
	}
	if cur == nilSlot {
		x.linkAfter(s, x.tail)
		return
	}
	x.linkAfter(s, x.nodes[cur].prev)
}

// linkBackward walks from start toward the head and links s after the first
// node whose key is greater than the key of s.
func (x *Index[T]) linkBackward(s, start int) {
	key := x.nodes[s].key
	cur := start
	for cur != nilSlot && x.nodes[cur].key <= key {
		cur = x.nodes[cur].prev
	}
	x.linkAfter(s, cur)
}

// linkAfter links s right after prev, or at the head when prev is nilSlot.
func (x *Index[T]) linkAfter(s, prev int) {
	n := &x.nodes[s]
	n.prev = prev
	if prev == nilSlot {
		n.next = x.head
		x.head = s
	} else {
		n.next = x.nodes[prev].next
		x.nodes[prev].next = s
	}
	if n.next == nilSlot {
		x.tail = s
	} else {
		x.nodes[n.next].prev = s
	}
	n.linked = true
}

func (x *Index[T]) unlink(s int) {
	n := &x.nodes[s]
	if n.prev == nilSlot {
		x.head = n.next
	} else {
		x.nodes[n.prev].next = n.next
	}
	if n.next == nilSlot {
		x.tail = n.prev
	} else {
		x.nodes[n.next].prev = n.prev
	}
	n.prev, n.next = nilSlot, nilSlot
	n.linked = false
}
