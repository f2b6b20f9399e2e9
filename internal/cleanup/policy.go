package cleanup

import (
	"sync"
	"sync/atomic"

	"github.com/karupanerura/expiring-cache/expiry"
	"github.com/karupanerura/expiring-cache/internal/evictionindex"
)

// Reason tells the Evictor why an item is removed.
type Reason int

const (
	// ReasonExpired means the expiration time of the item has passed.
	ReasonExpired Reason = iota
	// ReasonCapacity means the item is removed to honor the maximum size.
	ReasonCapacity
)

// String implements fmt.Stringer.
func (r Reason) String() string {
	switch r {
	case ReasonExpired:
		return "expired"
	case ReasonCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// Action is the outcome of stamping an expiration.
type Action int

const (
	// Keep leaves the current expiration unchanged.
	Keep Action = iota
	// Expire means the entry must be treated as expired right away.
	Expire
	// Set means the returned expiration must be applied.
	Set
)

// Evictor removes items chosen by a cleanup pass.
//
// Evict is called with the policy mutex held, so passes never overlap. It must leave the node of item
// unlinked from the index unless the node no longer qualifies: for ReasonExpired
// that is when its key became greater than now. It reports whether it removed
// the item. Evict must not call back into the Policy's CleanUp or SetMaxSize.
type Evictor[T any] interface {
	Evict(item T, reason Reason, now int64) bool
}

// EvictorFunc adapts a function to the Evictor interface.
type EvictorFunc[T any] func(item T, reason Reason, now int64) bool

// Evict calls the function.
func (f EvictorFunc[T]) Evict(item T, reason Reason, now int64) bool {
	return f(item, reason, now)
}

// state is swapped as a whole so that the strategy and the watermark are
// always read together.
type state struct {
	maxSize  int
	nextTick int64
}

// Policy tracks expirations of items of type T.
type Policy[T any] struct {
	index *evictionindex.Index[T]
	mu    sync.Mutex
	state atomic.Pointer[state]
}

// New creates a policy. A maxSize of 0 or less selects the time-based strategy.
func New[T any](maxSize int) *Policy[T] {
	p := &Policy[T]{
		index: evictionindex.New[T](),
	}
	p.state.Store(&state{maxSize: normalizeMaxSize(maxSize), nextTick: expiry.Never})
	return p
}

func normalizeMaxSize(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// Expiration converts the duration returned by an expiry.Policy into an
// expiration timestamp. ok is the second return value of the expiry.Policy method.
func (p *Policy[T]) Expiration(d expiry.Duration, ok bool, now int64) (int64, Action) {
	switch {
	case !ok:
		return 0, Keep
	case d.IsZero():
		return 0, Expire
	default:
		return d.ExpiresAt(now), Set
	}
}

// Insert adds item to the index and lowers the watermark if needed.
func (p *Policy[T]) Insert(item T, expiresAt int64) evictionindex.Handle {
	h := p.index.Insert(item, expiresAt)
	p.lower(expiresAt)
	return h
}

// Relocate changes the expiration of a tracked item.
func (p *Policy[T]) Relocate(h evictionindex.Handle, expiresAt int64) bool {
	if !p.index.Update(h, expiresAt) {
		return false
	}
	p.lower(expiresAt)
	return true
}

// Remove stops tracking an item.
func (p *Policy[T]) Remove(h evictionindex.Handle) bool {
	return p.index.Remove(h)
}

// Tracked reports whether h refers to an item in the index.
func (p *Policy[T]) Tracked(h evictionindex.Handle) bool {
	return p.index.Contains(h)
}

// ExpiresAt returns the expiration stored in the index for h.
func (p *Policy[T]) ExpiresAt(h evictionindex.Handle) (int64, bool) {
	return p.index.Key(h)
}

// Len returns the number of tracked items.
func (p *Policy[T]) Len() int {
	return p.index.Len()
}

// Index returns the underlying eviction index.
func (p *Policy[T]) Index() *evictionindex.Index[T] {
	return p.index
}

// NextTick returns the watermark, or expiry.Never when nothing is scheduled.
func (p *Policy[T]) NextTick() int64 {
	return p.state.Load().nextTick
}

// MaxSize returns the configured maximum size, 0 for the time-based strategy.
func (p *Policy[T]) MaxSize() int {
	return p.state.Load().maxSize
}

// SetMaxSize switches the strategy. A value of 0 or less selects the
// time-based strategy. Concurrent CleanUp calls observe either the old or the
// new strategy, never a mix.
func (p *Policy[T]) SetMaxSize(n int) {
	n = normalizeMaxSize(n)
	for {
		cur := p.state.Load()
		if cur.maxSize == n {
			return
		}
		if p.state.CompareAndSwap(cur, &state{maxSize: n, nextTick: cur.nextTick}) {
			return
		}
	}
}

// Due reports whether CleanUp at now would have work to do.
func (p *Policy[T]) Due(now int64) bool {
	st := p.state.Load()
	if st.nextTick <= now {
		return true
	}
	return st.maxSize > 0 && p.index.Len() > st.maxSize
}

// CleanUp removes expired items and, for the size-bounded strategy, the items
// closest to expiration until the size limit holds. The items are handed to
// evictor, and the number of items it removed is returned.
func (p *Policy[T]) CleanUp(now int64, evictor Evictor[T]) int {
	if !p.Due(now) {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	evicted := 0
	for {
		item, key, ok := p.index.PeekSoonest()
		if !ok || key > now {
			break
		}
		if evictor.Evict(item, ReasonExpired, now) {
			evicted++
		}
	}

	if maxSize := p.state.Load().maxSize; maxSize > 0 {
		for p.index.Len() > maxSize {
			item, _, ok := p.index.PeekSoonest()
			if !ok {
				break
			}
			if evictor.Evict(item, ReasonCapacity, now) {
				evicted++
			}
		}
	}

	p.resetWatermark()
	return evicted
}

// lower moves the watermark down to expiresAt.
// It is called after the node is linked, so a concurrent resetWatermark either
// sees the node or fails its compare-and-swap and retries.
func (p *Policy[T]) lower(expiresAt int64) {
	for {
		cur := p.state.Load()
		if expiresAt >= cur.nextTick {
			return
		}
		if p.state.CompareAndSwap(cur, &state{maxSize: cur.maxSize, nextTick: expiresAt}) {
			return
		}
	}
}

// resetWatermark recomputes the watermark from the tail of the index.
func (p *Policy[T]) resetWatermark() {
	for {
		cur := p.state.Load()
		next := expiry.Never
		if _, key, ok := p.index.PeekSoonest(); ok {
			next = key
		}
		if cur.nextTick == next {
			return
		}
		if p.state.CompareAndSwap(cur, &state{maxSize: cur.maxSize, nextTick: next}) {
			return
		}
	}
}
