// Package keyhash provides hash functions for cache keys.
package keyhash

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/fnv"
	"math"
	"sync"

	"github.com/goccy/go-reflect"
)

var (
	hashersMu sync.RWMutex
	hashers   = map[string]func(any) int{}
)

// For returns a hash function for keys of type K.
// Hash functions are built once per type and shared.
// It panics for key types it cannot hash; use a custom hash function for those.
func For[K comparable]() func(K) int {
	var zero K
	f := lookup(zero)
	return func(k K) int {
		return f(k)
	}
}

// lookup returns the cached hash function for the dynamic type of t.
// Interface key types have no dynamic type in their zero value, so they get a
// function that resolves the type of every key it hashes.
func lookup(t any) func(any) int {
	if t == nil {
		return dynamic
	}
	name := reflect.TypeOf(t).String()

	hashersMu.RLock()
	f, ok := hashers[name]
	hashersMu.RUnlock()
	if ok {
		return f
	}

	hashersMu.Lock()
	defer hashersMu.Unlock()
	if f, ok := hashers[name]; ok {
		return f
	}
	f = create(t)
	hashers[name] = f
	return f
}

func dynamic(v any) int {
	if v == nil {
		return 0
	}
	return lookup(v)(v)
}

// create builds the hash function for the type of t.
// Numbers are hashed through their big endian representation with FNV-1a.
func create(t any) func(any) int {
	switch t.(type) {
	case string:
		return func(v any) int { return sum([]byte(v.(string))) }
	case bool:
		return func(v any) int {
			if v.(bool) {
				return sum([]byte{1})
			}
			return sum([]byte{0})
		}
	case int:
		return func(v any) int { return sumUint64(uint64(v.(int))) }
	case int8:
		return func(v any) int { return sum([]byte{uint8(v.(int8))}) }
	case int16:
		return func(v any) int { return sumUint16(uint16(v.(int16))) }
	case int32:
		return func(v any) int { return sumUint32(uint32(v.(int32))) }
	case int64:
		return func(v any) int { return sumUint64(uint64(v.(int64))) }
	case uint:
		return func(v any) int { return sumUint64(uint64(v.(uint))) }
	case uint8:
		return func(v any) int { return sum([]byte{v.(uint8)}) }
	case uint16:
		return func(v any) int { return sumUint16(v.(uint16)) }
	case uint32:
		return func(v any) int { return sumUint32(v.(uint32)) }
	case uint64:
		return func(v any) int { return sumUint64(v.(uint64)) }
	case float32:
		return func(v any) int { return sumUint32(math.Float32bits(v.(float32))) }
	case float64:
		return func(v any) int { return sumUint64(math.Float64bits(v.(float64))) }
	case fmt.Stringer:
		return func(v any) int { return sum([]byte(v.(fmt.Stringer).String())) }
	case uintptr:
		panic("keyhash: uintptr cannot be a hash key")
	default:
		panic(fmt.Sprintf("keyhash: unsupported key type %T; provide a custom hash function", t))
	}
}

func sumUint16(u uint16) int {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], u)
	return sum(b[:])
}

func sumUint32(u uint32) int {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], u)
	return sum(b[:])
}

func sumUint64(u uint64) int {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], u)
	return sum(b[:])
}

// hasherPool is a pool for 64-bit FNV-1a hash objects.
var hasherPool = &resettablePool[hash.Hash64]{
	pool: sync.Pool{
		New: func() any {
			return fnv.New64a()
		},
	},
}

// sum computes the FNV-1a hash of b, truncated to the platform int size.
func sum(b []byte) int {
	h := hasherPool.Get()
	defer hasherPool.Put(h)
	_, _ = h.Write(b)
	return int(h.Sum64())
}

type resetter interface {
	Reset()
}

// resettablePool is a sync.Pool whose objects are reset before reuse.
type resettablePool[H resetter] struct {
	pool sync.Pool
}

// Put resets h and returns it to the pool.
func (p *resettablePool[H]) Put(h H) {
	h.Reset()
	p.pool.Put(h)
}

// Get retrieves an object from the pool.
func (p *resettablePool[H]) Get() H {
	return p.pool.Get().(H)
}
