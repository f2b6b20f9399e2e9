package evictionindex

import (
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// checkLinks verifies the sort order and that prev/next links agree in both directions.
func checkLinks[T any](t *testing.T, x *Index[T]) {
	t.Helper()

	x.mu.Lock()
	defer x.mu.Unlock()

	count := 0
	prev := nilSlot
	for s := x.head; s != nilSlot; s = x.nodes[s].next {
		n := x.nodes[s]
		if !n.linked {
			t.Fatalf("slot %d is reachable but not linked", s)
		}
		if n.prev != prev {
			t.Fatalf("slot %d: prev=%d, want %d", s, n.prev, prev)
		}
		if prev != nilSlot && x.nodes[prev].key < n.key {
			t.Fatalf("slot %d: key %d is greater than previous key %d", s, n.key, x.nodes[prev].key)
		}
		prev = s
		count++
	}
	if x.tail != prev {
		t.Fatalf("tail=%d, want %d", x.tail, prev)
	}
	if count != x.Len() {
		t.Fatalf("Len()=%d, but %d nodes are linked", x.Len(), count)
	}
}

func TestIndex_InsertOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		keys []int64
		want []int64
	}{
		{
			name: "empty",
			keys: nil,
			want: []int64{},
		},
		{
			name: "ascending input",
			keys: []int64{1, 2, 3, 4},
			want: []int64{4, 3, 2, 1},
		},
		{
			name: "descending input",
			keys: []int64{4, 3, 2, 1},
			want: []int64{4, 3, 2, 1},
		},
		{
			name: "mixed input with duplicates",
			keys: []int64{5, 1, math.MaxInt64, 3, 5, 1},
			want: []int64{math.MaxInt64, 5, 5, 3, 1, 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			x := New[string]()
			for _, k := range tt.keys {
				x.Insert("item", k)
			}
			checkLinks(t, x)
			if df := cmp.Diff(tt.want, x.Keys()); df != "" {
				t.Errorf("keys diff (-want +got):\n%s", df)
			}
		})
	}
}

func TestIndex_EqualKeysKeepInsertionOrderAtTail(t *testing.T) {
	t.Parallel()

	x := New[string]()
	x.Insert("a", math.MaxInt64)
	x.Insert("b", math.MaxInt64)
	x.Insert("c", math.MaxInt64)

	item, _, ok := x.PeekSoonest()
	if !ok || item != "a" {
		t.Fatalf("PeekSoonest() = %q, %v; want oldest item %q", item, ok, "a")
	}

	var got []string
	for item := range x.Ascending() {
		got = append(got, item)
	}
	if df := cmp.Diff([]string{"a", "b", "c"}, got); df != "" {
		t.Errorf("ascending diff (-want +got):\n%s", df)
	}
}

func TestIndex_Update(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
		key    int64
		want   []string
	}{
		{name: "stays in place", target: "c", key: 25, want: []string{"e", "d", "c", "b", "a"}},
		{name: "moves one step toward head", target: "c", key: 45, want: []string{"e", "c", "d", "b", "a"}},
		{name: "moves to head", target: "a", key: 100, want: []string{"a", "e", "d", "c", "b"}},
		{name: "moves to tail", target: "e", key: 0, want: []string{"d", "c", "b", "a", "e"}},
		{name: "moves several steps toward tail", target: "d", key: 15, want: []string{"e", "c", "b", "d", "a"}},
		{name: "tie with next neighbor stays", target: "c", key: 20, want: []string{"e", "d", "c", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			x := New[string]()
			handles := map[string]Handle{}
			for i, name := range []string{"a", "b", "c", "d", "e"} {
				handles[name] = x.Insert(name, int64(i+1)*10)
			}

			if !x.Update(handles[tt.target], tt.key) {
				t.Fatal("Update returned false for a linked handle")
			}
			checkLinks(t, x)

			var got []string
			for item := range x.Ascending() {
				got = append(got, item)
			}
			slices.Reverse(got)
			if df := cmp.Diff(tt.want, got); df != "" {
				t.Errorf("order diff (-want +got):\n%s", df)
			}
			if key, ok := x.Key(handles[tt.target]); !ok || key != tt.key {
				t.Errorf("Key() = %d, %v; want %d", key, ok, tt.key)
			}
		})
	}
}

func TestIndex_Remove(t *testing.T) {
	t.Parallel()

	for _, victim := range []int{0, 2, 4} {
		x := New[int]()
		handles := make([]Handle, 5)
		for i := range handles {
			handles[i] = x.Insert(i, int64(i))
		}

		if !x.Remove(handles[victim]) {
			t.Fatalf("Remove(%d) returned false", victim)
		}
		checkLinks(t, x)
		if x.Contains(handles[victim]) {
			t.Errorf("Contains(%d) = true after Remove", victim)
		}
		if x.Remove(handles[victim]) {
			t.Errorf("second Remove(%d) returned true", victim)
		}
		if x.Update(handles[victim], 100) {
			t.Errorf("Update on removed handle %d returned true", victim)
		}
		if x.Len() != 4 {
			t.Errorf("Len() = %d, want 4", x.Len())
		}
	}
}

func TestIndex_StaleHandleAfterSlotReuse(t *testing.T) {
	t.Parallel()

	x := New[string]()
	old := x.Insert("old", 1)
	x.Remove(old)
	fresh := x.Insert("fresh", 2)

	if old.slot != fresh.slot {
		t.Fatalf("slot was not reused: old=%d fresh=%d", old.slot, fresh.slot)
	}
	if x.Contains(old) {
		t.Error("stale handle must not be reported as linked")
	}
	if x.Remove(old) {
		t.Error("stale handle must not remove the new node")
	}
	if !x.Contains(fresh) {
		t.Error("fresh handle must be linked")
	}
	if (Handle{}).IsZero() != true || fresh.IsZero() {
		t.Error("IsZero mismatch")
	}
}

func TestIndex_PeekSoonestEmpty(t *testing.T) {
	t.Parallel()

	x := New[string]()
	if _, _, ok := x.PeekSoonest(); ok {
		t.Error("PeekSoonest on empty index must report false")
	}
}

func TestIndex_RandomOperations(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(1, 2))
	x := New[int]()
	live := map[int]Handle{}
	keys := map[int]int64{}

	for i := 0; i < 5000; i++ {
		switch op := r.IntN(3); {
		case op == 0 || len(live) == 0:
			k := r.Int64N(1000)
			live[i] = x.Insert(i, k)
			keys[i] = k
		case op == 1:
			for id, h := range live {
				k := r.Int64N(1000)
				x.Update(h, k)
				keys[id] = k
				break
			}
		default:
			for id, h := range live {
				x.Remove(h)
				delete(live, id)
				delete(keys, id)
				break
			}
		}
	}
	checkLinks(t, x)

	want := make([]int64, 0, len(keys))
	for _, k := range keys {
		want = append(want, k)
	}
	slices.Sort(want)
	slices.Reverse(want)
	if df := cmp.Diff(want, x.Keys()); df != "" {
		t.Errorf("keys diff (-want +got):\n%s", df)
	}
}

func TestIndex_Concurrent(t *testing.T) {
	t.Parallel()

	x := New[int]()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(seed, seed))
			var own []Handle
			for i := 0; i < 1000; i++ {
				own = append(own, x.Insert(i, r.Int64N(100)))
				if len(own) > 10 {
					x.Update(own[1], r.Int64N(100))
					x.Remove(own[0])
					own = own[1:]
				}
			}
			for _, h := range own {
				x.Remove(h)
			}
		}(uint64(w))
	}
	wg.Wait()

	checkLinks(t, x)
	if x.Len() != 0 {
		t.Errorf("Len() = %d, want 0", x.Len())
	}
}
