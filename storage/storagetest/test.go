// storagetest package provides generic test cases for system of record implementations
// that serve as both the Loader and the Writer of a cache.
package storagetest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	expiringcache "github.com/karupanerura/expiring-cache"
	"golang.org/x/sync/errgroup"
)

// Store is a system of record that can load and write entries.
type Store[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint] interface {
	expiringcache.Loader[K, V]
	expiringcache.Writer[K, V]
}

// BenchmarkWrite benchmarks the Write method of the store.
func BenchmarkWrite[K expiringcache.KeyConstraint, V expiringcache.ValueConstraint](b *testing.B, store Store[K, V], keys []K) {
	var zero V
	ctx := b.Context()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Write(ctx, &expiringcache.Entry[K, V]{Key: keys[i%len(keys)], Value: zero})
	}
}

type TestClonerStruct struct {
	value int8
}

func (s *TestClonerStruct) Clone() *TestClonerStruct {
	return &TestClonerStruct{value: s.value}
}

// TestCloneStruct tests the cloning behavior of the store.
func TestCloneStruct(t *testing.T, provider func() (Store[uint8, *TestClonerStruct], func())) {
	t.Run("CloneStruct", func(t *testing.T) {
		t.Parallel()

		store, release := provider()
		defer release()

		original := &expiringcache.Entry[uint8, *TestClonerStruct]{Key: 1, Value: &TestClonerStruct{value: 1}}
		if err := store.Write(t.Context(), original); err != nil {
			t.Fatal(err)
		}

		got, ok, err := store.Load(t.Context(), 1)
		if err != nil || !ok {
			t.Fatalf("Load(1) = %v, %v", ok, err)
		}
		if original.Value == got {
			t.Error("struct must be cloned, but got same that")
		}
		if df := cmp.Diff(original.Value, got, cmp.AllowUnexported(TestClonerStruct{})); df != "" {
			t.Errorf("struct diff=%s", df)
		}

		before := got
		got, _, err = store.Load(t.Context(), 1)
		if err != nil {
			t.Fatal(err)
		}
		if before == got {
			t.Error("struct must be cloned, but got same that")
		}
	})
}

type TestDeepCopyerStruct struct {
	value int8
}

func (s *TestDeepCopyerStruct) DeepCopy() *TestDeepCopyerStruct {
	return &TestDeepCopyerStruct{value: s.value}
}

func TestDeepCopyStruct(t *testing.T, provider func() (Store[uint8, *TestDeepCopyerStruct], func())) {
	t.Run("DeepCopyStruct", func(t *testing.T) {
		t.Parallel()

		store, release := provider()
		defer release()

		original := &expiringcache.Entry[uint8, *TestDeepCopyerStruct]{Key: 1, Value: &TestDeepCopyerStruct{value: 1}}
		if _, err := store.WriteAll(t.Context(), []*expiringcache.Entry[uint8, *TestDeepCopyerStruct]{original}); err != nil {
			t.Fatal(err)
		}
		original.Value.value = 2

		got, err := store.LoadAll(t.Context(), []uint8{1})
		if err != nil {
			t.Fatal(err)
		}
		if got[1] == original.Value {
			t.Error("struct must be copied, but got same that")
		}
		if df := cmp.Diff(&TestDeepCopyerStruct{value: 1}, got[1], cmp.AllowUnexported(TestDeepCopyerStruct{})); df != "" {
			t.Errorf("struct diff=%s", df)
		}
	})
}

func TestConsistency(t *testing.T, provider func() (Store[uint8, int8], func())) {
	t.Run("Consistency", func(t *testing.T) {
		t.Parallel()

		t.Run("WriteAndLoad", func(t *testing.T) {
			t.Parallel()

			store, release := provider()
			defer release()

			patterns := []expiringcache.Entry[uint8, int8]{
				{0, 1},
				{1, 2},
				{2, 3},
				{3, 4},
				{4, 5},
				{251, 124},
				{252, 125},
				{253, 126},
				{254, 127},
				{255, -128},
			}
			rand.Shuffle(len(patterns), func(i, j int) {
				patterns[i], patterns[j] = patterns[j], patterns[i]
			})
			var eg errgroup.Group
			for _, pattern := range patterns {
				eg.Go(func() error {
					if _, ok, err := store.Load(t.Context(), pattern.Key); err != nil {
						return err
					} else if ok {
						return fmt.Errorf("unexpected exists value for key %d", pattern.Key)
					}
					return nil
				})
			}
			if err := eg.Wait(); err != nil {
				t.Fatal(err)
			}

			eg = errgroup.Group{}
			for _, pattern := range patterns {
				eg.Go(func() error {
					return store.Write(t.Context(), &pattern)
				})
			}
			if err := eg.Wait(); err != nil {
				t.Fatal(err)
			}

			eg = errgroup.Group{}
			values := make([]int8, len(patterns))
			for i, pattern := range patterns {
				eg.Go(func() error {
					v, ok, err := store.Load(t.Context(), pattern.Key)
					if err != nil {
						return err
					} else if !ok {
						return fmt.Errorf("value for key %d is not found", pattern.Key)
					}
					values[i] = v
					return nil
				})
			}
			if err := eg.Wait(); err != nil {
				t.Fatal(err)
			}

			for i, pattern := range patterns {
				if values[i] != pattern.Value {
					t.Errorf("pattern[%d] key=%d value=%d, want %d", i, pattern.Key, values[i], pattern.Value)
				}
			}
		})

		t.Run("WriteAllAndLoadAll", func(t *testing.T) {
			t.Parallel()

			store, release := provider()
			defer release()

			patterns := [][]*expiringcache.Entry[uint8, int8]{
				{{Key: 0, Value: 1}},
				{{Key: 1, Value: 2}, {Key: 2, Value: 3}},
				{{Key: 4, Value: 5}, {Key: 5, Value: 6}, {Key: 6, Value: 7}},
				{{Key: 7, Value: 8}, {Key: 8, Value: 9}, {Key: 9, Value: 10}, {Key: 10, Value: 11}},
				{{Key: 251, Value: 124}, {Key: 252, Value: 125}, {Key: 253, Value: 126}, {Key: 254, Value: 127}, {Key: 255, Value: -128}},
			}
			rand.Shuffle(len(patterns), func(i, j int) {
				patterns[i], patterns[j] = patterns[j], patterns[i]
			})

			var eg errgroup.Group
			for _, pairs := range patterns {
				eg.Go(func() error {
					unwritten, err := store.WriteAll(t.Context(), pairs)
					if err == nil && len(unwritten) != 0 {
						err = fmt.Errorf("%d entries are not written", len(unwritten))
					}
					return err
				})
			}
			if err := eg.Wait(); err != nil {
				t.Fatal(err)
			}

			eg = errgroup.Group{}
			mu := sync.Mutex{}
			results := make([]map[uint8]int8, len(patterns))
			for i, pairs := range patterns {
				keys := make([]uint8, len(pairs))
				for j, pair := range pairs {
					keys[j] = pair.Key
				}
				eg.Go(func() error {
					r, err := store.LoadAll(t.Context(), keys)
					if err != nil {
						return err
					}

					mu.Lock()
					defer mu.Unlock()
					results[i] = r
					return nil
				})
			}
			if err := eg.Wait(); err != nil {
				t.Fatal(err)
			}

			for i, pairs := range patterns {
				want := make(map[uint8]int8, len(pairs))
				for _, pair := range pairs {
					want[pair.Key] = pair.Value
				}
				if df := cmp.Diff(want, results[i]); df != "" {
					t.Errorf("pattern[%d] values diff=%s", i, df)
				}
			}
		})

		t.Run("DeleteAndDeleteAll", func(t *testing.T) {
			t.Parallel()

			store, release := provider()
			defer release()

			for key := range uint8(10) {
				if err := store.Write(t.Context(), &expiringcache.Entry[uint8, int8]{Key: key, Value: int8(key)}); err != nil {
					t.Fatal(err)
				}
			}
			if err := store.Delete(t.Context(), 0); err != nil {
				t.Fatal(err)
			}
			if err := store.Delete(t.Context(), 200); err != nil {
				t.Errorf("Delete of a missing key = %v", err)
			}
			undeleted, err := store.DeleteAll(t.Context(), []uint8{1, 2, 3, 201})
			if err != nil || len(undeleted) != 0 {
				t.Fatalf("DeleteAll() = %v, %v", undeleted, err)
			}

			got, err := store.LoadAll(t.Context(), []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
			if err != nil {
				t.Fatal(err)
			}
			want := map[uint8]int8{4: 4, 5: 5, 6: 6, 7: 7, 8: 8, 9: 9}
			if df := cmp.Diff(want, got); df != "" {
				t.Errorf("values diff=%s", df)
			}
		})
	})
}

// TestCacheIntegration tests the store as the Loader and the Writer of a cache.
func TestCacheIntegration(t *testing.T, provider func() (Store[uint8, int8], func())) {
	t.Run("CacheIntegration", func(t *testing.T) {
		t.Parallel()

		store, release := provider()
		defer release()

		ctx := context.Background()
		if err := store.Write(ctx, &expiringcache.Entry[uint8, int8]{Key: 1, Value: 10}); err != nil {
			t.Fatal(err)
		}

		cache := expiringcache.New(
			expiringcache.WithLoader[uint8, int8](store),
			expiringcache.WithWriter[uint8, int8](store),
		)
		defer cache.Close()

		if v, ok, err := cache.Get(ctx, 1); err != nil || !ok || v != 10 {
			t.Fatalf("read-through Get(1) = %d, %v, %v", v, ok, err)
		}

		if err := cache.PutAll(ctx, map[uint8]int8{2: 20, 3: 30}); err != nil {
			t.Fatal(err)
		}
		got, err := store.LoadAll(ctx, []uint8{1, 2, 3})
		if err != nil {
			t.Fatal(err)
		}
		if df := cmp.Diff(map[uint8]int8{1: 10, 2: 20, 3: 30}, got); df != "" {
			t.Errorf("written values diff=%s", df)
		}

		if _, err := cache.Remove(ctx, 2); err != nil {
			t.Fatal(err)
		}
		if _, ok, err := store.Load(ctx, 2); err != nil || ok {
			t.Errorf("Load(2) after Remove = %v, %v; want not found", ok, err)
		}
	})
}
