package expiringcache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	expiringcache "github.com/karupanerura/expiring-cache"
	"github.com/karupanerura/expiring-cache/expiry"
	"github.com/karupanerura/expiring-cache/storage"
	"golang.org/x/sync/errgroup"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type recordedEvent struct {
	Type     expiringcache.EventType
	Key      string
	Value    int
	OldValue int
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) OnEvents(_ context.Context, events []*expiringcache.Event[string, int]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range events {
		r.events = append(r.events, recordedEvent{Type: e.Type, Key: e.Key, Value: e.Value, OldValue: e.OldValue})
	}
	return nil
}

func (r *eventRecorder) Events() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

func (r *eventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type metricsRecorder struct {
	mu      sync.Mutex
	hits    int
	misses  int
	puts    int
	removes int
	evicts  map[expiringcache.EvictReason]int
	size    int
}

func (m *metricsRecorder) Hit()    { m.mu.Lock(); m.hits++; m.mu.Unlock() }
func (m *metricsRecorder) Miss()   { m.mu.Lock(); m.misses++; m.mu.Unlock() }
func (m *metricsRecorder) Put()    { m.mu.Lock(); m.puts++; m.mu.Unlock() }
func (m *metricsRecorder) Remove() { m.mu.Lock(); m.removes++; m.mu.Unlock() }
func (m *metricsRecorder) Size(n int) {
	m.mu.Lock()
	m.size = n
	m.mu.Unlock()
}
func (m *metricsRecorder) Evict(r expiringcache.EvictReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.evicts == nil {
		m.evicts = map[expiringcache.EvictReason]int{}
	}
	m.evicts[r]++
}

func newCache(t *testing.T, opts ...expiringcache.Option[string, int]) (*expiringcache.Cache[string, int], *expiringcache.ManualClock, *eventRecorder) {
	t.Helper()

	clock := expiringcache.NewManualClock(epoch)
	rec := &eventRecorder{}
	opts = append([]expiringcache.Option[string, int]{
		expiringcache.WithName[string, int](t.Name()),
		expiringcache.WithClock[string, int](clock),
		expiringcache.WithListener[string, int](rec),
		expiringcache.WithStatisticsEnabled[string, int](true),
	}, opts...)
	c := expiringcache.New(opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c, clock, rec
}

func mustPut(t *testing.T, c *expiringcache.Cache[string, int], key string, value int) {
	t.Helper()
	if err := c.Put(context.Background(), key, value); err != nil {
		t.Fatalf("Put(%q) = %v", key, err)
	}
}

func mustGet(t *testing.T, c *expiringcache.Cache[string, int], key string) (int, bool) {
	t.Helper()
	v, ok, err := c.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%q) = %v", key, err)
	}
	return v, ok
}

func mustContain(t *testing.T, c *expiringcache.Cache[string, int], key string, want bool) {
	t.Helper()
	ok, err := c.ContainsKey(context.Background(), key)
	if err != nil {
		t.Fatalf("ContainsKey(%q) = %v", key, err)
	}
	if ok != want {
		t.Errorf("ContainsKey(%q) = %v, want %v", key, ok, want)
	}
}

func TestCache_PutThenGetCountsHit(t *testing.T) {
	t.Parallel()

	c, _, _ := newCache(t)
	mustPut(t, c, "a", 1)

	v, ok := mustGet(t, c, "a")
	if !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if got := c.Statistics(); got.Hits != 1 || got.Misses != 0 || got.Puts != 1 {
		t.Errorf("Statistics() = %+v", got)
	}
}

func TestCache_CreationExpiry(t *testing.T) {
	t.Parallel()

	c, clock, rec := newCache(t, expiringcache.WithExpiryPolicy[string, int](expiry.CreatedPolicy{Duration: expiry.After(10 * time.Millisecond)}))
	mustPut(t, c, "a", 1)

	clock.Advance(20 * time.Millisecond)
	if v, ok := mustGet(t, c, "a"); ok {
		t.Errorf("Get(a) = %d, true; want a miss", v)
	}
	if got := c.Statistics().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
	want := []recordedEvent{
		{Type: expiringcache.EventCreated, Key: "a", Value: 1},
		{Type: expiringcache.EventExpired, Key: "a", Value: 1},
	}
	if df := cmp.Diff(want, rec.Events()); df != "" {
		t.Errorf("events diff (-want +got):\n%s", df)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCache_MaxSizeEvictsOldestEternalEntry(t *testing.T) {
	t.Parallel()

	metrics := &metricsRecorder{}
	c, _, rec := newCache(t, expiringcache.WithMetrics[string, int](metrics))
	ctx := context.Background()
	if err := c.SetMaxSize(ctx, 2); err != nil {
		t.Fatal(err)
	}
	mustPut(t, c, "a", 1)
	mustPut(t, c, "b", 2)
	mustPut(t, c, "c", 3)

	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	mustContain(t, c, "a", false)
	mustContain(t, c, "b", true)
	mustContain(t, c, "c", true)

	var expired []string
	for _, e := range rec.Events() {
		if e.Type == expiringcache.EventExpired {
			expired = append(expired, e.Key)
		}
	}
	if df := cmp.Diff([]string{"a"}, expired); df != "" {
		t.Errorf("expired keys diff (-want +got):\n%s", df)
	}
	if df := cmp.Diff(map[expiringcache.EvictReason]int{expiringcache.EvictCapacity: 1}, metrics.evicts); df != "" {
		t.Errorf("evictions diff (-want +got):\n%s", df)
	}
	if metrics.size != 2 {
		t.Errorf("size gauge = %d, want 2", metrics.size)
	}
}

func TestCache_MaxSizeEvictsSoonestExpiration(t *testing.T) {
	t.Parallel()

	ttl := map[string]time.Duration{"late": time.Hour, "soon": time.Minute, "mid": 10 * time.Minute}
	var next string
	policy := &expiry.FunctionsPolicy{
		CreationFunc: func() (expiry.Duration, bool) { return expiry.After(ttl[next]), true },
	}
	c, _, _ := newCache(t, expiringcache.WithExpiryPolicy[string, int](policy), expiringcache.WithMaxSize[string, int](2))
	if c.MaxSize() != 2 {
		t.Fatalf("MaxSize() = %d, want 2", c.MaxSize())
	}

	for _, key := range []string{"late", "soon", "mid"} {
		next = key
		mustPut(t, c, key, 1)
	}
	mustContain(t, c, "soon", false)
	mustContain(t, c, "late", true)
	mustContain(t, c, "mid", true)
}

func TestCache_ReplaceIfEqualsIsAtomic(t *testing.T) {
	t.Parallel()

	c, _, _ := newCache(t)
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		mustPut(t, c, "k", 0)

		var eg errgroup.Group
		results := make([]bool, 2)
		for w := range results {
			eg.Go(func() error {
				ok, err := c.ReplaceIfEquals(ctx, "k", 0, w+1)
				results[w] = ok
				return err
			})
		}
		if err := eg.Wait(); err != nil {
			t.Fatal(err)
		}

		if results[0] == results[1] {
			t.Fatalf("iteration %d: results = %v, want exactly one success", i, results)
		}
		winner := 1
		if results[1] {
			winner = 2
		}
		if v, _ := mustGet(t, c, "k"); v != winner {
			t.Fatalf("iteration %d: value = %d, want %d", i, v, winner)
		}
	}
}

func TestCache_RemoveAllAppliesOnlyAcknowledgedKeys(t *testing.T) {
	t.Parallel()

	writer := &storage.FunctionsWriter[string, int]{
		DeleteAllFunc: func(_ context.Context, keys []string) ([]string, error) {
			var rejected []string
			for _, k := range keys {
				if k == "b" {
					rejected = append(rejected, k)
				}
			}
			return rejected, nil
		},
	}
	c, _, rec := newCache(t, expiringcache.WithWriter[string, int](writer))
	mustPut(t, c, "a", 1)
	mustPut(t, c, "b", 2)
	rec.Reset()

	err := c.RemoveAll(context.Background(), []string{"a", "b"})
	if !errors.Is(err, expiringcache.ErrWriter) || !errors.Is(err, expiringcache.ErrWriteRejected) {
		t.Fatalf("RemoveAll() = %v, want a rejected write", err)
	}
	var werr *expiringcache.WriterError[string]
	if !errors.As(err, &werr) {
		t.Fatalf("RemoveAll() = %T, want *WriterError", err)
	}
	if df := cmp.Diff([]string{"b"}, werr.Keys); df != "" {
		t.Errorf("rejected keys diff (-want +got):\n%s", df)
	}

	mustContain(t, c, "a", false)
	mustContain(t, c, "b", true)
	if df := cmp.Diff([]recordedEvent{{Type: expiringcache.EventRemoved, Key: "a", Value: 1, OldValue: 1}}, rec.Events()); df != "" {
		t.Errorf("events diff (-want +got):\n%s", df)
	}
}

func TestCache_SingleKeyOperations(t *testing.T) {
	t.Parallel()

	type step struct {
		name string
		do   func(context.Context, *expiringcache.Cache[string, int]) (any, error)
		want any
	}
	getAndPut := func(v int) func(context.Context, *expiringcache.Cache[string, int]) (any, error) {
		return func(ctx context.Context, c *expiringcache.Cache[string, int]) (any, error) {
			old, ok, err := c.GetAndPut(ctx, "k", v)
			return []any{old, ok}, err
		}
	}
	steps := []step{
		{"GetAndPut on absent key", getAndPut(1), []any{0, false}},
		{"GetAndPut on present key", getAndPut(2), []any{1, true}},
		{"PutIfAbsent on present key", func(ctx context.Context, c *expiringcache.Cache[string, int]) (any, error) {
			return c.PutIfAbsent(ctx, "k", 3)
		}, false},
		{"Replace on absent key", func(ctx context.Context, c *expiringcache.Cache[string, int]) (any, error) {
			return c.Replace(ctx, "other", 3)
		}, false},
		{"Replace on present key", func(ctx context.Context, c *expiringcache.Cache[string, int]) (any, error) {
			return c.Replace(ctx, "k", 4)
		}, true},
		{"ReplaceIfEquals mismatch", func(ctx context.Context, c *expiringcache.Cache[string, int]) (any, error) {
			return c.ReplaceIfEquals(ctx, "k", 3, 5)
		}, false},
		{"GetAndReplace on present key", func(ctx context.Context, c *expiringcache.Cache[string, int]) (any, error) {
			old, ok, err := c.GetAndReplace(ctx, "k", 6)
			return []any{old, ok}, err
		}, []any{4, true}},
		{"RemoveIfEquals mismatch", func(ctx context.Context, c *expiringcache.Cache[string, int]) (any, error) {
			return c.RemoveIfEquals(ctx, "k", 4)
		}, false},
		{"RemoveIfEquals match", func(ctx context.Context, c *expiringcache.Cache[string, int]) (any, error) {
			return c.RemoveIfEquals(ctx, "k", 6)
		}, true},
		{"PutIfAbsent on absent key", func(ctx context.Context, c *expiringcache.Cache[string, int]) (any, error) {
			return c.PutIfAbsent(ctx, "k", 7)
		}, true},
		{"GetAndRemove on present key", func(ctx context.Context, c *expiringcache.Cache[string, int]) (any, error) {
			old, ok, err := c.GetAndRemove(ctx, "k")
			return []any{old, ok}, err
		}, []any{7, true}},
		{"Remove on absent key", func(ctx context.Context, c *expiringcache.Cache[string, int]) (any, error) {
			return c.Remove(ctx, "k")
		}, false},
	}

	c, _, rec := newCache(t)
	ctx := context.Background()
	for _, s := range steps {
		got, err := s.do(ctx, c)
		if err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if df := cmp.Diff(s.want, got); df != "" {
			t.Fatalf("%s: diff (-want +got):\n%s", s.name, df)
		}
	}

	want := []recordedEvent{
		{Type: expiringcache.EventCreated, Key: "k", Value: 1},
		{Type: expiringcache.EventUpdated, Key: "k", Value: 2, OldValue: 1},
		{Type: expiringcache.EventUpdated, Key: "k", Value: 4, OldValue: 2},
		{Type: expiringcache.EventUpdated, Key: "k", Value: 6, OldValue: 4},
		{Type: expiringcache.EventRemoved, Key: "k", Value: 6, OldValue: 6},
		{Type: expiringcache.EventCreated, Key: "k", Value: 7},
		{Type: expiringcache.EventRemoved, Key: "k", Value: 7, OldValue: 7},
	}
	if df := cmp.Diff(want, rec.Events()); df != "" {
		t.Errorf("events diff (-want +got):\n%s", df)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCache_AccessExpiryExtendsLifetime(t *testing.T) {
	t.Parallel()

	c, clock, _ := newCache(t, expiringcache.WithExpiryPolicy[string, int](expiry.AccessedPolicy{Duration: expiry.After(10 * time.Millisecond)}))
	mustPut(t, c, "a", 1)

	for i := 0; i < 3; i++ {
		clock.Advance(8 * time.Millisecond)
		if _, ok := mustGet(t, c, "a"); !ok {
			t.Fatalf("Get(a) missed after access %d", i)
		}
	}

	// ContainsKey is not an access
	clock.Advance(8 * time.Millisecond)
	mustContain(t, c, "a", true)
	clock.Advance(8 * time.Millisecond)
	mustContain(t, c, "a", false)
}

func TestCache_ZeroExpiry(t *testing.T) {
	t.Parallel()

	t.Run("on creation", func(t *testing.T) {
		t.Parallel()

		policy := &expiry.FunctionsPolicy{
			CreationFunc: func() (expiry.Duration, bool) { return expiry.Zero, true },
		}
		c, _, rec := newCache(t, expiringcache.WithExpiryPolicy[string, int](policy))
		mustPut(t, c, "a", 1)

		mustContain(t, c, "a", false)
		if c.Len() != 0 {
			t.Errorf("Len() = %d, want 0", c.Len())
		}
		if df := cmp.Diff([]recordedEvent{{Type: expiringcache.EventExpired, Key: "a", Value: 1}}, rec.Events()); df != "" {
			t.Errorf("events diff (-want +got):\n%s", df)
		}
	})

	t.Run("on update", func(t *testing.T) {
		t.Parallel()

		policy := &expiry.FunctionsPolicy{
			UpdateFunc: func() (expiry.Duration, bool) { return expiry.Zero, true },
		}
		c, _, rec := newCache(t, expiringcache.WithExpiryPolicy[string, int](policy))
		mustPut(t, c, "a", 1)
		mustPut(t, c, "a", 2)

		mustContain(t, c, "a", false)
		want := []recordedEvent{
			{Type: expiringcache.EventCreated, Key: "a", Value: 1},
			{Type: expiringcache.EventExpired, Key: "a", Value: 2},
		}
		if df := cmp.Diff(want, rec.Events()); df != "" {
			t.Errorf("events diff (-want +got):\n%s", df)
		}
	})

	t.Run("on access", func(t *testing.T) {
		t.Parallel()

		policy := &expiry.FunctionsPolicy{
			AccessFunc: func() (expiry.Duration, bool) { return expiry.Zero, true },
		}
		c, _, _ := newCache(t, expiringcache.WithExpiryPolicy[string, int](policy))
		mustPut(t, c, "a", 1)

		if _, ok := mustGet(t, c, "a"); ok {
			t.Error("Get(a) hit, want a miss")
		}
		mustContain(t, c, "a", false)
		if got := c.Statistics(); got.Misses != 1 || got.Evictions != 1 {
			t.Errorf("Statistics() = %+v", got)
		}
	})
}

func TestCache_ExpiredEntryIsRecreated(t *testing.T) {
	t.Parallel()

	c, clock, rec := newCache(t, expiringcache.WithExpiryPolicy[string, int](expiry.CreatedPolicy{Duration: expiry.After(time.Second)}))
	mustPut(t, c, "a", 1)
	clock.Advance(2 * time.Second)
	mustPut(t, c, "a", 2)

	want := []recordedEvent{
		{Type: expiringcache.EventCreated, Key: "a", Value: 1},
		{Type: expiringcache.EventExpired, Key: "a", Value: 1},
		{Type: expiringcache.EventCreated, Key: "a", Value: 2},
	}
	if df := cmp.Diff(want, rec.Events()); df != "" {
		t.Errorf("events diff (-want +got):\n%s", df)
	}
}

func TestCache_WriteThrough(t *testing.T) {
	t.Parallel()

	writeErr := errors.New("write failed")
	var mu sync.Mutex
	written := map[string]int{}
	writer := &storage.FunctionsWriter[string, int]{
		WriteFunc: func(_ context.Context, e *expiringcache.Entry[string, int]) error {
			if e.Value < 0 {
				return writeErr
			}
			if e.Value == 0 {
				panic("zero")
			}
			mu.Lock()
			defer mu.Unlock()
			written[e.Key] = e.Value
			return nil
		},
	}
	c, _, rec := newCache(t, expiringcache.WithWriter[string, int](writer))
	ctx := context.Background()

	mustPut(t, c, "a", 1)
	if df := cmp.Diff(map[string]int{"a": 1}, written); df != "" {
		t.Errorf("written diff (-want +got):\n%s", df)
	}

	err := c.Put(ctx, "a", -1)
	if !errors.Is(err, writeErr) || !errors.Is(err, expiringcache.ErrWriter) {
		t.Fatalf("Put(a, -1) = %v, want the writer error", err)
	}
	if _, err := c.PutIfAbsent(ctx, "b", 0); !errors.Is(err, expiringcache.ErrWriter) {
		t.Fatalf("PutIfAbsent(b, 0) = %v, want a recovered panic", err)
	}

	if v, _ := mustGet(t, c, "a"); v != 1 {
		t.Errorf("Get(a) = %d, want the value before the failed write", v)
	}
	mustContain(t, c, "b", false)
	if df := cmp.Diff([]recordedEvent{{Type: expiringcache.EventCreated, Key: "a", Value: 1}}, rec.Events()); df != "" {
		t.Errorf("events diff (-want +got):\n%s", df)
	}
}

func TestCache_ReplaceDuringSlowWriteOfExpiringEntry(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name    string
		replace func(*expiringcache.Cache[string, int]) (bool, error)
	}{
		{
			name: "Replace",
			replace: func(c *expiringcache.Cache[string, int]) (bool, error) {
				return c.Replace(context.Background(), "a", 2)
			},
		},
		{
			name: "ReplaceIfEquals",
			replace: func(c *expiringcache.Cache[string, int]) (bool, error) {
				return c.ReplaceIfEquals(context.Background(), "a", 1, 2)
			},
		},
		{
			name: "GetAndReplace",
			replace: func(c *expiringcache.Cache[string, int]) (bool, error) {
				_, ok, err := c.GetAndReplace(context.Background(), "a", 2)
				return ok, err
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// the entry runs out of time while the writer is busy with the replacement
			var clock *expiringcache.ManualClock
			writer := &storage.FunctionsWriter[string, int]{
				WriteFunc: func(_ context.Context, e *expiringcache.Entry[string, int]) error {
					if e.Value == 2 {
						clock.Advance(2 * time.Second)
					}
					return nil
				},
			}
			c, cl, rec := newCache(t,
				expiringcache.WithExpiryPolicy[string, int](expiry.CreatedPolicy{Duration: expiry.After(time.Second)}),
				expiringcache.WithWriter[string, int](writer),
			)
			clock = cl
			mustPut(t, c, "a", 1)

			replaced, err := tt.replace(c)
			if err != nil {
				t.Fatal(err)
			}
			if replaced {
				t.Errorf("%s() = true, want false for an entry that expired during the write", tt.name)
			}
			mustContain(t, c, "a", false)
			want := []recordedEvent{
				{Type: expiringcache.EventCreated, Key: "a", Value: 1},
				{Type: expiringcache.EventExpired, Key: "a", Value: 1},
			}
			if df := cmp.Diff(want, rec.Events()); df != "" {
				t.Errorf("events diff (-want +got):\n%s", df)
			}
			if c.Len() != 0 {
				t.Errorf("Len() = %d, want 0", c.Len())
			}
		})
	}
}

func TestCache_PutAllAppliesOnlyAcknowledgedEntries(t *testing.T) {
	t.Parallel()

	writer := &storage.FunctionsWriter[string, int]{
		WriteAllFunc: func(_ context.Context, entries []*expiringcache.Entry[string, int]) ([]*expiringcache.Entry[string, int], error) {
			var rejected []*expiringcache.Entry[string, int]
			for _, e := range entries {
				if e.Value%2 == 0 {
					rejected = append(rejected, e)
				}
			}
			return rejected, nil
		},
	}
	c, _, _ := newCache(t, expiringcache.WithWriter[string, int](writer))

	err := c.PutAll(context.Background(), map[string]int{"a": 1, "b": 2, "c": 3})
	var werr *expiringcache.WriterError[string]
	if !errors.As(err, &werr) {
		t.Fatalf("PutAll() = %v, want *WriterError", err)
	}
	if df := cmp.Diff([]string{"b"}, werr.Keys); df != "" {
		t.Errorf("rejected keys diff (-want +got):\n%s", df)
	}
	mustContain(t, c, "a", true)
	mustContain(t, c, "b", false)
	mustContain(t, c, "c", true)
}

func TestCache_PutAllWriterErrorRejectsEverything(t *testing.T) {
	t.Parallel()

	writer := &storage.FunctionsWriter[string, int]{
		WriteAllFunc: func(context.Context, []*expiringcache.Entry[string, int]) ([]*expiringcache.Entry[string, int], error) {
			return nil, errors.New("unavailable")
		},
	}
	c, _, _ := newCache(t, expiringcache.WithWriter[string, int](writer))

	if err := c.PutAll(context.Background(), map[string]int{"a": 1, "b": 2}); !errors.Is(err, expiringcache.ErrWriter) {
		t.Fatalf("PutAll() = %v, want a writer error", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCache_ListenerFailureIsReportedAfterCommit(t *testing.T) {
	t.Parallel()

	listenerErr := errors.New("listener failed")
	failing := expiringcache.EventListenerFunc[string, int](func(context.Context, []*expiringcache.Event[string, int]) error {
		return listenerErr
	})
	panicking := expiringcache.EventListenerFunc[string, int](func(context.Context, []*expiringcache.Event[string, int]) error {
		panic("boom")
	})
	c, _, rec := newCache(t,
		expiringcache.WithListener[string, int](failing, expiringcache.EventCreated),
		expiringcache.WithListener[string, int](panicking, expiringcache.EventRemoved),
	)
	ctx := context.Background()

	err := c.Put(ctx, "a", 1)
	if !errors.Is(err, listenerErr) || !errors.Is(err, expiringcache.ErrListener) {
		t.Fatalf("Put() = %v, want the listener error", err)
	}
	var lerr *expiringcache.ListenerError
	if !errors.As(err, &lerr) || lerr.Type != expiringcache.EventCreated {
		t.Errorf("Put() = %v, want a *ListenerError for created events", err)
	}
	mustContain(t, c, "a", true)

	// updates are not delivered to either failing listener
	if err := c.Put(ctx, "a", 2); err != nil {
		t.Errorf("Put() = %v, want nil", err)
	}

	removed, err := c.Remove(ctx, "a")
	if !removed || !errors.Is(err, expiringcache.ErrListener) {
		t.Errorf("Remove() = %v, %v; want true and a listener error", removed, err)
	}
	mustContain(t, c, "a", false)

	if got := len(rec.Events()); got != 3 {
		t.Errorf("unfiltered listener got %d events, want 3", got)
	}
}

func TestCache_ListenerMayCallBack(t *testing.T) {
	t.Parallel()

	var c *expiringcache.Cache[string, int]
	seen := make(chan int, 1)
	listener := expiringcache.EventListenerFunc[string, int](func(ctx context.Context, events []*expiringcache.Event[string, int]) error {
		v, _, err := c.Get(ctx, events[0].Key)
		seen <- v
		return err
	})
	c, _, _ = newCache(t, expiringcache.WithListener[string, int](listener, expiringcache.EventCreated))

	mustPut(t, c, "a", 1)
	select {
	case v := <-seen:
		if v != 1 {
			t.Errorf("listener read %d, want 1", v)
		}
	case <-time.After(time.Second):
		t.Fatal("listener was not called")
	}
}

func TestCache_StoreByValue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	t.Run("by value", func(t *testing.T) {
		t.Parallel()

		c := expiringcache.New(expiringcache.WithStoreByValue[string, []byte](nil))
		defer c.Close()

		original := []byte("value")
		if err := c.Put(ctx, "a", original); err != nil {
			t.Fatal(err)
		}
		original[0] = 'X'

		got, _, _ := c.Get(ctx, "a")
		if string(got) != "value" {
			t.Errorf("Get(a) = %q, want the value at Put time", got)
		}
		got[0] = 'Y'
		again, _, _ := c.Get(ctx, "a")
		if string(again) != "value" {
			t.Errorf("Get(a) = %q, want the stored value", again)
		}
	})

	t.Run("by reference", func(t *testing.T) {
		t.Parallel()

		c := expiringcache.New[string, []byte]()
		defer c.Close()

		original := []byte("value")
		if err := c.Put(ctx, "a", original); err != nil {
			t.Fatal(err)
		}
		original[0] = 'X'

		got, _, _ := c.Get(ctx, "a")
		if string(got) != "Xalue" {
			t.Errorf("Get(a) = %q, want the shared value", got)
		}
	})
}

func TestCache_InvalidArguments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := expiringcache.New[*string, []byte](expiringcache.WithKeyHash[*string, []byte](func(k *string) int { return len(*k) }))
	defer c.Close()

	key := "k"
	tests := []struct {
		name string
		err  error
	}{
		{name: "nil key", err: c.Put(ctx, nil, []byte("v"))},
		{name: "nil value", err: c.Put(ctx, &key, nil)},
		{name: "nil key in batch", err: c.RemoveAll(ctx, []*string{&key, nil})},
		{name: "nil value in batch", err: c.PutAll(ctx, map[*string][]byte{&key: nil})},
		{name: "nil expected value", err: func() error {
			_, err := c.ReplaceIfEquals(ctx, &key, nil, []byte("v"))
			return err
		}()},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, expiringcache.ErrInvalidArgument) {
			t.Errorf("%s: err = %v, want ErrInvalidArgument", tt.name, tt.err)
		}
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

type closableWriter struct {
	storage.FunctionsWriter[string, int]
	closed bool
}

func (w *closableWriter) Close() error {
	w.closed = true
	return nil
}

func TestCache_Close(t *testing.T) {
	t.Parallel()

	var hooked []string
	writer := &closableWriter{}
	c := expiringcache.New(
		expiringcache.WithName[string, int]("users"),
		expiringcache.WithWriter[string, int](writer),
		expiringcache.WithCloseHook[string, int](func(name string) { hooked = append(hooked, name) }),
	)
	ctx := context.Background()
	if err := c.Put(ctx, "a", 1); err != nil {
		t.Fatal(err)
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if !c.IsClosed() {
		t.Error("IsClosed() = false")
	}
	if !writer.closed {
		t.Error("writer was not closed")
	}
	if df := cmp.Diff([]string{"users"}, hooked); df != "" {
		t.Errorf("close hook calls diff (-want +got):\n%s", df)
	}

	checks := map[string]error{
		"Put":              c.Put(ctx, "a", 1),
		"RemoveAll":        c.RemoveAll(ctx, []string{"a"}),
		"RemoveEverything": c.RemoveEverything(ctx),
		"Clear":            c.Clear(),
		"SetMaxSize":       c.SetMaxSize(ctx, 1),
	}
	_, _, checks["Get"] = c.Get(ctx, "a")
	_, checks["ContainsKey"] = c.ContainsKey(ctx, "a")
	_, checks["GetAll"] = c.GetAll(ctx, []string{"a"})
	_, checks["Remove"] = c.Remove(ctx, "a")
	for name, err := range checks {
		if !errors.Is(err, expiringcache.ErrNotOpen) {
			t.Errorf("%s after Close = %v, want ErrNotOpen", name, err)
		}
	}

	it := c.Iterator(ctx)
	if it.Next() || !errors.Is(it.Err(), expiringcache.ErrNotOpen) {
		t.Errorf("Iterator after Close: Err() = %v, want ErrNotOpen", it.Err())
	}
}

func TestCache_ClearAndRemoveEverything(t *testing.T) {
	t.Parallel()

	c, _, rec := newCache(t)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		mustPut(t, c, k, 1)
	}
	rec.Reset()
	if err := c.RemoveEverything(ctx); err != nil {
		t.Fatal(err)
	}
	if got := len(rec.Events()); got != 3 {
		t.Errorf("RemoveEverything fired %d events, want 3", got)
	}
	if got := c.Statistics().Removals; got != 3 {
		t.Errorf("Removals = %d, want 3", got)
	}

	for _, k := range []string{"a", "b", "c"} {
		mustPut(t, c, k, 1)
	}
	rec.Reset()
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
	if got := rec.Events(); len(got) != 0 {
		t.Errorf("Clear fired %v, want no events", got)
	}
}

func TestCache_Statistics(t *testing.T) {
	t.Parallel()

	c, _, _ := newCache(t, expiringcache.WithStatisticsEnabled[string, int](false))
	mustPut(t, c, "a", 1)
	mustGet(t, c, "a")
	if got := c.Statistics(); got != (expiringcache.Statistics{}) {
		t.Errorf("Statistics() = %+v while disabled", got)
	}

	c.SetStatisticsEnabled(true)
	if !c.StatisticsEnabled() {
		t.Fatal("StatisticsEnabled() = false")
	}
	mustGet(t, c, "a")
	mustGet(t, c, "missing")
	mustPut(t, c, "b", 2)
	if _, err := c.Remove(context.Background(), "b"); err != nil {
		t.Fatal(err)
	}

	want := expiringcache.Statistics{Hits: 1, Misses: 1, Puts: 1, Removals: 1}
	if df := cmp.Diff(want, c.Statistics()); df != "" {
		t.Errorf("Statistics() diff (-want +got):\n%s", df)
	}
	if got := c.Statistics().HitRatio(); got != 0.5 {
		t.Errorf("HitRatio() = %v, want 0.5", got)
	}

	c.ClearStatistics()
	if got := c.Statistics(); got != (expiringcache.Statistics{}) {
		t.Errorf("Statistics() = %+v after ClearStatistics", got)
	}
}
