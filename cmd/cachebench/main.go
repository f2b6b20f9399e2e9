// Command cachebench runs a synthetic workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	expiringcache "github.com/karupanerura/expiring-cache"
	"github.com/karupanerura/expiring-cache/expiry"
	"github.com/karupanerura/expiring-cache/loader/singleflightloader"
	"github.com/karupanerura/expiring-cache/manager"
	pmet "github.com/karupanerura/expiring-cache/metrics/prom"
	"github.com/karupanerura/expiring-cache/storage/memstorage"
	"github.com/karupanerura/expiring-cache/sweeper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type config struct {
	maxSize  int
	ttl      time.Duration
	policy   string
	workers  int
	duration time.Duration
	readPct  int
	batch    int
	keys     int
	zipfS    float64
	zipfV    float64
	seed     int64
	preload  int
	sweep    time.Duration
}

// result counts what the workers did.
type result struct {
	total, reads, writes, batches, removes, hits, misses, errors atomic.Uint64
}

func main() {
	// ---- Flags ----
	var cfg config
	flag.IntVar(&cfg.maxSize, "max", 100_000, "maximum number of entries (0 = unbounded)")
	flag.DurationVar(&cfg.ttl, "ttl", time.Second, "entry lifetime")
	flag.StringVar(&cfg.policy, "policy", "created", "expiry policy: created | accessed | modified | touched | eternal")
	flag.IntVar(&cfg.workers, "workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "benchmark duration")
	flag.IntVar(&cfg.readPct, "reads", 80, "read percentage [0..100]")
	flag.IntVar(&cfg.batch, "batch", 8, "keys per GetAll/PutAll/RemoveAll call")
	flag.IntVar(&cfg.keys, "keys", 1_000_000, "keyspace size")
	flag.Float64Var(&cfg.zipfS, "zipf_s", 1.1, "Zipf s > 1 (skew)")
	flag.Float64Var(&cfg.zipfV, "zipf_v", 1.0, "Zipf v")
	flag.Int64Var(&cfg.seed, "seed", time.Now().UnixNano(), "random seed")
	flag.IntVar(&cfg.preload, "preload", 0, "preload entries (0 = max/2)")
	flag.DurationVar(&cfg.sweep, "sweep", 0, "background sweep interval (0 = disabled)")
	pprofAddr := flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	metricsAddr := flag.String("http", ":8080", "serve Prometheus metrics at addr; empty = disabled")
	verbose := flag.Bool("v", false, "log cleanup passes")
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	// ---- pprof and Prometheus servers (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			logger.Info().Str("addr", *pprofAddr).Msg("pprof: serving")
			logger.Err(http.ListenAndServe(*pprofAddr, nil)).Msg("pprof: stopped")
		}()
	}
	metrics := pmet.New(nil, "expiringcache", "bench", nil)
	if *metricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info().Str("addr", *metricsAddr).Msg("metrics: serving")
			logger.Err(http.ListenAndServe(*metricsAddr, nil)).Msg("metrics: stopped")
		}()
	}

	if err := run(cfg, metrics, logger); err != nil {
		logger.Fatal().Err(err).Msg("benchmark failed")
	}
}

func expiryPolicy(name string, ttl time.Duration) (expiry.Policy, error) {
	d := expiry.After(ttl)
	switch name {
	case "created":
		return expiry.CreatedPolicy{Duration: d}, nil
	case "accessed":
		return expiry.AccessedPolicy{Duration: d}, nil
	case "modified":
		return expiry.ModifiedPolicy{Duration: d}, nil
	case "touched":
		return expiry.TouchedPolicy{Duration: d}, nil
	case "eternal":
		return expiry.EternalPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown policy: %q (use created, accessed, modified, touched or eternal)", name)
	}
}

func run(cfg config, metrics expiringcache.Metrics, logger zerolog.Logger) error {
	policy, err := expiryPolicy(cfg.policy, cfg.ttl)
	if err != nil {
		return err
	}
	if cfg.workers <= 0 {
		cfg.workers = 1
	}
	if cfg.batch <= 0 {
		cfg.batch = 1
	}

	// ---- Build the system of record and the cache in front of it ----
	store := memstorage.NewInMemoryStorage[string, string]()
	m := manager.New(manager.WithLogger(logger))
	defer func() { _ = m.Close() }()

	c, err := manager.GetOrCreate[string, string](m, "bench",
		expiringcache.WithExpiryPolicy[string, string](policy),
		expiringcache.WithMaxSize[string, string](cfg.maxSize),
		expiringcache.WithLoader[string, string](singleflightloader.NewSingleFlightLoader[string, string](store)),
		expiringcache.WithWriter[string, string](store),
		expiringcache.WithMetrics[string, string](metrics),
	)
	if err != nil {
		return err
	}

	if cfg.sweep > 0 {
		sweepCtx, stopSweep := context.WithCancel(context.Background())
		done := sweeper.NewIntervalSweeper(c, cfg.sweep, func(err error) {
			logger.Warn().Err(err).Msg("background sweep failed")
		}).LaunchBackgroundSweeper(sweepCtx)
		defer func() {
			stopSweep()
			<-done
		}()
	}

	// ---- Preload half capacity to get a realistic hit-rate ----
	pl := cfg.preload
	if pl == 0 {
		pl = cfg.maxSize / 2
	}
	ctx := context.Background()
	for i := 0; i < pl; i++ {
		k := "k:" + strconv.Itoa(i)
		if err := c.Put(ctx, k, "v"+strconv.Itoa(i)); err != nil {
			return err
		}
	}

	// ---- Load generation ----
	var res result
	ctx, cancel := context.WithTimeout(ctx, cfg.duration)
	defer cancel()

	start := time.Now()
	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.workers; w++ {
		eg.Go(func() error {
			return work(ctx, c, cfg, int64(w), &res)
		})
	}
	if err := eg.Wait(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	elapsed := time.Since(start)

	// ---- Report ----
	ops := res.total.Load()
	readsN := res.reads.Load()
	hitsN := res.hits.Load()
	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}
	stats := c.Statistics()

	fmt.Printf("policy=%s ttl=%v max=%d workers=%d keys=%d dur=%v seed=%d\n",
		cfg.policy, cfg.ttl, cfg.maxSize, cfg.workers, cfg.keys, elapsed, cfg.seed)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  batches=%d  removes=%d  errors=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, res.writes.Load(), res.batches.Load(), res.removes.Load(), res.errors.Load())
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, res.misses.Load(), hitRate)
	fmt.Printf("cache: puts=%d removals=%d evictions=%d hit-ratio=%.2f%%\n",
		stats.Puts, stats.Removals, stats.Evictions, stats.HitRatio()*100)
	fmt.Printf("Len()=%d store.Len()=%d store.Loads()=%d\n", c.Len(), store.Len(), store.Loads())
	return nil
}

// work issues a mix of single-key and batch operations until ctx is done.
// Operation errors are counted; only an unexpected failure stops the run.
func work(ctx context.Context, c *expiringcache.Cache[string, string], cfg config, id int64, res *result) error {
	// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
	localR := rand.New(rand.NewSource(cfg.seed + id*9973))
	localZipf := rand.NewZipf(localR, cfg.zipfS, cfg.zipfV, uint64(cfg.keys-1))
	keyByZipf := func() string {
		return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
	}
	batch := func() []string {
		keys := make([]string, cfg.batch)
		for i := range keys {
			keys[i] = keyByZipf()
		}
		return keys
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res.total.Add(1)
		var err error
		switch roll := int(localR.Int31n(100)); {
		case roll < cfg.readPct:
			res.reads.Add(1)
			var ok bool
			if _, ok, err = c.Get(ctx, keyByZipf()); ok {
				res.hits.Add(1)
			} else {
				res.misses.Add(1)
			}
		case roll < cfg.readPct+(100-cfg.readPct)/2:
			res.writes.Add(1)
			err = c.Put(ctx, keyByZipf(), "v"+strconv.Itoa(localR.Int()))
		default:
			res.batches.Add(1)
			switch localR.Intn(4) {
			case 0:
				_, err = c.GetAll(ctx, batch())
			case 1:
				values := make(map[string]string, cfg.batch)
				for _, k := range batch() {
					values[k] = "v" + strconv.Itoa(localR.Int())
				}
				err = c.PutAll(ctx, values)
			case 2:
				res.removes.Add(1)
				err = c.RemoveAll(ctx, batch())
			default:
				res.removes.Add(1)
				_, err = c.Remove(ctx, keyByZipf())
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return ctx.Err()
		case errors.Is(err, expiringcache.ErrNotOpen):
			return err
		default:
			res.errors.Add(1)
		}
	}
}
