package proof

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/proofchain/proofapi/libs/log"
	"github.com/proofchain/proofapi/libs/service"
	"github.com/proofchain/proofapi/types"
)

const (
	DefaultCacheTTL      = 10 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultBuildTimeout  = 2 * time.Minute
)

// BuildFunc produces a serialized proof chain for a descriptor.
type BuildFunc func(ctx context.Context, d types.TransactionDescriptor) ([]byte, error)

// CacheOptions configures a Cache. Zero durations fall back to defaults.
type CacheOptions struct {
	NetworkID     uint32
	TTL           time.Duration
	SweepInterval time.Duration
	BuildTimeout  time.Duration
	Metrics       *Metrics
}

// Cache coalesces concurrent proof builds per fingerprint and retains
// finished outcomes for a TTL. Terminal failures are cached like successes;
// transient ones are not, so the next request tries again.
//
// The embedded BaseService runs the compaction sweeper; the cache itself
// works without being started.
type Cache struct {
	service.BaseService
	logger  log.Logger
	build   BuildFunc
	opts    CacheOptions
	metrics *Metrics

	flight singleflight.Group
	done   chan struct{}

	mtx     sync.Mutex
	entries map[types.Fingerprint]*cacheEntry
}

type cacheEntry struct {
	chain     []byte
	err       error
	expiresAt time.Time
}

func NewCache(logger log.Logger, build BuildFunc, opts CacheOptions) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultCacheTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.BuildTimeout <= 0 {
		opts.BuildTimeout = DefaultBuildTimeout
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NopMetrics()
	}
	c := &Cache{
		logger:  logger,
		build:   build,
		opts:    opts,
		metrics: metrics,
		done:    make(chan struct{}),
		entries: make(map[types.Fingerprint]*cacheEntry),
	}
	c.BaseService = *service.NewBaseService(logger, "ProofCache", c)
	return c
}

func (c *Cache) OnStart(ctx context.Context) error {
	go c.sweepRoutine(ctx)
	return nil
}

func (c *Cache) OnStop() { close(c.done) }

// GetOrBuild returns the cached proof chain for the descriptor or builds
// it, coalescing concurrent requests for the same fingerprint into one
// build. The build runs on its own context: a caller disconnecting abandons
// delivery, never the build.
func (c *Cache) GetOrBuild(ctx context.Context, d types.TransactionDescriptor) ([]byte, error) {
	fp := types.BuildFingerprint(c.opts.NetworkID, d)

	if e, ok := c.lookup(fp); ok {
		c.metrics.CacheHits.Add(1)
		return e.chain, e.err
	}
	c.metrics.CacheMisses.Add(1)

	ch := c.flight.DoChan(string(fp[:]), func() (interface{}, error) {
		return c.runBuild(fp, d)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.metrics.CoalescedWaiters.Add(1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Len returns the number of live cache entries.
func (c *Cache) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.entries)
}

func (c *Cache) runBuild(fp types.Fingerprint, d types.TransactionDescriptor) ([]byte, error) {
	// A finished build may have landed between lookup and DoChan.
	if e, ok := c.lookup(fp); ok {
		return e.chain, e.err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.BuildTimeout)
	defer cancel()

	chain, err := c.build(ctx, d)
	if err == nil || isTerminal(err) {
		c.store(fp, chain, err)
	}
	return chain, err
}

func (c *Cache) lookup(fp types.Fingerprint) (*cacheEntry, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	e, ok := c.entries[fp]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e, true
}

func (c *Cache) store(fp types.Fingerprint, chain []byte, err error) {
	c.mtx.Lock()
	c.entries[fp] = &cacheEntry{chain: chain, err: err, expiresAt: time.Now().Add(c.opts.TTL)}
	n := len(c.entries)
	c.mtx.Unlock()
	c.metrics.CacheEntries.Set(float64(n))
}

// isTerminal reports whether an outcome is worth caching. Transient
// failures are not: the upstream may recover before the TTL runs out.
func isTerminal(err error) bool {
	return !errors.Is(err, types.ErrUpstreamUnavailable) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, context.Canceled)
}

func (c *Cache) sweepRoutine(ctx context.Context) {
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	now := time.Now()
	c.mtx.Lock()
	evicted := 0
	for fp, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, fp)
			evicted++
		}
	}
	n := len(c.entries)
	c.mtx.Unlock()

	c.metrics.CacheEntries.Set(float64(n))
	if evicted > 0 {
		c.logger.Debug("cache compaction", "evicted", evicted, "remaining", n)
	}
}
