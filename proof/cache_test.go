package proof

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofchain/proofapi/libs/log"
	"github.com/proofchain/proofapi/types"
)

func countingBuild(calls *int32, delay time.Duration, out []byte, err error) BuildFunc {
	return func(ctx context.Context, d types.TransactionDescriptor) ([]byte, error) {
		atomic.AddInt32(calls, 1)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return out, err
	}
}

func TestCacheCoalescesConcurrentBuilds(t *testing.T) {
	f := newFixture(t)
	b := newTestBuilder(t, f, BuilderOptions{})
	c := NewCache(log.NewTestingLogger(t), b.BuildProofChain, CacheOptions{NetworkID: testNetworkID})

	const n = 8
	results := make([][]byte, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrBuild(context.Background(), f.desc)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	verifyChain(t, f, results[0])

	// one build, no matter how many requesters
	assert.Equal(t, 1, f.source.Calls("LocateTransaction"))
}

func TestCacheHit(t *testing.T) {
	var calls int32
	c := NewCache(log.NewTestingLogger(t), countingBuild(&calls, 0, []byte("chain"), nil),
		CacheOptions{NetworkID: testNetworkID})

	d := types.TransactionDescriptor{Address: testAddr(0x01), LogicalTime: 1}
	for i := 0; i < 3; i++ {
		out, err := c.GetOrBuild(context.Background(), d)
		require.NoError(t, err)
		assert.Equal(t, []byte("chain"), out)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Equal(t, 1, c.Len())
}

func TestCacheCachesTerminalFailures(t *testing.T) {
	var calls int32
	buildErr := &BuildError{Err: types.ErrNotFound}
	c := NewCache(log.NewTestingLogger(t), countingBuild(&calls, 0, nil, buildErr),
		CacheOptions{NetworkID: testNetworkID})

	d := types.TransactionDescriptor{Address: testAddr(0x01), LogicalTime: 1}
	for i := 0; i < 2; i++ {
		_, err := c.GetOrBuild(context.Background(), d)
		require.ErrorIs(t, err, types.ErrNotFound)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCacheSkipsTransientFailures(t *testing.T) {
	var calls int32
	buildErr := &BuildError{Err: types.ErrUpstreamUnavailable}
	c := NewCache(log.NewTestingLogger(t), countingBuild(&calls, 0, nil, buildErr),
		CacheOptions{NetworkID: testNetworkID})

	d := types.TransactionDescriptor{Address: testAddr(0x01), LogicalTime: 1}
	for i := 0; i < 2; i++ {
		_, err := c.GetOrBuild(context.Background(), d)
		require.ErrorIs(t, err, types.ErrUpstreamUnavailable)
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Equal(t, 0, c.Len())
}

func TestCacheBuildOutlivesRequester(t *testing.T) {
	var calls int32
	c := NewCache(log.NewTestingLogger(t), countingBuild(&calls, 50*time.Millisecond, []byte("chain"), nil),
		CacheOptions{NetworkID: testNetworkID})

	d := types.TransactionDescriptor{Address: testAddr(0x01), LogicalTime: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetOrBuild(ctx, d)
	require.ErrorIs(t, err, context.Canceled)

	// the abandoned build finishes and lands in the cache
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 10*time.Millisecond)

	out, err := c.GetOrBuild(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, []byte("chain"), out)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCacheSweep(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	var calls int32
	c := NewCache(log.NewTestingLogger(t), countingBuild(&calls, 0, []byte("chain"), nil),
		CacheOptions{
			NetworkID:     testNetworkID,
			TTL:           20 * time.Millisecond,
			SweepInterval: 5 * time.Millisecond,
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	_, err := c.GetOrBuild(context.Background(), types.TransactionDescriptor{
		Address:     testAddr(0x01),
		LogicalTime: 1,
	})
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 10*time.Millisecond)

	// expired entries trigger a rebuild
	_, err = c.GetOrBuild(context.Background(), types.TransactionDescriptor{
		Address:     testAddr(0x01),
		LogicalTime: 1,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}
