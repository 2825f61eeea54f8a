package resolver

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ChuLiYu/store-resolver/internal/coordinator"
	"github.com/ChuLiYu/store-resolver/internal/metrics"
	"github.com/ChuLiYu/store-resolver/internal/worker"
	"github.com/ChuLiYu/store-resolver/pkg/types"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// blockingClient holds every lookup until release is closed.
type blockingClient struct {
	entered chan types.StoreID
	release chan struct{}
}

func newBlockingClient() *blockingClient {
	return &blockingClient{entered: make(chan types.StoreID, 16), release: make(chan struct{})}
}

func (b *blockingClient) GetStore(_ context.Context, id types.StoreID) (*types.Store, error) {
	b.entered <- id
	<-b.release
	return &types.Store{ID: id, State: types.StateUp, Address: testStoreAddr}, nil
}

func newTestResolver(t *testing.T, client coordinator.Client, cfg Config) *Resolver {
	t.Helper()
	r, err := New(client, cfg)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func resolveCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ============================================================================
// Lifecycle Tests
// ============================================================================

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.Error(t, err)
}

func TestResolveRequiresCallback(t *testing.T) {
	r := newTestResolver(t, newMockClient(testStoreAddr, types.StateUp), DefaultConfig())
	assert.Error(t, r.Resolve(1, nil))
}

func TestDefaultConfig(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 60*time.Second, cfg.RefreshInterval)
	assert.Equal(t, DefaultQueueSize, cfg.QueueSize)
	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.Metrics)
	assert.NotNil(t, cfg.Clock)
}

func TestResolveAfterCloseFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := New(newMockClient(testStoreAddr, types.StateUp), Config{Metrics: metrics.NewCollector(reg)})
	require.NoError(t, err)

	r.Close()
	assert.NotPanics(t, r.Close, "Close should be idempotent")

	called := false
	err = r.Resolve(1, func(*net.TCPAddr, error) { called = true })
	require.Error(t, err)
	assert.True(t, errors.Is(err, worker.ErrStopped))
	assert.False(t, called, "callback must not run when submission fails")

	assert.True(t, errors.Is(r.Invalidate(1), worker.ErrStopped))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	rejected := 0.0
	for _, mf := range mfs {
		if mf.GetName() == "store_resolve_rejected_total" {
			rejected = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, rejected)
}

func TestCloseLogsJoinFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r, err := New(newMockClient(testStoreAddr, types.StateUp), Config{Logger: zap.New(core)})
	require.NoError(t, err)

	// A panicking callback takes the worker down with it.
	ran := make(chan struct{})
	require.NoError(t, r.Resolve(1, func(*net.TCPAddr, error) {
		close(ran)
		panic("callback exploded")
	}))
	<-ran

	assert.NotPanics(t, r.Close)
	assert.Equal(t, 1, logs.FilterMessage("failed to stop store address resolve worker").Len())
}

func TestCloseSurvivesPanickingQueuedCallback(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	client := newBlockingClient()
	r, err := New(client, Config{QueueSize: 8, Logger: zap.New(core)})
	require.NoError(t, err)

	first := make(chan error, 1)
	require.NoError(t, r.Resolve(1, func(_ *net.TCPAddr, err error) { first <- err }))
	<-client.entered // store 1 is in flight
	require.NoError(t, r.Resolve(2, func(*net.TCPAddr, error) {
		panic("queued callback exploded")
	}))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		r.Close()
	}()

	require.Eventually(t, func() bool { return r.Invalidate(9) != nil }, time.Second, time.Millisecond)
	close(client.release)
	<-closed

	assert.NoError(t, <-first)
	assert.Equal(t, 1, logs.FilterMessage("failed to stop store address resolve worker").Len())
}

// ============================================================================
// Resolution Tests
// ============================================================================

func TestResolverResolve(t *testing.T) {
	client := newMockClient(testStoreAddr, types.StateUp)
	r := newTestResolver(t, client, DefaultConfig())

	addr, err := r.ResolveSync(resolveCtx(t), 1)
	require.NoError(t, err)
	assert.Equal(t, testStoreAddr, addr.String())
}

func TestResolverTombstone(t *testing.T) {
	reg := prometheus.NewRegistry()
	client := newMockClient(testStoreAddr, types.StateTombstone)
	r := newTestResolver(t, client, Config{Metrics: metrics.NewCollector(reg)})

	_, err := r.ResolveSync(resolveCtx(t), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreTombstone))
	assert.Equal(t, 1.0, resolveCount(t, reg, metrics.LabelTombstone))
}

func TestResolverResolveTwiceHitsCache(t *testing.T) {
	client := newMockClient(testStoreAddr, types.StateUp)
	client.rotate = true
	r := newTestResolver(t, client, DefaultConfig())

	first, err := r.ResolveSync(resolveCtx(t), 1)
	require.NoError(t, err)
	second, err := r.ResolveSync(resolveCtx(t), 1)
	require.NoError(t, err)

	assert.Equal(t, first.String(), second.String())
	assert.Equal(t, 1, client.callCount())
}

func TestResolverInvalidate(t *testing.T) {
	client := newMockClient(testStoreAddr, types.StateUp)
	client.rotate = true
	r := newTestResolver(t, client, DefaultConfig())

	first, err := r.ResolveSync(resolveCtx(t), 1)
	require.NoError(t, err)

	require.NoError(t, r.Invalidate(1))
	second, err := r.ResolveSync(resolveCtx(t), 1)
	require.NoError(t, err)

	assert.Greater(t, second.Port, first.Port)
	assert.Equal(t, 2, client.callCount())
}

func TestResolverExpiresWithClock(t *testing.T) {
	client := newMockClient(testStoreAddr, types.StateUp)
	client.rotate = true

	var (
		mu  sync.Mutex
		now = time.Unix(1_700_000_000, 0)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	r := newTestResolver(t, client, Config{RefreshInterval: 10 * time.Second, Clock: clock})

	first, err := r.ResolveSync(resolveCtx(t), 1)
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(11 * time.Second)
	mu.Unlock()

	second, err := r.ResolveSync(resolveCtx(t), 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.Port, second.Port)
	assert.Equal(t, 2, client.callCount())
}

func TestResolveSyncContextCanceled(t *testing.T) {
	client := newBlockingClient()
	r := newTestResolver(t, client, DefaultConfig())
	defer close(client.release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.ResolveSync(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================================
// Concurrency Tests
// ============================================================================

func TestConcurrentCallersShareOneLookup(t *testing.T) {
	const callers = 50
	client := newMockClient(testStoreAddr, types.StateUp)
	r := newTestResolver(t, client, DefaultConfig())

	var wg sync.WaitGroup
	addrs := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr, err := r.ResolveSync(resolveCtx(t), 1)
			if assert.NoError(t, err) {
				addrs[i] = addr.String()
			}
		}(i)
	}
	wg.Wait()

	for _, a := range addrs {
		assert.Equal(t, testStoreAddr, a)
	}
	assert.Equal(t, 1, client.callCount(), "serialized lookups should hit the cache after the first")
}

func TestQueueFullRejectsSubmission(t *testing.T) {
	client := newBlockingClient()
	r := newTestResolver(t, client, Config{QueueSize: 1})

	results := make(chan error, 2)
	cb := func(_ *net.TCPAddr, err error) { results <- err }

	require.NoError(t, r.Resolve(1, cb))
	<-client.entered // worker is now blocked on store 1
	require.NoError(t, r.Resolve(2, cb))

	called := false
	err := r.Resolve(3, func(*net.TCPAddr, error) { called = true })
	require.Error(t, err)
	assert.True(t, errors.Is(err, worker.ErrQueueFull))

	close(client.release)
	assert.NoError(t, <-results)
	assert.NoError(t, <-results)
	assert.False(t, called)
}

func TestCloseFailsQueuedRequests(t *testing.T) {
	client := newBlockingClient()
	r, err := New(client, Config{QueueSize: 8})
	require.NoError(t, err)

	type outcome struct {
		id  types.StoreID
		err error
	}
	results := make(chan outcome, 3)
	for _, id := range []types.StoreID{1, 2, 3} {
		id := id
		require.NoError(t, r.Resolve(id, func(_ *net.TCPAddr, err error) {
			results <- outcome{id, err}
		}))
	}
	<-client.entered // store 1 is in flight

	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()

	// Wait until Close has stopped the queue, then let store 1 finish.
	require.Eventually(t, func() bool { return r.Invalidate(9) != nil }, time.Second, time.Millisecond)
	close(client.release)
	<-closed

	got := map[types.StoreID]error{}
	for i := 0; i < 3; i++ {
		o := <-results
		got[o.id] = o.err
	}
	assert.NoError(t, got[1], "the in-flight request runs to completion")
	assert.True(t, errors.Is(got[2], ErrClosed))
	assert.True(t, errors.Is(got[3], ErrClosed))
}
