// ============================================================================
// Store Resolver - Store ID to Endpoint Resolution
// ============================================================================
//
// Package: internal/resolver
// File: resolver.go
// Function: Resolves store ids to network endpoints through a cached,
//           single-goroutine pipeline
//
// Architecture:
//   ┌────────────┐ Resolve()  ┌──────────────┐       ┌──────────────────┐
//   │  callers   │───────────▶│ worker queue │──────▶│ runner           │
//   └────────────┘            └──────────────┘       │  ├─ addrCache    │
//         ▲                                          │  └─ coordinator  │
//         └──────────────── callback(addr, err) ─────└──────────────────┘
//
// Resolution:
//   1. A cache entry younger than RefreshInterval is returned as is
//   2. Otherwise the coordinator is asked for the store's metadata
//      - tombstoned stores and empty addresses fail and are never cached
//      - the address is parsed and cached with the current time
//   3. The callback runs exactly once, on the worker goroutine
//
// Cache hits are not re-validated: a store tombstoned after it was cached
// keeps resolving to its last address until its entry goes stale.
//
// Trade-off:
//   Every coordinator call blocks the single worker, so a slow lookup delays
//   all requests queued behind it. In exchange the cache needs no locks and
//   two lookups for the same store never race.
//
// ============================================================================

package resolver

import (
	"context"
	"net"
	"time"

	"github.com/ChuLiYu/store-resolver/internal/coordinator"
	"github.com/ChuLiYu/store-resolver/internal/metrics"
	"github.com/ChuLiYu/store-resolver/internal/worker"
	"github.com/ChuLiYu/store-resolver/pkg/types"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// DefaultRefreshInterval is how long a resolved address is trusted.
	DefaultRefreshInterval = 60 * time.Second
	// DefaultQueueSize is the capacity of the request queue.
	DefaultQueueSize = 1024

	workerName = "store address resolve worker"
)

// Callback receives the outcome of one Resolve call.
type Callback func(addr *net.TCPAddr, err error)

// StoreAddrResolver resolves store addresses asynchronously.
type StoreAddrResolver interface {
	// Resolve schedules the resolution of storeID. A nil error means cb will
	// be called exactly once; a non-nil error means it will never be called.
	Resolve(storeID types.StoreID, cb Callback) error
}

// Config holds resolver configuration
type Config struct {
	RefreshInterval time.Duration      // freshness window of cached addresses
	QueueSize       int                // pending request capacity
	Logger          *zap.Logger        // defaults to a no-op logger
	Metrics         *metrics.Collector // defaults to a collector on a private registry
	Clock           func() time.Time   // defaults to time.Now
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		RefreshInterval: DefaultRefreshInterval,
		QueueSize:       DefaultQueueSize,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = def.RefreshInterval
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewCollector(prometheus.NewRegistry())
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Resolver is the coordinator-backed StoreAddrResolver.
type Resolver struct {
	worker  *worker.Worker[task]
	metrics *metrics.Collector
	logger  *zap.Logger
}

var _ StoreAddrResolver = (*Resolver)(nil)

// New creates a Resolver and starts its worker.
func New(client coordinator.Client, cfg Config) (*Resolver, error) {
	if client == nil {
		return nil, errors.New("coordinator client is required")
	}
	cfg = cfg.withDefaults()

	r := &Resolver{
		worker:  worker.New[task](workerName, cfg.QueueSize, cfg.Logger),
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}

	run := &runner{
		client:          client,
		cache:           newAddrCache(),
		refreshInterval: cfg.RefreshInterval,
		now:             cfg.Clock,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
	}
	if err := r.worker.Start(run); err != nil {
		return nil, errors.Wrap(err, "start resolve worker")
	}
	return r, nil
}

// Resolve schedules the resolution of storeID and returns immediately.
func (r *Resolver) Resolve(storeID types.StoreID, cb Callback) error {
	if cb == nil {
		return errors.New("resolve callback is required")
	}
	return r.schedule(task{storeID: storeID, op: opResolve, cb: cb})
}

// Invalidate schedules the removal of storeID's cached address. Requests
// submitted after Invalidate returns will consult the coordinator.
func (r *Resolver) Invalidate(storeID types.StoreID) error {
	return r.schedule(task{storeID: storeID, op: opInvalidate})
}

// ResolveSync resolves storeID and waits for the result or ctx.
func (r *Resolver) ResolveSync(ctx context.Context, storeID types.StoreID) (*net.TCPAddr, error) {
	type result struct {
		addr *net.TCPAddr
		err  error
	}
	ch := make(chan result, 1)

	if err := r.Resolve(storeID, func(addr *net.TCPAddr, err error) {
		ch <- result{addr, err}
	}); err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		return res.addr, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) schedule(t task) error {
	if err := r.worker.Schedule(t); err != nil {
		r.metrics.RecordRejected()
		return errors.Wrapf(err, "schedule %s", t)
	}
	return nil
}

// Close stops the worker and waits for it. Requests still queued fail with
// ErrClosed. A failed join is logged rather than returned.
func (r *Resolver) Close() {
	h := r.worker.Stop()
	if h == nil {
		return
	}
	if err := h.Join(); err != nil {
		r.logger.Error("failed to stop store address resolve worker", zap.Error(err))
	}
}
