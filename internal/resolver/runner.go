package resolver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ChuLiYu/store-resolver/internal/coordinator"
	"github.com/ChuLiYu/store-resolver/internal/metrics"
	"github.com/ChuLiYu/store-resolver/pkg/types"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type taskOp int

const (
	opResolve taskOp = iota
	opInvalidate
)

// task is one request queued on the resolve worker. It is consumed exactly
// once: either Run or Drop sees it, never both.
type task struct {
	storeID types.StoreID
	op      taskOp
	cb      Callback
}

func (t task) String() string {
	if t.op == opInvalidate {
		return fmt.Sprintf("invalidate store %d address", t.storeID)
	}
	return fmt.Sprintf("resolve store %d address", t.storeID)
}

// runner is the resolve worker's Runnable. It owns the address cache.
type runner struct {
	client          coordinator.Client
	cache           *addrCache
	refreshInterval time.Duration
	now             func() time.Time
	metrics         *metrics.Collector
	logger          *zap.Logger
}

// Run handles one task on the worker goroutine.
func (r *runner) Run(t task) {
	switch t.op {
	case opInvalidate:
		r.cache.remove(t.storeID)
		r.logger.Debug("store address invalidated", zap.Uint64("store_id", uint64(t.storeID)))
	default:
		addr, err := r.resolve(t.storeID)
		t.cb(addr, err)
	}
}

// Drop fails requests still queued when the worker stops.
func (r *runner) Drop(t task) {
	if t.op == opResolve {
		t.cb(nil, errors.Wrapf(ErrClosed, "resolve store %d", t.storeID))
	}
}

func (r *runner) resolve(id types.StoreID) (*net.TCPAddr, error) {
	if s, ok := r.cache.get(id); ok && s.fresh(r.now(), r.refreshInterval) {
		r.metrics.RecordResolve(metrics.LabelHit)
		return cloneTCPAddr(s.addr), nil
	}

	addr, err := r.getAddress(id)
	if err != nil {
		return nil, err
	}

	tcp, err := parseAddr(id, addr)
	if err != nil {
		r.metrics.RecordResolve(metrics.LabelInvalidAddress)
		r.logger.Debug("invalid store address", zap.Uint64("store_id", uint64(id)), zap.Error(err))
		return nil, err
	}

	r.cache.put(id, tcp, r.now())
	r.metrics.RecordResolve(metrics.LabelMiss)
	r.logger.Debug("store address refreshed",
		zap.Uint64("store_id", uint64(id)),
		zap.Stringer("addr", tcp))
	return tcp, nil
}

// getAddress asks the coordinator for the address of a store and rejects
// stores that must not be cached.
func (r *runner) getAddress(id types.StoreID) (string, error) {
	// Latency is wall time; the injected clock only drives freshness.
	start := time.Now()
	s, err := r.client.GetStore(context.Background(), id)
	r.metrics.ObserveCoordinator(time.Since(start).Seconds())
	if err != nil {
		r.metrics.RecordResolve(metrics.LabelFailed)
		r.logger.Debug("get store failed", zap.Uint64("store_id", uint64(id)), zap.Error(err))
		return "", errors.Wrapf(err, "get store %d", id)
	}

	if s.State == types.StateTombstone {
		r.metrics.RecordResolve(metrics.LabelTombstone)
		return "", tombstoneError(id)
	}

	// Some bootstrap paths register a store before it has an address.
	if s.Address == "" {
		r.metrics.RecordResolve(metrics.LabelEmptyAddress)
		return "", emptyAddressError(id)
	}
	return s.Address, nil
}
