package resolver

import (
	"net"
	"time"

	"github.com/ChuLiYu/store-resolver/pkg/types"
)

// storeAddr is the last known-good endpoint of a store.
type storeAddr struct {
	addr       *net.TCPAddr
	lastUpdate time.Time
}

// fresh reports whether the entry may be served at now. An entry exactly
// window old is stale.
func (s *storeAddr) fresh(now time.Time, window time.Duration) bool {
	return now.Sub(s.lastUpdate) < window
}

// addrCache maps store ids to endpoints. It is owned by the runner and only
// touched on the worker goroutine, so it has no locking.
type addrCache struct {
	entries map[types.StoreID]*storeAddr
}

func newAddrCache() *addrCache {
	return &addrCache{entries: make(map[types.StoreID]*storeAddr)}
}

func (c *addrCache) get(id types.StoreID) (*storeAddr, bool) {
	s, ok := c.entries[id]
	return s, ok
}

// put stores a private copy of addr.
func (c *addrCache) put(id types.StoreID, addr *net.TCPAddr, now time.Time) {
	c.entries[id] = &storeAddr{addr: cloneTCPAddr(addr), lastUpdate: now}
}

func (c *addrCache) remove(id types.StoreID) {
	delete(c.entries, id)
}

func (c *addrCache) len() int { return len(c.entries) }

// cloneTCPAddr deep-copies a so callers never share the cached entry.
func cloneTCPAddr(a *net.TCPAddr) *net.TCPAddr {
	c := *a
	c.IP = append(net.IP(nil), a.IP...)
	return &c
}
