package coordinator

import (
	"context"
	"sync"

	"github.com/ChuLiYu/store-resolver/pkg/types"
	"github.com/cockroachdb/errors"
)

// StaticClient answers GetStore from an in-memory table. It backs the
// standalone coordinator server and offline CLI runs.
type StaticClient struct {
	mu     sync.RWMutex
	stores map[types.StoreID]types.Store
}

// NewStaticClient builds a table from the given stores. Later entries with
// the same id replace earlier ones.
func NewStaticClient(stores []types.Store) (*StaticClient, error) {
	c := &StaticClient{stores: make(map[types.StoreID]types.Store, len(stores))}
	for _, s := range stores {
		if err := c.Put(s); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Put adds or replaces a store record.
func (c *StaticClient) Put(s types.Store) error {
	if _, err := types.ParseStoreState(string(s.State)); err != nil {
		return errors.Wrapf(err, "store %d", s.ID)
	}
	c.mu.Lock()
	c.stores[s.ID] = s
	c.mu.Unlock()
	return nil
}

// Len returns the number of known stores
func (c *StaticClient) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stores)
}

// GetStore returns a copy of the record for id.
func (c *StaticClient) GetStore(ctx context.Context, id types.StoreID) (*types.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	s, ok := c.stores[id]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrStoreNotFound, "store %d", id)
	}
	return &s, nil
}
