// Package coordinator provides clients for the cluster coordinator, the
// service that is authoritative for store id -> node metadata mappings.
package coordinator

import (
	"context"

	"github.com/ChuLiYu/store-resolver/pkg/types"
	"github.com/cockroachdb/errors"
)

// ErrStoreNotFound is returned when the coordinator has no record of a store.
var ErrStoreNotFound = errors.New("store not found")

// Client is the narrow coordinator capability the resolver depends on.
// GetStore may block on network I/O.
type Client interface {
	GetStore(ctx context.Context, id types.StoreID) (*types.Store, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, id types.StoreID) (*types.Store, error)

func (f ClientFunc) GetStore(ctx context.Context, id types.StoreID) (*types.Store, error) {
	return f(ctx, id)
}
