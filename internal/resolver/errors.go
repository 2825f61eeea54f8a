package resolver

import (
	"net"

	"github.com/ChuLiYu/store-resolver/pkg/types"
	"github.com/cockroachdb/errors"
)

var (
	// ErrStoreTombstone marks lookups of stores removed from the cluster.
	ErrStoreTombstone = errors.New("store has been removed")
	// ErrEmptyAddress marks stores the coordinator knows without an address.
	ErrEmptyAddress = errors.New("invalid empty address")
	// ErrInvalidAddress marks addresses that are not a valid host:port.
	ErrInvalidAddress = errors.New("invalid store address")
	// ErrClosed is delivered to callbacks of requests dropped at shutdown.
	ErrClosed = errors.New("resolver is closed")
)

func tombstoneError(id types.StoreID) error {
	return errors.Mark(errors.Newf("store %d has been removed", id), ErrStoreTombstone)
}

func emptyAddressError(id types.StoreID) error {
	return errors.Mark(errors.Newf("invalid empty address for store %d", id), ErrEmptyAddress)
}

// parseAddr converts the coordinator's address string into an endpoint.
func parseAddr(id types.StoreID, addr string) (*net.TCPAddr, error) {
	tcp, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parse address %q of store %d", addr, id), ErrInvalidAddress)
	}
	return tcp, nil
}
