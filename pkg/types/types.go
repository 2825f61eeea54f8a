// Package types defines the domain model shared by the store-resolver packages.
package types

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
)

// StoreID identifies a store (a cluster node) as tracked by the coordinator.
type StoreID uint64

func (id StoreID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseStoreID parses a decimal store id.
func ParseStoreID(s string) (StoreID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid store id %q", s)
	}
	return StoreID(v), nil
}

// StoreState is the lifecycle state of a store
type StoreState string

const (
	StateUp        StoreState = "up"        // serving traffic
	StateOffline   StoreState = "offline"   // being drained, still reachable
	StateTombstone StoreState = "tombstone" // permanently removed from the cluster
)

// ParseStoreState validates a state name read from config or the wire.
func ParseStoreState(s string) (StoreState, error) {
	switch st := StoreState(s); st {
	case StateUp, StateOffline, StateTombstone:
		return st, nil
	default:
		return "", errors.Newf("unknown store state %q", s)
	}
}

// Store is the node metadata returned by the coordinator.
// Only the endpoint derived from Address is ever cached.
type Store struct {
	ID      StoreID    `yaml:"id" json:"id"`
	State   StoreState `yaml:"state" json:"state"`
	Address string     `yaml:"address" json:"address"`
}

func (s *Store) String() string {
	return fmt.Sprintf("store %d (%s) at %q", s.ID, s.State, s.Address)
}
