// Package leader defines the election contract
// RegistryCore and LogStore use to discover who is leader and to campaign for
// leadership themselves, independent of which coordination mechanism backs
// it.
package leader

import "context"

// NodeInfo identifies a candidate/leader to the rest of the registry.
type NodeInfo struct {
	ID  string
	URL string
}

// Elector is satisfied by kafkaleader.Elector (production, topic-backed) and
// staticleader.Elector (single-node/test).
type Elector interface {
	// Init starts campaigning/watching. Blocks until the elector has an
	// initial view of leadership (possibly "no leader yet").
	Init(ctx context.Context) error

	// IsLeader reports whether this node currently holds leadership.
	IsLeader() bool

	// Leader returns the current leader's identity, or ok=false if none is
	// known yet.
	Leader() (NodeInfo, bool)

	// Resign voluntarily gives up leadership, e.g. on graceful shutdown.
	Resign(ctx context.Context) error

	// Close stops campaigning/watching and releases resources.
	Close() error
}

// OnLeadershipChange is invoked by an Elector whenever this node transitions
// into or out of leadership. LogStore uses this to open/close its producer.
type OnLeadershipChange func(isLeader bool)
