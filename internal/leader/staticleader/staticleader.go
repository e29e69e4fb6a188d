// Package staticleader implements a single-node elector: this node is
// always leader. Used by the standalone memory-backed mode and by tests,
// where a topic-backed election would add nothing but latency.
package staticleader

import (
	"context"

	"github.com/kafkasr/schema-registry/internal/leader"
)

// Elector is always leader, reporting itself via self.
type Elector struct {
	self     leader.NodeInfo
	onChange leader.OnLeadershipChange
}

// New constructs an Elector that is permanently leader as self. onChange, if
// non-nil, is invoked once during Init with isLeader=true.
func New(self leader.NodeInfo, onChange leader.OnLeadershipChange) *Elector {
	return &Elector{self: self, onChange: onChange}
}

func (e *Elector) Init(_ context.Context) error {
	if e.onChange != nil {
		e.onChange(true)
	}
	return nil
}

func (e *Elector) IsLeader() bool { return true }

func (e *Elector) Leader() (leader.NodeInfo, bool) { return e.self, true }

func (e *Elector) Resign(_ context.Context) error { return nil }

func (e *Elector) Close() error { return nil }
