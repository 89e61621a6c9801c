package ring

import (
	"time"

	"placementcore/internal/topology"
)

// HealthReport is the last reachability check recorded for a node via
// UpdateNodeHealth.
type HealthReport struct {
	Reachable bool
	CheckedAt time.Time
}

// LoadReport is the last capacity/usage sample recorded for a node via
// UpdateNodeLoad. UsedBytes/CapacityBytes feed the Bounded strategy's
// overload check; CPUUsage feeds select_read_node's load-aware
// routing.
type LoadReport struct {
	UsedBytes     uint64
	CapacityBytes uint64
	CPUUsage      float64
	CheckedAt     time.Time
}

// NodeConfig is the caller-supplied description of a node passed to
// AddNode.
type NodeConfig struct {
	ID            uint64
	Name          string
	Address       string
	Location      topology.Location
	Weight        uint32 // default 100 if zero
	CapacityBytes uint64
	// InitialState is the state the node starts in. AddNode only
	// distinguishes two cases: Up starts the node Up, anything else
	// (including the zero value) starts it Joining. Callers that need
	// to land a node directly in some other state (e.g. restoring a
	// snapshot) must follow AddNode with SetNodeState.
	InitialState topology.NodeState
}

// Node is the ring's internal record of one member. Nodes are
// exclusively owned by the ring; callers only ever see read-only
// copies handed back by NodeByID/IterateNodes-family calls.
type Node struct {
	ID      uint64
	Name    string
	Address string

	Location topology.Location

	Weight        uint32
	CapacityBytes uint64
	UsedBytes     uint64

	State               topology.NodeState
	StateChangedAt      time.Time
	ConsecutiveFailures int

	Health HealthReport
	Load   LoadReport
}

// snapshot returns a copy of n, safe to hand to a caller.
func (n *Node) snapshot() Node {
	return *n
}
