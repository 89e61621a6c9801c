// Package strategy implements the five built-in placement algorithms
// (Ketama, Jump, Rendezvous, Maglev, Bounded) plus the custom-strategy
// hook, behind one uniform Strategy interface. Every built-in is
// deterministic given the same node snapshot and key, stable under
// unrelated membership changes, and skips any node whose state is not
// topology.Up.
package strategy

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"placementcore/internal/topology"
)

// NodeSnapshot is the minimal view a strategy needs of one node: its
// stable identifier and its replication weight. Strategies never see
// a node's name, address, or topology location — those stay owned by
// the ring.
type NodeSnapshot struct {
	ID     uint64
	Weight uint32
}

// NodeSource is the "ring" argument in spec terms: the read-only view
// a strategy is handed at Locate time. Nodes returns every node the
// ring currently knows about (so Jump/Maglev/Rendezvous can rebuild or
// rank from scratch); StateOf and LoadOf are O(1) point lookups used
// by Ketama/Bounded while walking a persistent vnode array, so they
// never need to materialize the full node list on the hot path.
type NodeSource interface {
	Nodes() []NodeSnapshot
	StateOf(id uint64) (topology.NodeState, bool)
	// LoadOf returns the node's last-reported used/capacity bytes and
	// whether a load report has ever been recorded. Only Bounded reads
	// this; every other strategy ignores it.
	LoadOf(id uint64) (usedBytes, capacityBytes uint64, ok bool)
	// NodeCount is len(Nodes()), exposed separately so Ketama/Bounded
	// can size a dedup.SeenTracker without materializing the node
	// slice on every walk.
	NodeCount() int
	// IndexOf resolves a node's dense array index, stable for the
	// duration of one Locate call (the ring is single-writer, so no
	// mutation can reorder it mid-call). This is what lets the
	// seen-tracker dedupe owners in O(1) instead of needing a map
	// keyed by the full 64-bit ID.
	IndexOf(id uint64) (int, bool)
}

// Strategy is the uniform contract every placement algorithm
// implements. Built-ins and the custom hook are both driven purely
// through this interface by the ring.
type Strategy interface {
	// Name identifies the strategy, used in snapshot headers and logs.
	Name() string

	// AddNode is called once per successful ring.AddNode, after the
	// node has been registered. Ketama/Bounded use it to insert vnodes;
	// Jump/Maglev/Rendezvous/custom can no-op and rely on NodeSource at
	// Locate time.
	AddNode(n NodeSnapshot)

	// RemoveNode mirrors AddNode for ring.RemoveNode.
	RemoveNode(id uint64)

	// SetWeight is called on ring.SetNodeWeight. Ketama/Bounded
	// remove-and-reinsert the node's vnodes at the new weight; other
	// strategies ignore weight entirely (per spec.md §4.2.2-§4.2.4,
	// Jump, Rendezvous and Maglev are weightless: Rendezvous scores
	// each node from the key and the node ID only).
	SetWeight(id uint64, weight uint32)

	// MarkDirty is called on every membership or state-changing
	// mutation. Jump and Maglev set an internal dirty bit here and
	// rebuild lazily on the next Locate; Ketama/Bounded ignore it,
	// since they consult current state live during the walk.
	MarkDirty()

	// Locate returns up to maxNodes distinct node IDs whose current
	// state (per src.StateOf) is topology.Up, in the strategy's
	// preference order for keyBytes. The result must be deterministic
	// for a fixed (src, keyBytes, maxNodes).
	Locate(src NodeSource, keyBytes []byte, maxNodes int) []uint64
}

// H64 is the keyed 64-bit hash used by every built-in strategy
// (vnode placement, Rendezvous scoring, Maglev permutations). It is a
// thin, reusable wrapper around xxhash so every strategy hashes
// exactly the same way regardless of which fields it mixes in.
func H64(data []byte, seed uint64) uint64 {
	d := xxhash.NewWithSeed(seed)
	d.Write(data) //nolint:errcheck // xxhash.Digest.Write never errors
	return d.Sum64()
}

// appendUint64LE appends v to dst in little-endian order, per
// spec.md's "All multi-byte fields are little-endian."
func appendUint64LE(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// appendUint16LE appends v to dst in little-endian order.
func appendUint16LE(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}
