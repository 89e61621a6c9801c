package strategy

import (
	"placementcore/internal/dedup"
	"placementcore/internal/topology"
)

// rendezvousMaxKeyBytes bounds the key bytes mixed into each node's
// score, per spec.md §4.2.3: "truncated to 248 bytes if longer,
// preserving a bounded stack buffer contract of 256 bytes total" (248
// key bytes + 8 bytes of node ID).
const rendezvousMaxKeyBytes = 248

// Rendezvous implements Highest Random Weight hashing: every Up node
// computes an independent score for the key, and the top maxNodes
// nodes by score are returned in descending order. It carries no
// persistent state between calls — every Locate re-scores every node
// — so AddNode/RemoveNode/SetWeight/MarkDirty are all no-ops.
type Rendezvous struct {
	seed uint64
}

// NewRendezvous builds a Rendezvous strategy keyed by seed.
func NewRendezvous(seed uint64) *Rendezvous {
	return &Rendezvous{seed: seed}
}

func (r *Rendezvous) Name() string                  { return "rendezvous" }
func (r *Rendezvous) AddNode(NodeSnapshot)           {}
func (r *Rendezvous) RemoveNode(uint64)              {}
func (r *Rendezvous) SetWeight(uint64, uint32)       {}
func (r *Rendezvous) MarkDirty()                     {}

func (r *Rendezvous) Locate(src NodeSource, keyBytes []byte, maxNodes int) []uint64 {
	if maxNodes <= 0 {
		return nil
	}
	if len(keyBytes) > rendezvousMaxKeyBytes {
		keyBytes = keyBytes[:rendezvousMaxKeyBytes]
	}

	nodes := src.Nodes()
	heap := dedup.NewTopKHeap[uint64](maxNodes)

	buf := make([]byte, 0, rendezvousMaxKeyBytes+8)
	for _, n := range nodes {
		state, ok := src.StateOf(n.ID)
		if !ok || state != topology.Up {
			continue
		}
		buf = buf[:0]
		buf = append(buf, keyBytes...)
		buf = appendUint64LE(buf, n.ID)
		score := H64(buf, r.seed)
		heap.Insert(n.ID, score)
	}

	entries := heap.Extract()
	result := make([]uint64, len(entries))
	for i, e := range entries {
		result[i] = e.Owner
	}
	return result
}
