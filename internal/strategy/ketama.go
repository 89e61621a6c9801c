package strategy

import (
	"sort"

	"placementcore/internal/dedup"
	"placementcore/internal/topology"
)

const (
	ketamaDefaultMultiplier = 150
	ketamaDefaultMinVnodes  = 10
	ketamaDefaultMaxVnodes  = 500
)

// vnode is one virtual node on the Ketama ring: a position plus its
// owner and its per-node vnode index.
// spec.md's design notes describe a weak-ref back to the owning Node
// for O(1) hot-path access; here that's simply the owner's stable ID
// resolved through NodeSource.StateOf, which is already O(1) and
// avoids pointer lifetime bookkeeping across node removal.
type vnode struct {
	hashPoint uint64
	ownerID   uint64
	index     uint16
}

// KetamaConfig tunes the weight-to-vnode-count mapping described in
// spec.md §4.2.1.
type KetamaConfig struct {
	Multiplier uint32 // default 150
	MinVnodes  int    // default 10
	MaxVnodes  int    // default 500
	Seed       uint64
}

// DefaultKetamaConfig returns the spec's default tuning.
func DefaultKetamaConfig(seed uint64) KetamaConfig {
	return KetamaConfig{
		Multiplier: ketamaDefaultMultiplier,
		MinVnodes:  ketamaDefaultMinVnodes,
		MaxVnodes:  ketamaDefaultMaxVnodes,
		Seed:       seed,
	}
}

// Ketama is consistent hashing with virtual nodes: every node
// contributes a weight-scaled number of vnodes to a sorted 64-bit
// ring, and a key is routed to the first vnode at or after its hash,
// walking forward to collect distinct, healthy owners.
type Ketama struct {
	cfg    KetamaConfig
	vnodes []vnode // always sorted by hashPoint after a mutation completes
	dirty  bool    // set when vnodes were appended or removed and not yet re-sorted
}

// NewKetama builds an empty Ketama strategy. Pass a zero KetamaConfig
// to use the spec's defaults.
func NewKetama(cfg KetamaConfig) *Ketama {
	if cfg.Multiplier == 0 {
		cfg.Multiplier = ketamaDefaultMultiplier
	}
	if cfg.MinVnodes == 0 {
		cfg.MinVnodes = ketamaDefaultMinVnodes
	}
	if cfg.MaxVnodes == 0 {
		cfg.MaxVnodes = ketamaDefaultMaxVnodes
	}
	return &Ketama{cfg: cfg}
}

func (k *Ketama) Name() string { return "ketama" }

// vnodeCount implements spec.md's
// clamp(weight * multiplier / 100, min, max).
func (k *Ketama) vnodeCount(weight uint32) int {
	if weight == 0 {
		weight = 100
	}
	n := int(uint64(weight) * uint64(k.cfg.Multiplier) / 100)
	if n < k.cfg.MinVnodes {
		n = k.cfg.MinVnodes
	}
	if n > k.cfg.MaxVnodes {
		n = k.cfg.MaxVnodes
	}
	return n
}

// hashPoint computes H64(node_id_le_bytes || vnode_index_le_bytes, seed).
func (k *Ketama) hashPoint(nodeID uint64, index uint16) uint64 {
	buf := make([]byte, 0, 10)
	buf = appendUint64LE(buf, nodeID)
	buf = appendUint16LE(buf, index)
	return H64(buf, k.cfg.Seed)
}

func (k *Ketama) AddNode(n NodeSnapshot) {
	count := k.vnodeCount(n.Weight)
	for i := 0; i < count; i++ {
		idx := uint16(i)
		k.vnodes = append(k.vnodes, vnode{
			hashPoint: k.hashPoint(n.ID, idx),
			ownerID:   n.ID,
			index:     idx,
		})
	}
	k.dirty = true
	k.resortIfDirty()
}

func (k *Ketama) RemoveNode(id uint64) {
	k.removeOwnerVnodes(id)
	k.dirty = true
	k.resortIfDirty()
}

func (k *Ketama) SetWeight(id uint64, weight uint32) {
	// spec.md §4.3: remove all vnodes of the node, update weight,
	// reinsert, resort.
	k.removeOwnerVnodes(id)
	k.AddNode(NodeSnapshot{ID: id, Weight: weight})
}

func (k *Ketama) MarkDirty() {
	// Ketama doesn't rebuild on state change: it checks current state
	// live during the walk via NodeSource.StateOf.
}

func (k *Ketama) removeOwnerVnodes(id uint64) {
	kept := k.vnodes[:0]
	for _, v := range k.vnodes {
		if v.ownerID != id {
			kept = append(kept, v)
		}
	}
	k.vnodes = kept
}

// resortIfDirty re-sorts the slice only when a mutation has left it
// unsorted. AddNode and RemoveNode call it before returning, so the
// slice is sorted after every mutation; SetWeight's remove-and-reinsert
// sorts once, via AddNode.
func (k *Ketama) resortIfDirty() {
	if !k.dirty {
		return
	}
	// Tie-break: array order, i.e. stable on equal hash points.
	sort.SliceStable(k.vnodes, func(i, j int) bool {
		return k.vnodes[i].hashPoint < k.vnodes[j].hashPoint
	})
	k.dirty = false
}

func (k *Ketama) Locate(src NodeSource, keyBytes []byte, maxNodes int) []uint64 {
	k.resortIfDirty()
	return k.walk(src, H64(keyBytes, k.cfg.Seed), maxNodes, nil)
}

// walk is shared with Bounded: it performs the binary-search-then-walk
// lookup, optionally consulting an overload predicate to skip nodes
// that are Up but currently over their load budget.
func (k *Ketama) walk(src NodeSource, h uint64, maxNodes int, overloaded func(id uint64) bool) []uint64 {
	if len(k.vnodes) == 0 || maxNodes <= 0 {
		return nil
	}

	start := sort.Search(len(k.vnodes), func(i int) bool {
		return k.vnodes[i].hashPoint >= h
	})
	if start == len(k.vnodes) {
		start = 0
	}

	seenOwner := dedup.NewSeenTracker(src.NodeCount())
	result := make([]uint64, 0, maxNodes)

	n := len(k.vnodes)
	for i := 0; i < n && len(result) < maxNodes; i++ {
		idx := (start + i) % n
		owner := k.vnodes[idx].ownerID

		ownerIdx, ok := src.IndexOf(owner)
		if !ok || seenOwner.Test(ownerIdx) {
			continue
		}
		state, ok := src.StateOf(owner)
		if !ok || state != topology.Up {
			continue
		}
		if overloaded != nil && overloaded(owner) {
			continue
		}
		seenOwner.Set(ownerIdx)
		result = append(result, owner)
	}
	return result
}
