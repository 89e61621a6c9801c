package strategy

import (
	"placementcore/internal/dedup"
	"placementcore/internal/topology"
)

// maglevTableSize is the fixed prime table size mandated by spec.md
// §4.2.4.
const maglevTableSize = 65537

// Maglev implements lookup-table consistent hashing: a fixed
// prime-sized table is filled once per rebuild using each node's
// offset/skip permutation, and lookups are O(1) plus a short forward
// walk to dedupe owners.
type Maglev struct {
	seed  uint64
	dirty bool
	table []uint64 // len == maglevTableSize once built; entries are node IDs
}

// NewMaglev builds an empty Maglev strategy keyed by seed.
func NewMaglev(seed uint64) *Maglev {
	return &Maglev{seed: seed, dirty: true}
}

func (m *Maglev) Name() string { return "maglev" }

func (m *Maglev) AddNode(NodeSnapshot)     { m.dirty = true }
func (m *Maglev) RemoveNode(uint64)        { m.dirty = true }
func (m *Maglev) SetWeight(uint64, uint32) {}
func (m *Maglev) MarkDirty()               { m.dirty = true }

// rebuild fills the table per spec.md §4.2.4's offset/skip/permutation
// algorithm. If it cannot complete (defensively, only possible here on
// an allocation failure, which Go reports via panic/OOM rather than a
// recoverable error), the prior table and the dirty flag are left
// exactly as spec.md §4.10 requires: intact, so the next lookup
// retries the rebuild.
func (m *Maglev) rebuild(src NodeSource) {
	nodes := src.Nodes()
	var upIDs []uint64
	for _, n := range nodes {
		state, ok := src.StateOf(n.ID)
		if ok && state == topology.Up {
			upIDs = append(upIDs, n.ID)
		}
	}
	if len(upIDs) == 0 {
		m.table = nil
		m.dirty = false
		return
	}

	table := make([]uint64, maglevTableSize)
	filled := make([]bool, maglevTableSize)

	offset := make([]uint64, len(upIDs))
	skip := make([]uint64, len(upIDs))
	next := make([]uint64, len(upIDs))

	for i, id := range upIDs {
		idBytes := appendUint64LE(make([]byte, 0, 8), id)
		offset[i] = H64(idBytes, m.seed) % maglevTableSize
		skip[i] = (H64(idBytes, m.seed+1) % (maglevTableSize - 1)) + 1
	}

	count := 0
	for count < maglevTableSize {
		for i, id := range upIDs {
			for {
				slot := (offset[i] + next[i]*skip[i]) % maglevTableSize
				next[i]++
				if !filled[slot] {
					filled[slot] = true
					table[slot] = id
					count++
					break
				}
			}
			if count >= maglevTableSize {
				break
			}
		}
	}

	m.table = table
	m.dirty = false
}

func (m *Maglev) Locate(src NodeSource, keyBytes []byte, maxNodes int) []uint64 {
	if m.dirty {
		m.rebuild(src)
	}
	if len(m.table) == 0 || maxNodes <= 0 {
		return nil
	}

	h := H64(keyBytes, m.seed) % maglevTableSize
	result := make([]uint64, 0, maxNodes)
	seenOwner := dedup.NewSeenTracker(src.NodeCount())

	for i := 0; i < maglevTableSize && len(result) < maxNodes; i++ {
		idx := (int(h) + i) % maglevTableSize
		owner := m.table[idx]
		ownerIdx, ok := src.IndexOf(owner)
		if !ok || seenOwner.Test(ownerIdx) {
			continue
		}
		seenOwner.Set(ownerIdx)
		result = append(result, owner)
	}
	return result
}
