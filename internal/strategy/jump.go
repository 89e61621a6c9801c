package strategy

import "placementcore/internal/topology"

// Jump implements Google's Jump Consistent Hash over a dense bucket
// array of currently-Up node identifiers. It is weightless: every Up
// node occupies exactly one bucket regardless of configured weight,
// per spec.md §4.2.2.
type Jump struct {
	seed    uint64
	dirty   bool
	buckets []uint64 // index = bucket number, value = owning node ID
}

// NewJump builds an empty Jump strategy keyed by seed.
func NewJump(seed uint64) *Jump {
	return &Jump{seed: seed, dirty: true}
}

func (j *Jump) Name() string { return "jump" }

// AddNode/RemoveNode don't touch buckets directly: the bucket array
// only ever reflects NodeSource at rebuild time, so all they do is
// mark the table stale. SetWeight is a no-op, since Jump is weightless.
func (j *Jump) AddNode(NodeSnapshot)          { j.dirty = true }
func (j *Jump) RemoveNode(uint64)             { j.dirty = true }
func (j *Jump) SetWeight(uint64, uint32)      {}
func (j *Jump) MarkDirty()                    { j.dirty = true }

func (j *Jump) rebuild(src NodeSource) {
	nodes := src.Nodes()
	buckets := make([]uint64, 0, len(nodes))
	for _, n := range nodes {
		state, ok := src.StateOf(n.ID)
		if ok && state == topology.Up {
			buckets = append(buckets, n.ID)
		}
	}
	j.buckets = buckets
	j.dirty = false
}

func (j *Jump) Locate(src NodeSource, keyBytes []byte, maxNodes int) []uint64 {
	if j.dirty {
		j.rebuild(src)
	}
	n := len(j.buckets)
	if n == 0 || maxNodes <= 0 {
		return nil
	}

	result := make([]uint64, 0, maxNodes)
	seenBucket := make([]bool, n)

	for r := 0; r < maxNodes && len(result) < n; r++ {
		h := H64(keyBytes, j.seed+uint64(r))
		b := jumpHash(h, int32(n))
		if seenBucket[b] {
			continue
		}
		seenBucket[b] = true
		result = append(result, j.buckets[b])
	}
	return result
}

// jumpHash is the published Jump Consistent Hash iteration: a
// deterministic LCG-driven descent that maps a 64-bit key to a bucket
// in [0, numBuckets).
func jumpHash(key uint64, numBuckets int32) int32 {
	var b, jb int64 = -1, 0
	for jb < int64(numBuckets) {
		b = jb
		key = key*2862933555777941757 + 1
		jb = int64(float64(b+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}
	return int32(b)
}
