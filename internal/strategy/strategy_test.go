package strategy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placementcore/internal/topology"
)

// fakeSource is a minimal NodeSource used across strategy tests: a
// fixed list of nodes with explicit per-node state, weight, and load.
type fakeSource struct {
	nodes   []NodeSnapshot
	states  map[uint64]topology.NodeState
	index   map[uint64]int
	loads   map[uint64][2]uint64 // id -> [used, capacity]
}

func newFakeSource(ids []uint64, weight uint32, state topology.NodeState) *fakeSource {
	f := &fakeSource{
		states: make(map[uint64]topology.NodeState),
		index:  make(map[uint64]int),
		loads:  make(map[uint64][2]uint64),
	}
	for i, id := range ids {
		f.nodes = append(f.nodes, NodeSnapshot{ID: id, Weight: weight})
		f.states[id] = state
		f.index[id] = i
	}
	return f
}

func (f *fakeSource) Nodes() []NodeSnapshot { return f.nodes }
func (f *fakeSource) StateOf(id uint64) (topology.NodeState, bool) {
	s, ok := f.states[id]
	return s, ok
}
func (f *fakeSource) LoadOf(id uint64) (uint64, uint64, bool) {
	l, ok := f.loads[id]
	if !ok {
		return 0, 0, false
	}
	return l[0], l[1], true
}
func (f *fakeSource) NodeCount() int { return len(f.nodes) }
func (f *fakeSource) IndexOf(id uint64) (int, bool) {
	i, ok := f.index[id]
	return i, ok
}
func (f *fakeSource) setState(id uint64, s topology.NodeState) { f.states[id] = s }
func (f *fakeSource) setLoad(id, used, capacity uint64)        { f.loads[id] = [2]uint64{used, capacity} }

func buildKetama(ids []uint64, weight uint32) (*Ketama, *fakeSource) {
	src := newFakeSource(ids, weight, topology.Up)
	k := NewKetama(DefaultKetamaConfig(1))
	for _, n := range src.Nodes() {
		k.AddNode(n)
	}
	return k, src
}

func TestKetamaBasicPlacement(t *testing.T) {
	k, src := buildKetama([]uint64{1, 2, 3, 4, 5}, 100)

	got := k.Locate(src, []byte("test-key"), 3)
	require.Len(t, got, 3)

	seen := map[uint64]bool{}
	for _, id := range got {
		assert.False(t, seen[id], "duplicate node in placement")
		seen[id] = true
	}

	again := k.Locate(src, []byte("test-key"), 3)
	assert.Equal(t, got, again, "locate must be deterministic")
}

func TestKetamaSkipsNonUpNodes(t *testing.T) {
	k, src := buildKetama([]uint64{1, 2, 3, 4, 5}, 100)
	got := k.Locate(src, []byte("failover-key"), 5)
	require.Len(t, got, 5)
	primary := got[0]

	src.setState(primary, topology.Down)
	got2 := k.Locate(src, []byte("failover-key"), 1)
	require.Len(t, got2, 1)
	assert.NotEqual(t, primary, got2[0])

	src.setState(primary, topology.Up)
	got3 := k.Locate(src, []byte("failover-key"), 1)
	assert.Equal(t, primary, got3[0])
}

func TestKetamaWeightedDistribution(t *testing.T) {
	ids := []uint64{1, 2, 3}
	src := newFakeSource(ids, 100, topology.Up)
	k := NewKetama(DefaultKetamaConfig(7))
	k.AddNode(NodeSnapshot{ID: 1, Weight: 100})
	k.AddNode(NodeSnapshot{ID: 2, Weight: 200})
	k.AddNode(NodeSnapshot{ID: 3, Weight: 300})

	counts := map[uint64]int{}
	for i := 0; i < 10000; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		got := k.Locate(src, key, 1)
		require.Len(t, got, 1)
		counts[got[0]]++
	}

	ratio31 := float64(counts[3]) / float64(counts[1])
	ratio21 := float64(counts[2]) / float64(counts[1])
	assert.GreaterOrEqual(t, ratio31, 1.5)
	assert.LessOrEqual(t, ratio31, 5.0)
	assert.GreaterOrEqual(t, ratio21, 1.0)
	assert.LessOrEqual(t, ratio21, 3.5)
}

func TestKetamaExtremeWeights(t *testing.T) {
	src := newFakeSource([]uint64{1, 2}, 100, topology.Up)
	k := NewKetama(DefaultKetamaConfig(3))
	k.AddNode(NodeSnapshot{ID: 1, Weight: 1})
	k.AddNode(NodeSnapshot{ID: 2, Weight: 10000})

	counts := map[uint64]int{}
	for i := 0; i < 10000; i++ {
		got := k.Locate(src, []byte(fmt.Sprintf("k%d", i)), 1)
		counts[got[0]]++
	}
	assert.GreaterOrEqual(t, counts[2], counts[1]*5)
}

func TestKetamaMinimalMovementOnRemove(t *testing.T) {
	ids := make([]uint64, 10)
	for i := range ids {
		ids[i] = uint64(i + 1)
	}
	k, src := buildKetama(ids, 100)

	keys := make([][]byte, 1000)
	before := make([]uint64, 1000)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("movement-%d", i))
		got := k.Locate(src, keys[i], 1)
		before[i] = got[0]
	}

	removed := ids[0]
	k.RemoveNode(removed)
	delete(src.index, removed)
	src.states[removed] = topology.Down

	changed := 0
	unaffected := 0
	for i := range keys {
		if before[i] == removed {
			continue
		}
		unaffected++
		got := k.Locate(src, keys[i], 1)
		if got[0] != before[i] {
			changed++
		}
	}
	assert.LessOrEqual(t, float64(changed)/float64(unaffected), 0.05)
}

func TestJumpBasic(t *testing.T) {
	src := newFakeSource([]uint64{1, 2, 3, 4}, 100, topology.Up)
	j := NewJump(42)

	got := j.Locate(src, []byte("jump-key"), 2)
	require.Len(t, got, 2)
	assert.NotEqual(t, got[0], got[1])

	again := j.Locate(src, []byte("jump-key"), 2)
	assert.Equal(t, got, again)
}

func TestJumpIgnoresWeight(t *testing.T) {
	src := newFakeSource([]uint64{1, 2}, 1, topology.Up)
	src.nodes[1].Weight = 99999
	j := NewJump(1)
	// Weight must not influence which bucket a node lands in beyond
	// membership; both nodes still each occupy exactly one bucket.
	got := j.Locate(src, []byte("x"), 2)
	assert.Len(t, got, 2)
}

func TestRendezvousBasic(t *testing.T) {
	src := newFakeSource([]uint64{1, 2, 3, 4, 5}, 100, topology.Up)
	r := NewRendezvous(9)

	got := r.Locate(src, []byte("hrw-key"), 3)
	require.Len(t, got, 3)
	seen := map[uint64]bool{}
	for _, id := range got {
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestRendezvousLongKeyTruncation(t *testing.T) {
	src := newFakeSource([]uint64{1, 2, 3}, 100, topology.Up)
	r := NewRendezvous(1)

	longKey := make([]byte, 9999)
	for i := range longKey {
		longKey[i] = 'x'
	}
	got := r.Locate(src, longKey, 3)
	assert.Len(t, got, 3)
}

func TestRendezvousResultCountCapsAtHealthy(t *testing.T) {
	src := newFakeSource([]uint64{1, 2, 3}, 100, topology.Up)
	src.setState(3, topology.Down)
	r := NewRendezvous(1)
	got := r.Locate(src, []byte("k"), 5)
	assert.Len(t, got, 2)
}

func TestMaglevTableSize(t *testing.T) {
	src := newFakeSource([]uint64{1, 2, 3}, 100, topology.Up)
	m := NewMaglev(5)
	m.rebuild(src)
	require.Len(t, m.table, maglevTableSize)

	seen := map[uint64]bool{}
	for _, id := range m.table {
		seen[id] = true
	}
	for id := range seen {
		found := false
		for _, n := range src.nodes {
			if n.ID == id {
				found = true
			}
		}
		assert.True(t, found)
	}
}

func TestMaglevDeterministic(t *testing.T) {
	src := newFakeSource([]uint64{1, 2, 3, 4}, 100, topology.Up)
	m := NewMaglev(11)
	got1 := m.Locate(src, []byte("maglev-key"), 2)
	got2 := m.Locate(src, []byte("maglev-key"), 2)
	assert.Equal(t, got1, got2)
}

func TestBoundedDegradesToKetamaWithoutLoad(t *testing.T) {
	src := newFakeSource([]uint64{1, 2, 3}, 100, topology.Up)
	b := NewBounded(DefaultKetamaConfig(1), 0)
	for _, n := range src.Nodes() {
		b.AddNode(n)
	}
	got := b.Locate(src, []byte("bounded-key"), 2)
	assert.Len(t, got, 2)
}

func TestBoundedSkipsOverloadedNode(t *testing.T) {
	src := newFakeSource([]uint64{1, 2, 3}, 100, topology.Up)
	b := NewBounded(DefaultKetamaConfig(1), 1.1)
	for _, n := range src.Nodes() {
		b.AddNode(n)
	}
	src.setLoad(1, 10, 100)
	src.setLoad(2, 10, 100)
	src.setLoad(3, 95, 100)

	got := b.Locate(src, []byte("k1"), 3)
	require.Len(t, got, 2)
	assert.NotContains(t, got, uint64(3))
}
